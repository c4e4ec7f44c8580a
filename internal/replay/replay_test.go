package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvester-dev/harvester/internal/classify"
	"github.com/harvester-dev/harvester/internal/entity"
	"github.com/harvester-dev/harvester/internal/segment"
	"github.com/harvester-dev/harvester/internal/turn"
)

func TestBuildEntityIndex_SortsByStartTimeDescending(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	refs := []classify.SessionReference{
		{SessionID: "old", StartTime: base},
		{SessionID: "new", StartTime: base.Add(time.Hour)},
	}
	sorted := BuildEntityIndex(refs)
	require.Len(t, sorted, 2)
	assert.Equal(t, "new", sorted[0].SessionID)
	assert.Equal(t, "old", sorted[1].SessionID)
}

func TestWriteReadEntityIndex_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	refs := []classify.SessionReference{
		{SessionID: "s1", FilePath: "/tmp/s1.jsonl", Confidence: 0.9, StartTime: time.Now(), MessageCount: 3,
			MatchedMessages: []classify.MessagePointer{{UUID: "u1", LineNumber: 1}}},
	}

	require.NoError(t, WriteEntityIndex(dir, refs))

	got, err := ReadEntityIndex(dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SessionID)
	require.Len(t, got[0].MatchedMessages, 1)
	assert.Equal(t, "u1", got[0].MatchedMessages[0].UUID)
}

func TestReadEntityIndex_MissingFileReturnsNilNoError(t *testing.T) {
	dir := t.TempDir()
	got, err := ReadEntityIndex(dir)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWriteMasterIndex_CountsCategorizedAndUncategorized(t *testing.T) {
	dir := t.TempDir()
	entries := []MasterSessionEntry{
		{SessionID: "s1", Entities: []string{"spec:alpha"}},
		{SessionID: "s2", Uncategorized: true},
	}
	require.NoError(t, WriteMasterIndex(dir, entries, time.Now()))

	data, err := os.ReadFile(filepath.Join(dir, "all-sessions.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total": 2`)
	assert.Contains(t, string(data), `"categorized": 1`)
	assert.Contains(t, string(data), `"uncategorized": 1`)
}

func TestWriteReplays_ClearsDirAndNamesFilesByPersonAndStartTime(t *testing.T) {
	entityDir := t.TempDir()
	base := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	replays := []SessionReplay{
		{SessionID: "s1", Person: "kweng", StartTime: base, Segments: []segment.Segment{
			{Entity: nil, Turns: []turn.Turn{{Number: 1, Prompt: "hi", Response: "hello"}}},
		}},
	}

	names, err := WriteReplays(entityDir, replays)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "kweng_2026-03-04_09-30.md", names[0])

	data, err := os.ReadFile(filepath.Join(entityDir, "replay", names[0]))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Session Replay: s1")
	assert.Contains(t, content, "Uncategorized")
	assert.Contains(t, content, "> hi")
}

func TestWriteReplays_DisambiguatesCollidingFilenames(t *testing.T) {
	entityDir := t.TempDir()
	base := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	replays := []SessionReplay{
		{SessionID: "s1", Person: "kweng", StartTime: base},
		{SessionID: "s2", Person: "kweng", StartTime: base},
	}

	names, err := WriteReplays(entityDir, replays)
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.NotEqual(t, names[0], names[1])
}

func TestRenderSegmentHeading_NilEntityIsUncategorized(t *testing.T) {
	assert.Equal(t, "## Uncategorized\n\n", renderSegmentHeading(nil))
}

func TestRenderSegmentHeading_NamesEntity(t *testing.T) {
	e := &entity.Entity{Type: entity.TypeSpec, Name: "alpha", DisplayName: "Alpha"}
	assert.Equal(t, "## Alpha (spec:alpha)\n\n", renderSegmentHeading(e))
}

func TestWriteCategorizationReport_ComputesShares(t *testing.T) {
	dir := t.TempDir()
	summaries := []EntityIndexSummary{{EntityID: "spec:alpha", DisplayName: "Alpha", SessionCount: 3}}

	require.NoError(t, WriteCategorizationReport(dir, summaries, 4, 1, time.Now()))

	data, err := os.ReadFile(filepath.Join(dir, "categorization-report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Total sessions scanned: 4")
	assert.Contains(t, string(data), "75.0%")
}
