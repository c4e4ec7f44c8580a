package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSession_SkipsCorruptAndBlankLines(t *testing.T) {
	data := []byte(`{"uuid":"1","type":"user","timestamp":"2026-01-01T00:00:00Z","sessionId":"s1","message":{"role":"user","content":"hi"}}` + "\n" +
		"\n" +
		"not json at all\n" +
		`{"uuid":"2","type":"assistant","timestamp":"2026-01-01T00:01:00Z","message":{"role":"assistant","content":"hello"}}` + "\n")

	sess := ReadSession(data, "/tmp/s1.jsonl", ReaderOptions{})

	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "s1", sess.SessionID)
	assert.Equal(t, "hi", sess.Messages[0].TextContent())
}

func TestReadSession_DropsFileHistorySnapshot(t *testing.T) {
	data := []byte(`{"uuid":"1","type":"file-history-snapshot","timestamp":"2026-01-01T00:00:00Z"}` + "\n")
	sess := ReadSession(data, "/tmp/s1.jsonl", ReaderOptions{})
	assert.Empty(t, sess.Messages)
}

func TestReadSession_ExcludesSidechainWhenConfigured(t *testing.T) {
	data := []byte(`{"uuid":"1","type":"user","isSidechain":true,"timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"side"}}` + "\n")

	included := ReadSession(data, "/tmp/s1.jsonl", ReaderOptions{})
	assert.Len(t, included.Messages, 1)

	excluded := ReadSession(data, "/tmp/s1.jsonl", ReaderOptions{ExcludeSidechain: true})
	assert.Empty(t, excluded.Messages)
}

func TestReadSession_ExcludesThinkingBlocksWhenConfigured(t *testing.T) {
	content := `[{"type":"thinking","text":"pondering"},{"type":"text","text":"answer"}]`
	data := []byte(`{"uuid":"1","type":"assistant","timestamp":"2026-01-01T00:00:00Z","message":{"role":"assistant","content":` + content + `}}` + "\n")

	kept := ReadSession(data, "/tmp/s1.jsonl", ReaderOptions{})
	require.Len(t, kept.Messages, 1)
	require.Len(t, kept.Messages[0].ContentBlocks, 2)

	stripped := ReadSession(data, "/tmp/s1.jsonl", ReaderOptions{ExcludeThinking: true})
	require.Len(t, stripped.Messages, 1)
	require.Len(t, stripped.Messages[0].ContentBlocks, 1)
	assert.Equal(t, BlockText, stripped.Messages[0].ContentBlocks[0].Type)
}

func TestReadSession_HandlesLongLineWithinEnlargedBuffer(t *testing.T) {
	longText := strings.Repeat("a", 5*1024*1024)
	data := []byte(`{"uuid":"1","type":"user","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"` + longText + `"}}` + "\n")

	sess := ReadSession(data, "/tmp/s1.jsonl", ReaderOptions{})
	require.Len(t, sess.Messages, 1)
	assert.Len(t, sess.Messages[0].TextContent(), len(longText))
}

func TestReadSession_TracksStartAndEndTime(t *testing.T) {
	data := []byte(`{"uuid":"1","type":"user","timestamp":"2026-01-01T00:05:00Z","message":{"role":"user","content":"a"}}` + "\n" +
		`{"uuid":"2","type":"user","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"b"}}` + "\n" +
		`{"uuid":"3","type":"user","timestamp":"2026-01-01T00:10:00Z","message":{"role":"user","content":"c"}}` + "\n")

	sess := ReadSession(data, "/tmp/s1.jsonl", ReaderOptions{})
	require.Len(t, sess.Messages, 3)
	assert.Equal(t, "00:00:00", sess.StartTime.Format("15:04:05"))
	assert.Equal(t, "00:10:00", sess.EndTime.Format("15:04:05"))
}

func TestSanitizeProjectPath_ReplacesNonAlnumWithDash(t *testing.T) {
	assert.Equal(t, "-Users-kweng-project", SanitizeProjectPath("/Users/kweng/project"))
}

func TestFindSessionDir_JoinsHomeClaudeProjectsSlug(t *testing.T) {
	got := FindSessionDir("/home/kweng", "/repo/project")
	assert.Equal(t, filepath.Join("/home/kweng", ".claude", "projects", "-repo-project"), got)
}

func TestFindSessionFiles_ListsOnlyJSONLSortedByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jsonl", "a.jsonl", "ignore.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "subdir.jsonl"), 0o755))

	files, err := FindSessionFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, "a.jsonl"), files[0])
	assert.Equal(t, filepath.Join(dir, "b.jsonl"), files[1])
}
