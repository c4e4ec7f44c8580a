package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvester-dev/harvester/internal/model"
)

func sampleConversation(id string) model.Conversation {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Conversation{
		ID:       id,
		Platform: "wechat",
		Title:    "t",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "hello world", Timestamp: base},
			{Role: model.RoleAssistant, Content: "goodbye moon", Timestamp: base.Add(time.Minute)},
		},
	}
}

func TestWriteReadConversation_RoundTrips(t *testing.T) {
	root := t.TempDir()
	s := New(root, "wechat")
	conv := sampleConversation("c1")

	require.NoError(t, s.WriteConversation(conv))

	msgs, err := s.ReadConversation("c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello world", msgs[0].Content)
	assert.Equal(t, "goodbye moon", msgs[1].Content)
}

func TestReadConversation_SkipsCorruptLines(t *testing.T) {
	root := t.TempDir()
	s := New(root, "wechat")
	require.NoError(t, os.MkdirAll(s.dir(), 0o755))
	data := []byte(`{"role":"user","content":"ok","timestamp":"2026-01-01T00:00:00Z"}` + "\n" +
		"not json\n" +
		`{"role":"user","content":"ok2","timestamp":"2026-01-01T00:01:00Z"}` + "\n")
	require.NoError(t, os.WriteFile(s.conversationPath("c2"), data, 0o644))

	msgs, err := s.ReadConversation("c2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "ok", msgs[0].Content)
	assert.Equal(t, "ok2", msgs[1].Content)
}

func TestIndex_UpsertReplacesExistingByID(t *testing.T) {
	idx := Index{}
	idx.UpsertIndexEntry(model.IndexEntry{ID: "a", MessageCount: 1})
	idx.UpsertIndexEntry(model.IndexEntry{ID: "b", MessageCount: 2})
	idx.UpsertIndexEntry(model.IndexEntry{ID: "a", MessageCount: 99})

	require.Len(t, idx.Entries, 2)
	assert.Equal(t, 99, idx.Entries[0].MessageCount)
	assert.Equal(t, 2, idx.Entries[1].MessageCount)
}

func TestWriteReadIndex_RoundTrips(t *testing.T) {
	root := t.TempDir()
	s := New(root, "wechat")
	idx := Index{Entries: []model.IndexEntry{{ID: "a", Platform: "wechat", MessageCount: 3}}}

	require.NoError(t, s.WriteIndex(idx))
	got, err := s.ReadIndex()
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "a", got.Entries[0].ID)
}

func TestReadIndex_MissingFileReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	s := New(root, "wechat")
	idx, err := s.ReadIndex()
	require.NoError(t, err)
	assert.Empty(t, idx.Entries)
}

func TestIsConversationChanged_DetectsMessageCountAndTimestampDrift(t *testing.T) {
	conv := sampleConversation("c1")
	st := State{Conversations: map[string]ConversationState{}}
	assert.True(t, st.IsConversationChanged(conv), "unseen conversation is always changed")

	st.RecordConversation(conv)
	assert.False(t, st.IsConversationChanged(conv), "identical conversation is unchanged")

	grown := conv
	grown.Messages = append(grown.Messages, model.Message{Role: model.RoleUser, Content: "more", Timestamp: conv.Messages[1].Timestamp.Add(time.Hour)})
	assert.True(t, st.IsConversationChanged(grown))
}

func TestWriteReadState_RoundTrips(t *testing.T) {
	root := t.TempDir()
	s := New(root, "wechat")
	st := State{Conversations: map[string]ConversationState{}}
	st.RecordConversation(sampleConversation("c1"))

	require.NoError(t, s.WriteState(st))
	got, err := s.ReadState()
	require.NoError(t, err)
	require.Contains(t, got.Conversations, "c1")
	assert.Equal(t, 2, got.Conversations["c1"].MessageCount)
}

func TestExclude_MovesFileIntoExcludedDir(t *testing.T) {
	root := t.TempDir()
	s := New(root, "wechat")
	require.NoError(t, s.WriteConversation(sampleConversation("c1")))

	require.NoError(t, s.Exclude("c1"))

	_, err := os.Stat(s.conversationPath("c1"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "wechat", "_excluded", "c1.jsonl"))
	assert.NoError(t, err)
}

func TestExclude_MissingFileIsNotAnError(t *testing.T) {
	root := t.TempDir()
	s := New(root, "wechat")
	assert.NoError(t, s.Exclude("nope"))
}

func TestSearch_ANDSemanticsAcrossKeywords(t *testing.T) {
	root := t.TempDir()
	s := New(root, "wechat")
	require.NoError(t, s.WriteConversation(sampleConversation("c1")))

	hits, err := s.Search([]string{"c1"}, []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ConversationID)

	noHits, err := s.Search([]string{"c1"}, []string{"hello", "mars"})
	require.NoError(t, err)
	assert.Empty(t, noHits)
}

func TestConversationIDs_ListsIndexedIDs(t *testing.T) {
	root := t.TempDir()
	s := New(root, "wechat")
	require.NoError(t, s.WriteIndex(Index{Entries: []model.IndexEntry{{ID: "a"}, {ID: "b"}}}))

	ids, err := s.ConversationIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}
