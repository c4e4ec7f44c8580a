// Package store implements the conversation store (C14) and the
// incremental-scan state it is gated by (C13): one JSONL file per
// conversation under "<root>/<platform>/<id>.jsonl", a platform-wide
// index.json, a state.json used to skip unchanged conversations on re-run,
// and an "_excluded/" quarantine directory for filter-policy exclusions.
//
// Grounded in the teacher's cmd/rekal/cli/db/db.go append-and-index split
// (data vs. derived), adapted from a DuckDB table to flat per-platform
// files as spec §6 requires.
package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/harvester-dev/harvester/internal/atomicfile"
	"github.com/harvester-dev/harvester/internal/model"
)

// Store is a per-platform conversation store rooted at Root/Platform.
type Store struct {
	Root     string
	Platform string
}

// New returns a Store for the given root and platform, e.g. "wechat".
func New(root, platform string) *Store {
	return &Store{Root: root, Platform: platform}
}

func (s *Store) dir() string { return filepath.Join(s.Root, s.Platform) }

func (s *Store) conversationPath(id string) string {
	return filepath.Join(s.dir(), id+".jsonl")
}

// WriteConversation serialises conv as one sparse JSON message per line,
// overwriting any existing file for the same id (spec §6).
func (s *Store) WriteConversation(conv model.Conversation) error {
	var buf []byte
	for _, msg := range conv.Messages {
		line, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return atomicfile.Write(s.conversationPath(conv.ID), buf, 0o644)
}

// ReadConversation loads a conversation's messages back from its JSONL
// file; metadata beyond what ToIndexEntry preserved is not recoverable
// from the JSONL alone, so callers needing Title/Metadata should consult
// the index.
func (s *Store) ReadConversation(id string) ([]model.Message, error) {
	f, err := os.Open(s.conversationPath(id))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var msgs []model.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m model.Message
		if err := json.Unmarshal(line, &m); err != nil {
			continue // CorruptRecord: skip the offending line, keep reading
		}
		msgs = append(msgs, m)
	}
	return msgs, scanner.Err()
}

// Index is the platform-wide index.json contents (spec §6).
type Index struct {
	Entries []model.IndexEntry `json:"entries"`
}

func (s *Store) indexPath() string { return filepath.Join(s.dir(), "index.json") }

// ReadIndex loads index.json, returning an empty Index if absent.
func (s *Store) ReadIndex() (Index, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Index{}, nil
		}
		return Index{}, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx.Entries); err != nil {
		return Index{}, err
	}
	return idx, nil
}

// WriteIndex atomically replaces index.json.
func (s *Store) WriteIndex(idx Index) error {
	data, err := json.MarshalIndent(idx.Entries, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(s.indexPath(), data, 0o644)
}

// UpsertIndexEntry replaces any existing entry for e.ID and appends it
// otherwise, preserving the prior relative order of other entries.
func (idx *Index) UpsertIndexEntry(e model.IndexEntry) {
	for i := range idx.Entries {
		if idx.Entries[i].ID == e.ID {
			idx.Entries[i] = e
			return
		}
	}
	idx.Entries = append(idx.Entries, e)
}

// State is the per-platform incremental-scan gate (spec §6, §5: "written
// only after a successful run ... partial runs do not advance it").
type State struct {
	LastRun       time.Time                  `json:"last_run"`
	Conversations map[string]ConversationState `json:"conversations"`
}

// ConversationState is the minimal fingerprint used to skip unchanged
// conversations on re-extraction.
type ConversationState struct {
	MessageCount    int       `json:"message_count"`
	LastMessageTime time.Time `json:"last_message_time"`
}

func (s *Store) statePath() string { return filepath.Join(s.dir(), "state.json") }

// ReadState loads state.json, returning a zero-value State if absent.
func (s *Store) ReadState() (State, error) {
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return State{Conversations: map[string]ConversationState{}}, nil
		}
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, err
	}
	if st.Conversations == nil {
		st.Conversations = map[string]ConversationState{}
	}
	return st, nil
}

// WriteState atomically replaces state.json. Callers must only invoke this
// after a fully successful platform run (spec §5).
func (s *Store) WriteState(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(s.statePath(), data, 0o644)
}

// IsConversationChanged reports whether conv differs from the last recorded
// state for its ID — by message count or by last-message timestamp — and
// so must be re-extracted/re-written rather than skipped.
func (st State) IsConversationChanged(conv model.Conversation) bool {
	prev, ok := st.Conversations[conv.ID]
	if !ok {
		return true
	}
	if prev.MessageCount != conv.MessageCount() {
		return true
	}
	var last time.Time
	if n := len(conv.Messages); n > 0 {
		last = conv.Messages[n-1].Timestamp
	}
	return !prev.LastMessageTime.Equal(last)
}

// RecordConversation updates st in place to reflect conv's current
// fingerprint, called after a successful write.
func (st *State) RecordConversation(conv model.Conversation) {
	var last time.Time
	if n := len(conv.Messages); n > 0 {
		last = conv.Messages[n-1].Timestamp
	}
	st.Conversations[conv.ID] = ConversationState{
		MessageCount:    conv.MessageCount(),
		LastMessageTime: last,
	}
}

// Exclude moves a conversation's JSONL file into _excluded/, used when the
// filter policy engine (C12) tiers it as "exclude" (spec §6).
func (s *Store) Exclude(id string) error {
	src := s.conversationPath(id)
	dstDir := filepath.Join(s.dir(), "_excluded")
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dstDir, id+".jsonl")
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}
