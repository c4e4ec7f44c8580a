// Package replay implements the index & replay writers (C11): per-entity
// session indexes, per-session Markdown replay files, and the
// supplemented master/report/table-of-contents outputs from
// SPEC_FULL.md's "Supplemented Features" section.
//
// Grounded in
// original_source/src/session_history/generator/{index_generator,replay_index_generator,readable_replay_generator}.py.
package replay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/harvester-dev/harvester/internal/atomicfile"
	"github.com/harvester-dev/harvester/internal/classify"
	"github.com/harvester-dev/harvester/internal/formatver"
)

// MessagePointerJSON is the JSON shape of a classify.MessagePointer.
type MessagePointerJSON struct {
	UUID       string    `json:"uuid"`
	LineNumber int       `json:"line_number"`
	MsgType    string    `json:"msg_type"`
	Timestamp  time.Time `json:"timestamp"`
	Preview    string    `json:"preview"`
}

// SessionReferenceJSON is the JSON shape of one sessions-index.json entry.
type SessionReferenceJSON struct {
	SessionID       string               `json:"session_id"`
	FilePath        string               `json:"file_path"`
	Confidence      float64              `json:"confidence"`
	StartTime       time.Time            `json:"start_time"`
	EndTime         time.Time            `json:"end_time"`
	MessageCount    int                  `json:"message_count"`
	MatchedMessages []MessagePointerJSON `json:"matched_messages"`
	Evidence        []string             `json:"evidence"`
}

func toJSON(r classify.SessionReference) SessionReferenceJSON {
	out := SessionReferenceJSON{
		SessionID:    r.SessionID,
		FilePath:     r.FilePath,
		Confidence:   r.Confidence,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		MessageCount: r.MessageCount,
		Evidence:     r.Evidence,
	}
	for _, m := range r.MatchedMessages {
		out.MatchedMessages = append(out.MatchedMessages, MessagePointerJSON{
			UUID: m.UUID, LineNumber: m.LineNumber, MsgType: m.MsgType,
			Timestamp: m.Timestamp, Preview: m.Preview,
		})
	}
	return out
}

// entityIndexFile is the on-disk shape of sessions-index.json.
type entityIndexFile struct {
	FormatVersion string                 `json:"format_version"`
	Entries       []SessionReferenceJSON `json:"entries"`
}

// BuildEntityIndex sorts refs by StartTime descending (spec §4.9, §8);
// ties are broken by a stable sort so repeated runs are deterministic.
func BuildEntityIndex(refs []classify.SessionReference) []classify.SessionReference {
	out := append([]classify.SessionReference{}, refs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// WriteEntityIndex writes entityDir/sessions-index.json atomically.
func WriteEntityIndex(entityDir string, refs []classify.SessionReference) error {
	sorted := BuildEntityIndex(refs)
	file := entityIndexFile{FormatVersion: formatver.Current}
	for _, r := range sorted {
		file.Entries = append(file.Entries, toJSON(r))
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(filepath.Join(entityDir, "sessions-index.json"), data, 0o644)
}

// ReadEntityIndex loads and format-version-checks an existing
// sessions-index.json.
func ReadEntityIndex(entityDir string) ([]classify.SessionReference, error) {
	path := filepath.Join(entityDir, "sessions-index.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var file entityIndexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if err := formatver.Check(path, file.FormatVersion); err != nil {
		return nil, err
	}
	var out []classify.SessionReference
	for _, e := range file.Entries {
		r := classify.SessionReference{
			SessionID: e.SessionID, FilePath: e.FilePath, Confidence: e.Confidence,
			StartTime: e.StartTime, EndTime: e.EndTime, MessageCount: e.MessageCount,
			Evidence: e.Evidence,
		}
		for _, m := range e.MatchedMessages {
			r.MatchedMessages = append(r.MatchedMessages, classify.MessagePointer{
				UUID: m.UUID, LineNumber: m.LineNumber, MsgType: m.MsgType,
				Timestamp: m.Timestamp, Preview: m.Preview,
			})
		}
		out = append(out, r)
	}
	return out, nil
}

// MasterSessionEntry is one row of all-sessions.json.
type MasterSessionEntry struct {
	SessionID    string    `json:"session_id"`
	FilePath     string    `json:"file_path"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	MessageCount int       `json:"message_count"`
	Entities     []string  `json:"entities"`
	Uncategorized bool     `json:"uncategorized"`
}

type masterIndexFile struct {
	FormatVersion string                `json:"format_version"`
	GeneratedAt   time.Time             `json:"generated_at"`
	Total         int                   `json:"total"`
	Categorized   int                   `json:"categorized"`
	Uncategorized int                   `json:"uncategorized"`
	Sessions      []MasterSessionEntry  `json:"sessions"`
}

// WriteMasterIndex writes historyRoot/all-sessions.json: the full session
// list plus categorized/uncategorized counts (index_generator.py's
// write_master_index).
func WriteMasterIndex(historyRoot string, entries []MasterSessionEntry, generatedAt time.Time) error {
	categorized := 0
	for _, e := range entries {
		if !e.Uncategorized {
			categorized++
		}
	}
	file := masterIndexFile{
		FormatVersion: formatver.Current,
		GeneratedAt:   generatedAt,
		Total:         len(entries),
		Categorized:   categorized,
		Uncategorized: len(entries) - categorized,
		Sessions:      entries,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(filepath.Join(historyRoot, "all-sessions.json"), data, 0o644)
}
