// Package session implements the JSONL session reader (C6): it streams an
// append-only transcript file and parses each line into a typed
// SessionMessage with normalised content blocks.
//
// Grounded in original_source/src/session_history/parser/jsonl_reader.py,
// adapted into Go using the teacher's (rekal-dev-rekal-cli) scanning idiom
// from cmd/rekal/cli/session/parse.go — the enlarged bufio.Scanner buffer,
// tolerant per-line JSON decoding, and session-directory discovery helpers
// are carried over almost verbatim since they solve the same problem the
// teacher already solved for a near-identical transcript format.
package session

import "time"

// BlockType enumerates the content-block variants consumed from a
// transcript (spec §3, §4.4).
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
)

// ContentBlock is a tagged variant over the four block kinds the spec
// recognises. Only the fields relevant to a given Type are populated.
type ContentBlock struct {
	Type  BlockType
	Text  string // text, thinking, tool_result (flattened)
	Name  string // tool_use
	Input map[string]any
	UseID string // tool_use.id / tool_result.tool_use_id
}

// MsgType enumerates the top-level JSONL record "type" field.
type MsgType string

const (
	MsgUser               MsgType = "user"
	MsgAssistant          MsgType = "assistant"
	MsgSystem             MsgType = "system"
	MsgProgress           MsgType = "progress"
	MsgFileHistorySnapshot MsgType = "file-history-snapshot"
)

// SessionMessage is one retained transcript record (spec §3).
type SessionMessage struct {
	UUID          string
	ParentUUID    string
	MsgType       MsgType
	Role          string
	ContentBlocks []ContentBlock
	Timestamp     time.Time
	LineNumber    int
	IsSidechain   bool
	Subtype       string
	CWD           string
}

// TextContent concatenates every text block's Text field, joined by
// newlines — the canonical "plain text content" of a message used
// throughout classification and turn extraction.
func (m SessionMessage) TextContent() string {
	var parts []string
	for _, b := range m.ContentBlocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return joinNonEmpty(parts)
}

func joinNonEmpty(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}

// Session is a fully parsed transcript: metadata plus its ordered message
// sequence (spec §4.4, §6).
type Session struct {
	SessionID string
	FilePath  string
	StartTime time.Time
	EndTime   time.Time
	Version   string
	GitBranch string
	Messages  []SessionMessage
}

// UserMessageCount returns the number of retained messages with Role=="user".
func (s Session) UserMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == "user" {
			n++
		}
	}
	return n
}
