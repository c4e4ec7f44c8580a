package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"time"
)

// ReaderOptions configures which record classes are dropped, matching the
// reference implementation's JsonlReader(exclude_thinking, exclude_sidechains).
type ReaderOptions struct {
	ExcludeThinking  bool
	ExcludeSidechain bool
}

// rawLine is the top-level JSONL record shape, reusing the teacher's
// rawLine field set (cmd/rekal/cli/session/parse.go) extended with the
// fields the richer SessionMessage model needs (parentUuid, message.role
// captured separately from type, subtype, version).
type rawLine struct {
	UUID        string          `json:"uuid"`
	ParentUUID  string          `json:"parentUuid"`
	SessionID   string          `json:"sessionId"`
	Timestamp   string          `json:"timestamp"`
	Type        string          `json:"type"`
	Subtype     string          `json:"subtype"`
	Message     json.RawMessage `json:"message"`
	Content     json.RawMessage `json:"content"` // top-level content (system-message case)
	CWD         string          `json:"cwd"`
	GitBranch   string          `json:"gitBranch"`
	Version     string          `json:"version"`
	IsSidechain bool            `json:"isSidechain"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Name      string          `json:"name"`
	ID        string          `json:"id"`
	ToolUseID string          `json:"tool_use_id"`
	Input     json.RawMessage `json:"input"`
	Content   json.RawMessage `json:"content"`
}

// ReadSession streams data line by line, building a Session. Malformed
// lines and blank lines are skipped silently (spec §4.4); file-history
// snapshots are always dropped; thinking/sidechain records are dropped when
// the corresponding option is set.
func ReadSession(data []byte, filePath string, opts ReaderOptions) *Session {
	sess := &Session{FilePath: filePath}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		current := lineNo
		lineNo++
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var raw rawLine
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}

		if raw.Type == string(MsgFileHistorySnapshot) {
			continue
		}
		if opts.ExcludeSidechain && raw.IsSidechain {
			continue
		}

		if sess.SessionID == "" && raw.SessionID != "" {
			sess.SessionID = raw.SessionID
		}
		if sess.Version == "" && raw.Version != "" {
			sess.Version = raw.Version
		}
		if sess.GitBranch == "" && raw.GitBranch != "" {
			sess.GitBranch = raw.GitBranch
		}

		msg := parseMessage(raw, current, opts)
		if msg == nil {
			continue
		}

		sess.Messages = append(sess.Messages, *msg)
		if sess.StartTime.IsZero() || msg.Timestamp.Before(sess.StartTime) {
			if !msg.Timestamp.IsZero() {
				sess.StartTime = msg.Timestamp
			}
		}
		if msg.Timestamp.After(sess.EndTime) {
			sess.EndTime = msg.Timestamp
		}
	}

	return sess
}

func parseMessage(raw rawLine, lineNo int, opts ReaderOptions) *SessionMessage {
	ts := parseTimestamp(raw.Timestamp)

	msg := &SessionMessage{
		UUID:        raw.UUID,
		ParentUUID:  raw.ParentUUID,
		MsgType:     MsgType(raw.Type),
		Timestamp:   ts,
		LineNumber:  lineNo,
		IsSidechain: raw.IsSidechain,
		Subtype:     raw.Subtype,
		CWD:         raw.CWD,
	}

	// Prefer message.{role,content}; fall back to a top-level content
	// string for the bare "system message" shape.
	if len(raw.Message) > 0 {
		var m rawMessage
		if err := json.Unmarshal(raw.Message, &m); err == nil {
			msg.Role = m.Role
			msg.ContentBlocks = normalizeContent(m.Content, opts)
		}
	} else if len(raw.Content) > 0 {
		var s string
		if err := json.Unmarshal(raw.Content, &s); err == nil && s != "" {
			msg.ContentBlocks = []ContentBlock{{Type: BlockText, Text: s}}
		}
	}

	return msg
}

// normalizeContent eagerly normalises the polymorphic content field
// (string | list-of-blocks) into a canonical []ContentBlock, per the
// "Dynamic JSON shape" design note (spec §9).
func normalizeContent(content json.RawMessage, opts ReaderOptions) []ContentBlock {
	if len(content) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		if s == "" {
			return nil
		}
		return []ContentBlock{{Type: BlockText, Text: s}}
	}

	var raws []rawBlock
	if err := json.Unmarshal(content, &raws); err != nil {
		return nil
	}

	var blocks []ContentBlock
	for _, b := range raws {
		switch BlockType(b.Type) {
		case BlockText:
			if b.Text != "" {
				blocks = append(blocks, ContentBlock{Type: BlockText, Text: b.Text})
			}
		case BlockThinking:
			if opts.ExcludeThinking {
				continue
			}
			blocks = append(blocks, ContentBlock{Type: BlockThinking, Text: b.Text})
		case BlockToolUse:
			blocks = append(blocks, ContentBlock{
				Type:  BlockToolUse,
				Name:  b.Name,
				UseID: b.ID,
				Input: decodeInput(b.Input),
			})
		case BlockToolResult:
			blocks = append(blocks, ContentBlock{
				Type:  BlockToolResult,
				Text:  truncate(flattenToolResult(b.Content), 500),
				UseID: b.ToolUseID,
			})
		}
	}
	return blocks
}

// flattenToolResult handles a tool_result's own content field, which can
// itself be a string or a list of typed items; only text is kept.
func flattenToolResult(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var raws []rawBlock
	if err := json.Unmarshal(content, &raws); err != nil {
		return ""
	}
	var parts []string
	for _, b := range raws {
		if b.Type == string(BlockText) && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return joinNonEmpty(parts)
}

func decodeInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
