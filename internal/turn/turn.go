// Package turn implements the turn splitter (C9): it converts a session's
// linear SessionMessage stream into ordered Turn objects, merging
// tool-result-only user messages into the preceding turn rather than
// treating them as new prompts.
//
// Grounded in
// original_source/src/session_history/generator/turn_extractor.py, the
// sole reference for this exact state machine; structured in the teacher's
// (rekal-dev-rekal-cli) style of small, independently testable pure
// functions over a message slice (cmd/rekal/cli/session/parse.go).
package turn

import (
	cryptorand "crypto/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harvester-dev/harvester/internal/session"
)

// LongPromptThreshold is the character count above which IsLongPrompt is set.
const LongPromptThreshold = 500

// TitleMaxLength bounds the auto-generated Title.
const TitleMaxLength = 60

// idEntropy backs the monotonic ULID source used for Turn.ID: turns within
// the same session are extracted in order, so a single shared monotonic
// reader keeps IDs sortable even when several turns share a timestamp.
var idEntropy = ulid.Monotonic(cryptorand.Reader, 0)

// Turn is one user prompt plus the contiguous assistant activity that
// follows it (spec §3).
type Turn struct {
	ID            string
	Number        int
	Prompt        string
	Response      string
	ToolCounts    map[string]int
	ToolNarrative string
	Title         string
	Timestamp     time.Time
	IsLongPrompt  bool
}

var (
	stripTagNames = []string{
		"local-command-caveat", "local-command-stdout", "local-command-stderr",
		"system-reminder", "command-name", "command-args",
	}
	unwrapTagNames = []string{"command-message"}

	stripRE  = compileTagStripRE(stripTagNames)
	unwrapRE = compileTagUnwrapRE(unwrapTagNames)
)

// Go's regexp (RE2) has no backreferences, so each tag gets its own
// compiled strip/unwrap pattern rather than one pattern shared across names
// with a `</\1>` backreference.
func compileTagStripRE(names []string) *regexp.Regexp {
	var alts []string
	for _, n := range names {
		alts = append(alts, `<`+n+`>.*?</`+n+`>`)
	}
	return regexp.MustCompile(`(?s)` + strings.Join(alts, "|"))
}

func compileTagUnwrapRE(names []string) *regexp.Regexp {
	var alts []string
	for _, n := range names {
		alts = append(alts, `<`+n+`>(.*?)</`+n+`>`)
	}
	return regexp.MustCompile(`(?s)` + strings.Join(alts, "|"))
}

// Extract splits msgs into Turns, per the state machine in spec §4.7.
func Extract(msgs []session.SessionMessage) []Turn {
	var turns []Turn
	var pendingPrompt *string
	var pendingTS time.Time
	var pendingAsst []session.SessionMessage

	emit := func() {
		if pendingPrompt == nil {
			return
		}
		t := build(*pendingPrompt, pendingTS, pendingAsst)
		turns = append(turns, t)
	}

	for _, msg := range msgs {
		switch msg.MsgType {
		case session.MsgProgress, session.MsgFileHistorySnapshot, session.MsgSystem:
			continue
		}

		switch msg.Role {
		case "user":
			if isToolResultMessage(msg) {
				pendingAsst = append(pendingAsst, msg)
				continue
			}
			cleaned := cleanPrompt(msg.TextContent())
			if pendingPrompt != nil {
				emit()
			}
			if cleaned == "" {
				pendingPrompt = nil
				pendingAsst = nil
				continue
			}
			pendingPrompt = &cleaned
			pendingTS = msg.Timestamp
			pendingAsst = nil

		case "assistant":
			pendingAsst = append(pendingAsst, msg)
		}
	}

	emit()

	for i := range turns {
		turns[i].Number = i + 1
	}
	return turns
}

// isToolResultMessage reports whether msg consists solely of tool_result
// blocks with no non-whitespace text block — the signal that this
// "user"-role message is a tool-result continuation, not a new prompt.
func isToolResultMessage(msg session.SessionMessage) bool {
	if len(msg.ContentBlocks) == 0 {
		return false
	}
	hasToolResult := false
	for _, b := range msg.ContentBlocks {
		switch b.Type {
		case session.BlockToolResult:
			hasToolResult = true
		case session.BlockText:
			if strings.TrimSpace(b.Text) != "" {
				return false
			}
		default:
			return false
		}
	}
	return hasToolResult
}

func cleanPrompt(s string) string {
	s = stripRE.ReplaceAllString(s, "")
	s = unwrapRE.ReplaceAllStringFunc(s, func(m string) string {
		sub := unwrapRE.FindStringSubmatch(m)
		for _, g := range sub[1:] {
			if g != "" {
				return g
			}
		}
		return ""
	})
	return strings.TrimSpace(s)
}

func build(prompt string, ts time.Time, asst []session.SessionMessage) Turn {
	t := Turn{
		ID:           ulid.MustNew(ulid.Timestamp(ts), idEntropy).String(),
		Prompt:       prompt,
		Timestamp:    ts,
		ToolCounts:   map[string]int{},
		IsLongPrompt: len([]rune(prompt)) > LongPromptThreshold,
	}
	t.Response = buildResponse(asst)
	t.ToolCounts = countTools(asst)
	t.ToolNarrative = buildNarrative(asst)
	t.Title = autoTitle(prompt)
	return t
}

// buildResponse concatenates text blocks emitted after the last tool_use
// across all accumulated assistant messages; falls back to all text blocks
// in order when no post-tool text exists (spec §4.7, and the Open Question
// in spec §9 that explicitly preserves this fallback).
func buildResponse(asst []session.SessionMessage) string {
	type item struct {
		isToolUse bool
		text      string
	}
	var seq []item
	for _, msg := range asst {
		for _, b := range msg.ContentBlocks {
			switch b.Type {
			case session.BlockToolUse:
				seq = append(seq, item{isToolUse: true})
			case session.BlockText:
				if b.Text != "" {
					seq = append(seq, item{text: b.Text})
				}
			}
		}
	}

	lastToolUse := -1
	for i, it := range seq {
		if it.isToolUse {
			lastToolUse = i
		}
	}

	var parts []string
	if lastToolUse >= 0 {
		for _, it := range seq[lastToolUse+1:] {
			if it.text != "" {
				parts = append(parts, it.text)
			}
		}
	}
	if len(parts) == 0 {
		for _, it := range seq {
			if it.text != "" {
				parts = append(parts, it.text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func countTools(asst []session.SessionMessage) map[string]int {
	counts := map[string]int{}
	for _, msg := range asst {
		for _, b := range msg.ContentBlocks {
			if b.Type == session.BlockToolUse && b.Name != "" {
				counts[b.Name]++
			}
		}
	}
	return counts
}

// buildNarrative builds a one-line synopsis: file paths touched (passed
// through shortenPath with no project roots, so kept as written) from
// file_path/path/notebook_path tool inputs (with a "pattern:" prefix
// for Glob/Grep), deduplicated into a set and emitted in sorted order, plus
// up to 3 Bash description values. The file group is truncated to the first
// 5 sorted entries with a "+N more" suffix, and the file group and bash
// group are joined with " -- " (bash descriptions among themselves with
// "; "), matching turn_extractor.py's _build_tool_narrative (spec §4.7).
func buildNarrative(asst []session.SessionMessage) string {
	filesTouched := map[string]bool{}
	var bashDescs []string

	for _, msg := range asst {
		for _, b := range msg.ContentBlocks {
			if b.Type != session.BlockToolUse {
				continue
			}
			if path := toolInputPath(b); path != "" {
				filesTouched[shortenPath(path)] = true
				continue
			}
			if pattern := stringField(b.Input, "pattern"); pattern != "" && (b.Name == "Glob" || b.Name == "Grep") {
				filesTouched["pattern:"+pattern] = true
				continue
			}
			if b.Name == "Bash" {
				if desc := stringField(b.Input, "description"); desc != "" {
					bashDescs = append(bashDescs, desc)
				}
			}
		}
	}

	var parts []string
	if len(filesTouched) > 0 {
		files := make([]string, 0, len(filesTouched))
		for f := range filesTouched {
			files = append(files, f)
		}
		sort.Strings(files)
		if len(files) > 5 {
			parts = append(parts, strings.Join(files[:5], ", ")+" +"+itoa(len(files)-5)+" more")
		} else {
			parts = append(parts, strings.Join(files, ", "))
		}
	}
	if len(bashDescs) > 0 {
		if len(bashDescs) > 3 {
			bashDescs = bashDescs[:3]
		}
		parts = append(parts, strings.Join(bashDescs, "; "))
	}

	return strings.Join(parts, " -- ")
}

func toolInputPath(b session.ContentBlock) string {
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if v := stringField(b.Input, key); v != "" {
			return v
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// shortenPath trims a configured project-root prefix from an absolute
// path, generalising the reference implementation's hardcoded
// /Users/kweng/AI/Enpack_CCC/ prefix list into a variadic parameter so
// callers can supply the actual project root(s) in use.
func shortenPath(path string, projectRoots ...string) string {
	for _, root := range projectRoots {
		if root != "" && strings.HasPrefix(path, root) {
			return strings.TrimPrefix(path, root)
		}
	}
	return path
}

var headingRE = regexp.MustCompile(`^#+\s*`)

// autoTitle takes the first line of prompt, strips a leading run of "#"
// characters, and truncates at a word boundary to TitleMaxLength with an
// ellipsis (spec §4.7).
func autoTitle(prompt string) string {
	first := prompt
	if idx := strings.IndexByte(prompt, '\n'); idx >= 0 {
		first = prompt[:idx]
	}
	first = headingRE.ReplaceAllString(first, "")
	first = strings.TrimSpace(first)

	runes := []rune(first)
	if len(runes) <= TitleMaxLength {
		return first
	}

	cut := string(runes[:TitleMaxLength])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

var personFileRE = regexp.MustCompile(`/Users/([^/]+)/`)

// ExtractPerson recovers the operator's username from a transcript's file
// path, falling back to the cwd of the session's first few messages, else
// "unknown" (spec §4.9).
func ExtractPerson(filePath string, msgs []session.SessionMessage) string {
	if m := personFileRE.FindStringSubmatch(filePath); m != nil {
		return m[1]
	}
	limit := 5
	if len(msgs) < limit {
		limit = len(msgs)
	}
	for _, msg := range msgs[:limit] {
		if m := personFileRE.FindStringSubmatch(msg.CWD); m != nil {
			return m[1]
		}
	}
	return "unknown"
}

// SortByTimestamp stable-sorts turns by ascending Timestamp; nothing in
// this repository calls it.
func SortByTimestamp(turns []Turn) {
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
}
