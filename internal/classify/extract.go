// Package classify implements the multi-signal classifier (C8): three
// independent signals (file-path, text-pattern, keyword) scored per entity
// and combined by configured weights into a match/no-match decision.
//
// Grounded in
// original_source/src/session_history/classifier/{file_path_signal,text_pattern_signal,keyword_signal,composite_classifier}.py.
package classify

import (
	"regexp"
	"strings"

	"github.com/harvester-dev/harvester/internal/session"
)

// pathKeys are the tool_use input fields that name a file path (spec §4.7's
// tool_narrative rule reused here for path extraction).
var pathKeys = []string{"file_path", "path", "notebook_path"}

// FilePaths extracts every file path a message references: tool_use input
// path fields, plus paths mentioned in free text under one of the
// registry's configured top-level directories. Generalises the reference
// implementation's hardcoded absolute-path/Chinese-directory regex
// (parser/message_extractor.py) into a caller-supplied directory list.
func FilePaths(msg session.SessionMessage, topDirs []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, b := range msg.ContentBlocks {
		if b.Type != session.BlockToolUse {
			continue
		}
		for _, key := range pathKeys {
			if v, ok := b.Input[key]; ok {
				if s, ok := v.(string); ok && s != "" {
					add(s)
				}
			}
		}
	}

	if text := msg.TextContent(); text != "" && len(topDirs) > 0 {
		re := topDirPathRE(topDirs)
		for _, m := range re.FindAllString(text, -1) {
			add(strings.TrimRight(m, ".,;:)"))
		}
	}

	return out
}

func topDirPathRE(topDirs []string) *regexp.Regexp {
	quoted := make([]string, len(topDirs))
	for i, d := range topDirs {
		quoted[i] = regexp.QuoteMeta(d)
	}
	return regexp.MustCompile(`(?:` + strings.Join(quoted, "|") + `)/[^\s'"` + "`" + `,;)\]}>]+`)
}

// ExtractText returns the plain text content used for keyword/pattern
// matching: message text plus, for system messages, any text blocks.
func ExtractText(msg session.SessionMessage) string {
	return msg.TextContent()
}

// chineseWordRE matches runs of 2+ CJK characters; asciiWordRE matches
// ASCII word-like tokens of length >= 3 (spec §4.6's keyword tokenisation).
var (
	chineseWordRE = regexp.MustCompile(`\p{Han}{2,}`)
	asciiWordRE   = regexp.MustCompile(`[a-zA-Z_]{3,}`)
)

// ExtractKeywords tokenises a message's text into the keyword set used by
// the keyword signal.
func ExtractKeywords(msg session.SessionMessage) map[string]bool {
	text := ExtractText(msg)
	if text == "" {
		return nil
	}
	out := map[string]bool{}
	for _, w := range chineseWordRE.FindAllString(text, -1) {
		out[w] = true
	}
	for _, w := range asciiWordRE.FindAllString(text, -1) {
		out[strings.ToLower(w)] = true
	}
	return out
}
