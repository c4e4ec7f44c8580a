package classify

import (
	"regexp"
	"strings"

	"github.com/harvester-dev/harvester/internal/entity"
	"github.com/harvester-dev/harvester/internal/session"
)

// FilePathSignal scores entities by file-path references (spec §4.6).
type FilePathSignal struct {
	TopDirs []string
}

// Score implements the FilePath signal: ratio of path-bearing messages that
// reference the entity, combined with an absolute-count bonus step
// function, returning max(ratio, bonus). Returns 0 if no message in the
// session carried any extracted file path.
func (s FilePathSignal) Score(msgs []session.SessionMessage, e entity.Entity) float64 {
	if len(e.PathPatterns) == 0 {
		return 0
	}
	matched, totalWithPaths := 0, 0
	for _, msg := range msgs {
		paths := FilePaths(msg, s.TopDirs)
		if len(paths) == 0 {
			continue
		}
		totalWithPaths++
		if anyPathMatches(paths, e.PathPatterns) {
			matched++
		}
	}
	if totalWithPaths == 0 {
		return 0
	}
	ratio := float64(matched) / float64(totalWithPaths)
	bonus := countBonusFilePath(matched)
	if matched == 0 {
		return 0
	}
	return max2(ratio, bonus)
}

// MatchedMessages returns the subset of msgs whose file paths match e.
func (s FilePathSignal) MatchedMessages(msgs []session.SessionMessage, e entity.Entity) []session.SessionMessage {
	var out []session.SessionMessage
	for _, msg := range msgs {
		if anyPathMatches(FilePaths(msg, s.TopDirs), e.PathPatterns) {
			out = append(out, msg)
		}
	}
	return out
}

func anyPathMatches(paths, patterns []string) bool {
	for _, p := range paths {
		for _, pat := range patterns {
			clean := strings.TrimSuffix(pat, "/")
			if strings.HasPrefix(p, clean) || strings.Contains(p, clean) {
				return true
			}
		}
	}
	return false
}

func countBonusFilePath(matched int) float64 {
	switch {
	case matched >= 20:
		return 0.6
	case matched >= 10:
		return 0.5
	case matched >= 5:
		return 0.4
	case matched >= 3:
		return 0.3
	case matched >= 1:
		return 0.2
	default:
		return 0
	}
}

// TextPatternSignal scores entities by regex text-pattern matches.
type TextPatternSignal struct {
	compiled map[string][]*regexp.Regexp
}

func (s *TextPatternSignal) getCompiled(e entity.Entity) []*regexp.Regexp {
	if s.compiled == nil {
		s.compiled = map[string][]*regexp.Regexp{}
	}
	key := e.ID()
	if c, ok := s.compiled[key]; ok {
		return c
	}
	var out []*regexp.Regexp
	for _, pat := range e.TextPatterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	s.compiled[key] = out
	return out
}

// Score implements the TextPattern signal (spec §4.6).
func (s *TextPatternSignal) Score(msgs []session.SessionMessage, e entity.Entity) float64 {
	patterns := s.getCompiled(e)
	if len(patterns) == 0 {
		return 0
	}
	matched, totalWithText := 0, 0
	for _, msg := range msgs {
		text := ExtractText(msg)
		if text == "" {
			continue
		}
		totalWithText++
		if anyRegexMatches(patterns, text) {
			matched++
		}
	}
	if totalWithText == 0 {
		return 0
	}
	ratio := float64(matched) / float64(totalWithText)
	bonus := countBonusTextPattern(matched)
	if matched == 0 {
		return 0
	}
	return max2(ratio, bonus)
}

// MatchedMessages returns the subset of msgs whose text matches e's patterns.
func (s *TextPatternSignal) MatchedMessages(msgs []session.SessionMessage, e entity.Entity) []session.SessionMessage {
	patterns := s.getCompiled(e)
	var out []session.SessionMessage
	for _, msg := range msgs {
		text := ExtractText(msg)
		if text == "" {
			continue
		}
		if anyRegexMatches(patterns, text) {
			out = append(out, msg)
		}
	}
	return out
}

func anyRegexMatches(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func countBonusTextPattern(matched int) float64 {
	switch {
	case matched >= 15:
		return 0.5
	case matched >= 8:
		return 0.4
	case matched >= 4:
		return 0.3
	case matched >= 2:
		return 0.2
	case matched >= 1:
		return 0.1
	default:
		return 0
	}
}

// KeywordSignal scores entities by keyword-set overlap (spec §4.6).
type KeywordSignal struct{}

// normalizeKeywords lowercases entity keywords and additionally splits on
// "_"/"-" to produce parts of length > 2, matching
// classifier/keyword_signal.py's _normalize_keywords.
func normalizeKeywords(e entity.Entity) map[string]bool {
	out := map[string]bool{}
	for k := range e.Keywords {
		lk := strings.ToLower(k)
		out[lk] = true
		for _, part := range strings.FieldsFunc(lk, func(r rune) bool { return r == '_' || r == '-' }) {
			if len([]rune(part)) > 2 {
				out[part] = true
			}
		}
	}
	return out
}

// Score implements the Keyword signal: clamp(ratio, 0.1, 0.8) if any
// text-bearing message's keyword set intersects the entity's normalised
// keywords, else 0.
func (KeywordSignal) Score(msgs []session.SessionMessage, e entity.Entity) float64 {
	keywords := normalizeKeywords(e)
	if len(keywords) == 0 {
		return 0
	}
	matched, totalWithText := 0, 0
	for _, msg := range msgs {
		kws := ExtractKeywords(msg)
		if len(kws) == 0 {
			continue
		}
		totalWithText++
		if intersects(kws, keywords) {
			matched++
		}
	}
	if totalWithText == 0 || matched == 0 {
		return 0
	}
	ratio := float64(matched) / float64(totalWithText)
	return clamp(ratio, 0.1, 0.8)
}

func intersects(a, b map[string]bool) bool {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for k := range small {
		if large[k] {
			return true
		}
	}
	return false
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
