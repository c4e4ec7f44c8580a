package classify

import (
	"sort"
	"strings"
	"time"

	"github.com/harvester-dev/harvester/internal/entity"
	"github.com/harvester-dev/harvester/internal/session"
)

// EntityMatch is one entity's scored match against a session (spec §3, §4.6).
type EntityMatch struct {
	Entity           entity.Entity
	Confidence       float64
	FilePathScore    float64
	TextPatternScore float64
	KeywordScore     float64
	MatchedMessages  int
	TotalMessages    int
	Evidence         []string
}

// SessionClassification is the full per-entity scoring result for one session.
type SessionClassification struct {
	SessionID        string
	FilePath         string
	StartTime        time.Time
	EndTime          time.Time
	MessageCount     int
	UserMessageCount int
	Matches          []EntityMatch
}

// MessagePointer references one matched message within a session, for
// building a SessionReference (spec §6 sessions-index.json entries).
type MessagePointer struct {
	UUID       string
	LineNumber int
	MsgType    string
	Timestamp  time.Time
	Preview    string
}

// SessionReference is a per-entity index entry pointing back at a session.
type SessionReference struct {
	SessionID       string
	FilePath        string
	Confidence      float64
	StartTime       time.Time
	EndTime         time.Time
	MessageCount    int
	MatchedMessages []MessagePointer
	Evidence        []string
}

// Weights names the three signal weights (spec §4.6); must be non-negative
// and sum to 1 (enforced by config.Config.Validate).
type Weights struct {
	FilePath    float64
	TextPattern float64
	Keyword     float64
}

// Classifier combines the three independent signals (spec §4.6).
type Classifier struct {
	FilePath    FilePathSignal
	TextPattern *TextPatternSignal
	Keyword     KeywordSignal
	Weights     Weights
	Threshold   float64
}

// NewClassifier builds a Classifier with fresh per-session regex caches.
func NewClassifier(topDirs []string, weights Weights, threshold float64) *Classifier {
	return &Classifier{
		FilePath:    FilePathSignal{TopDirs: topDirs},
		TextPattern: &TextPatternSignal{},
		Keyword:     KeywordSignal{},
		Weights:     weights,
		Threshold:   threshold,
	}
}

// Classify scores sess against every candidate entity, keeping those at or
// above the configured threshold, sorted by descending confidence.
func (c *Classifier) Classify(sessionID, filePath string, start, end time.Time, msgs []session.SessionMessage, entities []entity.Entity) SessionClassification {
	out := SessionClassification{
		SessionID:        sessionID,
		FilePath:         filePath,
		StartTime:        start,
		EndTime:          end,
		MessageCount:     len(msgs),
		UserMessageCount: userMessageCount(msgs),
	}

	for _, e := range entities {
		fp := c.FilePath.Score(msgs, e)
		tp := c.TextPattern.Score(msgs, e)
		kw := c.Keyword.Score(msgs, e)

		confidence := fp*c.Weights.FilePath + tp*c.Weights.TextPattern + kw*c.Weights.Keyword
		if confidence < c.Threshold {
			continue
		}

		matchedIDs := map[string]bool{}
		for _, m := range c.FilePath.MatchedMessages(msgs, e) {
			matchedIDs[m.UUID] = true
		}
		for _, m := range c.TextPattern.MatchedMessages(msgs, e) {
			matchedIDs[m.UUID] = true
		}

		out.Matches = append(out.Matches, EntityMatch{
			Entity:           e,
			Confidence:       confidence,
			FilePathScore:    fp,
			TextPatternScore: tp,
			KeywordScore:     kw,
			MatchedMessages:  len(matchedIDs),
			TotalMessages:    len(msgs),
			Evidence:         c.collectEvidence(msgs, e, 5),
		})
	}

	sort.SliceStable(out.Matches, func(i, j int) bool {
		return out.Matches[i].Confidence > out.Matches[j].Confidence
	})
	return out
}

// BuildSessionReference builds a SessionReference for entityMatch, pointing
// at every message that contributed file-path or text-pattern evidence.
func (c *Classifier) BuildSessionReference(sessionID, filePath string, start, end time.Time, msgs []session.SessionMessage, em EntityMatch) SessionReference {
	matched := map[string]bool{}
	for _, m := range c.FilePath.MatchedMessages(msgs, em.Entity) {
		matched[m.UUID] = true
	}
	for _, m := range c.TextPattern.MatchedMessages(msgs, em.Entity) {
		matched[m.UUID] = true
	}

	var pointers []MessagePointer
	for _, msg := range msgs {
		if !matched[msg.UUID] {
			continue
		}
		preview := msg.TextContent()
		if len(preview) > 100 {
			preview = preview[:100]
		}
		mt := msg.Role
		if mt == "" {
			mt = string(msg.MsgType)
		}
		pointers = append(pointers, MessagePointer{
			UUID:       msg.UUID,
			LineNumber: msg.LineNumber,
			MsgType:    mt,
			Timestamp:  msg.Timestamp,
			Preview:    preview,
		})
	}

	return SessionReference{
		SessionID:       sessionID,
		FilePath:        filePath,
		Confidence:      em.Confidence,
		StartTime:       start,
		EndTime:         end,
		MessageCount:    len(msgs),
		MatchedMessages: pointers,
		Evidence:        em.Evidence,
	}
}

func (c *Classifier) collectEvidence(msgs []session.SessionMessage, e entity.Entity, maxItems int) []string {
	var evidence []string

	for _, msg := range c.FilePath.MatchedMessages(msgs, e) {
		for _, p := range FilePaths(msg, c.FilePath.TopDirs) {
			for _, pat := range e.PathPatterns {
				if strings.Contains(p, strings.TrimSuffix(pat, "/")) {
					evidence = append(evidence, "File: "+p)
					break
				}
			}
		}
		if len(evidence) >= maxItems {
			break
		}
	}

	if len(evidence) < maxItems {
		for _, msg := range c.TextPattern.MatchedMessages(msgs, e) {
			text := msg.TextContent()
			if text == "" {
				continue
			}
			preview := text
			if len(preview) > 80 {
				preview = preview[:80]
			}
			preview = strings.ReplaceAll(preview, "\n", " ")
			evidence = append(evidence, "Text: ..."+preview+"...")
			if len(evidence) >= maxItems {
				break
			}
		}
	}

	if len(evidence) > maxItems {
		evidence = evidence[:maxItems]
	}
	return evidence
}

func userMessageCount(msgs []session.SessionMessage) int {
	n := 0
	for _, m := range msgs {
		if m.Role == "user" {
			n++
		}
	}
	return n
}
