// Package segment implements the turn-entity segmenter (C10): it classifies
// individual turns to entities and groups contiguous same-entity turns into
// segments, absorbing unclassified (None) turns into neighbouring segments.
//
// Grounded in
// original_source/src/session_history/classifier/turn_entity_classifier.py,
// the exact source of the two-pass None-absorption algorithm below.
package segment

import (
	cryptorand "crypto/rand"
	"regexp"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/harvester-dev/harvester/internal/entity"
	"github.com/harvester-dev/harvester/internal/turn"
)

// idEntropy backs the monotonic ULID source used for Segment.ID.
var idEntropy = ulid.Monotonic(cryptorand.Reader, 0)

// Segment is a maximal contiguous run of turns classified to the same
// entity, or to no entity (Entity == nil).
type Segment struct {
	ID     string
	Entity *entity.Entity
	Turns  []turn.Turn
}

// Segmenter classifies turns and groups them, caching compiled text
// patterns per entity across calls within one process the way the
// reference implementation's _compiled_cache does per instance.
type Segmenter struct {
	compiled map[string][]*regexp.Regexp
}

// New returns a Segmenter with an empty regex cache.
func New() *Segmenter { return &Segmenter{compiled: map[string][]*regexp.Regexp{}} }

// ClassifyTurns splits turns into contiguous same-entity segments. Callers
// should pass only the entity types meant to participate in turn-level
// segmentation — spec.md does not restrict this to a single entity type
// the way the reference implementation does (it hardcodes SPEC-only), so
// by default callers pass the full entity set; restricting to spec
// entities only is a caller-side choice (see DESIGN.md).
func (s *Segmenter) ClassifyTurns(turns []turn.Turn, entities []entity.Entity) []Segment {
	if len(entities) == 0 || len(turns) == 0 {
		if len(turns) == 0 {
			return nil
		}
		id := ulid.MustNew(ulid.Timestamp(turns[0].Timestamp), idEntropy).String()
		return []Segment{{ID: id, Entity: nil, Turns: turns}}
	}

	turnEntities := make([]*entity.Entity, len(turns))
	for i, t := range turns {
		turnEntities[i] = s.classifySingleTurn(t, entities)
	}

	raw := groupConsecutive(turns, turnEntities)
	final := absorbNoneSegments(raw)
	for i := range final {
		ts := ulid.Now()
		if len(final[i].Turns) > 0 {
			ts = ulid.Timestamp(final[i].Turns[0].Timestamp)
		}
		final[i].ID = ulid.MustNew(ts, idEntropy).String()
	}
	return final
}

// classifySingleTurn implements the per-turn classification priority:
// (1) tool_narrative path_patterns, (2) prompt+response text_patterns.
func (s *Segmenter) classifySingleTurn(t turn.Turn, entities []entity.Entity) *entity.Entity {
	if t.ToolNarrative != "" {
		for i := range entities {
			for _, pattern := range entities[i].PathPatterns {
				clean := strings.TrimSuffix(pattern, "/")
				if strings.Contains(t.ToolNarrative, clean) {
					return &entities[i]
				}
			}
		}
	}

	combined := strings.TrimSpace(t.Prompt + "\n" + t.Response)
	if combined != "" {
		for i := range entities {
			for _, re := range s.getCompiled(entities[i]) {
				if re.MatchString(combined) {
					return &entities[i]
				}
			}
		}
	}

	return nil
}

func (s *Segmenter) getCompiled(e entity.Entity) []*regexp.Regexp {
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

func sameEntity(a, b *entity.Entity) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.ID() == b.ID()
}

func groupConsecutive(turns []turn.Turn, turnEntities []*entity.Entity) []Segment {
	if len(turns) == 0 {
		return nil
	}
	var segments []Segment
	current := turnEntities[0]
	currentTurns := []turn.Turn{turns[0]}

	for i := 1; i < len(turns); i++ {
		if sameEntity(turnEntities[i], current) {
			currentTurns = append(currentTurns, turns[i])
		} else {
			segments = append(segments, Segment{Entity: current, Turns: currentTurns})
			current = turnEntities[i]
			currentTurns = []turn.Turn{turns[i]}
		}
	}
	segments = append(segments, Segment{Entity: current, Turns: currentTurns})
	return segments
}

// absorbNoneSegments runs the reference implementation's exact two-pass
// absorption: (i) a None segment following a classified segment is
// appended to it, else held pending; (ii) any still-pending leading None
// segment is prepended to the next classified segment, and adjacent
// segments left with the same entity are merged; an all-None input
// collapses to a single (nil, allTurns) segment.
func absorbNoneSegments(segments []Segment) []Segment {
	if len(segments) <= 1 {
		return segments
	}

	var pass1 []Segment
	for _, seg := range segments {
		if seg.Entity != nil {
			pass1 = append(pass1, Segment{Entity: seg.Entity, Turns: append([]turn.Turn{}, seg.Turns...)})
			continue
		}
		if len(pass1) > 0 && pass1[len(pass1)-1].Entity != nil {
			last := &pass1[len(pass1)-1]
			last.Turns = append(last.Turns, seg.Turns...)
		} else {
			pass1 = append(pass1, Segment{Entity: nil, Turns: append([]turn.Turn{}, seg.Turns...)})
		}
	}

	var final []Segment
	var pendingNone []turn.Turn
	for _, seg := range pass1 {
		if seg.Entity == nil {
			pendingNone = append(pendingNone, seg.Turns...)
			continue
		}
		turns := seg.Turns
		if len(pendingNone) > 0 {
			turns = append(append([]turn.Turn{}, pendingNone...), turns...)
			pendingNone = nil
		}
		if n := len(final); n > 0 && sameEntity(final[n-1].Entity, seg.Entity) {
			final[n-1].Turns = append(final[n-1].Turns, turns...)
			continue
		}
		final = append(final, Segment{Entity: seg.Entity, Turns: turns})
	}

	if len(pendingNone) > 0 {
		if len(final) > 0 {
			last := &final[len(final)-1]
			last.Turns = append(last.Turns, pendingNone...)
		} else {
			final = append(final, Segment{Entity: nil, Turns: pendingNone})
		}
	}

	return final
}
