package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvester-dev/harvester/internal/entity"
	"github.com/harvester-dev/harvester/internal/session"
)

func textMsg(uuid, text string) session.SessionMessage {
	return session.SessionMessage{
		UUID:          uuid,
		Role:          "user",
		ContentBlocks: []session.ContentBlock{{Type: session.BlockText, Text: text}},
	}
}

func toolUseMsg(uuid string, input map[string]any) session.SessionMessage {
	return session.SessionMessage{
		UUID:          uuid,
		Role:          "assistant",
		ContentBlocks: []session.ContentBlock{{Type: session.BlockToolUse, Name: "Edit", Input: input}},
	}
}

func TestFilePathSignal_ScoresByPathMatchRatio(t *testing.T) {
	e := entity.Entity{PathPatterns: []string{"specs/alpha/"}}
	msgs := []session.SessionMessage{
		toolUseMsg("1", map[string]any{"file_path": "specs/alpha/design.md"}),
		toolUseMsg("2", map[string]any{"file_path": "specs/beta/design.md"}),
	}
	sig := FilePathSignal{}
	score := sig.Score(msgs, e)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestFilePathSignal_NoPathBearingMessagesScoresZero(t *testing.T) {
	e := entity.Entity{PathPatterns: []string{"specs/alpha/"}}
	msgs := []session.SessionMessage{textMsg("1", "just chatting")}
	sig := FilePathSignal{}
	assert.Equal(t, 0.0, sig.Score(msgs, e))
}

func TestTextPatternSignal_MatchesCaseInsensitively(t *testing.T) {
	e := entity.Entity{TextPatterns: []string{"alpha feature"}}
	msgs := []session.SessionMessage{textMsg("1", "let's discuss the ALPHA FEATURE today")}
	sig := &TextPatternSignal{}
	assert.Greater(t, sig.Score(msgs, e), 0.0)
}

func TestKeywordSignal_ScoreIsClampedBetween0_1And0_8(t *testing.T) {
	e := entity.Entity{Keywords: map[string]bool{"alpha": true}}
	msgs := []session.SessionMessage{
		textMsg("1", "alpha alpha alpha alpha"),
		textMsg("2", "alpha alpha alpha alpha"),
	}
	score := KeywordSignal{}.Score(msgs, e)
	assert.GreaterOrEqual(t, score, 0.1)
	assert.LessOrEqual(t, score, 0.8)
}

func TestKeywordSignal_NoKeywordOverlapScoresZero(t *testing.T) {
	e := entity.Entity{Keywords: map[string]bool{"alpha": true}}
	msgs := []session.SessionMessage{textMsg("1", "totally unrelated words here")}
	assert.Equal(t, 0.0, KeywordSignal{}.Score(msgs, e))
}

func TestClassify_CompositeScoreAboveThresholdIsAMatch(t *testing.T) {
	e := entity.Entity{
		Type:         entity.TypeSpec,
		Name:         "alpha",
		DisplayName:  "alpha",
		PathPatterns: []string{"specs/alpha/"},
		TextPatterns: []string{"alpha feature"},
		Keywords:     map[string]bool{"alpha": true},
	}
	msgs := []session.SessionMessage{
		toolUseMsg("1", map[string]any{"file_path": "specs/alpha/design.md"}),
		textMsg("2", "working on the alpha feature"),
	}
	weights := Weights{FilePath: 0.5, TextPattern: 0.3, Keyword: 0.2}
	c := NewClassifier(nil, weights, 0.1)

	result := c.Classify("sess1", "/tmp/sess1.jsonl", msgs[0].Timestamp, msgs[0].Timestamp, msgs, []entity.Entity{e})

	require.Len(t, result.Matches, 1)
	assert.Equal(t, e.ID(), result.Matches[0].Entity.ID())
	assert.Greater(t, result.Matches[0].Confidence, 0.1)
}

func TestClassify_BelowThresholdIsExcluded(t *testing.T) {
	e := entity.Entity{Type: entity.TypeSpec, Name: "alpha", PathPatterns: []string{"specs/alpha/"}}
	msgs := []session.SessionMessage{textMsg("1", "nothing relevant")}
	c := NewClassifier(nil, Weights{FilePath: 1}, 0.5)

	result := c.Classify("sess1", "/tmp/sess1.jsonl", msgs[0].Timestamp, msgs[0].Timestamp, msgs, []entity.Entity{e})
	assert.Empty(t, result.Matches)
}

func TestBuildSessionReference_CollectsMatchedMessagePointers(t *testing.T) {
	e := entity.Entity{
		Type:         entity.TypeSpec,
		Name:         "alpha",
		PathPatterns: []string{"specs/alpha/"},
	}
	msgs := []session.SessionMessage{
		toolUseMsg("1", map[string]any{"file_path": "specs/alpha/design.md"}),
	}
	c := NewClassifier(nil, Weights{FilePath: 1}, 0.1)
	result := c.Classify("sess1", "/tmp/sess1.jsonl", msgs[0].Timestamp, msgs[0].Timestamp, msgs, []entity.Entity{e})
	require.Len(t, result.Matches, 1)

	ref := c.BuildSessionReference("sess1", "/tmp/sess1.jsonl", msgs[0].Timestamp, msgs[0].Timestamp, msgs, result.Matches[0])
	require.Len(t, ref.MatchedMessages, 1)
	assert.Equal(t, "1", ref.MatchedMessages[0].UUID)
}
