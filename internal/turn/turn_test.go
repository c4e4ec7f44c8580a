package turn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvester-dev/harvester/internal/session"
)

func userMsg(text string, ts time.Time) session.SessionMessage {
	return session.SessionMessage{
		Role:          "user",
		ContentBlocks: []session.ContentBlock{{Type: session.BlockText, Text: text}},
		Timestamp:     ts,
	}
}

func toolResultMsg(toolUseID, text string) session.SessionMessage {
	return session.SessionMessage{
		Role:          "user",
		ContentBlocks: []session.ContentBlock{{Type: session.BlockToolResult, UseID: toolUseID, Text: text}},
	}
}

func assistantMsg(blocks ...session.ContentBlock) session.SessionMessage {
	return session.SessionMessage{Role: "assistant", ContentBlocks: blocks}
}

func TestExtract_ToolResultMergesIntoPrecedingTurn(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []session.SessionMessage{
		userMsg("fix the bug", base),
		assistantMsg(session.ContentBlock{Type: session.BlockToolUse, Name: "Bash", UseID: "t1"}),
		toolResultMsg("t1", "ok"),
		assistantMsg(session.ContentBlock{Type: session.BlockText, Text: "done"}),
	}

	turns := Extract(msgs)

	require.Len(t, turns, 1)
	assert.Equal(t, "fix the bug", turns[0].Prompt)
	assert.Equal(t, "done", turns[0].Response)
	assert.Equal(t, 1, turns[0].ToolCounts["Bash"])
	assert.Equal(t, 1, turns[0].Number)
	assert.NotEmpty(t, turns[0].ID)
}

func TestExtract_MultiplePromptsProduceMultipleTurns(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []session.SessionMessage{
		userMsg("first", base),
		assistantMsg(session.ContentBlock{Type: session.BlockText, Text: "r1"}),
		userMsg("second", base.Add(time.Minute)),
		assistantMsg(session.ContentBlock{Type: session.BlockText, Text: "r2"}),
	}

	turns := Extract(msgs)

	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Prompt)
	assert.Equal(t, "second", turns[1].Prompt)
	assert.Equal(t, 1, turns[0].Number)
	assert.Equal(t, 2, turns[1].Number)
	assert.NotEqual(t, turns[0].ID, turns[1].ID)
}

func TestExtract_EmptyPromptAfterCleaningDropsTurn(t *testing.T) {
	msgs := []session.SessionMessage{
		userMsg("<system-reminder>noise</system-reminder>", time.Now()),
	}
	turns := Extract(msgs)
	assert.Empty(t, turns)
}

func TestBuildResponse_FallsBackToAllTextWhenNoTextAfterLastToolUse(t *testing.T) {
	asst := []session.SessionMessage{
		assistantMsg(
			session.ContentBlock{Type: session.BlockText, Text: "intro"},
			session.ContentBlock{Type: session.BlockToolUse, Name: "Read"},
		),
	}
	got := buildResponse(asst)
	assert.Equal(t, "intro", got)
}

func TestAutoTitle_TruncatesAtWordBoundary(t *testing.T) {
	long := ""
	for i := 0; i < 20; i++ {
		long += "word12345 "
	}
	title := autoTitle(long)
	assert.LessOrEqual(t, len([]rune(title)), TitleMaxLength+3)
	assert.Contains(t, title, "...")
}

func TestAutoTitle_StripsLeadingHeadingMarker(t *testing.T) {
	title := autoTitle("## Heading text\nmore")
	assert.Equal(t, "Heading text", title)
}

func TestExtractPerson_FromFilePath(t *testing.T) {
	person := ExtractPerson("/Users/kweng/.claude/projects/foo/session.jsonl", nil)
	assert.Equal(t, "kweng", person)
}

func TestExtractPerson_FallsBackToUnknown(t *testing.T) {
	person := ExtractPerson("/var/data/session.jsonl", nil)
	assert.Equal(t, "unknown", person)
}

func TestIsLongPrompt(t *testing.T) {
	longPrompt := ""
	for i := 0; i < LongPromptThreshold+10; i++ {
		longPrompt += "a"
	}
	turns := Extract([]session.SessionMessage{userMsg(longPrompt, time.Now())})
	require.Len(t, turns, 1)
	assert.True(t, turns[0].IsLongPrompt)
}
