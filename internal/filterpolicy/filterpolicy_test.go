package filterpolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func TestEvaluate_HighestPriorityMatchingRuleWins(t *testing.T) {
	p := &Policy{
		DefaultTier: TierKeep,
		Rules: []Rule{
			{Name: "low", Tier: TierArchive, Priority: 1, MinMessages: intPtr(0)},
			{Name: "high", Tier: TierExclude, Priority: 10, MinMessages: intPtr(0)},
		},
	}
	tier, name := p.Evaluate(Meta{MessageCount: 5})
	assert.Equal(t, TierExclude, tier)
	assert.Equal(t, "high", name)
}

func TestEvaluate_NoMatchReturnsDefaultTier(t *testing.T) {
	p := &Policy{
		DefaultTier: TierKeep,
		Rules:       []Rule{{Name: "groups-only", Tier: TierArchive, IsGroup: boolPtr(true)}},
	}
	tier, name := p.Evaluate(Meta{IsGroup: false})
	assert.Equal(t, TierKeep, tier)
	assert.Empty(t, name)
}

func TestEvaluate_TitleContainsIsCaseInsensitive(t *testing.T) {
	p := &Policy{Rules: []Rule{{Name: "proj", Tier: TierArchive, Priority: 1, TitleContains: "Project X"}}}
	tier, name := p.Evaluate(Meta{Title: "notes about project x launch"})
	assert.Equal(t, TierArchive, tier)
	assert.Equal(t, "proj", name)
}

func TestEvaluate_TitleNotContainsExcludesMatch(t *testing.T) {
	p := &Policy{Rules: []Rule{{Name: "not-spam", Tier: TierArchive, Priority: 1, TitleNotContains: "spam"}}}
	tier, _ := p.Evaluate(Meta{Title: "this is spam"})
	assert.Equal(t, TierKeep, tier)
}

func TestEvaluate_ActiveWithinDaysDefaultsAgainstZeroTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &Policy{Rules: []Rule{{Name: "recent", Tier: TierKeep, Priority: 1, ActiveWithinDays: intPtr(7)}}}
	// zero-value LastActive is far in the past, so a missing timestamp never
	// satisfies an active_within_days rule.
	tier, name := p.Evaluate(Meta{Now: now})
	assert.Equal(t, TierKeep, tier)
	assert.Empty(t, name)
}

func TestEvaluate_DormantDaysMatchesOldConversation(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	last := now.AddDate(0, 0, -90)
	p := &Policy{Rules: []Rule{{Name: "stale", Tier: TierArchive, Priority: 1, DormantDays: intPtr(30)}}}
	tier, name := p.Evaluate(Meta{Now: now, LastActive: last})
	assert.Equal(t, TierArchive, tier)
	assert.Equal(t, "stale", name)
}

func TestEvaluate_MinMaxMessagesBound(t *testing.T) {
	p := &Policy{Rules: []Rule{{Name: "mid", Tier: TierArchive, Priority: 1, MinMessages: intPtr(5), MaxMessages: intPtr(10)}}}

	tierLow, _ := p.Evaluate(Meta{MessageCount: 2})
	assert.Equal(t, TierKeep, tierLow)

	tierMid, name := p.Evaluate(Meta{MessageCount: 7})
	assert.Equal(t, TierArchive, tierMid)
	assert.Equal(t, "mid", name)

	tierHigh, _ := p.Evaluate(Meta{MessageCount: 20})
	assert.Equal(t, TierKeep, tierHigh)
}

func TestLoad_MissingFileReturnsKeepDefault(t *testing.T) {
	p, err := Load("/nonexistent/path/policy.json")
	assert := assert.New(t)
	assert.NoError(err)
	assert.Equal(TierKeep, p.DefaultTier)
	assert.Empty(p.Rules)
}
