// Package filterpolicy implements the filter policy engine (C12): a
// JSON-loadable set of rules that tier conversations (keep/archive/exclude)
// by metadata criteria, highest-priority rule wins.
//
// Grounded directly in spec §4.10/§8; no teacher or original_source file
// is adapted here.
package filterpolicy

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/harvester-dev/harvester/internal/model"
)

// Tier is the outcome of evaluating a conversation against a policy.
type Tier string

const (
	TierKeep    Tier = "keep"
	TierArchive Tier = "archive"
	TierExclude Tier = "exclude"
)

// Rule is one filter criterion set plus the tier it assigns when matched
// (spec §4.10). A zero-value field means "don't constrain on this
// criterion".
type Rule struct {
	Name    string `json:"name"`
	Tier    Tier   `json:"tier"`
	// Priority breaks ties when multiple rules match; higher wins.
	Priority int `json:"priority"`

	IsGroup          *bool    `json:"is_group,omitempty"`
	Username         string   `json:"username,omitempty"`
	TitleContains    string   `json:"title_contains,omitempty"`
	TitleNotContains string   `json:"title_not_contains,omitempty"`
	MinMessages      *int     `json:"min_messages,omitempty"`
	MaxMessages      *int     `json:"max_messages,omitempty"`
	ActiveWithinDays *int     `json:"active_within_days,omitempty"`
	DormantDays      *int     `json:"dormant_days,omitempty"`
}

// Policy is an ordered set of Rules plus the tier assigned when none match.
type Policy struct {
	Rules       []Rule `json:"rules"`
	DefaultTier Tier   `json:"default_tier"`
}

// Load reads a Policy from a JSON file. A missing file yields a Policy with
// no rules and DefaultTier "keep", matching the teacher's tolerant-default
// config-loading convention (see internal/config.Load).
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Policy{DefaultTier: TierKeep}, nil
		}
		return nil, err
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.DefaultTier == "" {
		p.DefaultTier = TierKeep
	}
	return &p, nil
}

// Meta is the subset of a conversation's metadata a Rule can be evaluated
// against, independent of the storage backend.
type Meta struct {
	IsGroup      bool
	Username     string
	Title        string
	MessageCount int
	LastActive   time.Time
	Now          time.Time
}

// MetaFromConversation builds a Meta from a model.Conversation.
func MetaFromConversation(c model.Conversation, now time.Time) Meta {
	var last time.Time
	if len(c.Messages) > 0 {
		last = c.Messages[len(c.Messages)-1].Timestamp
	}
	username, _ := c.Metadata["username"].(string)
	return Meta{
		IsGroup:      c.IsGroup(),
		Username:     username,
		Title:        c.Title,
		MessageCount: c.MessageCount(),
		LastActive:   last,
		Now:          now,
	}
}

// Evaluate returns the tier assigned by the highest-priority matching rule,
// or p.DefaultTier (TierKeep when unset) if none match, along with that
// rule's name ("" for the default).
func (p *Policy) Evaluate(m Meta) (Tier, string) {
	var best *Rule
	for i := range p.Rules {
		r := &p.Rules[i]
		if !r.matches(m) {
			continue
		}
		if best == nil || r.Priority > best.Priority {
			best = r
		}
	}
	if best == nil {
		if p.DefaultTier == "" {
			return TierKeep, ""
		}
		return p.DefaultTier, ""
	}
	return best.Tier, best.Name
}

func (r *Rule) matches(m Meta) bool {
	if r.IsGroup != nil && *r.IsGroup != m.IsGroup {
		return false
	}
	if r.Username != "" && !strings.EqualFold(r.Username, m.Username) {
		return false
	}
	if r.TitleContains != "" && !strings.Contains(strings.ToLower(m.Title), strings.ToLower(r.TitleContains)) {
		return false
	}
	if r.TitleNotContains != "" && strings.Contains(strings.ToLower(m.Title), strings.ToLower(r.TitleNotContains)) {
		return false
	}
	if r.MinMessages != nil && m.MessageCount < *r.MinMessages {
		return false
	}
	if r.MaxMessages != nil && m.MessageCount > *r.MaxMessages {
		return false
	}
	if r.ActiveWithinDays != nil {
		cutoff := m.Now.AddDate(0, 0, -*r.ActiveWithinDays)
		if m.LastActive.Before(cutoff) {
			return false
		}
	}
	if r.DormantDays != nil {
		cutoff := m.Now.AddDate(0, 0, -*r.DormantDays)
		if !m.LastActive.Before(cutoff) {
			return false
		}
	}
	return true
}
