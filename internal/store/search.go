package store

import (
	"strings"
)

// SearchHit is one matched message returned by Search.
type SearchHit struct {
	ConversationID string
	MessageIndex   int
	Content        string
}

// Search performs a case-insensitive, AND-semantics substring search
// (supplemented feature, SPEC_FULL.md §"harvester search"): a message
// matches only if every keyword appears somewhere in its content. This is
// the store's always-available linear-scan fallback; internal/searchindex
// provides a faster DuckDB-backed path with the same semantics when its
// derived index is present and fresh.
func (s *Store) Search(ids []string, keywords []string) ([]SearchHit, error) {
	lower := make([]string, len(keywords))
	for i, k := range keywords {
		lower[i] = strings.ToLower(k)
	}

	var hits []SearchHit
	for _, id := range ids {
		msgs, err := s.ReadConversation(id)
		if err != nil {
			continue // missing/corrupt conversation file: skip, don't fail the whole search
		}
		for i, m := range msgs {
			if matchesAll(strings.ToLower(m.Content), lower) {
				hits = append(hits, SearchHit{ConversationID: id, MessageIndex: i, Content: m.Content})
			}
		}
	}
	return hits, nil
}

func matchesAll(haystack string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	for _, k := range keywords {
		if k == "" || !strings.Contains(haystack, k) {
			return false
		}
	}
	return true
}

// ConversationIDs lists every id currently in the index, for callers that
// want to search the whole platform.
func (s *Store) ConversationIDs() ([]string, error) {
	idx, err := s.ReadIndex()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		ids = append(ids, e.ID)
	}
	return ids, nil
}
