package searchindex

import (
	"testing"
	"time"

	"github.com/harvester-dev/harvester/internal/model"
)

func TestOpen_CreatesAndPings(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	ix, err := Open(dir, "wechat")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()
}

func TestRebuildAndSearch_ANDSemantics(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	ix, err := Open(dir, "wechat")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	conversations := map[string][]model.Message{
		"c1": {
			{Role: model.RoleUser, Content: "hello world", Timestamp: time.Now()},
			{Role: model.RoleAssistant, Content: "goodbye moon", Timestamp: time.Now()},
		},
	}
	if err := ix.Rebuild(conversations, "hash1"); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	hits, err := ix.Search([]string{"hello", "world"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ConversationID != "c1" {
		t.Errorf("expected conversation c1, got %s", hits[0].ConversationID)
	}

	noHits, err := ix.Search([]string{"hello", "mars"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(noHits) != 0 {
		t.Errorf("expected no hits, got %d", len(noHits))
	}
}

func TestStale_DetectsFingerprintChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	ix, err := Open(dir, "wechat")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	stale, err := ix.Stale("hash1")
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if !stale {
		t.Error("freshly opened index with no recorded state should be stale")
	}

	if err := ix.Rebuild(map[string][]model.Message{}, "hash1"); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	stale, err = ix.Stale("hash1")
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if stale {
		t.Error("index built from hash1 should not be stale against hash1")
	}

	stale, err = ix.Stale("hash2")
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if !stale {
		t.Error("index built from hash1 should be stale against hash2")
	}
}
