// Package searchindex provides a derived, rebuildable substring-search
// index over a platform's conversation store, backed by DuckDB. It is
// strictly an accelerator: the JSONL store (internal/store) remains the
// source of truth, and the index can always be dropped and rebuilt from it.
//
// Grounded in the teacher's cmd/rekal/cli/db/db.go (OpenData/OpenIndex
// split, "index DB is derived — can be dropped and rebuilt from data DB")
// and db/schema.go's IF NOT EXISTS DDL convention.
package searchindex

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/harvester-dev/harvester/internal/model"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS messages (
	conversation_id VARCHAR NOT NULL,
	message_index   INTEGER NOT NULL,
	role            VARCHAR NOT NULL,
	content         VARCHAR NOT NULL,
	content_lower   VARCHAR NOT NULL,
	ts              TIMESTAMP,
	PRIMARY KEY (conversation_id, message_index)
);

CREATE TABLE IF NOT EXISTS index_state (
	platform   VARCHAR PRIMARY KEY,
	built_from VARCHAR NOT NULL
);
`

// Index wraps an on-disk DuckDB database at "<root>/<platform>/.search.db".
type Index struct {
	db       *sql.DB
	platform string
}

// Open opens (creating if absent) the derived search index for platform.
func Open(root, platform string) (*Index, error) {
	path := filepath.Join(root, platform, ".search.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open search index %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping search index %s: %w", path, err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init search index schema: %w", err)
	}
	return &Index{db: db, platform: platform}, nil
}

// Close releases the underlying DuckDB handle.
func (ix *Index) Close() error { return ix.db.Close() }

// Rebuild drops and repopulates the index from the given conversations —
// the only write path, since the index is purely derived (spec §5:
// shared resources are not mutated concurrently; this is always called
// from the single extraction/indexing run that owns the platform dir).
func (ix *Index) Rebuild(conversations map[string][]model.Message, builtFromHash string) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec("DELETE FROM messages"); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO messages (conversation_id, message_index, role, content, content_lower, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for convID, msgs := range conversations {
		for i, m := range msgs {
			if _, err := stmt.Exec(convID, i, string(m.Role), m.Content, strings.ToLower(m.Content), m.Timestamp); err != nil {
				return fmt.Errorf("insert message %s[%d]: %w", convID, i, err)
			}
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO index_state (platform, built_from) VALUES ($1, $2)
		 ON CONFLICT (platform) DO UPDATE SET built_from = $2`,
		ix.platform, builtFromHash,
	); err != nil {
		return fmt.Errorf("record index state: %w", err)
	}

	return tx.Commit()
}

// Stale reports whether the index was built from a different fingerprint
// than currentHash (e.g. the store's index.json mtime/hash), signalling
// that callers should fall back to store.Search or call Rebuild first.
func (ix *Index) Stale(currentHash string) (bool, error) {
	var builtFrom string
	err := ix.db.QueryRow("SELECT built_from FROM index_state WHERE platform = $1", ix.platform).Scan(&builtFrom)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	return builtFrom != currentHash, nil
}

// Hit mirrors store.SearchHit for callers that want a single result type
// regardless of which backend answered the query.
type Hit struct {
	ConversationID string
	MessageIndex   int
	Content        string
}

// Search performs an AND-semantics, case-insensitive substring search
// entirely in DuckDB, matching internal/store.Search's semantics.
func (ix *Index) Search(keywords []string) ([]Hit, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	where := make([]string, len(keywords))
	args := make([]interface{}, len(keywords))
	for i, k := range keywords {
		where[i] = fmt.Sprintf("content_lower LIKE $%d", i+1)
		args[i] = "%" + strings.ToLower(k) + "%"
	}
	q := "SELECT conversation_id, message_index, content FROM messages WHERE " + strings.Join(where, " AND ") +
		" ORDER BY conversation_id, message_index"

	rows, err := ix.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ConversationID, &h.MessageIndex, &h.Content); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
