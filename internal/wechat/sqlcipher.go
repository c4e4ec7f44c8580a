package wechat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/harvester-dev/harvester/internal/harvestererr"
)

// DefaultSQLCipherBinary is the name looked up on PATH when no explicit
// binary path is configured.
const DefaultSQLCipherBinary = "sqlcipher"

// DB is a read-only handle to a page-encrypted SQLite database, opened by
// shelling out to the sqlcipher CLI rather than linking a CGO driver —
// the approach the reference implementation actually uses
// (_sqlcipher_query in adapters/wechat.py), and idiomatically consistent
// with the teacher's own os/exec-driven git plumbing (init.go).
type DB struct {
	path   string
	rawKey []byte
	binary string
}

// Open returns a DB bound to path, keyed with rawKey. It performs no I/O
// itself; the key is validated lazily on the first query, matching the
// reference implementation's behaviour (a bad key only surfaces once
// SQLite actually tries to read page 1).
func Open(path string, rawKey []byte, binary string) *DB {
	if binary == "" {
		binary = DefaultSQLCipherBinary
	}
	return &DB{path: path, rawKey: rawKey, binary: binary}
}

// Query runs a single SQL statement and returns one map per result row,
// decoded from SQLCipher's ".mode json" output.
func (d *DB) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	script := fmt.Sprintf("PRAGMA key = \"x'%s'\";\n.mode json\n%s\n", hex.EncodeToString(d.rawKey), sql)

	cmd := exec.CommandContext(ctx, d.binary, d.path)
	cmd.Stdin = strings.NewReader(script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if strings.Contains(stderr.String(), "file is not a database") {
		return nil, harvestererr.New(harvestererr.BadKey, d.path, fmt.Errorf("sqlcipher: %s", strings.TrimSpace(stderr.String())))
	}
	if runErr != nil && stdout.Len() == 0 {
		return nil, harvestererr.New(harvestererr.IoError, d.path, fmt.Errorf("sqlcipher: %v: %s", runErr, strings.TrimSpace(stderr.String())))
	}

	rows, err := parseJSONRows(stdout.Bytes())
	if err != nil {
		rows, err = parsePipeRows(stdout.Bytes())
		if err != nil {
			return nil, harvestererr.New(harvestererr.CorruptRecord, d.path, err)
		}
	}
	return rows, nil
}

// QueryValues runs sql and returns only a single named column, in row order.
// Convenience wrapper used by callers that only need one field (e.g. a list
// of table names).
func (d *DB) QueryValues(ctx context.Context, sql, column string) ([]string, error) {
	rows, err := d.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if v, ok := r[column]; ok {
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, nil
}

// parseJSONRows finds the first top-level JSON array in output (SQLCipher's
// ".mode json" emits one array per statement; multiple statements can each
// print their own array, so only the first is meaningful for our
// single-statement call sites) and decodes it into row maps.
func parseJSONRows(out []byte) ([]map[string]any, error) {
	idx := bytes.IndexByte(out, '[')
	if idx < 0 {
		// No rows is valid (e.g. a PRAGMA with no SELECT output).
		if len(bytes.TrimSpace(out)) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("no JSON array found in sqlcipher output")
	}
	var rows []map[string]any
	if err := json.Unmarshal(out[idx:], &rows); err != nil {
		return nil, fmt.Errorf("decode sqlcipher JSON output: %w", err)
	}
	return rows, nil
}

// parsePipeRows is the fallback for SQLCipher builds/modes that emit
// pipe-separated output instead of JSON. Without column names available,
// columns are keyed positionally as "c0", "c1", ...
func parsePipeRows(out []byte) ([]map[string]any, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	var rows []map[string]any
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		row := make(map[string]any, len(parts))
		for i, p := range parts {
			row[fmt.Sprintf("c%d", i)] = p
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
