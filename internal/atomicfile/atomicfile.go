// Package atomicfile provides write-temp-then-rename helpers so that a
// partially written output file never becomes visible, per spec §5's
// cancellation requirement. Modeled on the teacher's
// versioncheck.saveCache and db/indexer.go temp-file conventions.
package atomicfile

import (
	"os"
	"path/filepath"
)

// Write atomically replaces path's contents with data: it writes to a
// sibling temp file and renames over path, so a crash or cancellation
// between the two steps leaves either the old file or the new one intact,
// never a half-written one.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
