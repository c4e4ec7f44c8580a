package session

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var nonAlnumRE = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeProjectPath turns an absolute project path into the dash-joined
// slug Claude Code uses for its per-project session directory name —
// identical in shape to the teacher's SanitizeRepoPath
// (cmd/rekal/cli/session/find.go) and to the reference implementation's
// Settings.sessions_dir derivation (config/settings.py).
func SanitizeProjectPath(path string) string {
	return nonAlnumRE.ReplaceAllString(path, "-")
}

// FindSessionDir returns "<home>/.claude/projects/<slug>" for projectPath.
func FindSessionDir(home, projectPath string) string {
	return filepath.Join(home, ".claude", "projects", SanitizeProjectPath(projectPath))
}

// FindSessionFiles lists the .jsonl transcript files in dir, sorted for a
// deterministic scan order.
func FindSessionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".jsonl" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
