package replay

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harvester-dev/harvester/internal/atomicfile"
	"github.com/harvester-dev/harvester/internal/classify"
)

// EntityIndexSummary is one entity's row in the categorization report and
// the master replay-index.md (index_generator.py's per-entity tally).
type EntityIndexSummary struct {
	EntityID     string
	DisplayName  string
	SessionCount int
	ReplayFiles  []string
}

// WriteReplayIndexMD writes entityDir/replay-index.md: a table of contents
// linking every generated replay file to its source session, newest first.
func WriteReplayIndexMD(entityDir, displayName string, refs []classify.SessionReference, replayFiles []string) error {
	sorted := BuildEntityIndex(refs)

	var b strings.Builder
	fmt.Fprintf(&b, "# Replay Index: %s\n\n", displayName)
	fmt.Fprintf(&b, "%d session(s).\n\n", len(sorted))
	b.WriteString("| Session | Started | Messages | Confidence | Replay |\n")
	b.WriteString("|---|---|---|---|---|\n")

	for i, r := range sorted {
		file := ""
		if i < len(replayFiles) {
			file = replayFiles[i]
		}
		link := "-"
		if file != "" {
			link = fmt.Sprintf("[%s](replay/%s)", file, file)
		}
		fmt.Fprintf(&b, "| `%s` | %s | %d | %.2f | %s |\n",
			shortID(r.SessionID), r.StartTime.Format("2006-01-02 15:04"), r.MessageCount, r.Confidence, link)
	}

	return atomicfile.Write(filepath.Join(entityDir, "replay-index.md"), []byte(b.String()), 0o644)
}

// WriteMasterReplayIndexMD writes historyRoot/replay-index.md: one row per
// entity, linking to its own replay-index.md.
func WriteMasterReplayIndexMD(historyRoot string, summaries []EntityIndexSummary, generatedAt time.Time) error {
	sort.SliceStable(summaries, func(i, j int) bool { return summaries[i].SessionCount > summaries[j].SessionCount })

	var b strings.Builder
	b.WriteString("# Session History Replay Index\n\n")
	fmt.Fprintf(&b, "Generated %s.\n\n", generatedAt.Format(time.RFC3339))
	b.WriteString("| Entity | Sessions | Index |\n")
	b.WriteString("|---|---|---|\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "| %s | %d | [%s](%s/replay-index.md) |\n", s.DisplayName, s.SessionCount, s.EntityID, entityDirLink(s.EntityID))
	}

	return atomicfile.Write(filepath.Join(historyRoot, "replay-index.md"), []byte(b.String()), 0o644)
}

func entityDirLink(entityID string) string {
	return strings.ReplaceAll(entityID, ":", "/")
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// WriteCategorizationReport writes historyRoot/categorization-report.md: a
// supplemented summary of how many sessions fell to each entity versus
// uncategorized, with each entity's share of the total, for operators auditing
// classifier quality (grounded in index_generator.py's report section, not
// present in spec.md itself).
func WriteCategorizationReport(historyRoot string, summaries []EntityIndexSummary, totalSessions, uncategorized int, generatedAt time.Time) error {
	sort.SliceStable(summaries, func(i, j int) bool { return summaries[i].SessionCount > summaries[j].SessionCount })

	var b strings.Builder
	b.WriteString("# Categorization Report\n\n")
	fmt.Fprintf(&b, "Generated %s.\n\n", generatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Total sessions scanned: %d\n", totalSessions)
	fmt.Fprintf(&b, "- Categorized: %d\n", totalSessions-uncategorized)
	fmt.Fprintf(&b, "- Uncategorized: %d\n\n", uncategorized)

	b.WriteString("## By entity\n\n")
	b.WriteString("| Entity | Sessions | Share |\n")
	b.WriteString("|---|---|---|\n")
	for _, s := range summaries {
		share := 0.0
		if totalSessions > 0 {
			share = 100 * float64(s.SessionCount) / float64(totalSessions)
		}
		fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", s.DisplayName, s.SessionCount, share)
	}
	if uncategorized > 0 {
		share := 100 * float64(uncategorized) / float64(max1(totalSessions))
		fmt.Fprintf(&b, "| _uncategorized_ | %d | %.1f%% |\n", uncategorized, share)
	}

	return atomicfile.Write(filepath.Join(historyRoot, "categorization-report.md"), []byte(b.String()), 0o644)
}

func max1(n int) int {
	if n == 0 {
		return 1
	}
	return n
}
