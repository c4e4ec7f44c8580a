package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harvester-dev/harvester/internal/atomicfile"
	"github.com/harvester-dev/harvester/internal/entity"
	"github.com/harvester-dev/harvester/internal/segment"
	"github.com/harvester-dev/harvester/internal/turn"
)

// SessionReplay is one session's worth of segments to render as Markdown,
// grouped under the person who ran it (readable_replay_generator.py's unit
// of output).
type SessionReplay struct {
	SessionID string
	FilePath  string
	Person    string
	StartTime time.Time
	Segments  []segment.Segment
}

// ClearReplayDir removes and recreates dir/replay so a regenerated entity's
// replay files never mix with stale ones from a prior run.
func ClearReplayDir(entityDir string) (string, error) {
	dir := filepath.Join(entityDir, "replay")
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// replayFilename builds "<person>_<YYYY-MM-DD>_<HH-MM>.md", disambiguating
// collisions (two sessions by the same person starting the same minute)
// with a numeric suffix.
func replayFilename(used map[string]bool, person string, start time.Time) string {
	base := fmt.Sprintf("%s_%s_%s", sanitizeComponent(person), start.Format("2006-01-02"), start.Format("15-04"))
	name := base + ".md"
	for n := 2; used[name]; n++ {
		name = fmt.Sprintf("%s-%d.md", base, n)
	}
	used[name] = true
	return name
}

func sanitizeComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// WriteReplays renders one Markdown file per SessionReplay into
// entityDir/replay, clearing the directory first, and returns the
// generated filenames in write order.
func WriteReplays(entityDir string, replays []SessionReplay) ([]string, error) {
	dir, err := ClearReplayDir(entityDir)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(replays, func(i, j int) bool { return replays[i].StartTime.Before(replays[j].StartTime) })

	used := map[string]bool{}
	var names []string
	for _, r := range replays {
		name := replayFilename(used, r.Person, r.StartTime)
		md := renderReplayMarkdown(r)
		if err := atomicfile.Write(filepath.Join(dir, name), []byte(md), 0o644); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func renderReplayMarkdown(r SessionReplay) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session Replay: %s\n\n", r.SessionID)
	fmt.Fprintf(&b, "- **Person:** %s\n", r.Person)
	fmt.Fprintf(&b, "- **Started:** %s\n", r.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Source file:** `%s`\n\n", r.FilePath)

	totalTurns := 0
	for _, seg := range r.Segments {
		totalTurns += len(seg.Turns)
	}
	fmt.Fprintf(&b, "%d turn(s) across %d segment(s).\n\n", totalTurns, len(r.Segments))
	b.WriteString("---\n\n")

	for _, seg := range r.Segments {
		b.WriteString(renderSegmentHeading(seg.Entity))
		for _, t := range seg.Turns {
			renderTurn(&b, t)
		}
	}

	return b.String()
}

func renderSegmentHeading(e *entity.Entity) string {
	if e == nil {
		return "## Uncategorized\n\n"
	}
	return fmt.Sprintf("## %s (%s:%s)\n\n", e.DisplayName, e.Type, e.Name)
}

func renderTurn(b *strings.Builder, t turn.Turn) {
	title := t.Title
	if title == "" {
		title = fmt.Sprintf("Turn %d", t.Number)
	}
	fmt.Fprintf(b, "### Turn %d: %s\n\n", t.Number, title)
	if !t.Timestamp.IsZero() {
		fmt.Fprintf(b, "_%s_\n\n", t.Timestamp.Format(time.RFC3339))
	}

	b.WriteString("**Prompt:**\n\n")
	b.WriteString(blockquote(t.Prompt))
	b.WriteString("\n\n")

	if t.ToolNarrative != "" {
		fmt.Fprintf(b, "**Tools:** %s\n\n", t.ToolNarrative)
	}
	if len(t.ToolCounts) > 0 {
		names := make([]string, 0, len(t.ToolCounts))
		for name := range t.ToolCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		var parts []string
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s×%d", name, t.ToolCounts[name]))
		}
		fmt.Fprintf(b, "**Tool calls:** %s\n\n", strings.Join(parts, ", "))
	}

	if t.Response != "" {
		b.WriteString("**Response:**\n\n")
		b.WriteString(t.Response)
		b.WriteString("\n\n")
	}

	b.WriteString("---\n\n")
}

func blockquote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
