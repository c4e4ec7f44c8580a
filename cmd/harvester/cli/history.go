package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/harvester-dev/harvester/internal/classify"
	"github.com/harvester-dev/harvester/internal/cliutil"
	"github.com/harvester-dev/harvester/internal/entity"
	"github.com/harvester-dev/harvester/internal/replay"
	"github.com/harvester-dev/harvester/internal/segment"
	"github.com/harvester-dev/harvester/internal/session"
	"github.com/harvester-dev/harvester/internal/turn"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Classify and replay agent session history for a project",
	}
	cmd.AddCommand(newHistoryScanCmd(opts))
	cmd.AddCommand(newHistoryWatchCmd(opts))
	return cmd
}

// scanState is the top-level ".scan-state.json" gate (spec §6): mtime-keyed
// so an unchanged transcript file is skipped on re-scan.
type scanState struct {
	Files map[string]time.Time `json:"files"`
}

func readScanState(path string) scanState {
	data, err := os.ReadFile(path)
	if err != nil {
		return scanState{Files: map[string]time.Time{}}
	}
	var st scanState
	if json.Unmarshal(data, &st) != nil || st.Files == nil {
		st.Files = map[string]time.Time{}
	}
	return st
}

func newHistoryScanCmd(opts *rootOptions) *cobra.Command {
	var (
		home        string
		incremental bool
	)

	cmd := &cobra.Command{
		Use:   "scan <project-dir>",
		Short: "Scan, classify, and write session-history indexes and replays for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args[0], home, incremental)
		},
	}

	cmd.Flags().StringVar(&home, "home", "", "Override $HOME for locating ~/.claude/projects/<slug>")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Skip transcript files unchanged since the last scan")
	return cmd
}

// runScan performs one scan-classify-write pass for projectDir, shared by
// "history scan" and each rescan triggered by "history watch".
func runScan(cmd *cobra.Command, opts *rootOptions, projectDir, home string, incremental bool) error {
	lg := opts.logger()
	cfg, err := opts.loadConfig()
	if err != nil {
		return cliutil.NewSilentError(err)
	}
	if home == "" {
		home, _ = os.UserHomeDir()
	}

	reg := &entity.Registry{
		ProjectRoot:  projectDir,
		SpecDirs:     cfg.Registry.SpecDirs,
		SourceDir:    cfg.Registry.SourceDir,
		ResearchDir:  cfg.Registry.ResearchDir,
		KnowledgeDir: cfg.Registry.KnowledgeDir,
		ToolDir:      cfg.Registry.ToolDir,
	}
	entities, err := reg.DiscoverAll()
	if err != nil {
		return cliutil.NewSilentError(err)
	}

	topDirs := []string{projectDir}
	weights := classify.Weights{
		FilePath:    cfg.Classifier.Weights["file_path"],
		TextPattern: cfg.Classifier.Weights["text_pattern"],
		Keyword:     cfg.Classifier.Weights["keyword"],
	}
	classifier := classify.NewClassifier(topDirs, weights, cfg.Classifier.Threshold)
	segmenter := segment.New()

	historyRoot := cfg.SessionHistory.HistoryRoot
	if !filepath.IsAbs(historyRoot) {
		historyRoot = filepath.Join(projectDir, historyRoot)
	}
	statePath := filepath.Join(historyRoot, cfg.SessionHistory.ScanStateFile)
	st := scanState{Files: map[string]time.Time{}}
	if incremental {
		st = readScanState(statePath)
	}

	sessDir := session.FindSessionDir(home, projectDir)
	files, err := session.FindSessionFiles(sessDir)
	if err != nil {
		return cliutil.NewSilentError(err)
	}

	entityRefs := map[string][]classify.SessionReference{}
	entityReplays := map[string][]replay.SessionReplay{}
	var uncategorizedReplays []replay.SessionReplay
	var masterEntries []replay.MasterSessionEntry
	uncategorizedCount := 0
	newState := scanState{Files: map[string]time.Time{}}

	for _, f := range files {
		info, statErr := os.Stat(f)
		if statErr != nil {
			continue
		}
		newState.Files[f] = info.ModTime()
		if incremental {
			if prev, ok := st.Files[f]; ok && !info.ModTime().After(prev) {
				continue
			}
		}

		data, readErr := os.ReadFile(f)
		if readErr != nil {
			lg.Warn().Str("file", f).Err(readErr).Msg("skipping unreadable session file")
			continue
		}

		sess := session.ReadSession(data, f, session.ReaderOptions{
			ExcludeThinking:  cfg.SessionHistory.ExcludeThinking,
			ExcludeSidechain: cfg.SessionHistory.ExcludeSidechain,
		})
		if len(sess.Messages) == 0 {
			continue
		}

		turns := turn.Extract(sess.Messages)
		person := turn.ExtractPerson(f, sess.Messages)

		classification := classifier.Classify(sess.SessionID, f, sess.StartTime, sess.EndTime, sess.Messages, entities)

		segments := segmenter.ClassifyTurns(turns, entities)

		byEntity := map[string][]segment.Segment{}
		for _, seg := range segments {
			key := "uncategorized"
			if seg.Entity != nil {
				key = seg.Entity.ID()
			}
			byEntity[key] = append(byEntity[key], seg)
		}

		entry := replay.MasterSessionEntry{
			SessionID:    sess.SessionID,
			FilePath:     f,
			StartTime:    sess.StartTime,
			EndTime:      sess.EndTime,
			MessageCount: len(sess.Messages),
		}

		if len(classification.Matches) == 0 {
			entry.Uncategorized = true
			uncategorizedCount++
			if segs, ok := byEntity["uncategorized"]; ok {
				uncategorizedReplays = append(uncategorizedReplays, replay.SessionReplay{
					SessionID: sess.SessionID, FilePath: f, Person: person,
					StartTime: sess.StartTime, Segments: segs,
				})
			}
		}

		for _, em := range classification.Matches {
			id := em.Entity.ID()
			entry.Entities = append(entry.Entities, id)
			ref := classifier.BuildSessionReference(sess.SessionID, f, sess.StartTime, sess.EndTime, sess.Messages, em)
			entityRefs[id] = append(entityRefs[id], ref)

			if segs, ok := byEntity[id]; ok {
				entityReplays[id] = append(entityReplays[id], replay.SessionReplay{
					SessionID: sess.SessionID, FilePath: f, Person: person,
					StartTime: sess.StartTime, Segments: segs,
				})
			}
		}

		masterEntries = append(masterEntries, entry)
	}

	entityByID := map[string]entity.Entity{}
	for _, e := range entities {
		entityByID[e.ID()] = e
	}

	var summaries []replay.EntityIndexSummary
	for id, refs := range entityRefs {
		e := entityByID[id]
		entityDir := filepath.Join(projectDir, e.Directory, "history")
		if err := replay.WriteEntityIndex(entityDir, refs); err != nil {
			return cliutil.NewSilentError(err)
		}
		files, err := replay.WriteReplays(entityDir, entityReplays[id])
		if err != nil {
			return cliutil.NewSilentError(err)
		}
		if err := replay.WriteReplayIndexMD(entityDir, e.DisplayName, refs, files); err != nil {
			return cliutil.NewSilentError(err)
		}
		summaries = append(summaries, replay.EntityIndexSummary{
			EntityID: id, DisplayName: e.DisplayName, SessionCount: len(refs), ReplayFiles: files,
		})
	}

	if len(uncategorizedReplays) > 0 {
		uncatDir := filepath.Join(historyRoot, "uncategorized")
		if _, err := replay.WriteReplays(uncatDir, uncategorizedReplays); err != nil {
			return cliutil.NewSilentError(err)
		}
	}

	now := time.Now()
	if err := replay.WriteMasterIndex(historyRoot, masterEntries, now); err != nil {
		return cliutil.NewSilentError(err)
	}
	if err := replay.WriteMasterReplayIndexMD(historyRoot, summaries, now); err != nil {
		return cliutil.NewSilentError(err)
	}
	if err := replay.WriteCategorizationReport(historyRoot, summaries, len(masterEntries), uncategorizedCount, now); err != nil {
		return cliutil.NewSilentError(err)
	}

	stateData, err := json.MarshalIndent(newState, "", "  ")
	if err != nil {
		return cliutil.NewSilentError(err)
	}
	if err := os.MkdirAll(historyRoot, 0o755); err != nil {
		return cliutil.NewSilentError(err)
	}
	if err := os.WriteFile(statePath, stateData, 0o644); err != nil {
		return cliutil.NewSilentError(err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "scanned %d session(s): %d categorized, %d uncategorized\n",
		len(masterEntries), len(masterEntries)-uncategorizedCount, uncategorizedCount)
	return nil
}

// newHistoryWatchCmd wraps runScan in an fsnotify watch loop over the
// project's transcript directory, re-scanning (incrementally) whenever a
// JSONL file is created or written. It is an enrichment beyond spec.md's
// batch scan/replay model: a long-running process that keeps indexes and
// replays current as Claude writes new session files.
func newHistoryWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		home        string
		debounceSec int
	)

	cmd := &cobra.Command{
		Use:   "watch <project-dir>",
		Short: "Watch a project's transcript directory and rescan on change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir := args[0]
			if home == "" {
				home, _ = os.UserHomeDir()
			}

			if err := runScan(cmd, opts, projectDir, home, true); err != nil {
				return err
			}

			sessDir := session.FindSessionDir(home, projectDir)
			if err := os.MkdirAll(sessDir, 0o755); err != nil {
				return cliutil.NewSilentError(err)
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return cliutil.NewSilentError(err)
			}
			defer watcher.Close()
			if err := watcher.Add(sessDir); err != nil {
				return cliutil.NewSilentError(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s for new sessions (ctrl-c to stop)\n", sessDir)

			debounce := time.Duration(debounceSec) * time.Second
			var pending *time.Timer
			rescan := func() {
				if err := runScan(cmd, opts, projectDir, home, true); err != nil {
					opts.logger().Error().Err(err).Msg("rescan failed")
					return
				}
			}

			for {
				select {
				case ev, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
						continue
					}
					if filepath.Ext(ev.Name) != ".jsonl" {
						continue
					}
					if pending != nil {
						pending.Stop()
					}
					pending = time.AfterFunc(debounce, rescan)
				case watchErr, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					opts.logger().Warn().Err(watchErr).Msg("watch error")
				case <-cmd.Context().Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&home, "home", "", "Override $HOME for locating ~/.claude/projects/<slug>")
	cmd.Flags().IntVar(&debounceSec, "debounce", 2, "Seconds to wait after the last file event before rescanning")
	return cmd
}
