package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// newCleanCmd adapts the teacher's "rekal clean" (remove local derived
// state) into removing a platform's derived search index and incremental
// scan state, without touching the JSONL store itself (the source of
// truth).
func newCleanCmd(opts *rootOptions) *cobra.Command {
	var root, platform string

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove a platform's derived search index and scan state",
		Long: `Removes derived, rebuildable state for a platform:

  <root>/<platform>/.search.db   The DuckDB-backed search accelerator
  <root>/<platform>/state.json   The incremental-scan gate

The conversation JSONL files and index.json are never touched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if root == "" {
				root = cfg.Store.Root
			}
			platformDir := filepath.Join(root, platform)
			for _, name := range []string{".search.db", "state.json"} {
				path := filepath.Join(platformDir, name)
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleaned derived state for %s\n", platform)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Conversation store root (defaults to config store.root)")
	cmd.Flags().StringVar(&platform, "platform", "wechat", "Platform name")
	return cmd
}
