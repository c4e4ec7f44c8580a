package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harvester-dev/harvester/internal/cliutil"
	"github.com/harvester-dev/harvester/internal/searchindex"
	"github.com/harvester-dev/harvester/internal/store"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		root     string
		platform string
		useIndex bool
	)

	cmd := &cobra.Command{
		Use:   "search <keyword...>",
		Short: "AND-semantics substring search over a platform's stored conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return cliutil.NewSilentError(err)
			}
			if root == "" {
				root = cfg.Store.Root
			}

			if useIndex {
				if ix, openErr := searchindex.Open(root, platform); openErr == nil {
					hits, searchErr := ix.Search(args)
					ix.Close()
					if searchErr == nil {
						for _, h := range hits {
							fmt.Fprintf(cmd.OutOrStdout(), "%s[%d]: %s\n", h.ConversationID, h.MessageIndex, snippet(h.Content, 120))
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%d match(es)\n", len(hits))
						return nil
					}
				}
				// Any index problem (absent, stale, query failure): fall
				// through to the always-available linear-scan path below.
			}

			st := store.New(root, platform)
			ids, err := st.ConversationIDs()
			if err != nil {
				return cliutil.NewSilentError(err)
			}
			hits, err := st.Search(ids, args)
			if err != nil {
				return cliutil.NewSilentError(err)
			}
			for _, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "%s[%d]: %s\n", h.ConversationID, h.MessageIndex, snippet(h.Content, 120))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d match(es)\n", len(hits))
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Conversation store root (defaults to config store.root)")
	cmd.Flags().StringVar(&platform, "platform", "wechat", "Platform name")
	cmd.Flags().BoolVar(&useIndex, "use-index", true, "Prefer the DuckDB-backed derived search index when available")
	return cmd
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
