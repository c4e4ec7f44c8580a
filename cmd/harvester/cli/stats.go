package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harvester-dev/harvester/internal/cliutil"
	"github.com/harvester-dev/harvester/internal/store"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var root, platform string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize a platform's conversation store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return cliutil.NewSilentError(err)
			}
			if root == "" {
				root = cfg.Store.Root
			}
			st := store.New(root, platform)
			idx, err := st.ReadIndex()
			if err != nil {
				return cliutil.NewSilentError(err)
			}

			totalMessages, groupCount := 0, 0
			var earliest, latest string
			for _, e := range idx.Entries {
				totalMessages += e.MessageCount
				if v, ok := e.Metadata["is_group"].(bool); ok && v {
					groupCount++
				}
				ts := e.FirstMessageTime.Format("2006-01-02")
				if earliest == "" || ts < earliest {
					earliest = ts
				}
				ts = e.LastMessageTime.Format("2006-01-02")
				if ts > latest {
					latest = ts
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "platform:          %s\n", platform)
			fmt.Fprintf(cmd.OutOrStdout(), "conversations:     %d (%d group)\n", len(idx.Entries), groupCount)
			fmt.Fprintf(cmd.OutOrStdout(), "total messages:    %d\n", totalMessages)
			fmt.Fprintf(cmd.OutOrStdout(), "date range:        %s .. %s\n", earliest, latest)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Conversation store root (defaults to config store.root)")
	cmd.Flags().StringVar(&platform, "platform", "wechat", "Platform name")
	return cmd
}
