package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harvester-dev/harvester/internal/cliutil"
	"github.com/harvester-dev/harvester/internal/store"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var root, platform string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored conversations for a platform",
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
			for _, e := range idx.Entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-30s %6d msgs  last: %s\n",
					e.ID, e.Title, e.MessageCount, e.LastMessageTime.Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d conversation(s)\n", len(idx.Entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Conversation store root (defaults to config store.root)")
	cmd.Flags().StringVar(&platform, "platform", "wechat", "Platform name")
	return cmd
}
