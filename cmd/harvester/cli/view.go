package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harvester-dev/harvester/internal/cliutil"
	"github.com/harvester-dev/harvester/internal/store"
)

func newViewCmd(opts *rootOptions) *cobra.Command {
	var (
		root     string
		platform string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "view <conversation-id>",
		Short: "Print a stored conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return cliutil.NewSilentError(err)
			}
			if root == "" {
				root = cfg.Store.Root
			}
			st := store.New(root, platform)
			msgs, err := st.ReadConversation(args[0])
			if err != nil {
				return cliutil.NewSilentError(err)
			}
			if limit > 0 && len(msgs) > limit {
				msgs = msgs[len(msgs)-limit:]
			}
			for _, m := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Role, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Conversation store root (defaults to config store.root)")
	cmd.Flags().StringVar(&platform, "platform", "wechat", "Platform name")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the last N messages (0 = all)")
	return cmd
}
