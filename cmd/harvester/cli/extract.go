package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harvester-dev/harvester/internal/cliutil"
	"github.com/harvester-dev/harvester/internal/filterpolicy"
	"github.com/harvester-dev/harvester/internal/store"
	"github.com/harvester-dev/harvester/internal/wechat"
)

func newExtractCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract messenger conversations into the conversation store",
	}
	cmd.AddCommand(newExtractWechatCmd(opts))
	return cmd
}

func newExtractWechatCmd(opts *rootOptions) *cobra.Command {
	var (
		masterKey   string
		sqlcipher   string
		storeRoot   string
		incremental bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "wechat <account-root>",
		Short: "Extract WeChat conversations from an account data root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := opts.logger()
			cfg, err := opts.loadConfig()
			if err != nil {
				return cliutil.NewSilentError(err)
			}
			if storeRoot == "" {
				storeRoot = cfg.Store.Root
			}
			if masterKey == "" {
				return cliutil.NewSilentError(fmt.Errorf("--master-key is required"))
			}

			orch := &wechat.Orchestrator{
				Root:         args[0],
				Master:       []byte(masterKey),
				SQLCipherBin: sqlcipher,
				Concurrency:  concurrency,
			}

			st := store.New(storeRoot, "wechat")
			prevState, err := st.ReadState()
			if err != nil {
				return cliutil.NewSilentError(err)
			}

			policy, err := filterpolicy.Load(cfg.FilterPolicy)
			if err != nil {
				return cliutil.NewSilentError(err)
			}

			ctx := context.Background()
			var skipped int
			convs, err := orch.ExtractAll(ctx, func(path string, skipErr error) {
				skipped++
				lg.Warn().Str("path", path).Err(skipErr).Msg("skipping file")
			})
			if err != nil {
				return cliutil.NewSilentError(err)
			}

			idx, err := st.ReadIndex()
			if err != nil {
				return cliutil.NewSilentError(err)
			}

			now := time.Now()
			written, skippedUnchanged, excluded := 0, 0, 0
			for _, conv := range convs {
				if incremental && !prevState.IsConversationChanged(conv) {
					skippedUnchanged++
					continue
				}

				meta := filterpolicy.MetaFromConversation(conv, now)
				tier, _ := policy.Evaluate(meta)
				if tier == filterpolicy.TierExclude {
					excluded++
					if err := st.Exclude(conv.ID); err != nil {
						lg.Warn().Str("id", conv.ID).Err(err).Msg("failed to exclude conversation")
					}
					continue
				}

				if err := st.WriteConversation(conv); err != nil {
					return cliutil.NewSilentError(err)
				}
				idx.UpsertIndexEntry(conv.ToIndexEntry())
				prevState.RecordConversation(conv)
				written++
			}

			if err := st.WriteIndex(idx); err != nil {
				return cliutil.NewSilentError(err)
			}
			prevState.LastRun = now
			if err := st.WriteState(prevState); err != nil {
				return cliutil.NewSilentError(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "extracted %d conversation(s): %d written, %d unchanged, %d excluded, %d file(s) skipped\n",
				len(convs), written, skippedUnchanged, excluded, skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&masterKey, "master-key", "", "Shared master secret for key derivation (required)")
	cmd.Flags().StringVar(&sqlcipher, "sqlcipher-bin", "", "Path to the sqlcipher binary (defaults to $PATH lookup)")
	cmd.Flags().StringVar(&storeRoot, "root", "", "Conversation store root (defaults to config store.root)")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Skip conversations unchanged since the last run")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Per-DB chat-table extraction concurrency")
	return cmd
}
