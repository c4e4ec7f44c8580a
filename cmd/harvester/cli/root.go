// Package cli implements the harvester command dispatcher: one subcommand
// per platform extractor, plus search/list/view/stats over the
// conversation store and the session-history scan/replay pipeline.
//
// Grounded in the teacher's cmd/rekal/cli/root.go (command-group layout,
// SilenceErrors/SilenceUsage).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rs/zerolog"

	"github.com/harvester-dev/harvester/internal/cliutil"
	"github.com/harvester-dev/harvester/internal/config"
	"github.com/harvester-dev/harvester/internal/logging"
)

const gettingStarted = `

Getting Started:
  harvester extract wechat <account-root>   Extract WeChat conversations
  harvester history scan <project-dir>      Classify and index session history
  harvester history watch <project-dir>     Watch a project and rescan on new sessions
  harvester search <keywords...>            Substring-search stored conversations
  harvester list                            List stored conversations
  harvester stats                           Summarize a platform's store
`

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd returns the root command for the harvester CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "harvester",
		Short:         "harvester — extracts and classifies messenger and session-history data",
		Long:          "harvester extracts encrypted messenger conversations and classifies agent session history against a project's entities." + gettingStarted,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to harvester.yaml (defaults to built-in config)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug-level logging")

	cmd.SetVersionTemplate("harvester {{.Version}}\n")
	cmd.Version = cliutil.Version

	coreGroup := &cobra.Group{ID: "core", Title: "Core Commands:"}
	workflowGroup := &cobra.Group{ID: "workflow", Title: "Workflow Commands:"}
	advancedGroup := &cobra.Group{ID: "advanced", Title: "Advanced Commands:"}
	cmd.AddGroup(coreGroup, workflowGroup, advancedGroup)

	extractCmd := newExtractCmd(opts)
	extractCmd.GroupID = "core"
	historyCmd := newHistoryCmd(opts)
	historyCmd.GroupID = "core"
	versionCmd := newVersionCmd()
	versionCmd.GroupID = "core"

	searchCmd := newSearchCmd(opts)
	searchCmd.GroupID = "workflow"
	listCmd := newListCmd(opts)
	listCmd.GroupID = "workflow"
	viewCmd := newViewCmd(opts)
	viewCmd.GroupID = "workflow"
	statsCmd := newStatsCmd(opts)
	statsCmd.GroupID = "workflow"

	cleanCmd := newCleanCmd(opts)
	cleanCmd.GroupID = "advanced"

	cmd.AddCommand(extractCmd, historyCmd, versionCmd)
	cmd.AddCommand(searchCmd, listCmd, viewCmd, statsCmd)
	cmd.AddCommand(cleanCmd)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "harvester", cliutil.Version)
			return nil
		},
	}
}

// loadConfig resolves opts.configPath via internal/config.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.configPath)
}

func (o *rootOptions) logger() zerolog.Logger {
	lg := logging.Default()
	if o.verbose {
		lg = lg.Level(zerolog.DebugLevel)
	} else {
		lg = lg.Level(zerolog.InfoLevel)
	}
	return lg
}

// Run executes the root command and exits with the appropriate code.
func Run() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if !cliutil.IsSilentError(err) {
			fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		}
		os.Exit(1)
	}
}
