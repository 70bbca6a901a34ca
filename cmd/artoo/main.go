package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelbrown/artoo/internal/logging"
)

var (
	watchFlag   bool
	verboseFlag bool
	configFlag  string
	consoleFlag bool
	listenFlag  string
	timeoutFlag time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "artoo <idfile>",
	Short: "Artoo - Slack bot that runs code in a sandbox",
	Long: `Artoo watches Slack for messages that mention it and runs the code
they carry, either inline between triple backticks or as an attached file,
inside a sandbox with a hard timeout. The output is posted back to the channel.

The identity file holds the bot's user ID and token:

  SLACKBOT_ID = U0123ABCD
  SLACKBOT_TOKEN = xoxb-...

Examples:
  artoo ~/.artoo/artoo.id
  artoo ~/.artoo/artoo.id --watch
  artoo ~/.artoo/artoo.id --listen 127.0.0.1:8080 --timeout 60s
  artoo --console

An identity file in the current directory whose name matches a subcommand
must be given with a path, e.g. ./handled.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if consoleFlag {
			return cobra.MaximumNArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verboseFlag)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: run,
}

func init() {
	rootCmd.Flags().BoolVar(&watchFlag, "watch", false, "Print every message as it arrives and never reply")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log debug activity")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./artoo.yaml or $HOME/.artoo/artoo.yaml)")
	rootCmd.Flags().BoolVar(&consoleFlag, "console", false, "Read messages from the terminal instead of Slack")
	rootCmd.Flags().StringVar(&listenFlag, "listen", "", "Serve status endpoints on this address (overrides server.listen)")
	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Execution timeout (overrides sandbox.timeout)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
