// Command artoo-mcp exposes the Artoo sandbox as an MCP tool over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelbrown/artoo/internal/config"
	"github.com/michaelbrown/artoo/internal/sandbox"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:          "artoo-mcp",
	Short:        "Serve the Artoo sandbox as an MCP tool over stdio",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "Config file (default ./artoo.yaml or $HOME/.artoo/artoo.yaml)")
}

func run(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol, so logs go to stderr only.
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	runner, err := sandbox.NewRunner(cfg.Sandbox, cfg.Interpreters, logger)
	if err != nil {
		return fmt.Errorf("creating sandbox: %w", err)
	}

	s := server.NewMCPServer("artoo", "0.1.0")
	s.AddTool(runCodeTool(runner.Interpreters()), newRunCode(runner, runner.Interpreters()).handle)

	logger.Info("serving MCP on stdio", zap.String("mode", string(runner.Mode())))
	return server.ServeStdio(s)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
