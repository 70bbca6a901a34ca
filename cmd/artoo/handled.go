package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/artoo/internal/config"
	"github.com/michaelbrown/artoo/internal/storage"
	"github.com/michaelbrown/artoo/internal/storage/sqlite"
)

var (
	limitFlag     int
	olderThanFlag time.Duration
)

var handledCmd = &cobra.Command{
	Use:     "handled",
	Aliases: []string{"ledger"},
	Short:   "Inspect the ledger of answered messages",
}

var handledListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently answered messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return listHandled(cmd.Context(), store, limitFlag, cmd.OutOrStdout())
	},
}

var handledPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ledger entries older than a cutoff",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThanFlag))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(handledCmd)
	handledCmd.AddCommand(handledListCmd, handledPruneCmd)

	handledListCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max entries to show")
	handledPruneCmd.Flags().DurationVar(&olderThanFlag, "older-than", 720*time.Hour, "Prune entries handled before now minus this duration")
}

func openStore() (storage.Store, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Storage.DBPath == "" {
		return nil, fmt.Errorf("storage.db_path is not set")
	}
	return sqlite.Open(cfg.Storage.DBPath)
}

func listHandled(ctx context.Context, store storage.Store, limit int, w io.Writer) error {
	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No handled messages.")
		return nil
	}

	fmt.Fprintf(w, "%-12s %-18s %-12s %-11s %s\n", "CHANNEL", "TS", "INSTRUCTION", "STATE", "HANDLED")
	fmt.Fprintln(w, strings.Repeat("-", 78))
	for _, h := range entries {
		instr := h.Instruction
		if instr == "" {
			instr = "-"
		}
		fmt.Fprintf(w, "%-12s %-18s %-12s %-11s %s\n",
			h.Channel, h.TS, instr, h.State, h.HandledAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
