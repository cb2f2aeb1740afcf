package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCommand(logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "refstream",
		Short: "Vendor reference content ingestion engine",
		Long: `refstream discovers, fetches, persists and enriches customer
reference content published by configured vendors. Every phase is
idempotent: reruns skip completed work and retry failures.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// Best effort; config falls back to real env vars.
			_ = godotenv.Load()
		},
	}

	root.AddCommand(newRunCommand(logger))
	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newVendorsCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "refstream %s\n", version)
		},
	}
}
