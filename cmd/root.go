// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for querydeck.
// It implements commands for running SQL statements against a Presto/Trino
// coordinator, managing result tabs, exporting full result sets, and
// configuring the connection, using the Cobra CLI framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"querydeck/cli/internal/logging"
)

var (
	showVersion bool
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "querydeck",
	Short:         "Tabbed SQL workbench for Presto/Trino engines",
	Long: `querydeck runs SQL statements against a Presto/Trino-compatible coordinator
over its HTTP statement protocol and keeps each result in its own tab.
Tabs survive restarts: the session (queries, results, active tab) is
persisted locally and restored on the next invocation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("querydeck %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
