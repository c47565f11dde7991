// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"querydeck/cli/internal/config"
	"querydeck/cli/internal/export"
	"querydeck/cli/internal/keychain"
	"querydeck/cli/internal/presto"
	"querydeck/cli/internal/sink"
)

var exportOut string

// exportCmd re-runs a tab's query without the display row cap and streams
// the complete result set to a CSV file. Display tabs only keep the first
// rows of a truncated result; this is the way to get everything.
var exportCmd = &cobra.Command{
	Use:   "export <tab-id>",
	Short: "Export a tab's full result set to CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newManager(sink.Discard{})
		tab, ok := manager.Tab(args[0])
		if !ok {
			return fmt.Errorf("unknown tab %q", args[0])
		}
		if tab.Query == "" {
			return fmt.Errorf("tab %q has no query to export", tab.ID)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		password := ""
		if km, err := keychain.GetManager(); err == nil {
			if pw, err := km.LoadEnginePassword(); err == nil {
				password = pw
			}
		} else {
			log.Debug().Err(err).Msg("keychain unavailable, exporting without password")
		}

		source := tab.SourceURI
		if source == "" {
			source = "querydeck-export"
		}
		client, err := presto.NewClient(cfg, password, source)
		if err != nil {
			return err
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("cannot create %s: %w", exportOut, err)
		}
		defer f.Close()

		spinnerStop := startInlineSpinner(os.Stderr, fmt.Sprintf("exporting %s", tab.ID), []string{"-", "\\", "|", "/"}, spinnerInterval)
		n, err := export.FullCSV(cmd.Context(), presto.NewAdapter(client, tab.Query), f)
		spinnerStop()
		if err != nil {
			return fmt.Errorf("export failed after %d row(s): %w", n, err)
		}

		pterm.Success.Printf("exported %d row(s) to %s\n", n, exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "results.csv", "Destination CSV file")
	rootCmd.AddCommand(exportCmd)
}
