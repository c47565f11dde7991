// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	qderr "querydeck/cli/internal/errors"
	"querydeck/cli/internal/session"
	"querydeck/cli/internal/sink"
	"querydeck/cli/internal/splitter"
)

var (
	runNew  bool
	runTab  string
	runFile string
	runAt   int
)

// runCmd executes SQL statements. The buffer is split into individual
// statements; by default each runs in the currently active tab, --new opens
// a fresh tab per statement, and --tab targets a specific tab id.
var runCmd = &cobra.Command{
	Use:   "run [sql]",
	Short: "Run SQL statements against the configured engine",
	Long: `The run command submits SQL to the coordinator and renders the results.

SQL is taken from the arguments, or from a file with --file; multi-statement
buffers are split on top-level semicolons (quotes and comments respected).
With --file and --at, only the statement containing the given byte offset is
run, which supports editor integrations executing the statement under the
cursor.

By default results replace the active tab's contents. Use --new to open a
fresh tab per statement, or --tab to address a tab by id.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		sourceURI := ""
		if runFile != "" {
			data, err := os.ReadFile(runFile)
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", runFile, err)
			}
			text = string(data)
			sourceURI = runFile
		}
		if strings.TrimSpace(text) == "" {
			return errors.New("no SQL given (pass a statement or --file)")
		}

		var statements []string
		if runAt >= 0 {
			if runFile == "" {
				return errors.New("--at requires --file")
			}
			stmt, ok := splitter.StatementAt(text, runAt)
			if !ok {
				return fmt.Errorf("no statement at offset %d", runAt)
			}
			statements = []string{stmt}
		} else {
			statements = splitter.Split(text)
		}
		if len(statements) == 0 {
			return errors.New("buffer contains no executable statements")
		}

		manager := newManager(sink.NewRenderer())

		var failed int
		for _, stmt := range statements {
			id := resolveTab(manager, stmt, sourceURI)
			if err := manager.Execute(cmd.Context(), id, stmt); err != nil {
				failed++
				// A broken configuration fails every statement the same
				// way; stop after the first.
				if qderr.KindOf(err) == qderr.ConfigInvalid {
					return err
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d statement(s) failed", failed, len(statements))
		}
		return nil
	},
}

// resolveTab picks the tab a statement runs in, honoring --tab and --new.
func resolveTab(manager *session.Manager, stmt, sourceURI string) string {
	switch {
	case runTab != "":
		return manager.CreateTab(runTab, stmt, "", sourceURI).ID
	case runNew:
		return manager.CreateTab("", stmt, "", sourceURI).ID
	default:
		return manager.GetOrCreateActiveTabID(stmt, "")
	}
}

// newManager builds the session manager backed by the XDG state store.
// Persistence problems degrade to an unsaved in-memory session.
func newManager(out sink.Sink) *session.Manager {
	store, err := session.NewStore()
	if err != nil {
		store = nil
	}
	return session.NewManager(store, out)
}

func init() {
	runCmd.Flags().BoolVar(&runNew, "new", false, "Open a new tab per statement")
	runCmd.Flags().StringVar(&runTab, "tab", "", "Run in the tab with the given id")
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Read SQL from a file")
	runCmd.Flags().IntVar(&runAt, "at", -1, "Run only the statement containing this byte offset (requires --file)")
	rootCmd.AddCommand(runCmd)
}
