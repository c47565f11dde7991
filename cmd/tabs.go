// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querydeck/cli/internal/sink"
)

var tabsSource string

// tabsCmd groups tab management: listing, activation and the close variants.
var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "Manage result tabs",
}

var tabsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tabs in the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newManager(sink.Discard{})
		if tabsSource != "" {
			manager.FilterBySource(tabsSource)
		}

		tabs := manager.Tabs(tabsSource)
		if len(tabs) == 0 {
			pterm.Println("no open tabs")
			return nil
		}

		active := manager.ActiveTabID()
		data := pterm.TableData{{"", "ID", "STATUS", "ROWS", "QUERY"}}
		for _, t := range tabs {
			marker := ""
			if t.ID == active {
				marker = "*"
			}
			rows := fmt.Sprintf("%d", len(t.Rows))
			if t.Truncated {
				rows += "+"
			}
			data = append(data, []string{marker, t.ID, string(t.Status), rows, shorten(t.Query, 60)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var tabsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Re-render the session's tabs and their last results",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newManager(sink.Discard{})
		// Attaching the renderer replays every restored tab and re-issues
		// the last known results.
		manager.AttachSink(sink.NewRenderer())
		return nil
	},
}

var tabsActivateCmd = &cobra.Command{
	Use:   "activate <tab-id>",
	Short: "Make the given tab active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newManager(sink.NewRenderer())
		manager.Activate(args[0])
		return nil
	},
}

var tabsCloseCmd = &cobra.Command{
	Use:   "close [tab-id]",
	Short: "Close a tab (default: the active tab)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newManager(sink.NewRenderer())
		id := manager.ActiveTabID()
		if len(args) > 0 {
			id = args[0]
		}
		if id == "" {
			return errors.New("no tab to close")
		}
		manager.CloseTab(id)
		return nil
	},
}

var tabsCloseOthersCmd = &cobra.Command{
	Use:   "close-others [tab-id]",
	Short: "Close every tab except the given one (default: the active tab)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newManager(sink.NewRenderer())
		keep := manager.ActiveTabID()
		if len(args) > 0 {
			keep = args[0]
		}
		if keep == "" {
			return errors.New("no tab to keep")
		}
		manager.CloseOtherTabs(keep)
		return nil
	},
}

var tabsCloseAllCmd = &cobra.Command{
	Use:   "close-all",
	Short: "Close all tabs",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newManager(sink.NewRenderer())
		manager.CloseAllTabs()
		return nil
	},
}

// shorten flattens and truncates a query for one-line listings.
func shorten(s string, max int) string {
	flat := ""
	for _, r := range s {
		if r == '\n' || r == '\t' {
			r = ' '
		}
		flat += string(r)
	}
	if len(flat) > max {
		flat = flat[:max-3] + "..."
	}
	return flat
}

func init() {
	tabsListCmd.Flags().StringVar(&tabsSource, "source", "", "Only show tabs originating from this source file")
	tabsCmd.AddCommand(tabsListCmd, tabsShowCmd, tabsActivateCmd, tabsCloseCmd, tabsCloseOthersCmd, tabsCloseAllCmd)
	rootCmd.AddCommand(tabsCmd)
}
