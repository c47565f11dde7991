// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sink

import (
	"fmt"
	"strings"
	"sync"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	qderr "querydeck/cli/internal/errors"
	"querydeck/cli/internal/pagination"
	"querydeck/cli/internal/terminal"
)

// Renderer renders tab notifications to the terminal with pterm.
// It keeps a spinner area alive between Loading and the terminal
// Results/Error notification for the same tab.
type Renderer struct {
	mu      sync.Mutex
	spinner *pterm.SpinnerPrinter
	filter  string
}

// NewRenderer creates a terminal renderer.
func NewRenderer() *Renderer { return &Renderer{} }

// TabOpened announces a new tab.
func (r *Renderer) TabOpened(tab TabInfo) {
	pterm.Printf("%s %s\n", pterm.Gray("[tab]"), pterm.Bold.Sprint(tab.ID))
}

// TabClosed announces a closed tab.
func (r *Renderer) TabClosed(id string) {
	pterm.Printf("%s closed %s\n", pterm.Gray("[tab]"), id)
}

// Activated announces the now-active tab.
func (r *Renderer) Activated(id string) {
	pterm.Printf("%s active %s\n", pterm.Gray("[tab]"), id)
}

// Loading starts a spinner for the running statement.
func (r *Renderer) Loading(id, query, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopSpinnerLocked()
	cursor.Hide()
	sp, err := pterm.DefaultSpinner.Start(fmt.Sprintf("%s running: %s", id, firstLine(query)))
	if err != nil {
		cursor.Show()
		return
	}
	r.spinner = sp
}

// Results renders a result batch as a table, or a summary line for
// statements without tabular output.
func (r *Renderer) Results(id string, batch *pagination.ResultBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopSpinnerLocked()

	if len(batch.Columns) == 0 {
		label := batch.UpdateType
		if label == "" {
			label = "query finished"
		}
		pterm.Success.Printf("%s: %s\n", id, label)
		return nil
	}

	data := make(pterm.TableData, 0, len(batch.Rows)+1)
	header := make([]string, len(batch.Columns))
	for i, c := range batch.Columns {
		header[i] = c.Name
	}
	data = append(data, header)
	for _, row := range batch.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cellString(v)
		}
		data = append(data, cells)
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return qderr.Wrap(qderr.RenderFailed, "could not render result table", err)
	}

	summary := fmt.Sprintf("%s: %d row(s)", id, len(batch.Rows))
	if batch.Truncated {
		summary += fmt.Sprintf(" (truncated at %d, more available)", len(batch.Rows))
	}
	pterm.Println(pterm.Gray(summary))
	if batch.Warning != "" {
		pterm.Warning.Println(batch.Warning)
	}
	return nil
}

// Error renders a tab-scoped failure.
func (r *Renderer) Error(id, message, details string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopSpinnerLocked()

	pterm.Error.Printf("%s: %s\n", id, message)
	if details != "" {
		pterm.Println(pterm.Gray(details))
	}
}

// Status renders a non-fatal informational message for a tab.
func (r *Renderer) Status(id, message string) {
	pterm.Info.Printf("%s: %s\n", id, message)
}

// FilterBySource records the active source filter. The CLI surface applies it
// on the next tab listing.
func (r *Renderer) FilterBySource(sourceURI string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = sourceURI
}

// SourceFilter returns the currently requested source filter, or "".
func (r *Renderer) SourceFilter() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter
}

// stopSpinnerLocked halts a live spinner and restores the cursor.
// Callers must hold r.mu.
func (r *Renderer) stopSpinnerLocked() {
	if r.spinner != nil {
		_ = r.spinner.Stop()
		r.spinner = nil
		cursor.Show()
	}
}

// cellString formats one result cell for terminal display.
func cellString(v any) string {
	if v == nil {
		return "NULL"
	}
	s := fmt.Sprint(v)
	// Keep very wide cells from destroying the table layout.
	if max := terminal.Width(120); len(s) > max {
		s = s[:max-3] + "..."
	}
	return s
}

// firstLine truncates a statement to its first line for spinner labels.
func firstLine(query string) string {
	if i := strings.IndexByte(query, '\n'); i >= 0 {
		query = query[:i] + " ..."
	}
	if len(query) > 80 {
		query = query[:77] + "..."
	}
	return query
}
