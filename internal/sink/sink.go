// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sink defines the contract between the session manager and whatever
// display surface renders query results. The manager pushes loading/result/
// error/status notifications outward; the surface never owns tab state — it
// is a disposable projection that can be rebuilt from the manager at any time.
package sink

import (
	"querydeck/cli/internal/pagination"
)

// TabInfo is the display-facing view of a tab's identity.
type TabInfo struct {
	ID        string
	Title     string
	Query     string
	SourceURI string
}

// Sink receives tab lifecycle and result notifications from the session
// manager. Implementations must tolerate notifications for tabs they have
// not seen yet (the manager replays state on attach).
//
// Results may fail when the surface cannot render the delivered batch; the
// manager converts such failures into a tab-scoped error without affecting
// other tabs.
type Sink interface {
	TabOpened(tab TabInfo)
	TabClosed(id string)
	Activated(id string)

	Loading(id, query, title string)
	Results(id string, batch *pagination.ResultBatch) error
	Error(id, message, details string)
	Status(id, message string)

	// FilterBySource asks the surface to show only tabs originating from
	// the given source document. Purely a display concern.
	FilterBySource(sourceURI string)
}

// Discard is a Sink that drops every notification. Useful for headless
// operations (state inspection, exports) where nothing should render.
type Discard struct{}

func (Discard) TabOpened(TabInfo)                           {}
func (Discard) TabClosed(string)                            {}
func (Discard) Activated(string)                            {}
func (Discard) Loading(string, string, string)              {}
func (Discard) Results(string, *pagination.ResultBatch) error { return nil }
func (Discard) Error(string, string, string)                {}
func (Discard) Status(string, string)                       {}
func (Discard) FilterBySource(string)                       {}
