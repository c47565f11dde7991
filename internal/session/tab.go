// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session owns the multiplexed set of query tabs: their state
// machine, execution orchestration, and persistence across restarts.
// The display surface only ever sees projections of this state through
// the sink contract; it is never the source of truth.
package session

import (
	"querydeck/cli/internal/presto"
)

// Status is the lifecycle state of a tab.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// canTransition reports whether a tab may move from s to next.
// Every re-run re-enters loading first; success and error are only
// reachable from loading. Loading to loading covers a superseding re-run.
func (s Status) canTransition(next Status) bool {
	switch next {
	case StatusLoading:
		return true
	case StatusSuccess, StatusError:
		return s == StatusLoading
	default:
		return false
	}
}

// Tab is one independent query session. All fields are owned by the Manager
// and mutated only under its lock.
type Tab struct {
	ID        string
	Title     string
	Query     string
	Status    Status
	Columns   []presto.Column
	Rows      [][]any
	Truncated bool
	Warning   string

	// SourceURI identifies the originating document, so tabs can be
	// filtered by source. Empty for ad-hoc statements.
	SourceURI string

	// ErrMessage holds the last failure message when Status is error.
	ErrMessage string

	// generation guards against a superseded run's completion overwriting
	// newer state. Bumped on every execution start; not persisted.
	generation uint64
}

// clone returns a copy safe to hand outside the manager lock. Row and column
// slices are shared; callers treat them as read-only.
func (t *Tab) clone() *Tab {
	c := *t
	return &c
}
