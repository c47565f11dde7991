// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pagination drives a page source until the configured row cap is
// reached or the engine runs out of pages, and classifies per-page failures.
// A failed initial submission aborts the run; a failed continuation fetch
// keeps the rows accumulated so far and degrades the batch to truncated.
package pagination

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	qderr "querydeck/cli/internal/errors"
	"querydeck/cli/internal/presto"
)

// ResultBatch is the capped, display-ready aggregation of one or more pages.
type ResultBatch struct {
	Columns []presto.Column `json:"columns"`
	Rows    [][]any         `json:"rows"`

	// Query is the statement text this batch answers.
	Query string `json:"query"`

	// Truncated is true iff more rows existed beyond the cap (or beyond a
	// failed continuation fetch) when accumulation stopped.
	Truncated bool `json:"truncated"`

	// TotalRows is the accumulator length at the moment fetching stopped.
	// It can exceed len(Rows) only when the final page overshot the cap.
	TotalRows int `json:"total_rows"`

	// QueryID, InfoURI and NextURI are carried through from the protocol
	// for display and full-export purposes.
	QueryID string `json:"query_id,omitempty"`
	InfoURI string `json:"info_uri,omitempty"`
	NextURI string `json:"next_uri,omitempty"`

	// UpdateType is set for statements without tabular output (DDL/DML).
	UpdateType string `json:"update_type,omitempty"`

	// Warning carries the non-fatal message of a recoverable page-fetch
	// failure. Empty on clean runs.
	Warning string `json:"warning,omitempty"`
}

// Run fetches pages from src until maxRows rows have accumulated or no
// continuation URI remains. Columns are sticky: once a page carries them,
// later pages without columns do not clear them.
//
// A failure fetching page N (N > 1) is recoverable: the loop stops, rows
// gathered so far are kept, the batch is marked truncated and a warning
// naming the failed page is attached. A failure obtaining the first page
// aborts with no partial batch.
func Run(ctx context.Context, src presto.PageSource, query string, maxRows int) (*ResultBatch, error) {
	if maxRows <= 0 {
		return nil, qderr.New(qderr.ConfigInvalid, fmt.Sprintf("row cap must be positive, got %d", maxRows))
	}

	page, err := src.First(ctx)
	if err != nil {
		return nil, err
	}

	batch := &ResultBatch{
		Query:      query,
		QueryID:    page.ID,
		InfoURI:    page.InfoURI,
		UpdateType: page.UpdateType,
	}

	var rows [][]any
	pageNum := 1
	for {
		if page.Columns != nil {
			batch.Columns = page.Columns
		}
		if page.UpdateType != "" {
			batch.UpdateType = page.UpdateType
		}
		rows = append(rows, page.Data...)

		if len(rows) >= maxRows {
			// Cap hit: no further fetches even if a continuation remains.
			batch.Truncated = page.HasMore() || len(rows) > maxRows
			batch.NextURI = page.NextURI
			break
		}
		if !page.HasMore() {
			break
		}

		pageNum++
		next, err := src.Fetch(ctx, page.NextURI)
		if err != nil {
			log.Warn().Err(err).Int("page", pageNum).Msg("failed to fetch results page")
			batch.Truncated = true
			batch.Warning = fmt.Sprintf("Failed to fetch all results: page %d", pageNum)
			break
		}
		page = next
	}

	batch.TotalRows = len(rows)
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	batch.Rows = rows
	return batch, nil
}
