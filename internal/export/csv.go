// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package export streams a statement's complete result set to CSV, page by
// page, without the display row cap. It exists because a truncated tab only
// holds the first rows; a full export re-runs the query and drains every
// continuation page directly into the writer.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	qderr "querydeck/cli/internal/errors"
	"querydeck/cli/internal/presto"
)

// FullCSV executes src and writes every row to w as CSV. The header row is
// written from the first page that carries column metadata. Unlike capped
// display runs, any page failure here is fatal: a silently incomplete export
// file is worse than no file.
func FullCSV(ctx context.Context, src presto.PageSource, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)

	page, err := src.First(ctx)
	if err != nil {
		return 0, err
	}

	wroteHeader := false
	total := 0
	for {
		if !wroteHeader && page.Columns != nil {
			header := make([]string, len(page.Columns))
			for i, c := range page.Columns {
				header[i] = c.Name
			}
			if err := cw.Write(header); err != nil {
				return total, qderr.Wrap(qderr.RenderFailed, "cannot write CSV header", err)
			}
			wroteHeader = true
		}

		for _, row := range page.Data {
			record := make([]string, len(row))
			for i, v := range row {
				record[i] = fieldString(v)
			}
			if err := cw.Write(record); err != nil {
				return total, qderr.Wrap(qderr.RenderFailed, "cannot write CSV row", err)
			}
			total++
		}

		if !page.HasMore() {
			break
		}
		next, err := src.Fetch(ctx, page.NextURI)
		if err != nil {
			return total, qderr.Wrap(qderr.PageFetchFailed, "export aborted mid-fetch", err)
		}
		page = next
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return total, qderr.Wrap(qderr.RenderFailed, "cannot flush CSV output", err)
	}
	return total, nil
}

// fieldString formats one cell for CSV output. NULL becomes the empty field.
func fieldString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
