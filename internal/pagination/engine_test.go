// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pagination

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qderr "querydeck/cli/internal/errors"
	"querydeck/cli/internal/presto"
)

// fakeSource replays a fixed sequence of pages. Fetch consumes the sequence
// in order; failAtFetch makes the Nth fetch call fail (1-based).
type fakeSource struct {
	pages       []*presto.Page
	firstErr    error
	failAtFetch int

	cursor  int
	fetches int
}

func (f *fakeSource) First(ctx context.Context) (*presto.Page, error) {
	if f.firstErr != nil {
		return nil, f.firstErr
	}
	f.cursor = 1
	return f.pages[0], nil
}

func (f *fakeSource) Fetch(ctx context.Context, uri string) (*presto.Page, error) {
	f.fetches++
	if f.failAtFetch != 0 && f.fetches == f.failAtFetch {
		return nil, errors.New("connection reset")
	}
	if f.cursor >= len(f.pages) {
		return nil, fmt.Errorf("no page behind %s", uri)
	}
	p := f.pages[f.cursor]
	f.cursor++
	return p, nil
}

func makeRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i}
	}
	return rows
}

var testColumns = []presto.Column{{Name: "id", Type: "integer"}}

func TestRunSinglePage(t *testing.T) {
	src := &fakeSource{pages: []*presto.Page{
		{ID: "q1", Columns: testColumns, Data: makeRows(3)},
	}}

	batch, err := Run(context.Background(), src, "select * from t", 500)
	require.NoError(t, err)
	assert.Equal(t, "q1", batch.QueryID)
	assert.Equal(t, testColumns, batch.Columns)
	assert.Len(t, batch.Rows, 3)
	assert.Equal(t, 3, batch.TotalRows)
	assert.False(t, batch.Truncated)
	assert.Empty(t, batch.Warning)
	assert.Zero(t, src.fetches)
}

func TestRunStopsAtCapWithoutExtraFetch(t *testing.T) {
	src := &fakeSource{pages: []*presto.Page{
		{ID: "q1", Columns: testColumns, Data: makeRows(50), NextURI: "next/1"},
		{Data: makeRows(25), NextURI: "next/2"},
		{Data: makeRows(100)},
	}}

	batch, err := Run(context.Background(), src, "select * from t", 75)
	require.NoError(t, err)
	assert.Len(t, batch.Rows, 75)
	assert.Equal(t, 75, batch.TotalRows)
	// A continuation remained when the cap was hit.
	assert.True(t, batch.Truncated)
	// The third page must never be requested.
	assert.Equal(t, 1, src.fetches)
	assert.Equal(t, "next/2", batch.NextURI)
}

func TestRunCapOvershoot(t *testing.T) {
	src := &fakeSource{pages: []*presto.Page{
		{Columns: testColumns, Data: makeRows(30)},
	}}

	batch, err := Run(context.Background(), src, "select * from t", 20)
	require.NoError(t, err)
	assert.Len(t, batch.Rows, 20)
	assert.Equal(t, 30, batch.TotalRows)
	assert.True(t, batch.Truncated)
}

func TestRunExactCapNoMorePages(t *testing.T) {
	src := &fakeSource{pages: []*presto.Page{
		{Columns: testColumns, Data: makeRows(20)},
	}}

	batch, err := Run(context.Background(), src, "select * from t", 20)
	require.NoError(t, err)
	assert.Len(t, batch.Rows, 20)
	// The engine had nothing more to give, so the batch is complete.
	assert.False(t, batch.Truncated)
}

func TestRunContinuationFailureIsRecoverable(t *testing.T) {
	src := &fakeSource{
		pages: []*presto.Page{
			{ID: "q1", Columns: testColumns, Data: makeRows(50), NextURI: "next/1"},
			{Data: makeRows(50)},
		},
		failAtFetch: 1,
	}

	batch, err := Run(context.Background(), src, "select * from t", 500)
	require.NoError(t, err, "a failed continuation fetch must not fail the run")
	assert.Len(t, batch.Rows, 50)
	assert.True(t, batch.Truncated)
	assert.Equal(t, "Failed to fetch all results: page 2", batch.Warning)
}

func TestRunThirdPageFailure(t *testing.T) {
	src := &fakeSource{
		pages: []*presto.Page{
			{Columns: testColumns, Data: makeRows(10), NextURI: "next/1"},
			{Data: makeRows(10), NextURI: "next/2"},
			{Data: makeRows(10)},
		},
		failAtFetch: 2,
	}

	batch, err := Run(context.Background(), src, "select * from t", 500)
	require.NoError(t, err)
	assert.Len(t, batch.Rows, 20)
	assert.Equal(t, "Failed to fetch all results: page 3", batch.Warning)
}

func TestRunFirstPageFailureIsFatal(t *testing.T) {
	src := &fakeSource{firstErr: qderr.New(qderr.SubmissionFailed, "engine rejected the statement")}

	batch, err := Run(context.Background(), src, "select * from t", 500)
	require.Error(t, err)
	assert.Nil(t, batch)
	assert.Equal(t, qderr.SubmissionFailed, qderr.KindOf(err))
}

func TestRunColumnsAreSticky(t *testing.T) {
	src := &fakeSource{pages: []*presto.Page{
		{NextURI: "next/1"},
		{Columns: testColumns, Data: makeRows(5), NextURI: "next/2"},
		{Data: makeRows(5)},
	}}

	batch, err := Run(context.Background(), src, "select * from t", 500)
	require.NoError(t, err)
	assert.Equal(t, testColumns, batch.Columns)
	assert.Len(t, batch.Rows, 10)
}

func TestRunUpdateType(t *testing.T) {
	src := &fakeSource{pages: []*presto.Page{
		{ID: "q1", UpdateType: "CREATE TABLE"},
	}}

	batch, err := Run(context.Background(), src, "create table t (x int)", 500)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE", batch.UpdateType)
	assert.Empty(t, batch.Rows)
}

func TestRunRejectsNonPositiveCap(t *testing.T) {
	for _, limit := range []int{0, -1} {
		_, err := Run(context.Background(), &fakeSource{}, "select 1", limit)
		require.Error(t, err)
		assert.Equal(t, qderr.ConfigInvalid, qderr.KindOf(err))
	}
}
