// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package presto implements the client side of the Presto/Trino HTTP statement
// protocol: a statement is submitted with a POST, and the engine answers with a
// chain of pages linked by continuation URIs that are polled with plain GETs.
// The package owns the wire types and the per-run HTTP client; accumulation
// and row capping live in internal/pagination.
package presto

import "fmt"

// Column describes one column of a result set.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Page is one protocol response unit. Columns are only guaranteed present on
// the first page that carries data; a page with neither data nor a
// continuation URI signals completion without tabular output (DDL/DML).
type Page struct {
	// ID is the engine-assigned query identifier.
	ID string `json:"id,omitempty"`

	// InfoURI points at the engine's query detail page.
	InfoURI string `json:"infoUri,omitempty"`

	// NextURI is the continuation URI for the next page. Empty means no
	// more pages.
	NextURI string `json:"nextUri,omitempty"`

	// Columns carries result set metadata when present.
	Columns []Column `json:"columns,omitempty"`

	// Data holds the row tuples of this page.
	Data [][]any `json:"data,omitempty"`

	// UpdateType names the kind of update performed (e.g. "CREATE TABLE")
	// for statements without tabular output.
	UpdateType string `json:"updateType,omitempty"`

	// UpdateCount is the number of rows affected by an update statement.
	UpdateCount *int64 `json:"updateCount,omitempty"`

	// Stats reflects the engine-side execution state of the query.
	Stats PageStats `json:"stats"`

	// Error is set when the query failed engine-side.
	Error *QueryError `json:"error,omitempty"`
}

// PageStats is the subset of engine statistics the client cares about.
type PageStats struct {
	State string `json:"state,omitempty"`
}

// HasMore reports whether a continuation URI remains to be fetched.
func (p *Page) HasMore() bool {
	return p != nil && p.NextURI != ""
}

// Complete reports whether the page is a complete single-response result:
// both columns and data present as arrays with nothing left to poll.
// This is the well-formedness probe for direct-mode execution.
func (p *Page) Complete() bool {
	return p != nil && p.Error == nil && p.Columns != nil && p.Data != nil && p.NextURI == ""
}

// QueryError is the engine-side failure description embedded in a page.
type QueryError struct {
	Message   string `json:"message"`
	ErrorCode int    `json:"errorCode"`
	ErrorName string `json:"errorName"`
	ErrorType string `json:"errorType"`
	Retriable bool   `json:"retriable"`

	// ErrorLocation carries line/column information for syntax errors.
	ErrorLocation *ErrorLocation `json:"errorLocation,omitempty"`
}

// Error implements the error interface. The format is "ErrorName: Message",
// with the statement location appended when the engine reported one.
func (q *QueryError) Error() string {
	if q == nil {
		return "nil QueryError"
	}
	if q.ErrorLocation != nil {
		return fmt.Sprintf("%s: %s (%s)", q.ErrorName, q.Message, q.ErrorLocation)
	}
	return fmt.Sprintf("%s: %s", q.ErrorName, q.Message)
}

// ErrorLocation is the position in the SQL text where an error occurred.
type ErrorLocation struct {
	LineNumber   int `json:"lineNumber"`
	ColumnNumber int `json:"columnNumber"`
}

// String returns "line L:C".
func (e *ErrorLocation) String() string {
	return fmt.Sprintf("line %d:%d", e.LineNumber, e.ColumnNumber)
}
