// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error
// kinds and human-friendly messages. Query failures are classified so the session
// manager can decide whether a failure aborts a run, degrades it to a partial
// result, or is merely logged.
//
// The package supports wrapping underlying errors while maintaining error kind
// information, making it easier to handle different types of failures appropriately.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ConfigInvalid indicates a required connection setting is missing or invalid.
	// Surfaced immediately; the run never starts.
	ConfigInvalid Kind = "config_invalid"
	// SubmissionFailed indicates the initial statement submission was rejected
	// or unreachable. Fatal for the run.
	SubmissionFailed Kind = "submission_failed"
	// PageFetchFailed indicates a continuation-page fetch failed after the
	// first page succeeded. Recoverable: accumulated rows are still shown.
	PageFetchFailed Kind = "page_fetch_failed"
	// PersistenceFailed indicates session state could not be read or written.
	// Logged, never fatal.
	PersistenceFailed Kind = "persistence_failed"
	// RenderFailed indicates the display surface could not render a delivered
	// result batch. Scoped to one tab.
	RenderFailed Kind = "render_failed"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of err when it is (or wraps) an *E, or "" otherwise.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err should abort the run it occurred in.
// Page fetch failures are survivable: the rows fetched so far are kept.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case PageFetchFailed, PersistenceFailed:
		return false
	}
	return true
}
