// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package splitter partitions a multi-statement SQL buffer into individual
// executable statements. The scan is purely lexical: it tracks quoted strings
// and comments so that semicolons inside them never terminate a statement.
// It is not a SQL parser and never validates the statements it produces.
package splitter

import "strings"

// mode is the lexical state of the scanner at the current character.
type mode int

const (
	modeDefault mode = iota
	modeLineComment
	modeBlockComment
	modeSingleQuote
	modeDoubleQuote
)

// Split scans text character-by-character and returns the contained SQL
// statements, trimmed and without their trailing semicolons. Statement
// boundaries are semicolons encountered outside quotes and comments.
// A doubled quote inside a quoted region ('' or "") is an escaped literal
// quote. The final unterminated fragment is included when non-empty; empty
// statements are dropped, so a bare ";" yields nothing.
func Split(text string) []string {
	var out []string
	for _, r := range scan(text) {
		stmt := strings.TrimSpace(text[r.start:r.end])
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// StatementAt returns the statement whose source range contains the given
// byte offset, or the trailing fragment when the offset falls past the last
// terminator. It reports ok=false when the buffer holds no statement there
// (e.g. the offset points into trailing whitespace after a final semicolon).
func StatementAt(text string, offset int) (string, bool) {
	for _, r := range scan(text) {
		// The terminator itself still belongs to the statement, hence <=.
		if offset >= r.start && offset <= r.end {
			stmt := strings.TrimSpace(text[r.start:r.end])
			if stmt == "" {
				return "", false
			}
			return stmt, true
		}
	}
	return "", false
}

// span is the half-open untrimmed range [start, end) of one statement,
// end excluding the terminating semicolon.
type span struct {
	start, end int
}

// scan performs the shared lexical pass and returns the raw statement spans,
// including empty ones so StatementAt can map offsets faithfully.
func scan(text string) []span {
	var spans []span
	start := 0
	m := modeDefault

	i := 0
	for i < len(text) {
		c := text[i]
		var next byte
		if i+1 < len(text) {
			next = text[i+1]
		}

		switch m {
		case modeLineComment:
			if c == '\n' {
				m = modeDefault
			}
		case modeBlockComment:
			if c == '*' && next == '/' {
				m = modeDefault
				i++ // consume both so "*/" cannot re-trigger
			}
		case modeSingleQuote:
			if c == '\'' {
				if next == '\'' {
					i++ // escaped literal quote, consume both
				} else {
					m = modeDefault
				}
			}
		case modeDoubleQuote:
			if c == '"' {
				if next == '"' {
					i++
				} else {
					m = modeDefault
				}
			}
		default:
			switch {
			case c == '-' && next == '-':
				m = modeLineComment
				i++
			case c == '/' && next == '*':
				m = modeBlockComment
				i++
			case c == '\'':
				m = modeSingleQuote
			case c == '"':
				m = modeDoubleQuote
			case c == ';':
				spans = append(spans, span{start: start, end: i})
				start = i + 1
			}
		}
		i++
	}

	// Trailing fragment with no terminator.
	spans = append(spans, span{start: start, end: len(text)})
	return spans
}
