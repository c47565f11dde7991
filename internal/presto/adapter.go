// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package presto

import (
	"context"

	"github.com/rs/zerolog/log"

	qderr "querydeck/cli/internal/errors"
)

// PageSource is the lazy sequence-of-pages interface the pagination engine
// drives. First submits the statement and yields the initial page; Fetch
// follows a continuation URI from a previous page.
type PageSource interface {
	First(ctx context.Context) (*Page, error)
	Fetch(ctx context.Context, uri string) (*Page, error)
}

// Adapter executes one statement against the engine, probing execution
// strategies in a fixed precedence order:
//
//  1. direct: a single submission whose response already holds the complete
//     result (columns and data arrays, nothing left to poll). Speculative —
//     a failure or ill-formed response falls through.
//  2. iterator: the standard submit-then-poll mode. Authoritative — a
//     failure here is fatal for the run.
//
// When the direct probe submitted successfully but the response was not
// complete, iterator mode continues from that same submission instead of
// executing the statement a second time.
type Adapter struct {
	client    *Client
	statement string

	// pending holds the page from a successful direct submission whose
	// probe failed, so iterator mode can resume it.
	pending *Page
}

// NewAdapter wraps a client and statement as a PageSource.
func NewAdapter(client *Client, statement string) *Adapter {
	return &Adapter{client: client, statement: statement}
}

// strategy is one execution mode attempt. Speculative strategies may fail or
// produce ill-formed output without aborting the run.
type strategy struct {
	name        string
	speculative bool
	run         func(ctx context.Context) (*Page, error)
	wellFormed  func(*Page) bool
}

func (a *Adapter) strategies() []strategy {
	return []strategy{
		{
			name:        "direct",
			speculative: true,
			run: func(ctx context.Context) (*Page, error) {
				page, err := a.client.Submit(ctx, a.statement)
				if err == nil {
					a.pending = page
				}
				return page, err
			},
			wellFormed: func(p *Page) bool { return p.Complete() },
		},
		{
			name: "iterator",
			run: func(ctx context.Context) (*Page, error) {
				if a.pending != nil {
					page := a.pending
					a.pending = nil
					return page, nil
				}
				return a.client.Submit(ctx, a.statement)
			},
			// Any error-free page is acceptable here; continuation pages
			// are the engine's business.
			wellFormed: func(p *Page) bool { return p != nil },
		},
	}
}

// First submits the statement, trying each strategy in order. The returned
// page may carry a continuation URI to be followed with Fetch. A failure of
// the final strategy is a SubmissionFailed error carrying the engine message.
func (a *Adapter) First(ctx context.Context) (*Page, error) {
	for _, s := range a.strategies() {
		page, err := s.run(ctx)
		if err != nil {
			if s.speculative {
				log.Debug().Err(err).Str("mode", s.name).Msg("execution mode failed, falling back")
				continue
			}
			return nil, qderr.Wrap(qderr.SubmissionFailed, "statement submission failed", err)
		}
		if !s.wellFormed(page) {
			if s.speculative {
				log.Debug().Str("mode", s.name).Msg("execution mode output not complete, falling back")
				continue
			}
			return nil, qderr.New(qderr.SubmissionFailed, "engine returned an empty response")
		}
		log.Debug().Str("mode", s.name).Str("query_id", page.ID).Msg("statement accepted")
		return page, nil
	}
	return nil, qderr.New(qderr.SubmissionFailed, "no execution mode succeeded")
}

// Fetch retrieves the page behind a continuation URI.
func (a *Adapter) Fetch(ctx context.Context, uri string) (*Page, error) {
	return a.client.FetchPage(ctx, uri)
}

// Abandon asks the engine to cancel the query behind the given continuation
// URI. Used when a run is superseded before it drained all pages.
func (a *Adapter) Abandon(uri string) {
	if uri == "" {
		return
	}
	if err := a.client.Cancel(context.Background(), uri); err != nil {
		log.Debug().Err(err).Msg("failed to cancel abandoned query")
	}
}
