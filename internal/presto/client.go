// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package presto

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"querydeck/cli/internal/config"
)

// Presto/Trino protocol headers. Presto spellings are canonical; Trino
// deployments get the X-Trino-* aliases via canonicalHeader.
const (
	userHeader    = "X-Presto-User"
	catalogHeader = "X-Presto-Catalog"
	schemaHeader  = "X-Presto-Schema"
	sourceHeader  = "X-Presto-Source"

	statementPath = "/v1/statement"

	contentEncodingGzip = "gzip"

	// Transient-network retries on page fetches. The initial submission is
	// never retried: a failed submission is fatal for the run and retrying
	// could execute the statement twice.
	maxFetchAttempts = 3
	maxRetryDelay    = 10 * time.Second
)

// Client issues statement-protocol requests for a single run. It is built
// fresh from the current configuration at the start of every execution, so
// settings edits and credential rotations always apply to the next run.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	user       string
	password   string
	catalog    string
	schema     string
	source     string
	trino      bool
}

// NewClient builds a client from connection settings. password may be empty
// for engines without authentication. source identifies the submitting
// document or tool in the engine's query log.
func NewClient(cfg config.Config, password, source string) (*Client, error) {
	base, err := url.Parse(cfg.ServerURL())
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	transport := http.DefaultTransport
	if cfg.SSL && !cfg.SSLVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second, Transport: transport},
		baseURL:    base,
		user:       cfg.User,
		password:   password,
		catalog:    cfg.Catalog,
		schema:     cfg.Schema,
		source:     source,
		trino:      cfg.Trino,
	}, nil
}

// Submit POSTs the raw SQL statement to the statement endpoint and returns
// the initial page. A page whose Error field is set is returned along with
// that error so callers can surface the engine's message.
func (c *Client) Submit(ctx context.Context, statement string) (*Page, error) {
	u, err := c.baseURL.Parse(statementPath)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(statement))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")
	c.applyHeaders(req)

	return c.do(req, 1)
}

// FetchPage GETs a continuation URI and returns the next page. Transient
// network failures and 503 responses are retried with exponential backoff
// before the fetch is declared failed.
func (c *Client) FetchPage(ctx context.Context, uri string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)

	return c.do(req, maxFetchAttempts)
}

// Cancel issues a DELETE on a continuation URI, asking the engine to stop the
// query. Best effort: the run that abandoned the query does not wait on it.
func (c *Client) Cancel(ctx context.Context, uri string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, uri, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// applyHeaders sets identity and context headers on every protocol request.
func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set(c.canonicalHeader(userHeader), c.user)
	if c.catalog != "" {
		req.Header.Set(c.canonicalHeader(catalogHeader), c.catalog)
	}
	if c.schema != "" {
		req.Header.Set(c.canonicalHeader(schemaHeader), c.schema)
	}
	if c.source != "" {
		req.Header.Set(c.canonicalHeader(sourceHeader), c.source)
	}
	if c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}
	req.Header.Set("Accept-Encoding", contentEncodingGzip)
}

// canonicalHeader converts a Presto-style header key into its Trino
// equivalent when the client targets a Trino deployment, so the rest of the
// code can use a single naming convention.
func (c *Client) canonicalHeader(name string) string {
	if c.trino {
		return strings.Replace(name, "X-Presto", "X-Trino", 1)
	}
	return name
}

// do executes the request with up to attempts tries and decodes the page.
func (c *Client) do(req *http.Request, attempts int) (*Page, error) {
	retryDelay := time.Second
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if !isRetryableNetError(err) {
				return nil, err
			}
			lastErr = err
			log.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying on connection error")
			sleep(req.Context(), &retryDelay)
			continue
		}

		if resp.StatusCode == http.StatusServiceUnavailable {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("engine unavailable: %s", strings.TrimSpace(string(body)))
			sleep(req.Context(), &retryDelay)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		page := new(Page)
		if err := decodeBody(resp, page); err != nil {
			return nil, err
		}
		if page.Error != nil {
			return page, page.Error
		}
		return page, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// sleep waits for the current retry delay, doubling it for the next round,
// and returns early when the context is done.
func sleep(ctx context.Context, delay *time.Duration) {
	select {
	case <-time.After(*delay):
	case <-ctx.Done():
	}
	*delay *= 2
	if *delay > maxRetryDelay {
		*delay = maxRetryDelay
	}
}

// isRetryableNetError returns true for transient network errors that warrant
// a retry (connection refused, DNS failures, connection reset, network
// timeouts). Context cancellation is never retried.
func isRetryableNetError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// decodeBody decodes a page from the response, handling gzip when the engine
// compressed the payload. The body is always closed.
func decodeBody(resp *http.Response, page *Page) (err error) {
	defer func() {
		closeErr := resp.Body.Close()
		if err == nil {
			err = closeErr
		}
	}()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == contentEncodingGzip {
		gz, gzErr := gzip.NewReader(resp.Body)
		if gzErr != nil {
			return fmt.Errorf("failed to create gzip reader: %w", gzErr)
		}
		defer func() {
			if cErr := gz.Close(); cErr != nil {
				log.Debug().Err(cErr).Msg("failed to close gzip reader")
			}
		}()
		reader = gz
	}

	if err = json.NewDecoder(reader).Decode(page); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
