// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"querydeck/cli/internal/config"
	qderr "querydeck/cli/internal/errors"
	"querydeck/cli/internal/keychain"
	"querydeck/cli/internal/logging"
	"querydeck/cli/internal/pagination"
	"querydeck/cli/internal/presto"
	"querydeck/cli/internal/sink"
)

// Runner executes one statement and returns the capped result batch.
// The default runner reads configuration and credentials fresh per call;
// tests substitute their own.
type Runner func(ctx context.Context, statement, source string) (*pagination.ResultBatch, error)

// Manager owns the tab collection, its persistence, and the execution of
// statements into tabs. All mutation happens under one lock; executions for
// different tabs may be in flight concurrently.
type Manager struct {
	// Run executes statements. Replaceable for tests.
	Run Runner

	mu      sync.Mutex
	tabs    map[string]*Tab
	order   []string // insertion order of tab ids
	active  string
	counter uint64

	store *Store
	out   sink.Sink
}

// NewManager builds a manager, restoring any persisted session. A nil sink
// discards notifications until AttachSink is called. Persistence failures
// during restore are logged and yield an empty session, never an error.
func NewManager(store *Store, out sink.Sink) *Manager {
	if out == nil {
		out = sink.Discard{}
	}
	m := &Manager{
		Run:   DefaultRunner,
		tabs:  make(map[string]*Tab),
		store: store,
		out:   out,
	}

	if store != nil {
		st, err := store.Load()
		if err != nil {
			log.Warn().Err(err).Msg("starting with an empty session")
		}
		m.restore(st)
	}
	return m
}

// restore rebuilds the in-memory tab collection from a persisted state.
// Tabs persisted mid-load come back idle: their in-flight run died with the
// previous process.
func (m *Manager) restore(st State) {
	for _, e := range st.Tabs {
		status := e.Snapshot.Status
		if status == StatusLoading || status == "" {
			status = StatusIdle
		}
		t := &Tab{
			ID:         e.ID,
			Title:      e.Snapshot.Title,
			Query:      e.Snapshot.Query,
			Status:     status,
			Columns:    e.Snapshot.Columns,
			Rows:       e.Snapshot.Rows,
			Truncated:  e.Snapshot.Truncated,
			Warning:    e.Snapshot.Warning,
			SourceURI:  e.Snapshot.SourceURI,
			ErrMessage: e.Snapshot.ErrMessage,
		}
		m.tabs[t.ID] = t
		m.order = append(m.order, t.ID)
	}
	if _, ok := m.tabs[st.ActiveTabID]; ok {
		m.active = st.ActiveTabID
	}
	m.counter = st.ResultCounter
}

// AttachSink replaces the display surface and replays the current session
// into it: every tab is re-opened in insertion order, tabs that had results
// get them re-issued, and the active tab is re-announced.
func (m *Manager) AttachSink(out sink.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.out = out
	for _, id := range m.order {
		t := m.tabs[id]
		out.TabOpened(sink.TabInfo{ID: t.ID, Title: t.Title, Query: t.Query, SourceURI: t.SourceURI})
		switch t.Status {
		case StatusSuccess:
			if err := out.Results(id, batchOf(t)); err != nil {
				out.Error(id, logging.PresentError("render failed", err), "")
			}
		case StatusError:
			out.Error(id, t.ErrMessage, "")
		}
	}
	if m.active != "" {
		out.Activated(m.active)
	}
}

// CreateTab inserts a tab and activates it. An empty id allocates the next
// monotonic id; a colliding id returns the existing tab unchanged, making
// creation idempotent.
func (m *Manager) CreateTab(id, query, title, sourceURI string) *Tab {
	m.mu.Lock()

	if id != "" {
		if existing, ok := m.tabs[id]; ok {
			t := existing.clone()
			m.mu.Unlock()
			return t
		}
	} else {
		m.counter++
		id = fmt.Sprintf("result-%d", m.counter)
	}
	if title == "" {
		title = id
	}

	t := &Tab{ID: id, Title: title, Query: query, Status: StatusIdle, SourceURI: sourceURI}
	m.tabs[id] = t
	m.order = append(m.order, id)
	m.active = id
	out := m.out
	m.persistLocked()
	snapshot := t.clone()
	m.mu.Unlock()

	out.TabOpened(sink.TabInfo{ID: id, Title: title, Query: query, SourceURI: sourceURI})
	out.Activated(id)
	return snapshot
}

// GetOrCreateActiveTabID reuses the active tab when one exists, updating its
// displayed query and title, and creates a new tab otherwise. This backs the
// "run in current tab" flow without callers tracking tab identity.
func (m *Manager) GetOrCreateActiveTabID(query, title string) string {
	m.mu.Lock()
	if t, ok := m.tabs[m.active]; ok {
		t.Query = query
		if title != "" {
			t.Title = title
		}
		id := t.ID
		m.persistLocked()
		m.mu.Unlock()
		return id
	}
	m.mu.Unlock()

	return m.CreateTab("", query, title, "").ID
}

// Activate marks the given tab active, deactivating any other.
// Unknown ids are a logged no-op.
func (m *Manager) Activate(id string) {
	m.mu.Lock()
	if _, ok := m.tabs[id]; !ok {
		m.mu.Unlock()
		log.Warn().Str("tab", id).Msg("cannot activate unknown tab")
		return
	}
	m.active = id
	out := m.out
	m.persistLocked()
	m.mu.Unlock()

	out.Activated(id)
}

// CloseTab removes one tab. When the active tab is closed, its immediate
// predecessor in insertion order becomes active, or nothing when the set
// is empty.
func (m *Manager) CloseTab(id string) {
	m.mu.Lock()
	if _, ok := m.tabs[id]; !ok {
		m.mu.Unlock()
		log.Warn().Str("tab", id).Msg("cannot close unknown tab")
		return
	}

	idx := m.indexOf(id)
	delete(m.tabs, id)
	m.order = append(m.order[:idx], m.order[idx+1:]...)

	newActive := ""
	if m.active == id {
		if len(m.order) > 0 {
			pick := idx - 1
			if pick < 0 {
				pick = 0
			}
			newActive = m.order[pick]
		}
		m.active = newActive
	}
	out := m.out
	m.persistLocked()
	m.mu.Unlock()

	out.TabClosed(id)
	if newActive != "" {
		out.Activated(newActive)
	}
}

// CloseOtherTabs removes every tab except keepID, which becomes active.
func (m *Manager) CloseOtherTabs(keepID string) {
	m.mu.Lock()
	if _, ok := m.tabs[keepID]; !ok {
		m.mu.Unlock()
		log.Warn().Str("tab", keepID).Msg("cannot keep unknown tab")
		return
	}

	var closed []string
	for _, id := range m.order {
		if id != keepID {
			closed = append(closed, id)
			delete(m.tabs, id)
		}
	}
	m.order = []string{keepID}
	m.active = keepID
	out := m.out
	m.persistLocked()
	m.mu.Unlock()

	for _, id := range closed {
		out.TabClosed(id)
	}
	out.Activated(keepID)
}

// CloseAllTabs empties the tab set. The id counter is not reset, so future
// tabs never reuse a closed tab's id.
func (m *Manager) CloseAllTabs() {
	m.mu.Lock()
	closed := m.order
	m.tabs = make(map[string]*Tab)
	m.order = nil
	m.active = ""
	out := m.out
	m.persistLocked()
	m.mu.Unlock()

	for _, id := range closed {
		out.TabClosed(id)
	}
}

// ShowLoading transitions a tab into the loading state and notifies the
// display. Query and title, when non-empty, update the tab's display fields.
func (m *Manager) ShowLoading(id, query, title string) {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		log.Warn().Str("tab", id).Msg("cannot show loading for unknown tab")
		return
	}
	t.Status = StatusLoading
	if query != "" {
		t.Query = query
	}
	if title != "" {
		t.Title = title
	}
	out := m.out
	m.persistLocked()
	m.mu.Unlock()

	out.Loading(id, query, title)
}

// ShowResults stores a result batch on the tab, transitions it to success
// and forwards the batch to the display. A display-side render failure is
// converted into a tab-scoped error notification; the stored state stays
// success, so other tabs and persistence are unaffected.
func (m *Manager) ShowResults(id string, batch *pagination.ResultBatch) {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		log.Warn().Str("tab", id).Msg("cannot show results for unknown tab")
		return
	}
	if !t.Status.canTransition(StatusSuccess) {
		m.mu.Unlock()
		log.Warn().Str("tab", id).Str("status", string(t.Status)).Msg("dropping results for tab not in loading state")
		return
	}
	t.Status = StatusSuccess
	t.Columns = batch.Columns
	t.Rows = batch.Rows
	t.Truncated = batch.Truncated
	t.Warning = batch.Warning
	t.ErrMessage = ""
	out := m.out
	m.persistLocked()
	m.mu.Unlock()

	if err := out.Results(id, batch); err != nil {
		out.Error(id, logging.PresentError("render failed", err), "")
	}
}

// ShowError transitions a tab to the error state with the given message and
// forwards it to the display. Only the originating tab is affected.
func (m *Manager) ShowError(id, message, details string) {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		log.Warn().Str("tab", id).Msg("cannot show error for unknown tab")
		return
	}
	if !t.Status.canTransition(StatusError) {
		// An error can surface before the tab ever entered loading
		// (e.g. invalid configuration); force the transition through
		// loading to keep the state machine honest.
		t.Status = StatusLoading
	}
	t.Status = StatusError
	t.ErrMessage = message
	out := m.out
	m.persistLocked()
	m.mu.Unlock()

	out.Error(id, message, details)
}

// ShowStatus forwards a non-fatal informational message for a tab, such as a
// partial-results warning. The tab's lifecycle state is unchanged.
func (m *Manager) ShowStatus(id, message string) {
	m.mu.Lock()
	_, ok := m.tabs[id]
	out := m.out
	m.mu.Unlock()
	if !ok {
		log.Warn().Str("tab", id).Msg("cannot show status for unknown tab")
		return
	}
	out.Status(id, message)
}

// FilterBySource asks the display to show only tabs from the given source.
func (m *Manager) FilterBySource(sourceURI string) {
	m.mu.Lock()
	out := m.out
	m.mu.Unlock()
	out.FilterBySource(sourceURI)
}

// Execute runs a statement into an existing tab: loading first, then either
// results or a tab-scoped error. Nothing propagates beyond the tab — the
// returned error only informs the caller's exit code.
//
// A tab can be re-run while a previous run is still polling; each run is
// stamped with the tab's generation at start, and completions whose
// generation no longer matches are discarded so stale data never overwrites
// a newer run.
func (m *Manager) Execute(ctx context.Context, tabID, statement string) error {
	m.mu.Lock()
	t, ok := m.tabs[tabID]
	if !ok {
		m.mu.Unlock()
		return qderr.New(qderr.ConfigInvalid, fmt.Sprintf("unknown tab %q", tabID))
	}
	t.generation++
	gen := t.generation
	source := t.SourceURI
	title := t.Title
	run := m.Run
	m.mu.Unlock()

	if source == "" {
		source = "querydeck-cli"
	}

	m.ShowLoading(tabID, statement, title)

	batch, err := run(ctx, statement, source)

	if m.isStale(tabID, gen) {
		log.Debug().Str("tab", tabID).Uint64("generation", gen).Msg("discarding superseded run")
		return nil
	}

	if err != nil {
		msg := logging.PresentError("query failed", err)
		m.ShowError(tabID, msg, "")
		return err
	}

	if batch.Warning != "" {
		m.ShowStatus(tabID, batch.Warning)
	}
	m.ShowResults(tabID, batch)
	return nil
}

// isStale reports whether a run's generation has been superseded or its tab
// closed since the run started.
func (m *Manager) isStale(tabID string, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[tabID]
	return !ok || t.generation != gen
}

// Tab returns a copy of the named tab.
func (m *Manager) Tab(id string) (*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// Tabs returns copies of all tabs in insertion order. A non-empty sourceURI
// restricts the listing to tabs originating from that source.
func (m *Manager) Tabs(sourceURI string) []*Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Tab
	for _, id := range m.order {
		t := m.tabs[id]
		if sourceURI != "" && t.SourceURI != sourceURI {
			continue
		}
		out = append(out, t.clone())
	}
	return out
}

// ActiveTabID returns the id of the active tab, or "".
func (m *Manager) ActiveTabID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// indexOf returns the position of id in insertion order. Callers hold m.mu
// and have checked membership.
func (m *Manager) indexOf(id string) int {
	for i, v := range m.order {
		if v == id {
			return i
		}
	}
	return -1
}

// persistLocked writes the current session state. Failures are logged and
// swallowed: losing persistence never breaks a running session.
// Callers must hold m.mu.
func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}
	st := State{
		ActiveTabID:   m.active,
		ResultCounter: m.counter,
	}
	for _, id := range m.order {
		t := m.tabs[id]
		st.Tabs = append(st.Tabs, TabEntry{
			ID: id,
			Snapshot: TabSnapshot{
				Title:      t.Title,
				Query:      t.Query,
				Status:     t.Status,
				Columns:    t.Columns,
				Rows:       t.Rows,
				Truncated:  t.Truncated,
				Warning:    t.Warning,
				SourceURI:  t.SourceURI,
				ErrMessage: t.ErrMessage,
			},
		})
	}
	if err := m.store.Save(st); err != nil {
		log.Warn().Err(err).Msg("failed to persist session state")
	}
}

// batchOf rebuilds a display batch from a tab's stored results.
func batchOf(t *Tab) *pagination.ResultBatch {
	return &pagination.ResultBatch{
		Columns:   t.Columns,
		Rows:      t.Rows,
		Query:     t.Query,
		Truncated: t.Truncated,
		TotalRows: len(t.Rows),
		Warning:   t.Warning,
	}
}

// DefaultRunner executes a statement against the engine configured at call
// time. Settings and the keychain password are read fresh on every run, so
// configuration edits apply to the next execution without restart.
func DefaultRunner(ctx context.Context, statement, source string) (*pagination.ResultBatch, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, qderr.Wrap(qderr.ConfigInvalid, "cannot load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, qderr.Wrap(qderr.ConfigInvalid, "connection is not configured", err)
	}

	password := ""
	if km, err := keychain.GetManager(); err != nil {
		log.Debug().Err(err).Msg("keychain unavailable, proceeding without password")
	} else if password, err = km.LoadEnginePassword(); err != nil {
		log.Debug().Err(err).Msg("no engine password in keychain")
	}

	client, err := presto.NewClient(cfg, password, source)
	if err != nil {
		return nil, qderr.Wrap(qderr.ConfigInvalid, "invalid connection settings", err)
	}

	return pagination.Run(ctx, presto.NewAdapter(client, statement), statement, cfg.MaxRows)
}
