// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	qderr "querydeck/cli/internal/errors"
	"querydeck/cli/internal/pagination"
	"querydeck/cli/internal/presto"
	"querydeck/cli/internal/sink"
)

// recordingSink captures every notification for assertions.
type recordingSink struct {
	mu      sync.Mutex
	opened  []string
	closed  []string
	active  []string
	loading []string
	results map[string]*pagination.ResultBatch
	errors  map[string]string
	status  map[string]string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		results: make(map[string]*pagination.ResultBatch),
		errors:  make(map[string]string),
		status:  make(map[string]string),
	}
}

func (r *recordingSink) TabOpened(tab sink.TabInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, tab.ID)
}

func (r *recordingSink) TabClosed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, id)
}

func (r *recordingSink) Activated(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = append(r.active, id)
}

func (r *recordingSink) Loading(id, query, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = append(r.loading, id)
}

func (r *recordingSink) Results(id string, batch *pagination.ResultBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[id] = batch
	return nil
}

func (r *recordingSink) Error(id, message, details string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[id] = message
}

func (r *recordingSink) Status(id, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[id] = message
}

func (r *recordingSink) FilterBySource(string) {}

func (r *recordingSink) lastActive() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.active) == 0 {
		return ""
	}
	return r.active[len(r.active)-1]
}

func staticRunner(batch *pagination.ResultBatch, err error) Runner {
	return func(context.Context, string, string) (*pagination.ResultBatch, error) {
		return batch, err
	}
}

func TestCreateTabAllocatesMonotonicIDs(t *testing.T) {
	m := NewManager(nil, nil)

	first := m.CreateTab("", "select 1", "", "")
	second := m.CreateTab("", "select 2", "", "")

	if first.ID != "result-1" || second.ID != "result-2" {
		t.Fatalf("got ids %q, %q; want result-1, result-2", first.ID, second.ID)
	}
	if m.ActiveTabID() != second.ID {
		t.Errorf("active tab = %q, want %q", m.ActiveTabID(), second.ID)
	}
}

func TestCreateTabIsIdempotent(t *testing.T) {
	m := NewManager(nil, nil)

	m.CreateTab("mine", "select 1", "Mine", "")
	again := m.CreateTab("mine", "select 2", "Other", "")

	if again.Query != "select 1" || again.Title != "Mine" {
		t.Errorf("colliding id replaced the existing tab: %+v", again)
	}
	if len(m.Tabs("")) != 1 {
		t.Errorf("got %d tabs, want 1", len(m.Tabs("")))
	}
}

func TestGetOrCreateActiveTabIDReusesActive(t *testing.T) {
	m := NewManager(nil, nil)

	id := m.GetOrCreateActiveTabID("select 1", "")
	if id != "result-1" {
		t.Fatalf("first call created %q, want result-1", id)
	}
	if again := m.GetOrCreateActiveTabID("select 2", ""); again != id {
		t.Errorf("second call created %q, want reuse of %q", again, id)
	}
	tab, _ := m.Tab(id)
	if tab.Query != "select 2" {
		t.Errorf("reused tab query = %q, want the newer statement", tab.Query)
	}
}

func TestIDsNeverReusedAfterCloseAll(t *testing.T) {
	m := NewManager(nil, nil)
	m.CreateTab("", "select 1", "", "")
	m.CreateTab("", "select 2", "", "")

	m.CloseAllTabs()
	if got := m.ActiveTabID(); got != "" {
		t.Fatalf("active tab after close-all = %q, want empty", got)
	}

	next := m.CreateTab("", "select 3", "", "")
	if next.ID != "result-3" {
		t.Errorf("id after close-all = %q, want result-3", next.ID)
	}
}

func TestCloseActiveTabActivatesPredecessor(t *testing.T) {
	out := newRecordingSink()
	m := NewManager(nil, out)
	m.CreateTab("a", "", "", "")
	m.CreateTab("b", "", "", "")
	m.CreateTab("c", "", "", "")

	m.CloseTab("c")
	if m.ActiveTabID() != "b" {
		t.Errorf("active after closing last = %q, want b", m.ActiveTabID())
	}

	m.CloseTab("a")
	if m.ActiveTabID() != "b" {
		t.Errorf("closing an inactive tab moved activation to %q", m.ActiveTabID())
	}

	m.CloseTab("b")
	if m.ActiveTabID() != "" {
		t.Errorf("active after closing everything = %q, want empty", m.ActiveTabID())
	}
	if len(out.closed) != 3 {
		t.Errorf("sink saw %d closes, want 3", len(out.closed))
	}
}

func TestCloseOtherTabs(t *testing.T) {
	m := NewManager(nil, nil)
	m.CreateTab("a", "", "", "")
	m.CreateTab("b", "", "", "")
	m.CreateTab("c", "", "", "")

	m.CloseOtherTabs("b")

	tabs := m.Tabs("")
	if len(tabs) != 1 || tabs[0].ID != "b" {
		t.Fatalf("remaining tabs = %v, want only b", tabs)
	}
	if m.ActiveTabID() != "b" {
		t.Errorf("active = %q, want b", m.ActiveTabID())
	}
}

func TestExecuteSuccessFlow(t *testing.T) {
	out := newRecordingSink()
	m := NewManager(nil, out)
	m.Run = staticRunner(&pagination.ResultBatch{
		Columns: []presto.Column{{Name: "x", Type: "integer"}},
		Rows:    [][]any{{1}},
	}, nil)

	tab := m.CreateTab("", "select 1", "", "")
	if err := m.Execute(context.Background(), tab.ID, "select 1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := m.Tab(tab.ID)
	if got.Status != StatusSuccess {
		t.Errorf("status = %q, want success", got.Status)
	}
	if len(out.loading) != 1 || out.results[tab.ID] == nil {
		t.Errorf("sink did not see loading then results: %+v", out)
	}
}

func TestExecuteErrorIsTabScoped(t *testing.T) {
	out := newRecordingSink()
	m := NewManager(nil, out)

	healthy := m.CreateTab("healthy", "select 1", "", "")
	m.Run = staticRunner(&pagination.ResultBatch{Rows: [][]any{{1}}}, nil)
	if err := m.Execute(context.Background(), healthy.ID, "select 1"); err != nil {
		t.Fatalf("Execute healthy: %v", err)
	}

	broken := m.CreateTab("broken", "select nope", "", "")
	m.Run = staticRunner(nil, qderr.New(qderr.SubmissionFailed, "engine rejected the statement"))
	if err := m.Execute(context.Background(), broken.ID, "select nope"); err == nil {
		t.Fatal("Execute should report the failure to the caller")
	}

	b, _ := m.Tab(broken.ID)
	if b.Status != StatusError || b.ErrMessage == "" {
		t.Errorf("broken tab = %+v, want error status with message", b)
	}
	h, _ := m.Tab(healthy.ID)
	if h.Status != StatusSuccess {
		t.Errorf("healthy tab status = %q, the failure leaked across tabs", h.Status)
	}
}

func TestExecutePartialResultsKeepWarning(t *testing.T) {
	out := newRecordingSink()
	m := NewManager(nil, out)
	m.Run = staticRunner(&pagination.ResultBatch{
		Rows:      [][]any{{1}, {2}},
		Truncated: true,
		Warning:   "Failed to fetch all results: page 2",
	}, nil)

	tab := m.CreateTab("", "select * from t", "", "")
	if err := m.Execute(context.Background(), tab.ID, "select * from t"); err != nil {
		t.Fatalf("partial results must not fail the run: %v", err)
	}

	got, _ := m.Tab(tab.ID)
	if got.Status != StatusSuccess || !got.Truncated {
		t.Errorf("tab = %+v, want truncated success", got)
	}
	if out.status[tab.ID] != "Failed to fetch all results: page 2" {
		t.Errorf("status message = %q", out.status[tab.ID])
	}
}

func TestExecuteSupersededRunIsDiscarded(t *testing.T) {
	out := newRecordingSink()
	m := NewManager(nil, out)
	tab := m.CreateTab("", "select 1", "", "")

	release := make(chan struct{})
	started := make(chan struct{})
	m.Run = func(ctx context.Context, statement, source string) (*pagination.ResultBatch, error) {
		if statement == "slow" {
			close(started)
			<-release
			return &pagination.ResultBatch{Rows: [][]any{{"stale"}}}, nil
		}
		return &pagination.ResultBatch{Rows: [][]any{{"fresh"}}}, nil
	}

	done := make(chan error, 1)
	go func() { done <- m.Execute(context.Background(), tab.ID, "slow") }()
	<-started

	// A second run supersedes the first while it is still in flight.
	if err := m.Execute(context.Background(), tab.ID, "fast"); err != nil {
		t.Fatalf("Execute fast: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("superseded run returned error: %v", err)
	}

	got, _ := m.Tab(tab.ID)
	if len(got.Rows) != 1 || got.Rows[0][0] != "fresh" {
		t.Errorf("tab rows = %v, stale run overwrote the newer result", got.Rows)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusLoading, true},
		{StatusSuccess, StatusLoading, true},
		{StatusError, StatusLoading, true},
		{StatusLoading, StatusLoading, true},
		{StatusLoading, StatusSuccess, true},
		{StatusLoading, StatusError, true},
		{StatusIdle, StatusSuccess, false},
		{StatusSuccess, StatusError, false},
		{StatusError, StatusSuccess, false},
		{StatusLoading, StatusIdle, false},
	}
	for _, tt := range tests {
		if got := tt.from.canTransition(tt.to); got != tt.want {
			t.Errorf("canTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestResultsDroppedWhenNotLoading(t *testing.T) {
	out := newRecordingSink()
	m := NewManager(nil, out)
	tab := m.CreateTab("", "select 1", "", "")

	// The tab never entered loading; a stray result delivery must not
	// flip it to success.
	m.ShowResults(tab.ID, &pagination.ResultBatch{Rows: [][]any{{1}}})

	got, _ := m.Tab(tab.ID)
	if got.Status != StatusIdle {
		t.Errorf("status = %q, want idle", got.Status)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStoreAt(path)

	m := NewManager(store, nil)
	m.Run = staticRunner(&pagination.ResultBatch{
		Columns:   []presto.Column{{Name: "x", Type: "integer"}},
		Rows:      [][]any{{1}, {2}},
		Truncated: true,
	}, nil)
	a := m.CreateTab("", "select 1", "", "queries.sql")
	if err := m.Execute(context.Background(), a.ID, "select 1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	m.CreateTab("", "select 2", "", "")
	m.Activate(a.ID)

	restored := NewManager(NewStoreAt(path), nil)
	tabs := restored.Tabs("")
	if len(tabs) != 2 {
		t.Fatalf("restored %d tabs, want 2", len(tabs))
	}
	if tabs[0].ID != a.ID || tabs[0].Status != StatusSuccess || len(tabs[0].Rows) != 2 {
		t.Errorf("restored tab = %+v", tabs[0])
	}
	if !tabs[0].Truncated || tabs[0].SourceURI != "queries.sql" {
		t.Errorf("restored tab lost flags: %+v", tabs[0])
	}
	if restored.ActiveTabID() != a.ID {
		t.Errorf("restored active = %q, want %q", restored.ActiveTabID(), a.ID)
	}
	if next := restored.CreateTab("", "select 3", "", ""); next.ID != "result-3" {
		t.Errorf("restored counter allocated %q, want result-3", next.ID)
	}
}

func TestRestoreNormalizesLoadingToIdle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStoreAt(path)
	err := store.Save(State{
		Tabs: []TabEntry{{
			ID:       "result-1",
			Snapshot: TabSnapshot{Title: "result-1", Query: "select 1", Status: StatusLoading},
		}},
		ActiveTabID:   "result-1",
		ResultCounter: 1,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	m := NewManager(store, nil)
	tab, ok := m.Tab("result-1")
	if !ok {
		t.Fatal("persisted tab not restored")
	}
	if tab.Status != StatusIdle {
		t.Errorf("status = %q, want idle (the old run died with its process)", tab.Status)
	}
}

func TestAttachSinkReplaysSession(t *testing.T) {
	m := NewManager(nil, nil)
	m.Run = staticRunner(&pagination.ResultBatch{Rows: [][]any{{1}}}, nil)

	good := m.CreateTab("ok", "select 1", "", "")
	if err := m.Execute(context.Background(), good.ID, "select 1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	bad := m.CreateTab("bad", "select nope", "", "")
	m.ShowLoading(bad.ID, "select nope", "")
	m.ShowError(bad.ID, "engine rejected the statement", "")
	m.Activate(good.ID)

	out := newRecordingSink()
	m.AttachSink(out)

	if len(out.opened) != 2 {
		t.Fatalf("replay opened %d tabs, want 2", len(out.opened))
	}
	if out.results[good.ID] == nil {
		t.Error("replay did not re-issue results for the success tab")
	}
	if out.errors[bad.ID] != "engine rejected the statement" {
		t.Errorf("replay error = %q", out.errors[bad.ID])
	}
	if out.lastActive() != good.ID {
		t.Errorf("replay activated %q, want %q", out.lastActive(), good.ID)
	}
}

func TestTabsFilteredBySource(t *testing.T) {
	m := NewManager(nil, nil)
	m.CreateTab("a", "select 1", "", "one.sql")
	m.CreateTab("b", "select 2", "", "two.sql")
	m.CreateTab("c", "select 3", "", "one.sql")

	got := m.Tabs("one.sql")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("filtered tabs = %v, want a and c", got)
	}
}
