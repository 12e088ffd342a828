package searcher

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/catalogsearch/internal/storage"
	"github.com/dshills/catalogsearch/pkg/types"
)

const eventTimeout = 2 * time.Second

func waitEvent(t *testing.T, events <-chan Event, match func(Event) bool) Event {
	t.Helper()
	timeout := time.NewTimer(eventTimeout)
	defer timeout.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event channel closed while waiting")
			}
			if match(ev) {
				return ev
			}
		case <-timeout.C:
			t.Fatal("timed out waiting for event")
		}
	}
}

func drain(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func isSuccess(query string) func(Event) bool {
	return func(ev Event) bool { return ev.Kind == EventSuccess && ev.Query == query }
}

func TestSession_StaleCompletionDoesNotOverwrite(t *testing.T) {
	repo := milkCatalog()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	repo.beforeFind = func(_ types.Field, tokens []string) {
		if len(tokens) == 1 && tokens[0] == "milk" {
			once.Do(func() { close(started) })
			// Ignores cancellation like an already dispatched query
			<-release
		}
	}

	s := newTestSearcher(t, repo, testConfig())
	sess := s.NewSession()

	sess.SearchWithDebounce("milk", nameOnly)
	select {
	case <-started:
	case <-time.After(eventTimeout):
		t.Fatal("milk search never started")
	}

	time.Sleep(50 * time.Millisecond)
	sess.SearchWithDebounce("mi", nameOnly)

	ev := waitEvent(t, sess.Events(), isSuccess("mi"))
	if got := resultIDs(ev.Response.Results); len(got) != 3 {
		t.Errorf("expected 3 results for mi, got %v", got)
	}

	close(release)
	sess.Close()

	for _, late := range drain(sess.Events()) {
		if late.Query == "milk" {
			t.Errorf("stale milk search published %v", late.Kind)
		}
	}

	snap := sess.Snapshot()
	if snap.Query != "mi" {
		t.Errorf("expected published query mi, got %q", snap.Query)
	}
	found := false
	for _, r := range snap.Results {
		if r.Candidate.ID == "5" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected mi results (including Mint Tea), got %v", resultIDs(snap.Results))
	}
	if snap.LastOutcome != OutcomeCompleted {
		t.Errorf("expected last outcome completed, got %s", snap.LastOutcome)
	}
}

func TestSession_ShortQueryClears(t *testing.T) {
	repo := milkCatalog()
	s := newTestSearcher(t, repo, testConfig())
	sess := s.NewSession()
	defer sess.Close()

	sess.SearchWithDebounce("m", allFilters)
	ev := waitEvent(t, sess.Events(), func(Event) bool { return true })
	if ev.Kind != EventCleared {
		t.Fatalf("expected cleared event, got %v", ev.Kind)
	}
	snap := sess.Snapshot()
	if snap.State != StateIdle || snap.LastErr != nil || len(snap.Results) != 0 {
		t.Errorf("expected idle empty state, got %+v", snap)
	}
	if ready, find := repo.calls(); ready != 0 || find != 0 {
		t.Errorf("expected no repository calls, got ready=%d find=%d", ready, find)
	}
}

func TestSession_DebounceCoalesces(t *testing.T) {
	repo := milkCatalog()
	s := newTestSearcher(t, repo, testConfig())
	sess := s.NewSession(WithDelay(func(int) time.Duration { return 100 * time.Millisecond }))

	for _, q := range []string{"mi", "mil", "milk"} {
		sess.SearchWithDebounce(q, nameOnly)
		if sess.State() != StateDebouncing {
			t.Errorf("expected debouncing after %q, got %s", q, sess.State())
		}
	}

	ev := waitEvent(t, sess.Events(), func(ev Event) bool { return ev.Kind == EventSuccess })
	if ev.Query != "milk" {
		t.Errorf("expected only the last query to run, got %q", ev.Query)
	}
	sess.Close()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, q := range repo.queries {
		if q != "milk" {
			t.Errorf("unexpected repository query %q", q)
		}
	}
}

func TestSession_ClearCancelsPending(t *testing.T) {
	repo := milkCatalog()
	s := newTestSearcher(t, repo, testConfig())
	sess := s.NewSession(WithDelay(func(int) time.Duration { return time.Hour }))

	sess.SearchWithDebounce("milk", nameOnly)
	sess.Clear()

	ev := waitEvent(t, sess.Events(), func(Event) bool { return true })
	if ev.Kind != EventCleared {
		t.Fatalf("expected cleared event, got %v", ev.Kind)
	}
	if sess.State() != StateIdle {
		t.Errorf("expected idle after clear, got %s", sess.State())
	}
	sess.Close()

	if _, find := repo.calls(); find != 0 {
		t.Errorf("expected no retrieval after clear, got %d", find)
	}
}

func TestSession_ClearCancelsInFlight(t *testing.T) {
	repo := milkCatalog()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	repo.beforeFind = func(types.Field, []string) {
		once.Do(func() { close(started) })
		<-release
	}

	s := newTestSearcher(t, repo, testConfig())
	sess := s.NewSession()

	sess.SearchWithDebounce("milk", nameOnly)
	<-started
	if !sess.Snapshot().InProgress {
		t.Error("expected search in progress")
	}
	sess.Clear()
	close(release)
	sess.Close()

	events := drain(sess.Events())
	if len(events) != 1 || events[0].Kind != EventCleared {
		t.Errorf("expected only a cleared event, got %+v", events)
	}
	snap := sess.Snapshot()
	if snap.InProgress || snap.LastOutcome != OutcomeCancelled {
		t.Errorf("expected cancelled idle state, got %+v", snap)
	}
}

func TestSession_ErrorEvent(t *testing.T) {
	repo := milkCatalog()
	repo.readyErr = storage.ErrUnavailable
	s := newTestSearcher(t, repo, testConfig())
	sess := s.NewSession()
	defer sess.Close()

	sess.SearchWithDebounce("milk", nameOnly)
	ev := waitEvent(t, sess.Events(), func(ev Event) bool { return ev.Kind == EventError })
	if ev.ErrKind != ErrorUnavailable {
		t.Errorf("expected unavailable error kind, got %s", ev.ErrKind)
	}
	snap := sess.Snapshot()
	if snap.LastOutcome != OutcomeFailed || snap.LastErr == nil {
		t.Errorf("expected failed state with error, got %+v", snap)
	}
}

func TestSession_DropsOldestWhenFull(t *testing.T) {
	s := newTestSearcher(t, milkCatalog(), testConfig())
	sess := s.NewSession(WithEventBuffer(2))

	for i := 0; i < 5; i++ {
		sess.Clear()
	}
	sess.Close()

	events := drain(sess.Events())
	if len(events) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(events))
	}
	if events[0].Generation != 4 || events[1].Generation != 5 {
		t.Errorf("expected newest generations 4 and 5, got %d and %d", events[0].Generation, events[1].Generation)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := newTestSearcher(t, milkCatalog(), testConfig())
	sess := s.NewSession()
	sess.Close()
	sess.Close()

	// Calls after close are ignored
	sess.SearchWithDebounce("milk", nameOnly)
	sess.Clear()
}

func TestTieredDelay(t *testing.T) {
	delay := TieredDelay([]Tier{
		{MaxLength: 4, Delay: 200 * time.Millisecond},
		{MaxLength: 2, Delay: 300 * time.Millisecond},
	}, 100*time.Millisecond)

	tests := []struct {
		length int
		want   time.Duration
	}{
		{1, 300 * time.Millisecond},
		{2, 300 * time.Millisecond},
		{3, 200 * time.Millisecond},
		{4, 200 * time.Millisecond},
		{12, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := delay(tt.length); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.length, got, tt.want)
		}
	}

	def := DefaultDelay()
	if def(2) <= def(10) {
		t.Error("short queries should wait longer than long ones")
	}
}

func TestSession_LogsCarryQueryAndGeneration(t *testing.T) {
	repo := milkCatalog()
	repo.items = append(repo.items, storage.ItemRow{ItemID: "9", Name: "", SKU: "MILK-NONAME"})
	repo.matchAll = true

	core, logs := observer.New(zap.DebugLevel)
	s, err := New(repo, testConfig(), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("failed to create searcher: %v", err)
	}
	sess := s.NewSession()

	sess.SearchWithDebounce("milk", nameOnly)
	waitEvent(t, sess.Events(), isSuccess("milk"))
	sess.Close()

	entries := logs.FilterMessage("skipping malformed row").All()
	if len(entries) == 0 {
		t.Fatal("expected the malformed row to be logged")
	}
	fields := entries[0].ContextMap()
	if fields["query"] != "milk" {
		t.Errorf("expected query field, got %v", fields)
	}
	if fields["generation"] != uint64(1) {
		t.Errorf("expected generation 1, got %v", fields["generation"])
	}
}
