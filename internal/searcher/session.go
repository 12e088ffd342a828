package searcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dshills/catalogsearch/internal/logger"
	"github.com/dshills/catalogsearch/internal/metrics"
	"github.com/dshills/catalogsearch/pkg/types"
)

// State is the session's position in its search cycle
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateSearching
)

func (s State) String() string {
	switch s {
	case StateDebouncing:
		return "debouncing"
	case StateSearching:
		return "searching"
	default:
		return "idle"
	}
}

// Outcome is how the most recent search cycle ended
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// EventKind discriminates session events
type EventKind int

const (
	EventSuccess EventKind = iota
	EventError
	EventCleared
)

// ErrorKind classifies a failed search for callers
type ErrorKind string

const (
	ErrorUnavailable ErrorKind = "repository_unavailable"
	ErrorFailed      ErrorKind = "search_failed"
)

// Event is published once per search generation that completes, fails or
// is cleared. Superseded generations publish nothing.
type Event struct {
	Kind       EventKind
	Generation uint64
	Query      string
	Response   *Response // EventSuccess only
	Err        error     // EventError only
	ErrKind    ErrorKind // EventError only
}

// Snapshot is the session's published state
type Snapshot struct {
	State        State
	LastOutcome  Outcome
	Query        string
	Results      []types.ScoredResult
	TotalMatches int
	InProgress   bool
	LastErr      error
}

// DefaultEventBuffer is the event channel capacity
const DefaultEventBuffer = 16

// Session runs debounced searches for one logical input, such as a search
// box. At most one search is in flight; a new query cancels the previous
// one and only the latest generation may publish.
type Session struct {
	searcher *Searcher
	delay    DelayFunc
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	wg     sync.WaitGroup

	mu       sync.Mutex
	gen      uint64
	timer    *time.Timer
	inflight context.CancelFunc
	snap     Snapshot
	closed   bool
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithDelay overrides the searcher's debounce function
func WithDelay(d DelayFunc) SessionOption {
	return func(s *Session) {
		if d != nil {
			s.delay = d
		}
	}
}

// WithEventBuffer sets the event channel capacity
func WithEventBuffer(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.events = make(chan Event, n)
		}
	}
}

// NewSession creates a debounced search session. Close must be called to
// release its timers and goroutines.
func (s *Searcher) NewSession(opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		searcher: s,
		delay:    s.cfg.Delay,
		logger:   s.logger,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan Event, DefaultEventBuffer),
	}
	for _, opt := range opts {
		opt(sess)
	}
	return sess
}

// Events returns the session's event stream. It is closed by Close.
// When the buffer is full the oldest event is dropped.
func (s *Session) Events() <-chan Event {
	return s.events
}

// SearchWithDebounce schedules a search after the length-dependent delay,
// cancelling any pending or running search. Empty or too-short queries
// clear the session immediately without touching the repository.
func (s *Session) SearchWithDebounce(query string, filters types.Filters) {
	query = strings.TrimSpace(query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.gen++
	gen := s.gen
	s.stopLocked()

	n := utf8.RuneCountInString(query)
	if n == 0 || n < s.searcher.cfg.MinQueryLength {
		s.clearLocked(gen)
		return
	}

	s.snap.State = StateDebouncing
	s.snap.Query = query
	s.wg.Add(1)
	s.timer = time.AfterFunc(s.delay(n), func() {
		defer s.wg.Done()
		s.execute(gen, Request{Query: query, Filters: filters})
	})
}

// Clear cancels pending and running searches and resets published state
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.gen++
	s.stopLocked()
	s.clearLocked(s.gen)
}

// Snapshot returns a copy of the published state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.Results = append([]types.ScoredResult(nil), s.snap.Results...)
	return snap
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.State
}

// Close cancels outstanding work, waits for it to stop and closes the
// event channel
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.stopLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	close(s.events)
}

// execute runs one generation's search and publishes it if still current
func (s *Session) execute(gen uint64, req Request) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	log := s.logger.With(zap.String("query", req.Query), zap.Uint64("generation", gen))
	ctx = logger.ContextWithLogger(ctx, log)
	s.inflight = cancel
	s.snap.State = StateSearching
	s.snap.InProgress = true
	s.mu.Unlock()

	start := time.Now()
	resp, err := s.searcher.run(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.searcher.metrics.ObserveSearch(ModeDebounced, metrics.OutcomeCancelled, time.Since(start))
		log.Debug("discarding superseded search")
		return
	}
	s.searcher.metrics.ObserveSearch(ModeDebounced, outcomeOf(resp, err), time.Since(start))

	s.inflight = nil
	s.snap.State = StateIdle
	s.snap.InProgress = false

	switch {
	case err == nil:
		s.snap.LastOutcome = OutcomeCompleted
		s.snap.Results = resp.Results
		s.snap.TotalMatches = resp.TotalMatches
		s.snap.LastErr = nil
		s.publishLocked(Event{Kind: EventSuccess, Generation: gen, Query: req.Query, Response: copyResponse(resp)})

	case errors.Is(err, context.Canceled):
		s.snap.LastOutcome = OutcomeCancelled

	default:
		kind := ErrorFailed
		if errors.Is(err, types.ErrRepositoryUnavailable) {
			kind = ErrorUnavailable
		}
		s.snap.LastOutcome = OutcomeFailed
		s.snap.LastErr = err
		s.publishLocked(Event{Kind: EventError, Generation: gen, Query: req.Query, Err: err, ErrKind: kind})
	}
}

// stopLocked stops the pending timer and cancels the in-flight search
func (s *Session) stopLocked() {
	if s.timer != nil {
		if s.timer.Stop() {
			// The callback will never run
			s.wg.Done()
		}
		s.timer = nil
	}
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
		s.snap.LastOutcome = OutcomeCancelled
	}
}

func (s *Session) clearLocked(gen uint64) {
	s.snap = Snapshot{State: StateIdle, LastOutcome: s.snap.LastOutcome}
	s.publishLocked(Event{Kind: EventCleared, Generation: gen})
}

// publishLocked sends without blocking, dropping the oldest event when full
func (s *Session) publishLocked(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}
