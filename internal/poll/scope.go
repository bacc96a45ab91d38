// Package poll drives the periodic refresh cycles of the sync engine.
package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/logging"
)

// Scope errors.
var (
	ErrScopeName     = errors.New("scope name is required")
	ErrScopeInterval = errors.New("scope interval must be positive")
)

// RefreshFunc performs one refresh. seq is issued by the scope's Sequencer.
type RefreshFunc func(ctx context.Context, seq uint64)

// ScopeConfig contains configuration for a poll scope.
type ScopeConfig struct {
	// Name identifies the scope in logs and metrics.
	Name string

	// Interval is the fixed tick period.
	Interval time.Duration

	// Immediate fires one refresh before the first tick.
	Immediate bool

	// MaxConcurrent limits overlapping refreshes. Ticks beyond the limit are skipped.
	// Default: 8
	MaxConcurrent int
}

// TickObserver is notified of scope activity.
type TickObserver interface {
	PollTick(scope string)
	PollSkipped(scope string)
}

// Scope is one independently scheduled refresh cycle. It owns its own
// cancellation handle; starting always cancels the previous loop first.
type Scope struct {
	config   ScopeConfig
	logger   zerolog.Logger
	seq      *Sequencer
	observer TickObserver

	lifecycle sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	sem   chan struct{}
	loops atomic.Int32

	inflightMu   sync.Mutex
	inflightCond *sync.Cond
	inflight     int
}

// NewScope creates a stopped Scope.
func NewScope(config ScopeConfig) (*Scope, error) {
	if config.Name == "" {
		return nil, ErrScopeName
	}
	if config.Interval <= 0 {
		return nil, ErrScopeInterval
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrentPolls
	}
	s := &Scope{
		config: config,
		logger: logging.Component("poll").With().Str("scope", config.Name).Logger(),
		seq:    NewSequencer(),
		sem:    make(chan struct{}, config.MaxConcurrent),
	}
	s.inflightCond = sync.NewCond(&s.inflightMu)
	return s, nil
}

// Name returns the scope name.
func (s *Scope) Name() string { return s.config.Name }

// Sequencer returns the scope's snapshot sequencer.
func (s *Scope) Sequencer() *Sequencer { return s.seq }

// SetObserver installs a tick observer. Call before Start.
func (s *Scope) SetObserver(observer TickObserver) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.observer = observer
}

// Start cancels any running loop, waits for it to exit, then starts a new
// loop that calls fn every interval. Refreshes run with ctx rather than the
// loop's context, so requests already issued complete after Stop.
func (s *Scope) Start(ctx context.Context, fn RefreshFunc) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.running = true
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.logger.Debug().
		Dur("interval", s.config.Interval).
		Bool("immediate", s.config.Immediate).
		Msg("scope starting")

	s.loops.Add(1)
	go s.run(loopCtx, ctx, fn, done)
}

// Stop cancels the loop and waits for it to exit. In-flight refreshes are not
// cancelled. Stopping a stopped scope is a no-op.
func (s *Scope) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked()
}

func (s *Scope) stopLocked() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Debug().Msg("scope stopped")
}

// Running reports whether the loop is active.
func (s *Scope) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ActiveLoops returns the number of loop goroutines currently alive.
func (s *Scope) ActiveLoops() int {
	return int(s.loops.Load())
}

// Wait blocks until every issued refresh has returned. It may be called
// while the loop is still issuing refreshes.
func (s *Scope) Wait() {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	for s.inflight > 0 {
		s.inflightCond.Wait()
	}
}

func (s *Scope) trackRefresh(delta int) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	s.inflight += delta
	if s.inflight == 0 {
		s.inflightCond.Broadcast()
	}
}

func (s *Scope) run(loopCtx, fetchCtx context.Context, fn RefreshFunc, done chan struct{}) {
	defer func() {
		s.loops.Add(-1)
		close(done)
	}()

	if s.config.Immediate {
		s.fire(fetchCtx, fn)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			s.fire(fetchCtx, fn)
		}
	}
}

// fire issues one refresh without waiting for it.
func (s *Scope) fire(ctx context.Context, fn RefreshFunc) {
	select {
	case s.sem <- struct{}{}:
	default:
		s.logger.Debug().Msg("max concurrent refreshes reached, tick skipped")
		if s.observer != nil {
			s.observer.PollSkipped(s.config.Name)
		}
		return
	}

	if s.observer != nil {
		s.observer.PollTick(s.config.Name)
	}
	seq := s.seq.Next()

	s.trackRefresh(1)
	go func() {
		defer s.trackRefresh(-1)
		defer func() { <-s.sem }()
		fn(ctx, seq)
	}()
}
