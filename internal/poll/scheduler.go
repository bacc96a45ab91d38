package poll

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/models"
)

// Scope names.
const (
	ScopeList   = "list"
	ScopeThread = "thread"
)

// Config contains configuration for the poll scheduler.
type Config struct {
	// ListInterval is how often the thread list is refreshed while the surface is visible.
	// Default: 5s
	ListInterval time.Duration

	// ThreadInterval is how often the active thread's messages are refreshed.
	// Default: 3s
	ThreadInterval time.Duration

	// MaxConcurrentPolls limits overlapping refreshes per scope.
	// Default: 8
	MaxConcurrentPolls int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListInterval:       5 * time.Second,
		ThreadInterval:     3 * time.Second,
		MaxConcurrentPolls: 8,
	}
}

// Refresher performs the refreshes driven by the scheduler.
type Refresher interface {
	RefreshList(ctx context.Context, seq uint64)
	RefreshThread(ctx context.Context, thread models.ThreadID, seq uint64)
}

// ListState is the state of the list scope.
type ListState string

const (
	ListStopped ListState = "stopped"
	ListPolling ListState = "polling"
)

// ThreadState is the state of the active-thread scope.
type ThreadState string

const (
	ThreadIdle    ThreadState = "idle"
	ThreadPolling ThreadState = "polling"
)

// Scheduler owns the list scope and the active-thread scope and moves them
// between states on surface and thread lifecycle events.
type Scheduler struct {
	list      *Scope
	thread    *Scope
	refresher Refresher
	logger    zerolog.Logger

	mu     sync.Mutex
	active models.ThreadID
}

// NewScheduler creates a Scheduler with both scopes stopped.
func NewScheduler(config Config, refresher Refresher) (*Scheduler, error) {
	defaults := DefaultConfig()
	if config.ListInterval <= 0 {
		config.ListInterval = defaults.ListInterval
	}
	if config.ThreadInterval <= 0 {
		config.ThreadInterval = defaults.ThreadInterval
	}
	if config.MaxConcurrentPolls <= 0 {
		config.MaxConcurrentPolls = defaults.MaxConcurrentPolls
	}

	list, err := NewScope(ScopeConfig{
		Name:          ScopeList,
		Interval:      config.ListInterval,
		Immediate:     true,
		MaxConcurrent: config.MaxConcurrentPolls,
	})
	if err != nil {
		return nil, err
	}
	thread, err := NewScope(ScopeConfig{
		Name:          ScopeThread,
		Interval:      config.ThreadInterval,
		Immediate:     true,
		MaxConcurrent: config.MaxConcurrentPolls,
	})
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		list:      list,
		thread:    thread,
		refresher: refresher,
		logger:    logging.Component("poll"),
	}, nil
}

// SetObserver installs a tick observer on both scopes. Call before any scope starts.
func (s *Scheduler) SetObserver(observer TickObserver) {
	s.list.SetObserver(observer)
	s.thread.SetObserver(observer)
}

// SurfaceVisible moves the list scope to polling with an immediate refresh.
func (s *Scheduler) SurfaceVisible(ctx context.Context) {
	s.list.Start(ctx, s.refresher.RefreshList)
	s.logger.Debug().Msg("list scope polling")
}

// SurfaceHidden moves the list scope to stopped.
func (s *Scheduler) SurfaceHidden() {
	s.list.Stop()
	s.logger.Debug().Msg("list scope stopped")
}

// ThreadActivated cancels the previous thread's timer and starts polling id
// with an immediate refresh.
func (s *Scheduler) ThreadActivated(ctx context.Context, id models.ThreadID) {
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()

	s.thread.Start(ctx, func(ctx context.Context, seq uint64) {
		s.refresher.RefreshThread(ctx, id, seq)
	})
	logger := logging.WithThread(s.logger, int64(id))
	logger.Debug().Msg("thread scope polling")
}

// ThreadClosed returns the thread scope to idle.
func (s *Scheduler) ThreadClosed() {
	s.thread.Stop()

	s.mu.Lock()
	s.active = 0
	s.mu.Unlock()
	s.logger.Debug().Msg("thread scope idle")
}

// Stop stops both scopes.
func (s *Scheduler) Stop() {
	s.SurfaceHidden()
	s.ThreadClosed()
}

// Wait blocks until every refresh issued by either scope has returned.
func (s *Scheduler) Wait() {
	s.list.Wait()
	s.thread.Wait()
}

// ListState returns the list scope state.
func (s *Scheduler) ListState() ListState {
	if s.list.Running() {
		return ListPolling
	}
	return ListStopped
}

// ThreadState returns the thread scope state and the polled thread.
func (s *Scheduler) ThreadState() (ThreadState, models.ThreadID) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if s.thread.Running() {
		return ThreadPolling, active
	}
	return ThreadIdle, 0
}

// ListScope returns the list scope.
func (s *Scheduler) ListScope() *Scope { return s.list }

// ThreadScope returns the active-thread scope.
func (s *Scheduler) ThreadScope() *Scope { return s.thread }
