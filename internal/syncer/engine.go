// Package syncer ties the thread list, the open thread, the mutation tracker
// and the poll scheduler into one client-side sync engine.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/events"
	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/messages"
	"github.com/tOgg1/parley/internal/metrics"
	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/mutation"
	"github.com/tOgg1/parley/internal/poll"
	"github.com/tOgg1/parley/internal/staging"
	"github.com/tOgg1/parley/internal/threads"
)

// Backend is the remote conversation service.
type Backend interface {
	ListThreads(ctx context.Context) ([]models.Thread, error)
	ListMessages(ctx context.Context, thread models.ThreadID) ([]models.Message, error)
	SendMessage(ctx context.Context, thread models.ThreadID, text string, files []staging.File) (models.Message, error)
	DeleteMessage(ctx context.Context, thread models.ThreadID, id models.MessageID) error
	MarkRead(ctx context.Context, thread models.ThreadID) error
	Block(ctx context.Context, user models.UserID) error
	Unblock(ctx context.Context, user models.UserID) error
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	StartThread(ctx context.Context, user models.UserID) (models.ThreadID, error)
}

// Cache persists the last applied snapshots so a restart can render before
// the first poll completes.
type Cache interface {
	LoadThreads(ctx context.Context) ([]models.Thread, error)
	SaveThreads(ctx context.Context, threads []models.Thread) error
	LoadMessages(ctx context.Context, thread models.ThreadID) ([]models.Message, error)
	SaveMessages(ctx context.Context, thread models.ThreadID, msgs []models.Message) error
}

// Config contains configuration for the engine.
type Config struct {
	// ListInterval is the thread list poll period.
	// Default: 5s
	ListInterval time.Duration

	// ThreadInterval is the open thread poll period.
	// Default: 3s
	ThreadInterval time.Duration

	// RequestTimeout bounds every backend call.
	// Default: 10s
	RequestTimeout time.Duration

	// MaxConcurrentPolls limits overlapping refreshes per scope.
	// Default: 8
	MaxConcurrentPolls int

	// SelfUserID is the signed-in user. Messages from anyone else that the
	// server still reports unread trigger a read acknowledgement.
	SelfUserID models.UserID

	// SequenceSnapshots discards a snapshot whose request was issued before
	// the last applied one of the same scope.
	// Default: true
	SequenceSnapshots bool

	// PruneAfter is how long confirmed mutations stay queryable.
	// Default: 1m
	PruneAfter time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListInterval:       5 * time.Second,
		ThreadInterval:     3 * time.Second,
		RequestTimeout:     10 * time.Second,
		MaxConcurrentPolls: 8,
		SequenceSnapshots:  true,
		PruneAfter:         time.Minute,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the change notification sink.
func WithPublisher(publisher events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithCache sets the snapshot cache.
func WithCache(cache Cache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStaging replaces the default attachment staging area.
func WithStaging(area *staging.Area) Option {
	return func(e *Engine) {
		if area != nil {
			e.staging = area
		}
	}
}

// WithClock overrides the time source used for provisional messages.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine is the client-side sync engine.
type Engine struct {
	backend Backend
	config  Config
	logger  zerolog.Logger
	now     func() time.Time

	threads   *threads.Store
	messages  *messages.Store
	tracker   *mutation.Tracker
	staging   *staging.Area
	scheduler *poll.Scheduler

	publisher events.Publisher
	cache     Cache
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	bgMu   sync.Mutex
	bg     sync.WaitGroup
	closed bool

	ackMu    sync.Mutex
	ackDue   map[models.ThreadID]bool
	acking   map[models.ThreadID]bool
	ackAgain map[models.ThreadID]bool
}

// New creates an Engine. Nothing polls until ShowSurface or OpenThread.
func New(backend Backend, config Config, opts ...Option) (*Engine, error) {
	defaults := DefaultConfig()
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.PruneAfter <= 0 {
		config.PruneAfter = defaults.PruneAfter
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		backend:  backend,
		config:   config,
		logger:   logging.Component("syncer"),
		now:      time.Now,
		threads:  threads.NewStore(),
		tracker:  mutation.NewTracker(),
		staging:  staging.NewArea(staging.DefaultConfig()),
		ctx:      ctx,
		cancel:   cancel,
		ackDue:   make(map[models.ThreadID]bool),
		acking:   make(map[models.ThreadID]bool),
		ackAgain: make(map[models.ThreadID]bool),
	}
	e.messages = messages.NewStore(e.tracker)
	for _, opt := range opts {
		opt(e)
	}

	scheduler, err := poll.NewScheduler(poll.Config{
		ListInterval:       config.ListInterval,
		ThreadInterval:     config.ThreadInterval,
		MaxConcurrentPolls: config.MaxConcurrentPolls,
	}, e)
	if err != nil {
		cancel()
		return nil, err
	}
	if e.metrics != nil {
		scheduler.SetObserver(e.metrics)
	}
	e.scheduler = scheduler
	return e, nil
}

// Start warms the thread list from the cache. Cache errors are logged, not returned.
func (e *Engine) Start(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}
	if e.cache == nil {
		return nil
	}

	cached, err := e.cache.LoadThreads(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to load cached threads")
		return nil
	}
	if len(cached) > 0 {
		e.threads.RefreshList(cached)
		e.publish(models.EventTypeThreadsUpdated, 0, nil)
		e.logger.Debug().Int("threads", len(cached)).Msg("thread list warmed from cache")
	}
	return nil
}

// ShowSurface starts polling the thread list.
func (e *Engine) ShowSurface() {
	if e.isClosed() {
		return
	}
	e.scheduler.SurfaceVisible(e.ctx)
}

// HideSurface stops polling the thread list.
func (e *Engine) HideSurface() {
	e.scheduler.SurfaceHidden()
}

// OpenThread makes id the active thread: its unread count is zeroed at once,
// a read acknowledgement is sent and the thread scope starts polling it.
func (e *Engine) OpenThread(ctx context.Context, id models.ThreadID) error {
	if e.isClosed() {
		return ErrClosed
	}
	if id <= 0 {
		return models.ErrInvalidThreadID
	}

	e.threads.SetActive(id)
	e.messages.Open(id)
	e.publish(models.EventTypeThreadsUpdated, 0, nil)

	e.ackAsync(id)

	if e.cache != nil && e.messages.Len() == 0 {
		cached, err := e.cache.LoadMessages(ctx, id)
		if err != nil {
			logger := logging.WithThread(e.logger, int64(id))
			logger.Warn().Err(err).Msg("failed to load cached messages")
		} else if len(cached) > 0 && e.messages.LoadSnapshot(id, cached) {
			e.publish(models.EventTypeMessagesUpdated, id, nil)
		}
	}

	e.scheduler.ThreadActivated(e.ctx, id)
	return nil
}

// CloseThread stops polling the active thread and drops its messages.
func (e *Engine) CloseThread() {
	e.scheduler.ThreadClosed()

	active, ok := e.threads.Active()
	e.threads.ClearActive()
	e.messages.Close()
	if ok {
		e.ackMu.Lock()
		delete(e.ackDue, active)
		e.ackMu.Unlock()
		e.publish(models.EventTypeMessagesUpdated, active, nil)
	}
}

// Close stops both poll scopes and waits for outstanding work.
// In-flight backend calls are cancelled.
func (e *Engine) Close() {
	e.bgMu.Lock()
	if e.closed {
		e.bgMu.Unlock()
		return
	}
	e.closed = true
	e.bgMu.Unlock()

	e.scheduler.Stop()
	e.cancel()
	e.scheduler.Wait()
	e.bg.Wait()
	e.logger.Debug().Msg("engine closed")
}

func (e *Engine) isClosed() bool {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	return e.closed
}

// goBackground runs fn on the engine context. Reports false when the engine is closed.
func (e *Engine) goBackground(fn func(ctx context.Context)) bool {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	if e.closed {
		return false
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		fn(e.ctx)
	}()
	return true
}

func (e *Engine) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.RequestTimeout)
}

func (e *Engine) publish(eventType models.EventType, thread models.ThreadID, payload any) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(e.ctx, events.NewEvent(eventType, thread, payload))
}

func (e *Engine) notice(thread models.ThreadID, message string) {
	e.publish(models.EventTypeNotice, thread, models.NoticePayload{Message: message})
}

func (e *Engine) publishMutation(eventType models.EventType, pending models.PendingMutation) {
	e.publish(eventType, pending.ThreadID, models.MutationPayload{
		LocalID: pending.LocalID,
		Kind:    pending.Kind,
		Status:  pending.Status,
		Target:  pending.Target,
		Error:   pending.Error,
	})
}

// Threads returns the thread list in server order.
func (e *Engine) Threads() []models.Thread {
	return e.threads.List()
}

// Thread returns one thread summary.
func (e *Engine) Thread(id models.ThreadID) (models.Thread, bool) {
	return e.threads.Get(id)
}

// ActiveThread returns the open thread.
func (e *Engine) ActiveThread() (models.ThreadID, bool) {
	return e.messages.Thread()
}

// Messages returns the open thread's messages in display order, provisional
// messages included.
func (e *Engine) Messages() []models.Message {
	return e.messages.List()
}

// UnreadTotal sums unread counts across the thread list.
func (e *Engine) UnreadTotal() int {
	return e.threads.UnreadTotal()
}

// MutationFor returns the latest mutation touching a message id.
func (e *Engine) MutationFor(id models.MessageID) (models.PendingMutation, bool) {
	return e.tracker.ForMessage(id)
}

// InFlight returns every unresolved mutation.
func (e *Engine) InFlight() []models.PendingMutation {
	return e.tracker.InFlight()
}

// Failures returns failed mutations of thread, or of every thread when thread is zero.
func (e *Engine) Failures(thread models.ThreadID) []models.PendingMutation {
	return e.tracker.Failures(thread)
}

// DismissFailure forgets a failed mutation.
func (e *Engine) DismissFailure(localID models.MessageID) error {
	pending, ok := e.tracker.Get(localID)
	if err := e.tracker.Dismiss(localID); err != nil {
		return err
	}
	if ok {
		e.publish(models.EventTypeMessagesUpdated, pending.ThreadID, nil)
	}
	return nil
}

// Stage adds a file to the outgoing attachment set.
func (e *Engine) Stage(file staging.File) error {
	if err := e.staging.Stage(file); err != nil {
		return err
	}
	e.publish(models.EventTypeStagingUpdated, 0, nil)
	return nil
}

// Unstage removes the staged file at index.
func (e *Engine) Unstage(index int) (staging.File, error) {
	removed, err := e.staging.Unstage(index)
	if err != nil {
		return staging.File{}, err
	}
	e.publish(models.EventTypeStagingUpdated, 0, nil)
	return removed, nil
}

// Staged returns the staged files in order.
func (e *Engine) Staged() []staging.File {
	return e.staging.List()
}

// ResolvePreview returns the local file behind a live preview reference.
func (e *Engine) ResolvePreview(ref string) (staging.File, bool) {
	return e.staging.Resolve(ref)
}

// PollState reports the poll scheduler state.
func (e *Engine) PollState() (poll.ListState, poll.ThreadState, models.ThreadID) {
	threadState, active := e.scheduler.ThreadState()
	return e.scheduler.ListState(), threadState, active
}
