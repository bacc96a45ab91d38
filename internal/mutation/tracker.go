// Package mutation tracks optimistic writes from submission until the server
// confirms or rejects them.
package mutation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/models"
)

// Tracker errors.
var (
	ErrUnknownMutation  = errors.New("unknown mutation")
	ErrMutationInFlight = errors.New("mutation already in flight")
	ErrInvalidTarget    = errors.New("invalid mutation target")
	ErrNotTerminal      = errors.New("mutation is still in flight")
)

// Request describes a write about to be submitted.
type Request struct {
	Kind     models.MutationKind
	ThreadID models.ThreadID
	Target   models.MessageID
	Text     string
	PeerID   models.UserID
}

// Tracker records pending mutations keyed by local id. Local ids are unique
// for the lifetime of the tracker and never collide with server ids.
type Tracker struct {
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	nextID  int64
	entries map[models.MessageID]*models.PendingMutation
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates an empty Tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		logger:  logging.Component("mutation"),
		now:     time.Now,
		entries: make(map[models.MessageID]*models.PendingMutation),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin registers a new in-flight mutation and assigns its local id.
func (t *Tracker) Begin(req Request) (models.PendingMutation, error) {
	if req.ThreadID <= 0 {
		return models.PendingMutation{}, fmt.Errorf("%w: thread id", ErrInvalidTarget)
	}
	switch req.Kind {
	case models.MutationKindSend:
	case models.MutationKindDelete:
		if !req.Target.IsServer() {
			return models.PendingMutation{}, fmt.Errorf("%w: delete needs a confirmed message", ErrInvalidTarget)
		}
	case models.MutationKindBlock, models.MutationKindUnblock:
		if req.PeerID <= 0 {
			return models.PendingMutation{}, fmt.Errorf("%w: peer id", ErrInvalidTarget)
		}
	default:
		return models.PendingMutation{}, fmt.Errorf("%w: kind %q", ErrInvalidTarget, req.Kind)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if conflict := t.conflictLocked(req); conflict != nil {
		return models.PendingMutation{}, fmt.Errorf("%w: %s %s", ErrMutationInFlight, conflict.Kind, conflict.LocalID)
	}

	t.nextID++
	pending := &models.PendingMutation{
		LocalID:   models.LocalID(t.nextID),
		Kind:      req.Kind,
		Status:    models.MutationStatusInFlight,
		ThreadID:  req.ThreadID,
		Target:    req.Target,
		Text:      req.Text,
		PeerID:    req.PeerID,
		CreatedAt: t.now().UTC(),
	}
	t.entries[pending.LocalID] = pending

	t.logger.Debug().
		Str("local_id", pending.LocalID.String()).
		Str("kind", string(pending.Kind)).
		Int64("thread_id", int64(pending.ThreadID)).
		Msg("mutation started")
	return *pending, nil
}

func (t *Tracker) conflictLocked(req Request) *models.PendingMutation {
	for _, existing := range t.entries {
		if existing.Status != models.MutationStatusInFlight {
			continue
		}
		switch req.Kind {
		case models.MutationKindDelete:
			if existing.Kind == models.MutationKindDelete && existing.Target == req.Target {
				return existing
			}
		case models.MutationKindBlock, models.MutationKindUnblock:
			if isBlockKind(existing.Kind) && existing.ThreadID == req.ThreadID {
				return existing
			}
		}
	}
	return nil
}

func isBlockKind(kind models.MutationKind) bool {
	return kind == models.MutationKindBlock || kind == models.MutationKindUnblock
}

// Confirm moves a mutation to confirmed. serverID is required for sends.
func (t *Tracker) Confirm(localID, serverID models.MessageID) (models.PendingMutation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, err := t.transitionLocked(localID, models.MutationStatusConfirmed)
	if err != nil {
		return models.PendingMutation{}, err
	}
	if pending.Kind == models.MutationKindSend {
		if !serverID.IsServer() {
			return models.PendingMutation{}, fmt.Errorf("%w: send confirmed without server id", ErrInvalidTarget)
		}
		pending.ServerID = serverID
	}
	t.resolveLocked(pending, models.MutationStatusConfirmed, "")
	return *pending, nil
}

// Fail moves a mutation to failed with a user-facing message.
func (t *Tracker) Fail(localID models.MessageID, message string) (models.PendingMutation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, err := t.transitionLocked(localID, models.MutationStatusFailed)
	if err != nil {
		return models.PendingMutation{}, err
	}
	t.resolveLocked(pending, models.MutationStatusFailed, message)
	return *pending, nil
}

func (t *Tracker) transitionLocked(localID models.MessageID, to models.MutationStatus) (*models.PendingMutation, error) {
	pending, ok := t.entries[localID]
	if !ok {
		return nil, ErrUnknownMutation
	}
	if !models.CanTransition(pending.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, pending.Status, to)
	}
	return pending, nil
}

func (t *Tracker) resolveLocked(pending *models.PendingMutation, status models.MutationStatus, message string) {
	now := t.now().UTC()
	pending.Status = status
	pending.Error = message
	pending.ResolvedAt = &now

	event := t.logger.Debug()
	if status == models.MutationStatusFailed {
		event = t.logger.Info().Str("error", message)
	}
	event.Str("local_id", pending.LocalID.String()).
		Str("kind", string(pending.Kind)).
		Str("status", string(status)).
		Msg("mutation resolved")
}

// SetAttachments records the files committed with an in-flight send.
func (t *Tracker) SetAttachments(localID models.MessageID, refs []models.AttachmentRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, ok := t.entries[localID]
	if !ok {
		return ErrUnknownMutation
	}
	if pending.Kind != models.MutationKindSend {
		return fmt.Errorf("%w: attachments on %s", ErrInvalidTarget, pending.Kind)
	}
	if pending.Status != models.MutationStatusInFlight {
		return fmt.Errorf("%w: %s", models.ErrInvalidTransition, pending.Status)
	}
	pending.Attachments = append([]models.AttachmentRef(nil), refs...)
	return nil
}

// Get returns a mutation by local id.
func (t *Tracker) Get(localID models.MessageID) (models.PendingMutation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pending, ok := t.entries[localID]
	if !ok {
		return models.PendingMutation{}, false
	}
	return *pending, true
}

// Status returns the status of a mutation.
func (t *Tracker) Status(localID models.MessageID) (models.MutationStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pending, ok := t.entries[localID]
	if !ok {
		return "", false
	}
	return pending.Status, true
}

// SendStatus returns the status of the send whose provisional id is localID.
func (t *Tracker) SendStatus(localID models.MessageID) (models.MutationStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pending, ok := t.entries[localID]
	if !ok || pending.Kind != models.MutationKindSend {
		return "", false
	}
	return pending.Status, true
}

// DeletePending reports whether an in-flight delete targets id.
func (t *Tracker) DeletePending(id models.MessageID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, pending := range t.entries {
		if pending.Kind == models.MutationKindDelete &&
			pending.Status == models.MutationStatusInFlight &&
			pending.Target == id {
			return true
		}
	}
	return false
}

// BlockPending reports whether a block or unblock is in flight for thread.
func (t *Tracker) BlockPending(thread models.ThreadID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, pending := range t.entries {
		if isBlockKind(pending.Kind) &&
			pending.Status == models.MutationStatusInFlight &&
			pending.ThreadID == thread {
			return true
		}
	}
	return false
}

// ForMessage returns the latest mutation attached to a message: the send
// for a provisional id, or a delete targeting a confirmed id.
func (t *Tracker) ForMessage(id models.MessageID) (models.PendingMutation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if id.IsLocal() {
		pending, ok := t.entries[id]
		if !ok {
			return models.PendingMutation{}, false
		}
		return *pending, true
	}

	var latest *models.PendingMutation
	for _, pending := range t.entries {
		if pending.Target != id && pending.ServerID != id {
			continue
		}
		if latest == nil || pending.LocalID.Value() > latest.LocalID.Value() {
			latest = pending
		}
	}
	if latest == nil {
		return models.PendingMutation{}, false
	}
	return *latest, true
}

// List returns every tracked mutation in submission order.
func (t *Tracker) List() []models.PendingMutation {
	return t.filter(func(*models.PendingMutation) bool { return true })
}

// InFlight returns the mutations awaiting a server response.
func (t *Tracker) InFlight() []models.PendingMutation {
	return t.filter(func(p *models.PendingMutation) bool {
		return p.Status == models.MutationStatusInFlight
	})
}

// Failures returns failed mutations that have not been dismissed.
func (t *Tracker) Failures(thread models.ThreadID) []models.PendingMutation {
	return t.filter(func(p *models.PendingMutation) bool {
		return p.Status == models.MutationStatusFailed && (thread == 0 || p.ThreadID == thread)
	})
}

func (t *Tracker) filter(keep func(*models.PendingMutation) bool) []models.PendingMutation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.PendingMutation, 0, len(t.entries))
	for _, pending := range t.entries {
		if keep(pending) {
			out = append(out, *pending)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LocalID.Value() < out[j].LocalID.Value()
	})
	return out
}

// Dismiss forgets a resolved mutation. In-flight mutations cannot be dismissed.
func (t *Tracker) Dismiss(localID models.MessageID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending, ok := t.entries[localID]
	if !ok {
		return ErrUnknownMutation
	}
	if !pending.Status.IsTerminal() {
		return ErrNotTerminal
	}
	delete(t.entries, localID)
	return nil
}

// Prune forgets confirmed mutations resolved longer than maxAge ago.
// Failed mutations are kept until dismissed. Returns the number removed.
func (t *Tracker) Prune(maxAge time.Duration) int {
	cutoff := t.now().UTC().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, pending := range t.entries {
		if pending.Status != models.MutationStatusConfirmed || pending.ResolvedAt == nil {
			continue
		}
		if pending.ResolvedAt.After(cutoff) {
			continue
		}
		delete(t.entries, id)
		removed++
	}
	return removed
}

// InFlightCount returns the number of unresolved mutations.
func (t *Tracker) InFlightCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := 0
	for _, pending := range t.entries {
		if pending.Status == models.MutationStatusInFlight {
			count++
		}
	}
	return count
}
