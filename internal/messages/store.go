// Package messages holds the ordered message list of the open thread and
// reconciles polled snapshots with provisional, not yet confirmed entries.
package messages

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/models"
)

// Store errors.
var (
	ErrNotProvisional = errors.New("message id is not a local id")
	ErrNotConfirmed   = errors.New("message id is not a server id")
	ErrThreadMismatch = errors.New("message belongs to a different thread")
	ErrDuplicateID    = errors.New("message id already present")
	ErrNoThread       = errors.New("no thread is open")
)

// PendingLookup exposes the mutation state the reconciliation needs.
type PendingLookup interface {
	// SendStatus returns the status of the send keyed by a provisional id.
	SendStatus(localID models.MessageID) (models.MutationStatus, bool)
	// DeletePending reports whether an in-flight delete targets a confirmed id.
	DeletePending(id models.MessageID) bool
}

// Outcome is the result of an optimistic send.
type Outcome struct {
	Message models.Message
	Err     error
}

// Success wraps a confirmed server message.
func Success(msg models.Message) Outcome { return Outcome{Message: msg} }

// Failure wraps a send error.
func Failure(err error) Outcome {
	if err == nil {
		err = errors.New("send failed")
	}
	return Outcome{Err: err}
}

// OK reports whether the send was confirmed.
func (o Outcome) OK() bool { return o.Err == nil }

// entry is one list position. at is the ordering time: the server createdAt
// for snapshot entries, the local clock for optimistic ones until the next
// snapshot. Optimistic entries sort after snapshot entries with the same at,
// then by insertion sequence.
type entry struct {
	msg        models.Message
	at         time.Time
	seq        uint64
	optimistic bool
}

// Store is the message list of one open thread.
type Store struct {
	logger zerolog.Logger
	lookup PendingLookup

	mu      sync.RWMutex
	thread  models.ThreadID
	entries []entry
	nextSeq uint64
}

// NewStore creates a Store. A nil lookup keeps every provisional entry on reconciliation.
func NewStore(lookup PendingLookup) *Store {
	return &Store{
		logger: logging.Component("messages"),
		lookup: lookup,
	}
}

// Open switches the store to thread. Entries of a previous thread are dropped.
func (s *Store) Open(thread models.ThreadID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thread == thread {
		return
	}
	s.thread = thread
	s.entries = nil
}

// Close drops the open thread and its entries.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thread = 0
	s.entries = nil
}

// Thread returns the open thread.
func (s *Store) Thread() (models.ThreadID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thread, s.thread != 0
}

// LoadSnapshot merges an authoritative snapshot of thread into the store.
// The confirmed portion is replaced wholesale; provisional entries survive
// only while their send is in flight. Confirmed messages targeted by an
// in-flight delete stay hidden. Snapshots for any other thread are ignored.
// Reports whether the snapshot was applied.
func (s *Store) LoadSnapshot(thread models.ThreadID, snapshot []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if thread == 0 || thread != s.thread {
		return false
	}

	previous := make(map[models.MessageID]uint64, len(s.entries))
	for _, e := range s.entries {
		previous[e.msg.ID] = e.seq
	}

	merged := make([]entry, 0, len(snapshot)+len(s.entries))
	seen := make(map[models.MessageID]struct{}, len(snapshot))
	for _, msg := range snapshot {
		if !msg.ID.IsServer() || msg.ID.Value() <= 0 {
			s.logger.Warn().Str("message_id", msg.ID.String()).Msg("snapshot entry without server id ignored")
			continue
		}
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		if s.lookup != nil && s.lookup.DeletePending(msg.ID) {
			continue
		}
		seq, ok := previous[msg.ID]
		if !ok {
			seq = s.allocSeq()
		}
		msg = models.CloneMessage(msg)
		msg.ThreadID = thread
		merged = append(merged, entry{msg: msg, at: msg.CreatedAt, seq: seq})
	}

	for _, e := range s.entries {
		if !e.msg.ID.IsLocal() {
			continue
		}
		if s.keepProvisional(e.msg.ID) {
			merged = append(merged, e)
		}
	}

	sortEntries(merged)
	s.entries = merged
	return true
}

func (s *Store) keepProvisional(id models.MessageID) bool {
	if s.lookup == nil {
		return true
	}
	status, ok := s.lookup.SendStatus(id)
	return ok && status == models.MutationStatusInFlight
}

// AppendOptimistic inserts a provisional message at the end of the list.
func (s *Store) AppendOptimistic(msg models.Message) error {
	if !msg.ID.IsLocal() {
		return ErrNotProvisional
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.thread == 0 {
		return ErrNoThread
	}
	if msg.ThreadID != s.thread {
		return ErrThreadMismatch
	}
	if s.indexLocked(msg.ID) >= 0 {
		return ErrDuplicateID
	}

	s.entries = append(s.entries, entry{
		msg:        models.CloneMessage(msg),
		at:         msg.CreatedAt,
		seq:        s.allocSeq(),
		optimistic: true,
	})
	sortEntries(s.entries)
	return nil
}

// ResolveOptimistic settles a provisional message. On success it is replaced
// in place by the confirmed message, keeping its position until the next
// snapshot reorders by server time, or dropped if the confirmed copy already
// arrived through a snapshot; if the provisional entry is gone the confirmed
// message is inserted. On failure it is removed. Reports whether the list changed.
func (s *Store) ResolveOptimistic(localID models.MessageID, outcome Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(localID)

	if !outcome.OK() {
		if idx < 0 {
			return false
		}
		s.removeAtLocked(idx)
		return true
	}

	confirmed := models.CloneMessage(outcome.Message)
	if !confirmed.ID.IsServer() {
		s.logger.Warn().Str("local_id", localID.String()).Msg("send confirmed without server id")
		if idx >= 0 {
			s.removeAtLocked(idx)
			return true
		}
		return false
	}

	if s.indexLocked(confirmed.ID) >= 0 {
		if idx < 0 {
			return false
		}
		s.removeAtLocked(idx)
		return true
	}

	if idx >= 0 {
		if confirmed.ThreadID == 0 {
			confirmed.ThreadID = s.entries[idx].msg.ThreadID
		}
		s.entries[idx].msg = confirmed
		return true
	}

	if s.thread == 0 || confirmed.ThreadID != s.thread {
		return false
	}
	s.entries = append(s.entries, entry{msg: confirmed, at: confirmed.CreatedAt, seq: s.allocSeq()})
	sortEntries(s.entries)
	return true
}

// RemoveConfirmed removes a confirmed message immediately. It returns the removed message.
func (s *Store) RemoveConfirmed(id models.MessageID) (models.Message, error) {
	if !id.IsServer() {
		return models.Message{}, ErrNotConfirmed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return models.Message{}, ErrNotFound
	}
	removed := s.entries[idx].msg
	s.removeAtLocked(idx)
	return removed, nil
}

// ErrNotFound is returned when a message id is not in the store.
var ErrNotFound = errors.New("message not found")

// List returns a copy of the ordered message list.
func (s *Store) List() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = models.CloneMessage(e.msg)
	}
	return out
}

// Confirmed returns only the server-confirmed messages, in order.
func (s *Store) Confirmed() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0, len(s.entries))
	for _, e := range s.entries {
		if e.msg.ID.IsServer() {
			out = append(out, models.CloneMessage(e.msg))
		}
	}
	return out
}

// Get returns one message by id.
func (s *Store) Get(id models.MessageID) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return models.Message{}, false
	}
	return models.CloneMessage(s.entries[idx].msg), true
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) allocSeq() uint64 {
	s.nextSeq++
	return s.nextSeq
}

func (s *Store) indexLocked(id models.MessageID) int {
	for i := range s.entries {
		if s.entries[i].msg.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeAtLocked(idx int) {
	next := make([]entry, 0, len(s.entries)-1)
	next = append(next, s.entries[:idx]...)
	next = append(next, s.entries[idx+1:]...)
	s.entries = next
}

// sortEntries orders by time ascending; on equal times snapshot entries come
// before optimistic ones, then insertion order decides.
func sortEntries(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.at.Equal(b.at) {
			return a.at.Before(b.at)
		}
		if a.optimistic != b.optimistic {
			return b.optimistic
		}
		return a.seq < b.seq
	})
}
