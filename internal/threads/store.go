// Package threads holds the thread list and its summary state.
package threads

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/models"
)

// Store owns the thread list. Every write publishes a new slice; readers
// never observe a partially applied refresh.
type Store struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	snapshot []models.Thread
	active   models.ThreadID
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{logger: logging.Component("threads")}
}

// RefreshList replaces the snapshot with threads. The currently open thread
// keeps an unread count of zero regardless of what the server reported; the
// reported value is returned so the read-state gate can re-acknowledge it.
// Negative counts are clamped to zero.
func (s *Store) RefreshList(threads []models.Thread) (activeReported int) {
	return s.RefreshListKeeping(threads, nil)
}

// RefreshListKeeping is RefreshList, except that threads for which
// keepBlocked reports true keep their local blocked flag.
func (s *Store) RefreshListKeeping(threads []models.Thread, keepBlocked func(models.ThreadID) bool) (activeReported int) {
	next := make([]models.Thread, 0, len(threads))
	seen := make(map[models.ThreadID]struct{}, len(threads))

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[models.ThreadID]bool, len(s.snapshot))
	if keepBlocked != nil {
		for _, thread := range s.snapshot {
			current[thread.ID] = thread.Blocked
		}
	}

	for _, thread := range threads {
		if _, dup := seen[thread.ID]; dup {
			continue
		}
		seen[thread.ID] = struct{}{}
		if local, ok := current[thread.ID]; ok && local != thread.Blocked && keepBlocked(thread.ID) {
			s.logger.Debug().
				Int64("thread_id", int64(thread.ID)).
				Bool("blocked", local).
				Msg("kept local block state while change in flight")
			thread.Blocked = local
		}
		if thread.UnreadCount < 0 {
			thread.UnreadCount = 0
		}
		if s.active != 0 && thread.ID == s.active {
			activeReported = thread.UnreadCount
			thread.UnreadCount = 0
		}
		next = append(next, thread)
	}
	s.snapshot = next

	if activeReported > 0 {
		s.logger.Debug().
			Int64("thread_id", int64(s.active)).
			Int("reported_unread", activeReported).
			Msg("suppressed unread count for open thread")
	}
	return activeReported
}

// MarkRead zeroes the unread count of id. Reports whether the thread exists.
func (s *Store) MarkRead(id models.ThreadID) bool {
	return s.update(id, func(t *models.Thread) { t.UnreadCount = 0 })
}

// SetBlocked sets the directional blocked flag of id. Reports whether the thread exists.
func (s *Store) SetBlocked(id models.ThreadID, blocked bool) bool {
	return s.update(id, func(t *models.Thread) { t.Blocked = blocked })
}

// Upsert inserts thread at the head of the list, or replaces the existing entry in place.
func (s *Store) Upsert(thread models.Thread) {
	if thread.UnreadCount < 0 {
		thread.UnreadCount = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if thread.ID == s.active {
		thread.UnreadCount = 0
	}
	next := make([]models.Thread, 0, len(s.snapshot)+1)
	replaced := false
	for _, existing := range s.snapshot {
		if existing.ID == thread.ID {
			next = append(next, thread)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append([]models.Thread{thread}, next...)
	}
	s.snapshot = next
}

// Remove drops a thread from the list. Reports whether it existed.
func (s *Store) Remove(id models.ThreadID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.Thread, 0, len(s.snapshot))
	found := false
	for _, existing := range s.snapshot {
		if existing.ID == id {
			found = true
			continue
		}
		next = append(next, existing)
	}
	if found {
		s.snapshot = next
	}
	return found
}

// SetActive records the open thread and zeroes its unread count.
func (s *Store) SetActive(id models.ThreadID) {
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	s.MarkRead(id)
}

// ClearActive records that no thread is open.
func (s *Store) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = 0
}

// Active returns the open thread id.
func (s *Store) Active() (models.ThreadID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.active != 0
}

// List returns a copy of the current snapshot in server order.
func (s *Store) List() []models.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Thread, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// Get returns one thread.
func (s *Store) Get(id models.ThreadID) (models.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, thread := range s.snapshot {
		if thread.ID == id {
			return thread, true
		}
	}
	return models.Thread{}, false
}

// UnreadTotal sums unread counts across all threads.
func (s *Store) UnreadTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, thread := range s.snapshot {
		total += thread.UnreadCount
	}
	return total
}

func (s *Store) update(id models.ThreadID, mutate func(*models.Thread)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.snapshot {
		if s.snapshot[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	next := make([]models.Thread, len(s.snapshot))
	copy(next, s.snapshot)
	mutate(&next[idx])
	s.snapshot = next
	return true
}
