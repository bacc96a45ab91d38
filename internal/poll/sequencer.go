package poll

import "sync"

// Sequencer issues monotonically increasing sequence numbers to refresh
// requests and rejects responses older than the newest one applied.
type Sequencer struct {
	mu      sync.Mutex
	issued  uint64
	applied uint64
	floor   uint64
}

// NewSequencer creates a Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns the sequence number for a new request.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Fence marks every request issued so far as stale, so only responses to
// later requests are applied.
func (s *Sequencer) Fence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floor = s.issued
}

// Accept reports whether a response for seq may be applied, and records it.
// A response issued before one already applied, or before the last fence,
// is stale.
func (s *Sequencer) Accept(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.floor || seq < s.applied {
		return false
	}
	s.applied = seq
	return true
}

// Applied returns the newest applied sequence number.
func (s *Sequencer) Applied() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}
