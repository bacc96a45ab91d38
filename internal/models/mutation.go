package models

import "time"

// MutationKind names the user-initiated write wrapped by a pending mutation.
type MutationKind string

const (
	MutationKindSend    MutationKind = "send"
	MutationKindDelete  MutationKind = "delete"
	MutationKindBlock   MutationKind = "block"
	MutationKindUnblock MutationKind = "unblock"
)

// MutationStatus is the state of a pending mutation.
//
//	in_flight -> confirmed
//	in_flight -> failed
//
// confirmed and failed are terminal.
type MutationStatus string

const (
	MutationStatusInFlight  MutationStatus = "in_flight"
	MutationStatusConfirmed MutationStatus = "confirmed"
	MutationStatusFailed    MutationStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s MutationStatus) IsTerminal() bool {
	return s == MutationStatusConfirmed || s == MutationStatusFailed
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to MutationStatus) bool {
	return from == MutationStatusInFlight && to.IsTerminal()
}

// AttachmentRef is a local file committed with a send, kept so a failed send
// can be shown and retried.
type AttachmentRef struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// PendingMutation is the tracker's record of one optimistic write.
type PendingMutation struct {
	// LocalID keys the mutation; for sends it is also the provisional message id.
	LocalID MessageID `json:"local_id"`

	Kind   MutationKind   `json:"kind"`
	Status MutationStatus `json:"status"`

	// ThreadID is the thread the write targets.
	ThreadID ThreadID `json:"thread_id"`

	// Target is the confirmed message a delete removes.
	Target MessageID `json:"target,omitempty"`

	// Text is the send payload kept for display of failed sends.
	Text string `json:"text,omitempty"`

	// Attachments are the local files committed with a send.
	Attachments []AttachmentRef `json:"attachments,omitempty"`

	// PeerID is the user a block or unblock targets.
	PeerID UserID `json:"peer_id,omitempty"`

	// ServerID is set when a send is confirmed.
	ServerID MessageID `json:"server_id,omitempty"`

	// Error is the user-facing failure text.
	Error string `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
