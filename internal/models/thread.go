package models

import "time"

// ThreadKind distinguishes one-to-one from group conversations.
type ThreadKind string

const (
	ThreadKindDirect ThreadKind = "direct"
	ThreadKindGroup  ThreadKind = "group"
)

// Thread is the summary state of one conversation as shown in the thread list.
type Thread struct {
	// ID is the server-assigned thread identity.
	ID ThreadID `json:"id"`

	// Kind is direct or group.
	Kind ThreadKind `json:"kind"`

	// DisplayName is the peer name (direct) or group title.
	DisplayName string `json:"display_name"`

	// AvatarRef is a remote reference to the avatar image.
	AvatarRef string `json:"avatar_ref,omitempty"`

	// LastMessagePreview is a short rendering of the newest message.
	LastMessagePreview string `json:"last_message_preview,omitempty"`

	// LastMessageTime is when the newest message was created.
	LastMessageTime time.Time `json:"last_message_time,omitempty"`

	// UnreadCount is the number of unread messages; never negative.
	UnreadCount int `json:"unread_count"`

	// Online reports the peer's presence as last seen by the server.
	Online bool `json:"online"`

	// Blocked is true when the current user blocked the peer.
	Blocked bool `json:"blocked"`

	// PeerID is the other participant of a direct thread.
	PeerID UserID `json:"peer_id,omitempty"`

	// Bio and Birthdate describe the peer of a direct thread.
	Bio       string `json:"bio,omitempty"`
	Birthdate string `json:"birthdate,omitempty"`
}

// IsDirect reports whether the thread is a one-to-one conversation.
func (t *Thread) IsDirect() bool {
	return t.Kind == ThreadKindDirect
}

// Validate checks the thread snapshot invariants.
func (t *Thread) Validate() error {
	validation := &ValidationErrors{}
	if t.ID <= 0 {
		validation.Add("id", ErrInvalidThreadID)
	}
	switch t.Kind {
	case ThreadKindDirect, ThreadKindGroup:
	default:
		validation.Add("kind", ErrInvalidThreadKind)
	}
	if t.UnreadCount < 0 {
		validation.Add("unread_count", ErrNegativeUnread)
	}
	return validation.Err()
}
