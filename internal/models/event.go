package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes engine change notifications.
type EventType string

const (
	// Store events
	EventTypeThreadsUpdated  EventType = "threads.updated"
	EventTypeMessagesUpdated EventType = "messages.updated"
	EventTypeStagingUpdated  EventType = "staging.updated"

	// Mutation events
	EventTypeMutationStarted   EventType = "mutation.started"
	EventTypeMutationConfirmed EventType = "mutation.confirmed"
	EventTypeMutationFailed    EventType = "mutation.failed"

	// Notice is a user-visible message (precondition failures, send errors).
	EventTypeNotice EventType = "notice"
)

// Event is a change notification published by the sync engine.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// ThreadID is the related thread, zero for list-wide events.
	ThreadID ThreadID `json:"thread_id,omitempty"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MutationPayload is the payload for mutation.* events.
type MutationPayload struct {
	LocalID MessageID      `json:"local_id"`
	Kind    MutationKind   `json:"kind"`
	Status  MutationStatus `json:"status"`
	Target  MessageID      `json:"target,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// NoticePayload is the payload for notice events.
type NoticePayload struct {
	Message string `json:"message"`
}
