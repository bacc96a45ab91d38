package syncer

import (
	"errors"
	"fmt"

	"github.com/tOgg1/parley/internal/models"
)

// Precondition failures. None of them creates a pending mutation.
var (
	ErrNoActiveThread  = errors.New("no thread is open")
	ErrThreadBlocked   = errors.New("you blocked this user and cannot send messages")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrNotDeletable    = errors.New("message cannot be deleted")
	ErrNotDirectThread = errors.New("only direct threads can be blocked")
	ErrThreadNotFound  = errors.New("thread not found")
	ErrClosed          = errors.New("engine is closed")
)

// MutationError is returned when an optimistic write fails after it was submitted.
type MutationError struct {
	Kind    models.MutationKind
	LocalID models.MessageID
	Err     error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Kind, e.LocalID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// userMessager is implemented by errors that carry server-provided text.
type userMessager interface {
	UserMessage() string
}

// statusCoder is implemented by errors from a completed but rejected call.
type statusCoder interface {
	HTTPStatus() int
}

var preconditions = []error{
	ErrNoActiveThread,
	ErrThreadBlocked,
	ErrEmptyMessage,
	ErrNotDeletable,
	ErrNotDirectThread,
	ErrThreadNotFound,
}

// UserMessage returns the text to show for err: the precondition text, the
// server-provided message when present, or a generic failure per mutation kind.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, precondition := range preconditions {
		if errors.Is(err, precondition) {
			return precondition.Error()
		}
	}

	kind := models.MutationKind("")
	var mutationErr *MutationError
	if errors.As(err, &mutationErr) {
		kind = mutationErr.Kind
	}
	return failureText(kind, err)
}

func failureText(kind models.MutationKind, err error) string {
	var withText userMessager
	if errors.As(err, &withText) {
		if text := withText.UserMessage(); text != "" {
			return text
		}
	}

	var rejected statusCoder
	if !errors.As(err, &rejected) {
		return "network error"
	}

	switch kind {
	case models.MutationKindSend:
		return "failed to send message"
	case models.MutationKindDelete:
		return "failed to delete message"
	case models.MutationKindBlock:
		return "failed to block user"
	case models.MutationKindUnblock:
		return "failed to unblock user"
	default:
		return "request failed"
	}
}
