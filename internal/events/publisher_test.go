package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/tOgg1/parley/internal/models"
)

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		event  *models.Event
		want   bool
	}{
		{
			name:   "empty filter matches any event",
			filter: Filter{},
			event:  &models.Event{Type: models.EventTypeMessagesUpdated, ThreadID: 3},
			want:   true,
		},
		{
			name:   "nil event returns false",
			filter: Filter{},
			event:  nil,
			want:   false,
		},
		{
			name:   "event type filter matches",
			filter: Filter{EventTypes: []models.EventType{models.EventTypeMutationFailed}},
			event:  &models.Event{Type: models.EventTypeMutationFailed, ThreadID: 3},
			want:   true,
		},
		{
			name:   "event type filter rejects non-matching",
			filter: Filter{EventTypes: []models.EventType{models.EventTypeMutationFailed}},
			event:  &models.Event{Type: models.EventTypeMutationConfirmed, ThreadID: 3},
			want:   false,
		},
		{
			name: "multiple event types - matches any",
			filter: Filter{EventTypes: []models.EventType{
				models.EventTypeMutationConfirmed,
				models.EventTypeMutationFailed,
			}},
			event: &models.Event{Type: models.EventTypeMutationFailed},
			want:  true,
		},
		{
			name:   "thread filter matches",
			filter: Filter{ThreadID: 3},
			event:  &models.Event{Type: models.EventTypeMessagesUpdated, ThreadID: 3},
			want:   true,
		},
		{
			name:   "thread filter rejects other thread",
			filter: Filter{ThreadID: 3},
			event:  &models.Event{Type: models.EventTypeMessagesUpdated, ThreadID: 4},
			want:   false,
		},
		{
			name:   "thread filter passes list-wide events",
			filter: Filter{ThreadID: 3},
			event:  &models.Event{Type: models.EventTypeThreadsUpdated},
			want:   true,
		},
		{
			name: "combined filters - type mismatch",
			filter: Filter{
				EventTypes: []models.EventType{models.EventTypeNotice},
				ThreadID:   3,
			},
			event: &models.Event{Type: models.EventTypeMessagesUpdated, ThreadID: 3},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Matches(tt.event)
			if got != tt.want {
				t.Errorf("Filter.Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInMemoryPublisher_Subscribe(t *testing.T) {
	pub := NewInMemoryPublisher()

	handler := func(event *models.Event) {}

	err := pub.Subscribe("sub-1", Filter{}, handler)
	if err != nil {
		t.Errorf("Subscribe() error = %v, want nil", err)
	}
	if pub.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", pub.SubscriberCount())
	}

	err = pub.Subscribe("sub-1", Filter{}, handler)
	if err != ErrSubscriptionExists {
		t.Errorf("Subscribe() duplicate error = %v, want %v", err, ErrSubscriptionExists)
	}

	err = pub.Subscribe("", Filter{}, handler)
	if err != ErrInvalidSubscriptionID {
		t.Errorf("Subscribe() empty ID error = %v, want %v", err, ErrInvalidSubscriptionID)
	}

	err = pub.Subscribe("sub-2", Filter{}, nil)
	if err != ErrNilHandler {
		t.Errorf("Subscribe() nil handler error = %v, want %v", err, ErrNilHandler)
	}
}

func TestInMemoryPublisher_Unsubscribe(t *testing.T) {
	pub := NewInMemoryPublisher()
	_ = pub.Subscribe("sub-1", Filter{}, func(event *models.Event) {})

	if err := pub.Unsubscribe("sub-1"); err != nil {
		t.Errorf("Unsubscribe() error = %v, want nil", err)
	}
	if pub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", pub.SubscriberCount())
	}
	if err := pub.Unsubscribe("sub-1"); err != ErrSubscriptionNotFound {
		t.Errorf("Unsubscribe() non-existent error = %v, want %v", err, ErrSubscriptionNotFound)
	}
}

func TestInMemoryPublisher_PublishWithFilter(t *testing.T) {
	pub := NewInMemoryPublisher()
	ctx := context.Background()

	var threeEvents, failures int
	var mu sync.Mutex

	_ = pub.Subscribe("thread-3", Filter{ThreadID: 3}, func(event *models.Event) {
		mu.Lock()
		threeEvents++
		mu.Unlock()
	})
	_ = pub.Subscribe("failures", Filter{
		EventTypes: []models.EventType{models.EventTypeMutationFailed},
	}, func(event *models.Event) {
		mu.Lock()
		failures++
		mu.Unlock()
	})

	pub.Publish(ctx, NewEvent(models.EventTypeMessagesUpdated, 3, nil))
	pub.Publish(ctx, NewEvent(models.EventTypeMessagesUpdated, 4, nil))
	pub.Publish(ctx, NewEvent(models.EventTypeMutationFailed, 4, nil))

	mu.Lock()
	defer mu.Unlock()
	if threeEvents != 1 {
		t.Errorf("threeEvents = %d, want 1", threeEvents)
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}

func TestInMemoryPublisher_PublishNilEvent(t *testing.T) {
	pub := NewInMemoryPublisher()

	called := false
	_ = pub.Subscribe("sub-1", Filter{}, func(event *models.Event) {
		called = true
	})

	pub.Publish(context.Background(), nil)
	if called {
		t.Error("handler was called for nil event")
	}
}

func TestInMemoryPublisher_UpdateSubscription(t *testing.T) {
	pub := NewInMemoryPublisher()
	ctx := context.Background()

	var count int
	_ = pub.Subscribe("sub-1", Filter{ThreadID: 1}, func(event *models.Event) {
		count++
	})

	pub.Publish(ctx, NewEvent(models.EventTypeMessagesUpdated, 1, nil))

	if err := pub.UpdateSubscription("sub-1", Filter{ThreadID: 2}); err != nil {
		t.Errorf("UpdateSubscription() error = %v", err)
	}

	pub.Publish(ctx, NewEvent(models.EventTypeMessagesUpdated, 1, nil))
	pub.Publish(ctx, NewEvent(models.EventTypeMessagesUpdated, 2, nil))

	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	if err := pub.UpdateSubscription("missing", Filter{}); err != ErrSubscriptionNotFound {
		t.Errorf("UpdateSubscription() missing error = %v, want %v", err, ErrSubscriptionNotFound)
	}
}

func TestInMemoryPublisher_Close(t *testing.T) {
	pub := NewInMemoryPublisher()
	_ = pub.Subscribe("sub-1", Filter{}, func(event *models.Event) {})
	_ = pub.Subscribe("sub-2", Filter{}, func(event *models.Event) {})

	pub.Close()
	if pub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() after Close = %d, want 0", pub.SubscriberCount())
	}
}

func TestNewEvent(t *testing.T) {
	event := NewEvent(models.EventTypeNotice, 5, models.NoticePayload{Message: "blocked"})
	if event.ID == "" {
		t.Fatal("expected event id")
	}
	if event.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}

	var payload models.NoticePayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Message != "blocked" {
		t.Errorf("payload message = %q, want %q", payload.Message, "blocked")
	}

	if other := NewEvent(models.EventTypeNotice, 5, nil); other.ID == event.ID {
		t.Error("event ids must be unique")
	}
}
