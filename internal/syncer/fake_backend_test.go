package syncer

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/staging"
)

// rejectedError mimics a server rejection with an optional message.
type rejectedError struct {
	status  int
	message string
}

func (e *rejectedError) Error() string       { return e.message }
func (e *rejectedError) UserMessage() string { return e.message }
func (e *rejectedError) HTTPStatus() int     { return e.status }

var errNetwork = errors.New("dial tcp: connection refused")

type sendCall struct {
	thread models.ThreadID
	text   string
	files  []staging.File
}

// fakeBackend is an in-memory Backend. Hooks, when set, replace the default
// behavior and may block to hold a call in flight.
type fakeBackend struct {
	mu        sync.Mutex
	threads   []models.Thread
	messages  map[models.ThreadID][]models.Message
	nextID    int64
	sends     []sendCall
	deletes   []models.MessageID
	reads     []models.ThreadID
	blocks    []models.UserID
	unblocks  []models.UserID
	listCalls int
	msgCalls  map[models.ThreadID]int

	listHook    func(ctx context.Context) ([]models.Thread, error)
	sendHook    func(ctx context.Context, thread models.ThreadID, text string) (models.Message, error)
	deleteHook  func(ctx context.Context, id models.MessageID) error
	blockHook   func(ctx context.Context, user models.UserID) error
	messageHook func(ctx context.Context, thread models.ThreadID) ([]models.Message, error)
	startHook   func(ctx context.Context, user models.UserID) (models.ThreadID, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messages: make(map[models.ThreadID][]models.Message),
		msgCalls: make(map[models.ThreadID]int),
		nextID:   100,
	}
}

func (b *fakeBackend) setThreads(threads ...models.Thread) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threads = threads
}

func (b *fakeBackend) setMessages(thread models.ThreadID, msgs ...models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[thread] = msgs
}

func (b *fakeBackend) ListThreads(ctx context.Context) ([]models.Thread, error) {
	b.mu.Lock()
	b.listCalls++
	hook := b.listHook
	out := make([]models.Thread, len(b.threads))
	copy(out, b.threads)
	b.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return out, nil
}

func (b *fakeBackend) ListMessages(ctx context.Context, thread models.ThreadID) ([]models.Message, error) {
	b.mu.Lock()
	b.msgCalls[thread]++
	hook := b.messageHook
	out := models.CloneMessages(b.messages[thread])
	b.mu.Unlock()
	if hook != nil {
		return hook(ctx, thread)
	}
	return out, nil
}

func (b *fakeBackend) SendMessage(ctx context.Context, thread models.ThreadID, text string, files []staging.File) (models.Message, error) {
	b.mu.Lock()
	b.sends = append(b.sends, sendCall{thread: thread, text: text, files: files})
	hook := b.sendHook
	b.mu.Unlock()
	if hook != nil {
		return hook(ctx, thread, text)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	msg := models.Message{ID: models.ServerID(b.nextID), ThreadID: thread, SenderID: 1, Content: text, Read: true}
	b.messages[thread] = append(b.messages[thread], msg)
	return msg, nil
}

func (b *fakeBackend) DeleteMessage(ctx context.Context, thread models.ThreadID, id models.MessageID) error {
	b.mu.Lock()
	b.deletes = append(b.deletes, id)
	hook := b.deleteHook
	b.mu.Unlock()
	if hook != nil {
		return hook(ctx, id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.messages[thread][:0]
	for _, msg := range b.messages[thread] {
		if msg.ID != id {
			kept = append(kept, msg)
		}
	}
	b.messages[thread] = kept
	return nil
}

func (b *fakeBackend) MarkRead(ctx context.Context, thread models.ThreadID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads = append(b.reads, thread)
	return nil
}

func (b *fakeBackend) Block(ctx context.Context, user models.UserID) error {
	b.mu.Lock()
	b.blocks = append(b.blocks, user)
	hook := b.blockHook
	b.mu.Unlock()
	if hook != nil {
		return hook(ctx, user)
	}
	return nil
}

func (b *fakeBackend) Unblock(ctx context.Context, user models.UserID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unblocks = append(b.unblocks, user)
	return nil
}

func (b *fakeBackend) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	return []models.User{{ID: 20, Name: "Carol", Username: query}}, nil
}

func (b *fakeBackend) StartThread(ctx context.Context, user models.UserID) (models.ThreadID, error) {
	b.mu.Lock()
	hook := b.startHook
	b.mu.Unlock()
	if hook != nil {
		return hook(ctx, user)
	}
	return 0, &rejectedError{status: http.StatusNotImplemented}
}

func (b *fakeBackend) readCount(thread models.ThreadID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, id := range b.reads {
		if id == thread {
			n++
		}
	}
	return n
}

func (b *fakeBackend) messageCalls(thread models.ThreadID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msgCalls[thread]
}

func (b *fakeBackend) sendCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sends)
}

func (b *fakeBackend) listCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}
