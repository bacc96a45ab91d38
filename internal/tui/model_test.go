package tui

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/staging"
	"github.com/tOgg1/parley/internal/syncer"
)

type fakeEngine struct {
	mu       sync.Mutex
	threads  []models.Thread
	messages map[models.ThreadID][]models.Message
	active   models.ThreadID
	pending  map[models.MessageID]models.PendingMutation
	failures []models.PendingMutation
	staged   []staging.File

	sent     []string
	deleted  []models.MessageID
	toggled  []models.ThreadID
	sendErr  error
	openErr  error
	closedAt int
}

func newFakeEngine(threads ...models.Thread) *fakeEngine {
	return &fakeEngine{
		threads:  threads,
		messages: make(map[models.ThreadID][]models.Message),
		pending:  make(map[models.MessageID]models.PendingMutation),
	}
}

func (f *fakeEngine) Threads() []models.Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Thread(nil), f.threads...)
}

func (f *fakeEngine) Messages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.messages[f.active]...)
}

func (f *fakeEngine) ActiveThread() (models.ThreadID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.active != 0
}

func (f *fakeEngine) MutationFor(id models.MessageID) (models.PendingMutation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending, ok := f.pending[id]
	return pending, ok
}

func (f *fakeEngine) Failures(thread models.ThreadID) []models.PendingMutation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PendingMutation(nil), f.failures...)
}

func (f *fakeEngine) DismissFailure(localID models.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.failures[:0]
	for _, failed := range f.failures {
		if failed.LocalID != localID {
			kept = append(kept, failed)
		}
	}
	f.failures = kept
	return nil
}

func (f *fakeEngine) Staged() []staging.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]staging.File(nil), f.staged...)
}

func (f *fakeEngine) Stage(file staging.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged = append(f.staged, file)
	return nil
}

func (f *fakeEngine) OpenThread(ctx context.Context, id models.ThreadID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.active = id
	return nil
}

func (f *fakeEngine) CloseThread() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = 0
	f.closedAt++
}

func (f *fakeEngine) Send(ctx context.Context, text string) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	if f.sendErr != nil {
		return models.Message{}, f.sendErr
	}
	msg := models.Message{ID: models.ServerID(int64(100 + len(f.sent))), ThreadID: f.active, SenderID: 1, Content: text}
	f.messages[f.active] = append(f.messages[f.active], msg)
	return msg, nil
}

func (f *fakeEngine) Delete(ctx context.Context, id models.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEngine) ToggleBlock(ctx context.Context, thread models.ThreadID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, thread)
	return nil
}

func testThreads() []models.Thread {
	return []models.Thread{
		{ID: 1, Kind: models.ThreadKindDirect, DisplayName: "alice", UnreadCount: 2, Online: true, PeerID: 2},
		{ID: 2, Kind: models.ThreadKindDirect, DisplayName: "bob", Blocked: true, PeerID: 3},
	}
}

func newTestModel(engine *fakeEngine) *Model {
	return NewModel(context.Background(), engine, Config{SelfUserID: 1, ShowTimestamps: false})
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func typeText(t *testing.T, model *Model, text string) *Model {
	t.Helper()
	for _, r := range text {
		if r == ' ' {
			model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeySpace})
			continue
		}
		model = applyUpdate(t, model, runeKey(r))
	}
	return model
}

func applyUpdate(t *testing.T, model *Model, msg tea.Msg) *Model {
	t.Helper()
	next, _ := model.Update(msg)
	out, ok := next.(*Model)
	require.True(t, ok)
	return out
}

func applyUpdateWithCmd(t *testing.T, model *Model, msg tea.Msg) *Model {
	t.Helper()
	next, cmd := model.Update(msg)
	out, ok := next.(*Model)
	require.True(t, ok)
	if cmd == nil {
		return out
	}
	return runCmd(t, out, cmd)
}

func runCmd(t *testing.T, model *Model, cmd tea.Cmd) *Model {
	t.Helper()
	type result struct{ msg tea.Msg }
	ch := make(chan result, 1)
	go func() { ch <- result{cmd()} }()
	select {
	case r := <-ch:
		if r.msg == nil {
			return model
		}
		return applyUpdate(t, model, r.msg)
	case <-time.After(time.Second):
		t.Fatal("command did not finish")
		return model
	}
}

func TestOpenThreadAndSend(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	model := newTestModel(engine)
	model = applyUpdate(t, model, tea.WindowSizeMsg{Width: 120, Height: 30})

	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, model.hasActive)
	require.Equal(t, models.ThreadID(1), model.active)
	require.Equal(t, focusCompose, model.focus)

	model = typeText(t, model, "hi there")
	require.Equal(t, "hi there", string(model.input))

	model = applyUpdateWithCmd(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	require.Empty(t, model.input)
	require.Equal(t, []string{"hi there"}, engine.sent)
	require.Len(t, model.messages, 1)
	require.Contains(t, model.View(), "hi there")
}

func TestBlankComposeSendsNothing(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	model := newTestModel(engine)
	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyEnter})

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Empty(t, engine.sent)
}

func TestSendFailureShowsUserMessage(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	engine.sendErr = syncer.ErrThreadBlocked
	model := newTestModel(engine)
	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model = typeText(t, model, "hello")

	model = applyUpdateWithCmd(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, model.isErr)
	require.Equal(t, syncer.ErrThreadBlocked.Error(), model.status)
}

func TestCursorAndEscape(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	model := newTestModel(engine)

	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, 1, model.cursor)
	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, 1, model.cursor, "cursor stays on the last thread")
	model = applyUpdate(t, model, runeKey('k'))
	require.Equal(t, 0, model.cursor)

	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, model.hasActive)

	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	require.False(t, model.hasActive)
	require.Equal(t, focusThreads, model.focus)
	require.Equal(t, 1, engine.closedAt)
}

func TestTabNeedsActiveThread(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	model := newTestModel(engine)

	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusThreads, model.focus)

	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusThreads, model.focus)
	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusCompose, model.focus)
}

func TestToggleBlockTargetsSelectedThread(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	model := newTestModel(engine)
	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyDown})

	applyUpdateWithCmd(t, model, tea.KeyMsg{Type: tea.KeyCtrlB})
	require.Equal(t, []models.ThreadID{2}, engine.toggled)
}

func TestDeleteLastOwnSkipsPendingAndForeign(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	engine.messages[1] = []models.Message{
		{ID: models.ServerID(10), ThreadID: 1, SenderID: 1, Content: "mine"},
		{ID: models.ServerID(11), ThreadID: 1, SenderID: 1, Content: "deleting"},
		{ID: models.ServerID(12), ThreadID: 1, SenderID: 2, Content: "theirs"},
		{ID: models.LocalID(1), ThreadID: 1, SenderID: 1, Content: "sending"},
	}
	engine.pending[models.ServerID(11)] = models.PendingMutation{
		LocalID: models.LocalID(2),
		Kind:    models.MutationKindDelete,
		Status:  models.MutationStatusInFlight,
		Target:  models.ServerID(11),
	}
	model := newTestModel(engine)
	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyEnter})

	applyUpdateWithCmd(t, model, tea.KeyMsg{Type: tea.KeyCtrlX})
	require.Equal(t, []models.MessageID{models.ServerID(10)}, engine.deleted)
}

func TestNoticeEventSetsStatus(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	model := newTestModel(engine)

	payload, err := json.Marshal(models.NoticePayload{Message: "network error"})
	require.NoError(t, err)
	model = applyUpdate(t, model, engineEventMsg{event: &models.Event{Type: models.EventTypeNotice, Payload: payload}})
	require.Equal(t, "network error", model.status)
	require.True(t, model.isErr)
}

func TestEngineEventResyncsSnapshot(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	model := newTestModel(engine)
	require.Len(t, model.threads, 2)

	engine.mu.Lock()
	engine.threads = append(engine.threads, models.Thread{ID: 3, Kind: models.ThreadKindGroup, DisplayName: "team"})
	engine.mu.Unlock()

	model = applyUpdate(t, model, engineEventMsg{event: &models.Event{Type: models.EventTypeThreadsUpdated}})
	require.Len(t, model.threads, 3)
	require.Contains(t, model.View(), "team")
}

func TestViewShowsBadgesAndIndicators(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	engine.messages[1] = []models.Message{
		{ID: models.LocalID(1), ThreadID: 1, SenderID: 1, Content: "on its way"},
	}
	engine.pending[models.LocalID(1)] = models.PendingMutation{
		LocalID: models.LocalID(1),
		Kind:    models.MutationKindSend,
		Status:  models.MutationStatusInFlight,
	}
	engine.failures = []models.PendingMutation{{
		LocalID: models.LocalID(2),
		Kind:    models.MutationKindSend,
		Status:  models.MutationStatusFailed,
		Text:    "lost words",
		Error:   "network error",
		Attachments: []models.AttachmentRef{
			{Name: "draft.pdf", Path: "/tmp/draft.pdf"},
		},
	}}
	model := newTestModel(engine)
	model = applyUpdate(t, model, tea.WindowSizeMsg{Width: 120, Height: 30})
	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyEnter})

	view := model.View()
	require.Contains(t, view, "(2)")
	require.Contains(t, view, "⊘")
	require.Contains(t, view, "on its way")
	require.Contains(t, view, "…")
	require.Contains(t, view, "! lost words")
	require.Contains(t, view, "[draft.pdf]")

	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyCtrlD})
	require.Empty(t, model.failures)
	require.False(t, strings.Contains(model.View(), "lost words"))
}

func TestOpenThreadErrorIsShown(t *testing.T) {
	engine := newFakeEngine(testThreads()...)
	engine.openErr = errors.New("engine closed")
	model := newTestModel(engine)

	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	require.False(t, model.hasActive)
	require.Equal(t, "engine closed", model.status)
}

func TestCtrlCQuits(t *testing.T) {
	model := newTestModel(newFakeEngine())
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)
}
