// Package tui is the terminal front end of the sync engine. It renders engine
// snapshots and forwards user intent; all state lives in the engine.
package tui

import (
	"context"
	"encoding/json"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/staging"
	"github.com/tOgg1/parley/internal/syncer"
)

// Engine is the part of the sync engine the TUI drives.
type Engine interface {
	Threads() []models.Thread
	Messages() []models.Message
	ActiveThread() (models.ThreadID, bool)
	MutationFor(id models.MessageID) (models.PendingMutation, bool)
	Failures(thread models.ThreadID) []models.PendingMutation
	DismissFailure(localID models.MessageID) error
	Staged() []staging.File
	Stage(file staging.File) error

	OpenThread(ctx context.Context, id models.ThreadID) error
	CloseThread()
	Send(ctx context.Context, text string) (models.Message, error)
	Delete(ctx context.Context, id models.MessageID) error
	ToggleBlock(ctx context.Context, thread models.ThreadID) error
}

// Config contains display settings.
type Config struct {
	// SelfUserID marks own messages; 0 disables ctrl+x.
	SelfUserID models.UserID

	// ShowTimestamps prints the time next to each message.
	ShowTimestamps bool

	// Theme is a key of Themes.
	Theme string
}

type focus int

const (
	focusThreads focus = iota
	focusCompose
)

// engineEventMsg carries an engine notification into the update loop.
type engineEventMsg struct {
	event *models.Event
}

// actionDoneMsg reports the result of a blocking engine call.
type actionDoneMsg struct {
	err error
}

// Model is the bubbletea model.
type Model struct {
	ctx    context.Context
	engine Engine
	config Config
	styles styles

	width  int
	height int
	focus  focus

	threads   []models.Thread
	cursor    int
	active    models.ThreadID
	hasActive bool
	messages  []models.Message
	failures  []models.PendingMutation
	staged    int

	input  []rune
	status string
	isErr  bool
}

// NewModel creates a Model over engine.
func NewModel(ctx context.Context, engine Engine, config Config) *Model {
	m := &Model{
		ctx:    ctx,
		engine: engine,
		config: config,
		styles: newStyles(ThemeByName(config.Theme)),
	}
	m.sync()
	return m
}

func (m *Model) Init() tea.Cmd {
	return nil
}

// sync copies the engine snapshot into the model.
func (m *Model) sync() {
	m.threads = m.engine.Threads()
	if m.cursor >= len(m.threads) {
		m.cursor = max(0, len(m.threads)-1)
	}
	m.active, m.hasActive = m.engine.ActiveThread()
	if m.hasActive {
		m.messages = m.engine.Messages()
		m.failures = m.engine.Failures(m.active)
	} else {
		m.messages = nil
		m.failures = nil
		if m.focus == focusCompose {
			m.focus = focusThreads
		}
	}
	m.staged = len(m.engine.Staged())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case engineEventMsg:
		if typed.event != nil && typed.event.Type == models.EventTypeNotice {
			var notice models.NoticePayload
			if err := json.Unmarshal(typed.event.Payload, &notice); err == nil && notice.Message != "" {
				m.setStatus(notice.Message, true)
			}
		}
		m.sync()
		return m, nil
	case actionDoneMsg:
		if typed.err != nil {
			m.setStatus(syncer.UserMessage(typed.err), true)
		}
		m.sync()
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.isErr = isErr
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC:
		return tea.Quit
	case tea.KeyTab:
		if m.focus == focusThreads && m.hasActive {
			m.focus = focusCompose
		} else {
			m.focus = focusThreads
		}
		return nil
	case tea.KeyEsc:
		if m.hasActive {
			m.engine.CloseThread()
			m.focus = focusThreads
			m.sync()
		}
		return nil
	case tea.KeyCtrlB:
		return m.toggleBlock()
	case tea.KeyCtrlX:
		return m.deleteLastOwn()
	case tea.KeyCtrlD:
		for _, failed := range m.failures {
			_ = m.engine.DismissFailure(failed.LocalID)
		}
		m.sync()
		return nil
	}

	if m.focus == focusCompose {
		return m.handleComposeKey(msg)
	}
	return m.handleListKey(msg)
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.threads)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.threads) == 0 {
			return nil
		}
		thread := m.threads[m.cursor]
		if err := m.engine.OpenThread(m.ctx, thread.ID); err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		m.focus = focusCompose
		m.setStatus("", false)
		m.sync()
	case "q":
		return tea.Quit
	}
	return nil
}

func (m *Model) handleComposeKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		return m.submit()
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeySpace:
		m.input = append(m.input, ' ')
	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
	}
	return nil
}

// submit sends the compose line, or stages a file for "/attach <path>".
func (m *Model) submit() tea.Cmd {
	text := string(m.input)
	if path, ok := strings.CutPrefix(text, "/attach "); ok {
		file, err := staging.NewFileFromPath(strings.TrimSpace(path))
		if err == nil {
			err = m.engine.Stage(file)
		}
		if err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		m.input = m.input[:0]
		m.setStatus("attached "+file.Name, false)
		m.sync()
		return nil
	}
	if strings.TrimSpace(text) == "" && m.staged == 0 {
		return nil
	}

	m.input = m.input[:0]
	m.setStatus("", false)
	ctx, engine := m.ctx, m.engine
	return func() tea.Msg {
		_, err := engine.Send(ctx, text)
		return actionDoneMsg{err: err}
	}
}

func (m *Model) toggleBlock() tea.Cmd {
	target := m.active
	if !m.hasActive {
		if len(m.threads) == 0 {
			return nil
		}
		target = m.threads[m.cursor].ID
	}
	ctx, engine := m.ctx, m.engine
	return func() tea.Msg {
		return actionDoneMsg{err: engine.ToggleBlock(ctx, target)}
	}
}

// deleteLastOwn deletes the newest confirmed message sent by the signed-in user.
func (m *Model) deleteLastOwn() tea.Cmd {
	if !m.hasActive || m.config.SelfUserID == 0 {
		return nil
	}
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.SenderID != m.config.SelfUserID || !msg.ID.IsServer() {
			continue
		}
		if pending, ok := m.engine.MutationFor(msg.ID); ok && !pending.Status.IsTerminal() {
			continue
		}
		ctx, engine, id := m.ctx, m.engine, msg.ID
		return func() tea.Msg {
			return actionDoneMsg{err: engine.Delete(ctx, id)}
		}
	}
	m.setStatus("no message of yours to delete", true)
	return nil
}
