package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/tOgg1/parley/internal/events"
	"github.com/tOgg1/parley/internal/models"
)

// Surface is the poll control the TUI toggles while it is on screen.
type Surface interface {
	ShowSurface()
	HideSurface()
}

// Run shows the TUI until the user quits or ctx is cancelled. Engine events
// from publisher trigger a re-render.
func Run(ctx context.Context, engine Engine, surface Surface, publisher events.Publisher, config Config) error {
	model := NewModel(ctx, engine, config)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	subscriber := "tui-" + uuid.NewString()
	if err := publisher.Subscribe(subscriber, events.Filter{}, func(event *models.Event) {
		program.Send(engineEventMsg{event: event})
	}); err != nil {
		return err
	}
	defer publisher.Unsubscribe(subscriber)

	surface.ShowSurface()
	defer surface.HideSurface()

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
