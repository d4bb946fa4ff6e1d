package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts engine refresh, runs the inbox until the user quits and stops
// refresh on every exit path.
func Run(ctx context.Context, engine Engine) error {
	model := NewModel(engine)
	if err := model.Open(); err != nil {
		return fmt.Errorf("subscribe inbox: %w", err)
	}
	defer model.Close()

	handle, err := engine.Start(ctx)
	if err != nil {
		return fmt.Errorf("start sync: %w", err)
	}
	defer func() { _ = engine.Stop(handle) }()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
