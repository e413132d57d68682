package consoletui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the console full screen until the operator quits or ctx ends.
// Quitting cancels nothing itself; the caller stops the connection.
func Run(ctx context.Context, ctl Controller, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(ctl), append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)

	// Bridge goroutine: every console change becomes a SnapshotMsg.
	go func() {
		changed := ctl.Changed()
		for {
			select {
			case <-ctx.Done():
				p.Quit()
				return
			case <-changed:
				p.Send(SnapshotMsg(ctl.Snapshot()))
			}
		}
	}()

	_, err := p.Run()
	return err
}
