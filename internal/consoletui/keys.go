package consoletui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the console key bindings.
type KeyMap struct {
	Quit     key.Binding
	Up       key.Binding
	Down     key.Binding
	Enter    key.Binding
	Escape   key.Binding
	Name     key.Binding
	Box      key.Binding
	Plug     key.Binding
	Position key.Binding
	Start    key.Binding
	Sigint   key.Binding
	Sigterm  key.Binding
	Sigkill  key.Binding
	Help     key.Binding
}

// DefaultKeyMap returns the default key map for the console.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("k/up", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("j/down", "down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "press"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Name: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "name"),
		),
		Box: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "box"),
		),
		Plug: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "plug"),
		),
		Position: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "set position"),
		),
		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start"),
		),
		Sigint: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "sigint"),
		),
		Sigterm: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "sigterm"),
		),
		Sigkill: key.NewBinding(
			key.WithKeys("K"),
			key.WithHelp("K", "sigkill"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Start, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter, k.Escape},
		{k.Name, k.Box, k.Plug, k.Position},
		{k.Start, k.Sigint, k.Sigterm, k.Sigkill},
		{k.Help, k.Quit},
	}
}
