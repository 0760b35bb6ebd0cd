package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	NextEp   key.Binding
	PrevEp   key.Binding
	Status   key.Binding
	Favorite key.Binding
	Rate     key.Binding
	Delete   key.Binding
	Search   key.Binding
	Filter   key.Binding
	AddByID  key.Binding
	Reload   key.Binding
	Enter    key.Binding
	Escape   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// Keys is the global keymap
var Keys = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	NextEp: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "episode +1"),
	),
	PrevEp: key.NewBinding(
		key.WithKeys("-"),
		key.WithHelp("-", "episode -1"),
	),
	Status: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "cycle status"),
	),
	Favorite: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "favorite"),
	),
	Rate: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "rate"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d", "delete"),
		key.WithHelp("d", "remove"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Filter: key.NewBinding(
		key.WithKeys("ctrl+f"),
		key.WithHelp("C-f", "filter"),
	),
	AddByID: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "add by id"),
	),
	Reload: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("C-r", "reload"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "confirm"),
	),
	Escape: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.NextEp, k.Status, k.Search, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Reload},
		{k.NextEp, k.PrevEp, k.Status, k.Favorite, k.Rate},
		{k.Search, k.Filter, k.AddByID, k.Delete},
		{k.Enter, k.Escape, k.Help, k.Quit},
	}
}
