package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of a TreeControl. It satisfies
// help.KeyMap so a Footer can render it.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	Home     key.Binding
	End      key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Parent   key.Binding
	Toggle   key.Binding
	Activate key.Binding
}

// DefaultKeyMap returns the default tree bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "collapse"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "expand"),
		),
		Home: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "top"),
		),
		End: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", "bottom"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("ctrl+u", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("ctrl+d", "page down"),
		),
		Parent: key.NewBinding(
			key.WithKeys("p", "backspace"),
			key.WithHelp("p", "parent"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "toggle"),
		),
		Activate: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Activate}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Home, k.End, k.Parent},
		{k.Left, k.Right, k.Toggle, k.Activate},
	}
}

// DirKeyMap adds the directory tree bindings to KeyMap.
type DirKeyMap struct {
	KeyMap
	Refresh  key.Binding
	CopyPath key.Binding
}

// DefaultDirKeyMap returns the default directory tree bindings.
func DefaultDirKeyMap() DirKeyMap {
	return DirKeyMap{
		KeyMap: DefaultKeyMap(),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		CopyPath: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy path"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k DirKeyMap) ShortHelp() []key.Binding {
	return append(k.KeyMap.ShortHelp(), k.Refresh, k.CopyPath)
}

// FullHelp implements help.KeyMap.
func (k DirKeyMap) FullHelp() [][]key.Binding {
	return append(k.KeyMap.FullHelp(), []key.Binding{k.Refresh, k.CopyPath})
}
