package ui

import (
	"slices"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/arbor/pkg/tree"
)

// Event is a notification emitted by a widget. Every event is also a tea.Msg,
// so a parent model receives it in Update as well as through Subscribe.
type Event interface {
	widgetEvent()
}

// TreeClick is emitted whenever a tree node is activated.
type TreeClick[T any] struct {
	Node tree.NodeID
	Data T
}

// FileClick is emitted when a file (never a directory) is activated in a
// DirectoryTree.
type FileClick struct {
	Path string
}

// ListingFailed is emitted when a directory could not be listed. On a first
// load the directory stays collapsed and can be expanded again to retry; a
// failed reload keeps the children already shown.
type ListingFailed struct {
	Node tree.NodeID
	Path string
	Err  error // a *loader.ListingError
}

// CursorMoved is emitted after key or mouse input moves a tree's cursor to
// another node. Row is the cursor's index in the visible rows, for parents
// that scroll the control themselves.
type CursorMoved struct {
	Node tree.NodeID
	Row  int
}

// ButtonPressed is emitted when a Button is pressed.
type ButtonPressed struct {
	ID string
}

func (TreeClick[T]) widgetEvent()  {}
func (FileClick) widgetEvent()     {}
func (ListingFailed) widgetEvent() {}
func (CursorMoved) widgetEvent()   {}
func (ButtonPressed) widgetEvent() {}

type observer struct {
	id int
	fn func(Event)
}

// observers fans events out to subscribers in registration order.
type observers struct {
	list []observer
	next int
}

func (o *observers) subscribe(fn func(Event)) (cancel func()) {
	o.next++
	id := o.next
	o.list = append(o.list, observer{id: id, fn: fn})
	return func() {
		o.list = slices.DeleteFunc(o.list, func(ob observer) bool { return ob.id == id })
	}
}

// emit delivers events synchronously to every observer, then returns a
// command that replays them, in order, as messages.
func (o *observers) emit(events ...Event) tea.Cmd {
	if len(events) == 0 {
		return nil
	}
	subs := slices.Clone(o.list)
	for _, ev := range events {
		for _, s := range subs {
			s.fn(ev)
		}
	}
	cmds := make([]tea.Cmd, len(events))
	for i, ev := range events {
		cmds[i] = func() tea.Msg { return ev }
	}
	if len(cmds) == 1 {
		return cmds[0]
	}
	return tea.Sequence(cmds...)
}
