package tui

import "github.com/charmbracelet/bubbles/key"

type listKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Next    key.Binding
	Prev    key.Binding
	Home    key.Binding
	Search  key.Binding
	Group   key.Binding
	Add     key.Binding
	Edit    key.Binding
	Delete  key.Binding
	Refresh key.Binding
	Show    key.Binding
	Open    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func newListKeyMap() listKeyMap {
	return listKeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Next:    key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n/→", "next page")),
		Prev:    key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p/←", "previous page")),
		Home:    key.NewBinding(key.WithKeys("home", "H"), key.WithHelp("H", "home")),
		Search:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Group:   key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "group")),
		Add:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
		Edit:    key.NewBinding(key.WithKeys("enter", "e"), key.WithHelp("e", "edit")),
		Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Show:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "location")),
		Open:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open in browser")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap
func (k listKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.Search, k.Group, k.Add, k.Edit, k.Delete, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k listKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Next, k.Prev, k.Home},
		{k.Search, k.Group, k.Refresh, k.Show, k.Open},
		{k.Add, k.Edit, k.Delete, k.Help, k.Quit},
	}
}

type formKeyMap struct {
	NextField key.Binding
	PrevField key.Binding
	Cycle     key.Binding
	Submit    key.Binding
	Cancel    key.Binding
}

func newFormKeyMap() formKeyMap {
	return formKeyMap{
		NextField: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next field")),
		PrevField: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous field")),
		Cycle:     key.NewBinding(key.WithKeys("left", "right"), key.WithHelp("←/→", "change group")),
		Submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
		Cancel:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

// ShortHelp implements help.KeyMap
func (k formKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextField, k.Cycle, k.Submit, k.Cancel}
}

// FullHelp implements help.KeyMap
func (k formKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.NextField, k.PrevField, k.Cycle}, {k.Submit, k.Cancel}}
}
