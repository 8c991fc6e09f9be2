package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/stacklok/itembrowser/internal/items"
)

const (
	nameCharLimit = 200

	msgLoadDetailFailed = "Failed to load item details."
)

type formField int

const (
	fieldName formField = iota
	fieldGroup
)

// formModel hosts the create and edit form. An edit form starts loading and
// becomes editable once the detail record arrives.
type formModel struct {
	id     uuid.UUID
	record *items.Record

	name   textinput.Model
	groups []string
	group  int
	focus  formField

	loading    bool
	loadErr    string
	submitting bool
	err        string

	keys formKeyMap
}

func newNameInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "Item name"
	ti.CharLimit = nameCharLimit
	ti.Width = 40
	ti.Focus()
	return ti
}

func newCreateForm(groups []string) formModel {
	return formModel{
		name:   newNameInput(),
		groups: groups,
		keys:   newFormKeyMap(),
	}
}

func newEditForm(groups []string, id uuid.UUID) formModel {
	f := newCreateForm(groups)
	f.id = id
	f.loading = true
	return f
}

func (f formModel) editing() bool {
	return f.id != uuid.Nil
}

func (f formModel) ready() bool {
	return !f.loading && f.loadErr == "" && !f.submitting
}

func (f formModel) title() string {
	if f.editing() {
		return "Edit Item"
	}
	return "Add Item"
}

// withRecord fills the form from a loaded detail record. A group unknown to
// the form is appended so that saving does not silently move the record.
func (f formModel) withRecord(record *items.Record) formModel {
	f.loading = false
	f.record = record
	f.name.SetValue(record.Name)
	idx := slices.Index(f.groups, record.Group)
	if idx < 0 && record.Group != "" {
		f.groups = append(slices.Clone(f.groups), record.Group)
		idx = len(f.groups) - 1
	}
	f.group = max(idx, 0)
	return f
}

func (f formModel) withLoadError() formModel {
	f.loading = false
	f.loadErr = msgLoadDetailFailed
	return f
}

func (f formModel) withSubmitError(err error) formModel {
	f.submitting = false
	f.err = items.FormMessage(err)
	return f
}

func (f formModel) input() items.Input {
	in := items.Input{Name: strings.TrimSpace(f.name.Value())}
	if len(f.groups) > 0 {
		in.Group = f.groups[f.group]
	}
	return in
}

func (f formModel) update(msg tea.KeyMsg) (formModel, tea.Cmd) {
	if !f.ready() {
		return f, nil
	}

	switch {
	case key.Matches(msg, f.keys.NextField), key.Matches(msg, f.keys.PrevField):
		return f.toggleFocus(), nil
	case f.focus == fieldGroup && key.Matches(msg, f.keys.Cycle):
		if len(f.groups) > 0 {
			step := 1
			if msg.String() == "left" {
				step = len(f.groups) - 1
			}
			f.group = (f.group + step) % len(f.groups)
		}
		return f, nil
	case f.focus == fieldName:
		var cmd tea.Cmd
		f.name, cmd = f.name.Update(msg)
		return f, cmd
	}
	return f, nil
}

func (f formModel) toggleFocus() formModel {
	if f.focus == fieldName {
		f.focus = fieldGroup
		f.name.Blur()
	} else {
		f.focus = fieldName
		f.name.Focus()
	}
	return f
}

func (f formModel) view(spin string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(f.title()))
	b.WriteString("\n\n")

	switch {
	case f.loading:
		b.WriteString(spin + " Loading item...")
		return formStyle.Render(b.String())
	case f.loadErr != "":
		b.WriteString(errorStyle.Render(f.loadErr))
		b.WriteString("\n\n" + footerStyle.Render("esc to close"))
		return formStyle.Render(b.String())
	}

	b.WriteString(fieldLabel("Name", f.focus == fieldName))
	b.WriteString("\n" + f.name.View() + "\n\n")

	b.WriteString(fieldLabel("Group", f.focus == fieldGroup))
	b.WriteString("\n" + f.groupView() + "\n")

	if f.record != nil {
		b.WriteString("\n" + detailView(f.record) + "\n")
	}

	if f.err != "" {
		b.WriteString("\n" + errorStyle.Render(f.err) + "\n")
	}
	if f.submitting {
		b.WriteString("\n" + spin + " Saving...\n")
	}
	return formStyle.Render(b.String())
}

func (f formModel) groupView() string {
	if len(f.groups) == 0 {
		return labelStyle.Render("(no groups)")
	}
	parts := make([]string, len(f.groups))
	for i, g := range f.groups {
		if i == f.group {
			parts[i] = filterStyle.Render("[" + g + "]")
		} else {
			parts[i] = " " + g + " "
		}
	}
	return strings.Join(parts, " ")
}

func fieldLabel(label string, focused bool) string {
	if focused {
		return focusedFieldStyle.Render("> " + label)
	}
	return labelStyle.Render("  " + label)
}

func detailView(record *items.Record) string {
	rows := []string{
		fmt.Sprintf("%-13s%s", "ID", record.ID),
		fmt.Sprintf("%-13s%s", "Created At", formatTime(record.CreatedAt)),
		fmt.Sprintf("%-13s%s", "Last Updated", formatTime(record.UpdatedAt)),
	}
	return labelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
