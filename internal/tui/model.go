// Package tui renders the item browser as a bubbletea program. The model
// holds no paging state of its own: it calls into a browse.Controller and
// redraws from the controller's latest snapshot.
package tui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/pkg/browser"

	"github.com/stacklok/itembrowser/internal/browse"
	"github.com/stacklok/itembrowser/internal/items"
)

const (
	appTitle       = "Inventory Dashboard"
	allGroupsLabel = "All Groups"
	confirmDelete  = "Are you sure you want to delete this item? (y/n)"
	emptyPage      = "No items found."

	// chromeHeight is the number of lines around the table
	chromeHeight = 10
	minRows      = 3

	locationNoticeDuration = 5 * time.Second
)

// Browser is the part of browse.Controller the model drives
type Browser interface {
	Snapshot() browse.Snapshot
	Location() string
	Groups() []string
	SetSearch(search string)
	SetGroup(group string)
	GoNext() bool
	GoPrev() bool
	GoHome()
	Refresh()
	Get(ctx context.Context, id uuid.UUID) (*items.Record, error)
	Create(ctx context.Context, input items.Input) (*items.Record, error)
	Update(ctx context.Context, id uuid.UUID, input items.Input) (*items.Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type mode int

const (
	modeList mode = iota
	modeSearch
	modeConfirmDelete
	modeForm
)

type (
	noticeExpiredMsg struct{ id int }
	detailLoadedMsg  struct {
		id     uuid.UUID
		record *items.Record
		err    error
	}
	formSubmittedMsg struct{ err error }
	deletedMsg       struct{ err error }
	openedMsg        struct{ err error }
)

// Option configures a Model
type Option func(*Model)

// WithWebBaseURL enables the open key, which opens the current location
// under baseURL
func WithWebBaseURL(baseURL string) Option {
	return func(m *Model) {
		m.webBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithURLOpener replaces the function used to open the web UI
func WithURLOpener(open func(url string) error) Option {
	return func(m *Model) {
		m.openURL = open
	}
}

// Model is the root bubbletea model
type Model struct {
	ctx     context.Context
	browser Browser
	events  *Events

	mode    mode
	records []items.Record
	seq     uint64

	table   table.Model
	search  textinput.Model
	spinner spinner.Model
	help    help.Model
	keys    listKeyMap
	form    formModel

	pendingDelete uuid.UUID

	notice   *browse.Notice
	noticeID int

	webBaseURL string
	openURL    func(url string) error

	width  int
	height int
}

// New creates the model. events must be the same Events whose listener and
// notifier were registered with the controller behind b.
func New(ctx context.Context, b Browser, events *Events, opts ...Option) Model {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "Search items"
	search.CharLimit = nameCharLimit
	search.SetValue(b.Snapshot().Intent.Search)

	t := table.New(
		table.WithColumns(columnsFor(80)),
		table.WithFocused(true),
		table.WithHeight(minRows),
	)

	m := Model{
		ctx:     ctx,
		browser: b,
		events:  events,
		table:   t,
		search:  search,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:    help.New(),
		keys:    newListKeyMap(),
		openURL: browser.OpenURL,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.syncSnapshot()
	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.events.wait(), m.spinner.Tick)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.table.SetColumns(columnsFor(msg.Width))
		m.table.SetHeight(max(msg.Height-chromeHeight, minRows))
		return m, nil

	case stateChangedMsg:
		m.syncSnapshot()
		return m, m.events.wait()

	case noticeMsg:
		cmd := m.showNotice(msg.notice)
		return m, tea.Batch(cmd, m.events.wait())

	case noticeExpiredMsg:
		if msg.id == m.noticeID {
			m.notice = nil
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case detailLoadedMsg:
		if m.mode != modeForm || m.form.id != msg.id {
			return m, nil
		}
		if msg.err != nil {
			slog.Error("Failed to load item details", "id", msg.id, "error", msg.err)
			m.form = m.form.withLoadError()
			return m, nil
		}
		m.form = m.form.withRecord(msg.record)
		return m, nil

	case formSubmittedMsg:
		if m.mode != modeForm {
			return m, nil
		}
		if msg.err != nil {
			slog.Warn("Item was not saved", "error", msg.err)
			m.form = m.form.withSubmitError(msg.err)
			return m, nil
		}
		m.mode = modeList
		m.syncSnapshot()
		return m, nil

	case deletedMsg:
		if msg.err != nil {
			slog.Debug("Delete finished with error", "error", msg.err)
		}
		return m, nil

	case openedMsg:
		if msg.err == nil {
			return m, nil
		}
		slog.Error("Failed to open browser", "error", msg.err)
		cmd := m.showNotice(browse.Notice{
			Level:    browse.NoticeError,
			Title:    "Could not open browser",
			Detail:   msg.err.Error(),
			Duration: locationNoticeDuration,
		})
		return m, cmd

	case tea.KeyMsg:
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeConfirmDelete:
			return m.updateConfirm(msg)
		case modeForm:
			return m.updateForm(msg)
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Next):
		m.browser.GoNext()
	case key.Matches(msg, m.keys.Prev):
		m.browser.GoPrev()
	case key.Matches(msg, m.keys.Home):
		m.search.SetValue("")
		m.browser.GoHome()
	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Group):
		m.browser.SetGroup(nextGroup(m.browser.Groups(), m.browser.Snapshot().Intent.Group))
	case key.Matches(msg, m.keys.Refresh):
		m.browser.Refresh()
	case key.Matches(msg, m.keys.Show):
		cmd := m.showNotice(browse.Notice{
			Level:    browse.NoticeInfo,
			Title:    "Location",
			Detail:   locationOrHome(m.browser.Location()),
			Duration: locationNoticeDuration,
		})
		return m, cmd
	case key.Matches(msg, m.keys.Open):
		cmd := m.open()
		return m, cmd
	case key.Matches(msg, m.keys.Add):
		m.mode = modeForm
		m.form = newCreateForm(m.browser.Groups())
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Edit):
		record, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.mode = modeForm
		m.form = newEditForm(m.browser.Groups(), record.ID)
		return m, m.loadDetail(record.ID)
	case key.Matches(msg, m.keys.Delete):
		record, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.mode = modeConfirmDelete
		m.pendingDelete = record.ID
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

// updateSearch forwards keystrokes to the search box. Every change of the
// value triggers a fetch; superseded fetches are discarded by the controller.
func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.mode = modeList
		m.search.Blur()
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}

	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() != before {
		m.browser.SetSearch(m.search.Value())
	}
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y":
		id := m.pendingDelete
		m.mode = modeList
		m.pendingDelete = uuid.Nil
		return m, m.deleteRecord(id)
	case "n", "esc":
		m.mode = modeList
		m.pendingDelete = uuid.Nil
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, m.form.keys.Cancel):
		m.mode = modeList
		return m, nil
	case key.Matches(msg, m.form.keys.Submit):
		if !m.form.ready() {
			return m, nil
		}
		m.form.submitting = true
		m.form.err = ""
		return m, m.submit(m.form)
	}

	var cmd tea.Cmd
	m.form, cmd = m.form.update(msg)
	return m, cmd
}

func (m Model) loadDetail(id uuid.UUID) tea.Cmd {
	ctx := m.ctx
	b := m.browser
	return func() tea.Msg {
		record, err := b.Get(ctx, id)
		return detailLoadedMsg{id: id, record: record, err: err}
	}
}

func (m Model) submit(f formModel) tea.Cmd {
	ctx := m.ctx
	b := m.browser
	input := f.input()
	id := f.id
	return func() tea.Msg {
		var err error
		if id == uuid.Nil {
			_, err = b.Create(ctx, input)
		} else {
			_, err = b.Update(ctx, id, input)
		}
		return formSubmittedMsg{err: err}
	}
}

func (m Model) deleteRecord(id uuid.UUID) tea.Cmd {
	ctx := m.ctx
	b := m.browser
	return func() tea.Msg {
		return deletedMsg{err: b.Delete(ctx, id)}
	}
}

func (m *Model) open() tea.Cmd {
	if m.webBaseURL == "" {
		return m.showNotice(browse.Notice{
			Level:    browse.NoticeInfo,
			Title:    "No web UI configured",
			Detail:   "Set web.baseURL in the configuration file.",
			Duration: locationNoticeDuration,
		})
	}
	target := m.webBaseURL + "/" + m.browser.Location()
	open := m.openURL
	return func() tea.Msg {
		return openedMsg{err: open(target)}
	}
}

// showNotice replaces the status line and schedules its expiry. A newer
// notice invalidates the pending expiry of the one it replaces.
func (m *Model) showNotice(n browse.Notice) tea.Cmd {
	m.noticeID++
	m.notice = &n
	id := m.noticeID
	return tea.Tick(n.Duration, func(time.Time) tea.Msg {
		return noticeExpiredMsg{id: id}
	})
}

// syncSnapshot copies the controller's latest page into the table. The
// search box follows the intent unless the user is typing in it.
func (m *Model) syncSnapshot() {
	snap := m.browser.Snapshot()
	if snap.Seq != 0 && snap.Seq <= m.seq {
		return
	}
	m.seq = snap.Seq
	m.records = snap.Page.Records
	if !m.search.Focused() && m.search.Value() != snap.Intent.Search {
		m.search.SetValue(snap.Intent.Search)
	}

	rows := make([]table.Row, len(m.records))
	for i, r := range m.records {
		rows[i] = table.Row{r.Name, r.Group}
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(max(len(rows)-1, 0))
	}
}

func (m Model) selected() (items.Record, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.records) {
		return items.Record{}, false
	}
	return m.records[idx], true
}

// View implements tea.Model
func (m Model) View() string {
	if m.mode == modeForm {
		return m.form.view(m.spinner.View()) + "\n" + m.help.View(m.form.keys)
	}

	snap := m.browser.Snapshot()
	var b strings.Builder

	b.WriteString(titleStyle.Render(appTitle))
	b.WriteString("\n\n")
	b.WriteString(m.filterLine(snap.Intent))
	b.WriteString("\n\n")

	if len(m.records) == 0 {
		b.WriteString(emptyStyle.Render(emptyPage))
	} else {
		b.WriteString(m.table.View())
	}
	b.WriteString("\n")
	b.WriteString(m.footer(snap))
	b.WriteString("\n")

	switch {
	case m.mode == modeConfirmDelete:
		b.WriteString(promptStyle.Render(confirmDelete))
	case m.notice != nil:
		b.WriteString(noticeLine(*m.notice))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) filterLine(intent browse.Intent) string {
	group := intent.Group
	if group == "" {
		group = allGroupsLabel
	}
	return m.search.View() + "   " + labelStyle.Render("Group: ") + filterStyle.Render(group)
}

func (m Model) footer(snap browse.Snapshot) string {
	parts := []string{}
	if snap.Page.HasPrev() {
		parts = append(parts, "Browsing history...")
	} else {
		parts = append(parts, "First Page")
	}
	if snap.Page.HasNext() {
		parts = append(parts, "more →")
	}
	footer := footerStyle.Render(strings.Join(parts, "  ·  "))
	if snap.State == browse.StateLoading {
		footer += "  " + m.spinner.View() + " Loading..."
	}
	return footer
}

func noticeLine(n browse.Notice) string {
	style, ok := noticeStyles[n.Level]
	if !ok {
		style = noticeStyles[browse.NoticeInfo]
	}
	text := n.Title
	if n.Detail != "" {
		text += ": " + n.Detail
	}
	return style.Render(text)
}

// nextGroup cycles "" → groups[0] → ... → groups[n-1] → ""
func nextGroup(groups []string, current string) string {
	if current == "" {
		if len(groups) == 0 {
			return ""
		}
		return groups[0]
	}
	for i, g := range groups {
		if g == current && i+1 < len(groups) {
			return groups[i+1]
		}
	}
	return ""
}

func locationOrHome(loc string) string {
	if loc == "" {
		return "(first page)"
	}
	return loc
}

func columnsFor(width int) []table.Column {
	groupWidth := 16
	nameWidth := max(width-groupWidth-6, 20)
	return []table.Column{
		{Title: "Name", Width: nameWidth},
		{Title: "Group", Width: groupWidth},
	}
}
