package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/itembrowser/internal/browse"
	"github.com/stacklok/itembrowser/internal/items"
)

type fakeBrowser struct {
	mu       sync.Mutex
	snap     browse.Snapshot
	location string
	calls    []string
	searches []string
	groupSet []string

	detail    *items.Record
	detailErr error
	saveErr   error
	created   []items.Input
	updated   map[uuid.UUID]items.Input
	deleted   []uuid.UUID
}

func newFakeBrowser(page browse.Page) *fakeBrowser {
	return &fakeBrowser{
		snap:    browse.Snapshot{Seq: 1, State: browse.StateLoaded, Page: page},
		updated: map[uuid.UUID]items.Input{},
	}
}

func (f *fakeBrowser) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBrowser) publish(snap browse.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap.Seq = f.snap.Seq + 1
	f.snap = snap
}

func (f *fakeBrowser) Snapshot() browse.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeBrowser) Location() string { return f.location }
func (*fakeBrowser) Groups() []string   { return []string{"Primary", "Secondary"} }

func (f *fakeBrowser) SetSearch(search string) {
	f.record("search")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, search)
	f.snap.Intent = f.snap.Intent.WithSearch(search)
}

func (f *fakeBrowser) SetGroup(group string) {
	f.record("group")
	f.groupSet = append(f.groupSet, group)
	f.snap.Intent = f.snap.Intent.WithGroup(group)
}

func (f *fakeBrowser) GoNext() bool { f.record("next"); return true }
func (f *fakeBrowser) GoPrev() bool { f.record("prev"); return true }
func (f *fakeBrowser) GoHome()      { f.record("home") }
func (f *fakeBrowser) Refresh()     { f.record("refresh") }

func (f *fakeBrowser) Get(_ context.Context, _ uuid.UUID) (*items.Record, error) {
	return f.detail, f.detailErr
}

func (f *fakeBrowser) Create(_ context.Context, input items.Input) (*items.Record, error) {
	f.created = append(f.created, input)
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.publish(browse.Snapshot{State: browse.StateLoading, Intent: browse.AfterCreate()})
	return &items.Record{ID: uuid.New(), Name: input.Name, Group: input.Group}, nil
}

func (f *fakeBrowser) Update(_ context.Context, id uuid.UUID, input items.Input) (*items.Record, error) {
	f.updated[id] = input
	return &items.Record{ID: id, Name: input.Name, Group: input.Group}, f.saveErr
}

func (f *fakeBrowser) Delete(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func testRecords(names ...string) []items.Record {
	out := make([]items.Record, len(names))
	for i, n := range names {
		out[i] = items.Record{ID: uuid.New(), Name: n, Group: "Primary"}
	}
	return out
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		m, cmd = send(t, m, keyMsg(k))
	}
	return m, cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m, _ = press(t, m, string(r))
	}
	return m
}

func newTestModel(b *fakeBrowser, opts ...Option) Model {
	m := New(context.Background(), b, NewEvents(), opts...)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func TestModel_View(t *testing.T) {
	t.Parallel()

	t.Run("empty page", func(t *testing.T) {
		t.Parallel()
		m := newTestModel(newFakeBrowser(browse.Page{}))
		view := m.View()
		assert.Contains(t, view, "Inventory Dashboard")
		assert.Contains(t, view, "No items found.")
		assert.Contains(t, view, "First Page")
		assert.Contains(t, view, "All Groups")
	})

	t.Run("page with history", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{Records: testRecords("Anvil", "Bellows"), PrevCursor: "p1"})
		m := newTestModel(b)
		view := m.View()
		assert.Contains(t, view, "Anvil")
		assert.Contains(t, view, "Bellows")
		assert.Contains(t, view, "Browsing history...")
		assert.NotContains(t, view, "No items found.")
	})

	t.Run("loading marker", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{})
		m := newTestModel(b)
		b.publish(browse.Snapshot{State: browse.StateLoading})
		m, _ = send(t, m, stateChangedMsg{})
		assert.Contains(t, m.View(), "Loading...")
	})
}

func TestModel_StateChangedReplacesRows(t *testing.T) {
	t.Parallel()

	b := newFakeBrowser(browse.Page{Records: testRecords("Anvil")})
	m := newTestModel(b)

	b.publish(browse.Snapshot{State: browse.StateLoaded, Page: browse.Page{Records: testRecords("Chisel", "Drill")}})
	m, cmd := send(t, m, stateChangedMsg{})
	require.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "Chisel")
	assert.Contains(t, view, "Drill")
	assert.NotContains(t, view, "Anvil")
}

func TestModel_Navigation(t *testing.T) {
	t.Parallel()

	b := newFakeBrowser(browse.Page{Records: testRecords("Anvil")})
	m := newTestModel(b)

	m, _ = press(t, m, "n", "right", "p", "left", "r")
	assert.Equal(t, []string{"next", "next", "prev", "prev", "refresh"}, b.calls)

	m, _ = press(t, m, "/")
	m = typeText(t, m, "ro")
	m, _ = press(t, m, "esc")
	assert.Equal(t, []string{"r", "ro"}, b.searches)
	assert.Equal(t, "ro", m.search.Value())

	m, _ = press(t, m, "H")
	assert.Equal(t, "home", b.calls[len(b.calls)-1])
	assert.Empty(t, m.search.Value())
}

func TestModel_SearchModeSwallowsShortcuts(t *testing.T) {
	t.Parallel()

	b := newFakeBrowser(browse.Page{})
	m := newTestModel(b)

	m, _ = press(t, m, "/")
	m = typeText(t, m, "nq")
	assert.Equal(t, []string{"n", "nq"}, b.searches)
	assert.NotContains(t, b.calls, "next")

	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.Equal(t, modeList, m.mode)
}

func TestModel_GroupCycle(t *testing.T) {
	t.Parallel()

	b := newFakeBrowser(browse.Page{})
	m := newTestModel(b)

	m, _ = press(t, m, "g")
	assert.Contains(t, m.View(), "Primary")
	m, _ = press(t, m, "g", "g")
	assert.Equal(t, []string{"Primary", "Secondary", ""}, b.groupSet)
}

func TestNextGroup(t *testing.T) {
	t.Parallel()

	groups := []string{"Primary", "Secondary"}
	tests := []struct {
		current string
		want    string
	}{
		{current: "", want: "Primary"},
		{current: "Primary", want: "Secondary"},
		{current: "Secondary", want: ""},
		{current: "Unknown", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextGroup(groups, tt.current), "from %q", tt.current)
	}
	assert.Empty(t, nextGroup(nil, ""))
}

func TestModel_Delete(t *testing.T) {
	t.Parallel()

	t.Run("confirmed", func(t *testing.T) {
		t.Parallel()
		records := testRecords("Anvil", "Bellows")
		b := newFakeBrowser(browse.Page{Records: records})
		m := newTestModel(b)

		m, _ = press(t, m, "down", "d")
		assert.Contains(t, m.View(), "Are you sure you want to delete this item? (y/n)")

		m, cmd := press(t, m, "y")
		require.NotNil(t, cmd)
		assert.Equal(t, deletedMsg{}, cmd())
		assert.Equal(t, []uuid.UUID{records[1].ID}, b.deleted)
		assert.Equal(t, modeList, m.mode)
	})

	t.Run("declined", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{Records: testRecords("Anvil")})
		m := newTestModel(b)

		m, _ = press(t, m, "d")
		m, cmd := press(t, m, "n")
		assert.Nil(t, cmd)
		assert.Empty(t, b.deleted)
		assert.NotContains(t, m.View(), "Are you sure")
	})

	t.Run("nothing selected", func(t *testing.T) {
		t.Parallel()
		m := newTestModel(newFakeBrowser(browse.Page{}))
		m, _ = press(t, m, "d")
		assert.Equal(t, modeList, m.mode)
	})
}

func TestModel_EditForm(t *testing.T) {
	t.Parallel()

	records := testRecords("Anvil")
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("loads detail and saves", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{Records: records})
		b.detail = &items.Record{ID: records[0].ID, Name: "Anvil", Group: "Primary", CreatedAt: &created, UpdatedAt: &created}
		m := newTestModel(b)

		m, cmd := press(t, m, "e")
		require.NotNil(t, cmd)
		assert.Contains(t, m.View(), "Loading item...")

		m, _ = send(t, m, cmd())
		view := m.View()
		assert.Contains(t, view, records[0].ID.String())
		assert.Contains(t, view, "Created At")
		assert.Contains(t, view, "Last Updated")
		assert.Equal(t, "Anvil", m.form.name.Value())

		m, _ = press(t, m, "tab", "right")
		m, cmd = press(t, m, "enter")
		require.NotNil(t, cmd)
		m, _ = send(t, m, cmd())

		assert.Equal(t, items.Input{Name: "Anvil", Group: "Secondary"}, b.updated[records[0].ID])
		assert.Equal(t, modeList, m.mode)
	})

	t.Run("detail failure", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{Records: records})
		b.detailErr = errors.New("boom")
		m := newTestModel(b)

		m, cmd := press(t, m, "enter")
		m, _ = send(t, m, cmd())
		assert.Contains(t, m.View(), "Failed to load item details.")

		m, cmd = press(t, m, "enter")
		assert.Nil(t, cmd)
		assert.Empty(t, b.updated)

		m, _ = press(t, m, "esc")
		assert.Equal(t, modeList, m.mode)
	})

	t.Run("stale detail ignored", func(t *testing.T) {
		t.Parallel()
		m := newTestModel(newFakeBrowser(browse.Page{Records: records}))
		m, _ = press(t, m, "e")
		m, _ = send(t, m, detailLoadedMsg{id: uuid.New(), record: &items.Record{Name: "other"}})
		assert.True(t, m.form.loading)
	})
}

func TestModel_CreateForm(t *testing.T) {
	t.Parallel()

	t.Run("validation error keeps form open", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{})
		b.saveErr = &items.ValidationError{Fields: map[string][]string{"name": {"This field is required."}}}
		m := newTestModel(b)

		m, _ = press(t, m, "a")
		assert.Contains(t, m.View(), "Add Item")
		m, cmd := press(t, m, "enter")
		m, _ = send(t, m, cmd())

		assert.Equal(t, modeForm, m.mode)
		assert.Contains(t, m.View(), "name: This field is required.")
	})

	t.Run("transport error keeps form open", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{})
		b.saveErr = &items.TransportError{Op: "create", Err: errors.New("connection refused")}
		m := newTestModel(b)

		m, _ = press(t, m, "a")
		m = typeText(t, m, "Drill")
		m, cmd := press(t, m, "enter")
		m, _ = send(t, m, cmd())

		assert.Equal(t, modeForm, m.mode)
		assert.Contains(t, m.View(), items.DefaultValidationMessage)
	})

	t.Run("success closes form", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{})
		m := newTestModel(b)

		m, _ = press(t, m, "a")
		m = typeText(t, m, " Drill ")
		m, cmd := press(t, m, "enter")
		m, _ = send(t, m, cmd())

		assert.Equal(t, modeList, m.mode)
		assert.Equal(t, []items.Input{{Name: "Drill", Group: "Primary"}}, b.created)
	})

	t.Run("success clears active search", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{Records: testRecords("Rock Drill")})
		m := newTestModel(b)

		m, _ = press(t, m, "/")
		m = typeText(t, m, "rock")
		m, _ = press(t, m, "enter")
		require.Equal(t, "rock", m.search.Value())

		m, _ = press(t, m, "a")
		m = typeText(t, m, "Drill")
		m, cmd := press(t, m, "enter")
		m, _ = send(t, m, cmd())

		assert.Equal(t, modeList, m.mode)
		assert.Empty(t, m.search.Value())
		assert.NotContains(t, m.View(), "rock")

		// The next search starts from an empty box
		m, _ = press(t, m, "/")
		typeText(t, m, "x")
		assert.Equal(t, "x", b.searches[len(b.searches)-1])
	})
}

func TestModel_Notices(t *testing.T) {
	t.Parallel()

	m := newTestModel(newFakeBrowser(browse.Page{}))

	m, cmd := send(t, m, noticeMsg{notice: browse.Notice{Level: browse.NoticeSuccess, Title: "Item deleted", Duration: time.Second}})
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Item deleted")
	first := m.noticeID

	m, _ = send(t, m, noticeMsg{notice: browse.Notice{Level: browse.NoticeError, Title: "Error fetching items", Detail: "boom", Duration: time.Second}})
	m, _ = send(t, m, noticeExpiredMsg{id: first})
	assert.Contains(t, m.View(), "Error fetching items: boom")

	m, _ = send(t, m, noticeExpiredMsg{id: m.noticeID})
	assert.NotContains(t, m.View(), "Error fetching items")
}

func TestModel_LocationAndOpen(t *testing.T) {
	t.Parallel()

	t.Run("show location", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{})
		b.location = "?search=rock"
		m := newTestModel(b)
		m, _ = press(t, m, "y")
		assert.Contains(t, m.View(), "?search=rock")
	})

	t.Run("open without web ui", func(t *testing.T) {
		t.Parallel()
		m := newTestModel(newFakeBrowser(browse.Page{}))
		m, _ = press(t, m, "o")
		assert.Contains(t, m.View(), "No web UI configured")
	})

	t.Run("open with web ui", func(t *testing.T) {
		t.Parallel()
		b := newFakeBrowser(browse.Page{})
		b.location = "?group=Primary"
		var opened string
		m := newTestModel(b,
			WithWebBaseURL("http://localhost:5173/"),
			WithURLOpener(func(url string) error {
				opened = url
				return errors.New("no display")
			}),
		)

		m, cmd := press(t, m, "o")
		require.NotNil(t, cmd)
		m, _ = send(t, m, cmd())
		assert.Equal(t, "http://localhost:5173/?group=Primary", opened)
		assert.Contains(t, m.View(), "Could not open browser")
	})
}

func TestModel_Quit(t *testing.T) {
	t.Parallel()

	m := newTestModel(newFakeBrowser(browse.Page{}))
	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestEvents_DoNotBlock(t *testing.T) {
	t.Parallel()

	events := NewEvents()
	listener := events.Listener()
	notifier := events.Notifier()
	for range noticeBuffer * 2 {
		listener(browse.Snapshot{})
		notifier(browse.Notice{Level: browse.NoticeSuccess, Title: "x"})
	}

	var changes, notices int
	for range noticeBuffer + 1 {
		switch events.wait()().(type) {
		case stateChangedMsg:
			changes++
		case noticeMsg:
			notices++
		}
	}
	assert.Equal(t, 1, changes)
	assert.Equal(t, noticeBuffer, notices)
}

func TestEvents_ErrorNoticeIsNotDropped(t *testing.T) {
	t.Parallel()

	events := NewEvents()
	notifier := events.Notifier()
	for range noticeBuffer {
		notifier(browse.Notice{Level: browse.NoticeSuccess, Title: "Item deleted"})
	}
	notifier(browse.Notice{Level: browse.NoticeError, Title: "Error fetching items"})
	notifier(browse.Notice{Level: browse.NoticeInfo, Title: "dropped"})

	var titles []string
	for range noticeBuffer {
		msg, ok := events.wait()().(noticeMsg)
		require.True(t, ok)
		titles = append(titles, msg.notice.Title)
	}
	assert.Equal(t, "Error fetching items", titles[len(titles)-1])
	assert.NotContains(t, titles, "dropped")
}
