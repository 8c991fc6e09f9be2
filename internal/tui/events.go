package tui

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stacklok/itembrowser/internal/browse"
)

// noticeBuffer bounds the number of undelivered notices
const noticeBuffer = 32

type stateChangedMsg struct{}

type noticeMsg struct {
	notice browse.Notice
}

// Events carries controller callbacks into the bubbletea program. The
// controller calls its listener and notifier from fetch goroutines, so both
// hand off through buffered channels and never block.
type Events struct {
	// changed holds at most one pending state change
	changed chan struct{}
	notices chan browse.Notice
}

// NewEvents creates the event channels for one program
func NewEvents() *Events {
	return &Events{
		changed: make(chan struct{}, 1),
		notices: make(chan browse.Notice, noticeBuffer),
	}
}

// Listener returns the snapshot listener to register with the controller.
// Snapshots are not carried: the model reads the latest one when it handles
// the message, so pending changes coalesce into one.
func (e *Events) Listener() browse.Listener {
	return func(browse.Snapshot) {
		select {
		case e.changed <- struct{}{}:
		default:
		}
	}
}

// Notifier returns the notifier to register with the controller. When the
// buffer is full, an error notice evicts the oldest queued notice; any other
// notice is dropped.
func (e *Events) Notifier() browse.Notifier {
	return func(n browse.Notice) {
		for {
			select {
			case e.notices <- n:
				return
			default:
			}
			if n.Level != browse.NoticeError {
				slog.Debug("Dropping notice, event buffer is full", "title", n.Title)
				return
			}
			select {
			case old := <-e.notices:
				slog.Debug("Dropping queued notice, event buffer is full", "title", old.Title)
			default:
			}
		}
	}
}

// wait blocks until the next controller event
func (e *Events) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-e.changed:
			return stateChangedMsg{}
		case n := <-e.notices:
			return noticeMsg{notice: n}
		}
	}
}
