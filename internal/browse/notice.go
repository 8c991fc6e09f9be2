package browse

import "time"

// NoticeLevel is the severity of a Notice
type NoticeLevel string

// Notice levels
const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message for the user
type Notice struct {
	Level  NoticeLevel
	Title  string
	Detail string
	// Duration is how long the notice stays visible
	Duration time.Duration
}

// Notifier receives notices. It is called from the goroutine that produced
// the notice and must not block.
type Notifier func(Notice)

const (
	successNoticeDuration = 2 * time.Second
	infoNoticeDuration    = 3 * time.Second
	errorNoticeDuration   = 5 * time.Second
)

func errorNotice(title string, err error) Notice {
	n := Notice{Level: NoticeError, Title: title, Duration: errorNoticeDuration}
	if err != nil {
		n.Detail = err.Error()
	}
	return n
}

var (
	noticeStepBack = Notice{
		Level:    NoticeInfo,
		Title:    "Page empty, moved to previous page",
		Duration: infoNoticeDuration,
	}
	noticeDeleted = Notice{
		Level:    NoticeSuccess,
		Title:    "Item deleted",
		Duration: successNoticeDuration,
	}
	noticeCreated = Notice{
		Level:    NoticeSuccess,
		Title:    "Item Created",
		Detail:   "Jumping to start of list to show your new item.",
		Duration: infoNoticeDuration,
	}
	noticeUpdated = Notice{
		Level:    NoticeSuccess,
		Title:    "Item Updated",
		Duration: successNoticeDuration,
	}
)
