package app

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/itembrowser/internal/browse"
)

// withNotices reports controller notices on the command's stderr
func withNotices(cmd *cobra.Command) browse.Option {
	return browse.WithNotifier(printNotices(cmd.ErrOrStderr()))
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
