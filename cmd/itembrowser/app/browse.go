package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/stacklok/itembrowser/internal/browse"
	"github.com/stacklok/itembrowser/internal/tui"
)

// LogFileName is the TUI log file inside the state directory
const LogFileName = "itembrowser.log"

// locationWriteDelay coalesces location writes while the user types a search
const locationWriteDelay = 300 * time.Millisecond

func (c *cli) newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse items in an interactive terminal UI",
		Long: `Browse items in an interactive terminal UI.

Without --location the stored location of the previous session is resumed.
Logs are written to itembrowser.log in the state directory.`,
		Args: cobra.NoArgs,
		RunE: c.runBrowse,
	}
	cmd.Flags().String(flagLocation, "", "Location to open, e.g. '?search=rock&group=Primary'")
	return cmd
}

func (c *cli) runBrowse(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	loc, err := cmd.Flags().GetString(flagLocation)
	if err != nil {
		return fmt.Errorf("failed to read location flag: %w", err)
	}

	logFile, err := c.redirectLogs()
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()

	events := tui.NewEvents()
	sess, err := openSession(ctx, c.cfg, locationWriteDelay,
		browse.WithSnapshotListener(events.Listener()),
		browse.WithNotifier(events.Notifier()),
	)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.ctrl.Start(loc)

	model := tui.New(ctx, sess.ctrl, events, tui.WithWebBaseURL(c.cfg.WebBaseURL()))
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("failed to run terminal UI: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), sess.ctrl.Location())
	return err
}

// redirectLogs sends logs to the state directory while the TUI owns the terminal
func (c *cli) redirectLogs() (*os.File, error) {
	dir, err := c.cfg.StateDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	slog.SetDefault(slog.New(NewLogHandler(logFile, c.cfg.Logging.Format, ParseLogLevel(c.cfg.Logging.Level))))
	return logFile, nil
}
