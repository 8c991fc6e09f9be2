package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/stacklok/itembrowser/internal/browse"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	filterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	emptyStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241")).Padding(1, 2)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))

	formStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)

	focusedFieldStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)

	noticeStyles = map[browse.NoticeLevel]lipgloss.Style{
		browse.NoticeInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		browse.NoticeSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		browse.NoticeError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)
