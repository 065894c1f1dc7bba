package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg drives the periodic status refresh.
type TickMsg time.Time

const refreshInterval = 500 * time.Millisecond

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
