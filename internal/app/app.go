// Package app holds the interactive watch screen. It polls the link
// coordinator on a timer and renders a per-lens status panel.
package app

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/glasskit/lenslink/internal/bluetooth"
	"github.com/glasskit/lenslink/internal/link"
)

// Model is the bubbletea model behind `lenslink watch`.
type Model struct {
	coord  *link.Coordinator
	status link.Status
	width  int
	height int
	notice string
}

func NewModel(coord *link.Coordinator) Model {
	return Model{coord: coord, status: coord.Status()}
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.coord.DisconnectBoth()
			return m, tea.Quit
		case "r":
			m.notice = "reconnecting"
			go m.coord.Reconnect()
			return m, nil
		case "s":
			on := !m.status.SilentMode
			m.coord.SetSilentMode(on)
			if on {
				m.notice = "silent mode on"
			} else {
				m.notice = "silent mode off"
			}
			return m, nil
		}
		return m, nil

	case TickMsg:
		m.status = m.coord.Status()
		return m, tickCmd()
	}
	return m, nil
}

func (m Model) View() string {
	title := styleTitleBar.Render(" lenslink ")
	state := m.renderState()

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderSide(bluetooth.Left, m.status.Left),
		" ",
		m.renderSide(bluetooth.Right, m.status.Right),
	)

	bar := styleStatusBar.Render("q quit · r reconnect · s silent mode")
	if m.notice != "" {
		bar = styleStatusBar.Render(m.notice + " · q quit · r reconnect · s silent mode")
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, state, panels, bar)
}

func (m Model) renderState() string {
	label := styleLabel.Render("link: ")
	var value string
	switch m.status.State {
	case link.StateConnected:
		value = styleOK.Render(m.status.State.String())
	case link.StateScanning, link.StateConnecting:
		value = styleWarn.Render(m.status.State.String())
	default:
		value = styleError.Render(m.status.State.String())
	}
	extras := ""
	if m.status.SilentMode {
		extras += "  " + styleWarn.Render("silent")
	}
	if !m.status.HeartbeatSent.IsZero() {
		extras += "  " + styleLabel.Render(fmt.Sprintf("heartbeat %s ago", age(m.status.HeartbeatSent)))
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(label + value + extras)
}

func (m Model) renderSide(side bluetooth.Side, s link.SideStatus) string {
	rows := []string{styleSideHeader.Render(side.String() + " lens")}

	if s.Connected {
		rows = append(rows, styleLabel.Render("state  ")+styleOK.Render("connected"))
	} else {
		rows = append(rows, styleLabel.Render("state  ")+styleError.Render("down"))
	}
	rows = append(rows, styleLabel.Render("errors ")+styleValue.Render(fmt.Sprintf("%d", s.Errors)))
	if s.LastError != "" {
		rows = append(rows, styleLabel.Render("last   ")+styleWarn.Render(truncate(s.LastError, 28)))
	}
	if s.RSSI != nil {
		rows = append(rows, styleLabel.Render("rssi   ")+styleValue.Render(fmt.Sprintf("%d dBm", *s.RSSI)))
	}
	if !s.LastHeartbeat.IsZero() {
		rows = append(rows, styleLabel.Render("beat   ")+styleValue.Render(age(s.LastHeartbeat)+" ago"))
	}

	return stylePanel.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func age(t time.Time) string {
	d := time.Since(t)
	if d < time.Second {
		return "<1s"
	}
	return d.Truncate(time.Second).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
