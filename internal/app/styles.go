package app

import "github.com/charmbracelet/lipgloss"

var (
	colorGreen  = lipgloss.Color("#00FF41")
	colorDim    = lipgloss.Color("#008F11")
	colorAmber  = lipgloss.Color("#FFB000")
	colorRed    = lipgloss.Color("#FF3333")
	colorBright = lipgloss.Color("#CCFFCC")

	styleTitleBar = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(colorGreen).
			Bold(true).
			Padding(0, 1)

	styleStatusBar = lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(0, 1)

	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	styleSideHeader = lipgloss.NewStyle().
			Foreground(colorBright).
			Bold(true)

	styleLabel = lipgloss.NewStyle().Foreground(colorDim)
	styleValue = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarn  = lipgloss.NewStyle().Foreground(colorAmber)
	styleError = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	styleOK    = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
)
