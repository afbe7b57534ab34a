// internal/tui/style.go
package tui

import "github.com/charmbracelet/lipgloss"

var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent
	Yellow  = lipgloss.Color("#FFB500") // Warnings
	Green   = lipgloss.Color("#2AFFAA") // Buys / success
	Red     = lipgloss.Color("#FF5555") // Sells / errors
	Blue    = lipgloss.Color("#3B82F6") // Info

	Base02 = lipgloss.Color("#262831") // Darker background
	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	mutedStyle = lipgloss.NewStyle().Foreground(Base01)
	buyStyle   = lipgloss.NewStyle().Foreground(Green)
	sellStyle  = lipgloss.NewStyle().Foreground(Red)
	warnStyle  = lipgloss.NewStyle().Foreground(Yellow)
	errorStyle = lipgloss.NewStyle().Foreground(Red).Bold(true)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Base02).
			Background(Cyan).
			Padding(0, 1)
	tabStyle = lipgloss.NewStyle().
			Foreground(Base01).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(Base01)
)

// stateStyle colors a feed state label.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "live":
		return buyStyle.Bold(true)
	case "connecting", "reconnecting":
		return warnStyle.Bold(true)
	case "degraded":
		return errorStyle
	default:
		return mutedStyle
	}
}

// levelStyle colors a log level label.
func levelStyle(level string) lipgloss.Style {
	switch level {
	case "ERROR", "FATAL", "DPANIC", "PANIC":
		return errorStyle
	case "WARN":
		return warnStyle
	case "DEBUG":
		return mutedStyle
	default:
		return lipgloss.NewStyle().Foreground(Blue)
	}
}
