package style

import "github.com/charmbracelet/lipgloss"

// Palette used by the playback TUI.
var (
	Text    = lipgloss.Color("#cdd6f4")
	Overlay = lipgloss.Color("#6c7086")
	Surface = lipgloss.Color("#313244")
	Mauve   = lipgloss.Color("#cba6f7")
	Red     = lipgloss.Color("#f38ba8")
	Yellow  = lipgloss.Color("#f9e2af")
	Green   = lipgloss.Color("#a6e3a1")

	AccentColor  = Mauve
	WarningColor = Yellow
	ErrorColor   = Red
	HiRed        = Red
	BorderColor  = Surface
)
