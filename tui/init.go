package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Init prepares the media and starts listening for state updates.
func (b *statefulBubble) Init() tea.Cmd {
	return tea.Batch(b.spinnerC.Tick, b.prepare(), b.waitForState())
}
