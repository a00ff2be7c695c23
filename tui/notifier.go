package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/xmedia/xmedia/style"
)

// notification is a transient message shown next to the help line.
type notification string

type clearNotificationMsg struct{}

// notifier renders the latest notification until it expires.
type notifier struct {
	text string
}

func clearNotification() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return clearNotificationMsg{}
	})
}

func (n *notifier) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case notification:
		n.text = string(msg)
		return clearNotification()
	case clearNotificationMsg:
		n.text = ""
	}
	return nil
}

func (n *notifier) View(content string) string {
	if n.text == "" {
		return content
	}

	lines := strings.Split(content, "\n")
	lines[len(lines)-1] += "  " + style.Faint(n.text)
	return strings.Join(lines, "\n")
}
