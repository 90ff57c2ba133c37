// Package notify shows user-facing notifications on a terminal.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"mirrord.dev/launch/internal/application/ports"
)

// ConsoleNotifier renders notifications as a styled single line
type ConsoleNotifier struct {
	mu     sync.Mutex
	out    io.Writer
	title  string
	styles map[ports.NotificationType]lipgloss.Style
	body   lipgloss.Style
}

// NewConsoleNotifier creates a notifier writing to out. Colors follow what
// out supports, so plain buffers get plain text.
func NewConsoleNotifier(out io.Writer, title string) *ConsoleNotifier {
	r := lipgloss.NewRenderer(out)
	badge := r.NewStyle().Bold(true).Padding(0, 1)
	return &ConsoleNotifier{
		out:   out,
		title: title,
		styles: map[ports.NotificationType]lipgloss.Style{
			ports.NotificationTypeInfo:    badge.Foreground(lipgloss.Color("86")),
			ports.NotificationTypeWarning: badge.Foreground(lipgloss.Color("214")),
			ports.NotificationTypeError:   badge.Foreground(lipgloss.Color("196")),
		},
		body: r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// NotifySimple writes one notification. Write errors are dropped.
func (n *ConsoleNotifier) NotifySimple(message string, notificationType ports.NotificationType) {
	style, ok := n.styles[notificationType]
	if !ok {
		style = n.styles[ports.NotificationTypeInfo]
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintln(n.out, lipgloss.JoinHorizontal(lipgloss.Top,
		style.Render(n.title),
		n.body.Render(message),
	))
}

var _ ports.NotificationGateway = (*ConsoleNotifier)(nil)
