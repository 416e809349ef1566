package components

import (
	"strings"

	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/tui/themes"
)

// MaxNotifications is how many notifications are shown at once.
const MaxNotifications = 4

// RenderNotifications renders the newest notifications, newest last.
func RenderNotifications(items []model.Notification, width int, theme themes.Theme) string {
	if len(items) == 0 {
		return ""
	}
	if len(items) > MaxNotifications {
		items = items[len(items)-MaxNotifications:]
	}

	lines := make([]string, 0, len(items))
	for _, n := range items {
		icon := "ℹ"
		switch n.Type {
		case model.NotificationSuccess:
			icon = "✓"
		case model.NotificationError:
			icon = "✗"
		}
		text := truncate(icon+" "+n.Message, width)
		lines = append(lines, theme.NotificationStyle(n.Type).Render(text))
	}
	return strings.Join(lines, "\n")
}
