// Package themes defines the color palettes of the dashboard.
package themes

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/push"
)

// Theme defines the visual style for the TUI.
type Theme struct {
	Title         lipgloss.Style
	Subtitle      lipgloss.Style
	Normal        lipgloss.Style
	Bold          lipgloss.Style
	Italic        lipgloss.Style
	Code          lipgloss.Style
	Selected      lipgloss.Style
	Highlighted   lipgloss.Style
	BorderedBox   lipgloss.Style
	RoundedBox    lipgloss.Style
	ProgressBar   lipgloss.Style
	ProgressEmpty lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusWarning lipgloss.Style
	StatusError   lipgloss.Style
	StatusInfo    lipgloss.Style
	StatusPending lipgloss.Style
	Primary       lipgloss.Color
	Secondary     lipgloss.Color
	Muted         lipgloss.Color
	Border        lipgloss.Color
	Foreground    lipgloss.Color
	Background    lipgloss.Color
	Info          lipgloss.Color
	Error         lipgloss.Color
	Warning       lipgloss.Color
	Success       lipgloss.Color
}

type palette struct {
	primary, secondary, success, warning, danger, info lipgloss.Color
	background, foreground, subtle, surface, border    lipgloss.Color
	muted, onSelected                                  lipgloss.Color
}

func newTheme(p palette) Theme {
	return Theme{
		Primary:    p.primary,
		Secondary:  p.secondary,
		Success:    p.success,
		Warning:    p.warning,
		Error:      p.danger,
		Info:       p.info,
		Background: p.background,
		Foreground: p.foreground,
		Border:     p.border,
		Muted:      p.muted,

		Title:    lipgloss.NewStyle().Bold(true).Foreground(p.foreground),
		Subtitle: lipgloss.NewStyle().Foreground(p.subtle),
		Normal:   lipgloss.NewStyle().Foreground(p.foreground),
		Bold:     lipgloss.NewStyle().Bold(true).Foreground(p.foreground),
		Italic:   lipgloss.NewStyle().Italic(true).Foreground(p.subtle),
		Code: lipgloss.NewStyle().
			Background(p.surface).
			Foreground(p.foreground).
			Padding(0, 1),
		Selected: lipgloss.NewStyle().
			Background(p.primary).
			Foreground(p.onSelected).
			Bold(true),
		Highlighted: lipgloss.NewStyle().
			Background(p.border).
			Foreground(p.foreground),

		BorderedBox: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(p.border).
			Padding(0, 1),
		RoundedBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.border).
			Padding(0, 1),
		ProgressBar:   lipgloss.NewStyle().Foreground(p.primary),
		ProgressEmpty: lipgloss.NewStyle().Foreground(p.border),

		StatusSuccess: lipgloss.NewStyle().Foreground(p.success).Bold(true),
		StatusWarning: lipgloss.NewStyle().Foreground(p.warning).Bold(true),
		StatusError:   lipgloss.NewStyle().Foreground(p.danger).Bold(true),
		StatusInfo:    lipgloss.NewStyle().Foreground(p.info).Bold(true),
		StatusPending: lipgloss.NewStyle().Foreground(p.muted).Italic(true),
	}
}

// Default is the default theme.
var Default = newTheme(palette{
	primary:    lipgloss.Color("#7c3aed"),
	secondary:  lipgloss.Color("#a78bfa"),
	success:    lipgloss.Color("#10b981"),
	warning:    lipgloss.Color("#f59e0b"),
	danger:     lipgloss.Color("#ef4444"),
	info:       lipgloss.Color("#3b82f6"),
	background: lipgloss.Color("#1a1a1a"),
	foreground: lipgloss.Color("#fafafa"),
	subtle:     lipgloss.Color("#a3a3a3"),
	surface:    lipgloss.Color("#262626"),
	border:     lipgloss.Color("#404040"),
	muted:      lipgloss.Color("#737373"),
	onSelected: lipgloss.Color("#fafafa"),
})

// CatppuccinMocha is the Catppuccin Mocha theme.
var CatppuccinMocha = newTheme(palette{
	primary:    lipgloss.Color("#cba6f7"),
	secondary:  lipgloss.Color("#f5c2e7"),
	success:    lipgloss.Color("#a6e3a1"),
	warning:    lipgloss.Color("#f9e2af"),
	danger:     lipgloss.Color("#f38ba8"),
	info:       lipgloss.Color("#89dceb"),
	background: lipgloss.Color("#1e1e2e"),
	foreground: lipgloss.Color("#cdd6f4"),
	subtle:     lipgloss.Color("#a6adc8"),
	surface:    lipgloss.Color("#313244"),
	border:     lipgloss.Color("#45475a"),
	muted:      lipgloss.Color("#6c7086"),
	onSelected: lipgloss.Color("#1e1e2e"),
})

// GetTheme returns a theme by name.
func GetTheme(name string) Theme {
	switch name {
	case "catppuccin-mocha":
		return CatppuccinMocha
	default:
		return Default
	}
}

// StatusIcon returns the plain-text marker of a project status.
func StatusIcon(status model.ProjectStatus) string {
	switch {
	case status.IsFailed():
		return "✗"
	case status == model.StatusAnalysisComplete:
		return "✓"
	case status.NeedsMapping():
		return "◆"
	case status.IsInFlight():
		return "…"
	default:
		return "·"
	}
}

// StatusStyle returns the style a project status is rendered with.
func (t Theme) StatusStyle(status model.ProjectStatus) lipgloss.Style {
	switch {
	case status.IsFailed():
		return t.StatusError
	case status == model.StatusAnalysisComplete:
		return t.StatusSuccess
	case status.NeedsMapping():
		return t.StatusWarning
	case status.IsInFlight():
		return t.StatusInfo
	default:
		return t.StatusPending
	}
}

// StatusBadge renders a colored status label.
func (t Theme) StatusBadge(status model.ProjectStatus) string {
	return t.StatusStyle(status).Render(StatusIcon(status) + " " + status.String())
}

// NotificationStyle returns the style of a notification kind.
func (t Theme) NotificationStyle(kind model.NotificationType) lipgloss.Style {
	switch kind {
	case model.NotificationSuccess:
		return t.StatusSuccess
	case model.NotificationError:
		return t.StatusError
	default:
		return t.StatusInfo
	}
}

// Connection renders the live update indicator.
func (t Theme) Connection(state push.State) string {
	switch state {
	case push.StateConnected:
		return t.StatusSuccess.Render("● live")
	case push.StateConnecting:
		return t.StatusWarning.Render("◌ connecting")
	case push.StateError:
		return t.StatusError.Render("● offline")
	default:
		return t.StatusPending.Render("○ disconnected")
	}
}
