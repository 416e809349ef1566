package tui

import (
	"log/slog"
	"time"

	"github.com/Veraticus/susa-must-flow/internal/download"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/push"
	"github.com/Veraticus/susa-must-flow/internal/tui/themes"
)

// Notifications is the notification stack shown by the dashboard.
type Notifications interface {
	Active() []model.Notification
	Changes() <-chan struct{}
}

// Config holds TUI configuration.
type Config struct {
	Theme         themes.Theme
	Notifications Notifications
	Downloader    *download.Downloader
	Connection    func() push.State
	Logger        *slog.Logger
	DownloadDir   string
	Width         int
	Height        int
	PollEvery     time.Duration
	ShowHelp      bool
}

// Option is a functional option for configuring the TUI.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Theme:       themes.Default,
		Logger:      slog.Default(),
		DownloadDir: ".",
		Width:       80,
		Height:      24,
		PollEvery:   time.Second,
	}
}

// WithTheme sets the visual theme.
func WithTheme(theme themes.Theme) Option {
	return func(c *Config) {
		c.Theme = theme
	}
}

// WithNotifications shows the given notification stack.
func WithNotifications(n Notifications) Option {
	return func(c *Config) {
		c.Notifications = n
	}
}

// WithDownloader enables report downloads into dir.
func WithDownloader(d *download.Downloader, dir string) Option {
	return func(c *Config) {
		c.Downloader = d
		if dir != "" {
			c.DownloadDir = dir
		}
	}
}

// WithConnection reports the live update connection in the header. The
// function is polled.
func WithConnection(state func() push.State) Option {
	return func(c *Config) {
		c.Connection = state
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithSize sets the initial terminal size.
func WithSize(width, height int) Option {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}

// WithHelp starts with the full help expanded.
func WithHelp(show bool) Option {
	return func(c *Config) {
		c.ShowHelp = show
	}
}
