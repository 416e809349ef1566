// Package config loads the client configuration from viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/download"
	"github.com/Veraticus/susa-must-flow/internal/session"
)

// EnvPrefix prefixes every environment override, e.g. SUSA_API_URL.
const EnvPrefix = "SUSA"

// Config is the resolved client configuration.
type Config struct {
	Auth        session.Config
	ObjectStore download.ObjectStoreConfig
	API         APIConfig
	Hub         HubConfig
	Logging     LoggingConfig
	Storage     StorageConfig
	ProxyListen string
	DownloadDir string
	AuthToken   string
	NotifyTTL   time.Duration
	PollEvery   time.Duration
}

// APIConfig locates the REST backend.
type APIConfig struct {
	URL     string
	Timeout time.Duration
}

// HubConfig locates the push hub.
type HubConfig struct {
	URL              string
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// LoggingConfig selects log level, format and the file used by the dashboard.
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// StorageConfig locates the local database.
type StorageConfig struct {
	Path          string
	PersistLedger bool
}

// ObjectStoreEnabled reports whether exports should be read from the bucket
// directly instead of through the backend.
func (c *Config) ObjectStoreEnabled() bool {
	return c.ObjectStore.Endpoint != "" && c.ObjectStore.Bucket != ""
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.url", "http://localhost:5256/api")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("hub.url", "http://localhost:5256/simulationHub")
	v.SetDefault("hub.reconnect.initial", 2*time.Second)
	v.SetDefault("hub.reconnect.max", 30*time.Second)
	v.SetDefault("auth.token_file", "~/.config/susa/token.json")
	v.SetDefault("notify.ttl", 5*time.Second)
	v.SetDefault("poll.interval", 30*time.Second)
	v.SetDefault("storage.path", "~/.local/share/susa/susa.db")
	v.SetDefault("storage.persist_ledger", false)
	v.SetDefault("objectstore.use_ssl", true)
	v.SetDefault("proxy.listen", ":3000")
	v.SetDefault("download.dir", ".")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "~/.local/state/susa/susa.log")
}

// BindEnv makes every key overridable through SUSA_* variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load resolves the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves the configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		API: APIConfig{
			URL:     strings.TrimSuffix(strings.TrimSpace(v.GetString("api.url")), "/"),
			Timeout: v.GetDuration("api.timeout"),
		},
		Hub: HubConfig{
			URL:              strings.TrimSpace(v.GetString("hub.url")),
			ReconnectInitial: v.GetDuration("hub.reconnect.initial"),
			ReconnectMax:     v.GetDuration("hub.reconnect.max"),
		},
		AuthToken: v.GetString("auth.token"),
		Auth: session.Config{
			Issuer:        v.GetString("auth.issuer"),
			ClientID:      v.GetString("auth.client_id"),
			ClientSecret:  v.GetString("auth.client_secret"),
			Audience:      v.GetString("auth.audience"),
			DeviceAuthURL: v.GetString("auth.device_auth_url"),
			TokenURL:      v.GetString("auth.token_url"),
			TokenFile:     ExpandPath(v.GetString("auth.token_file")),
			Scopes:        v.GetStringSlice("auth.scopes"),
		},
		NotifyTTL: v.GetDuration("notify.ttl"),
		PollEvery: v.GetDuration("poll.interval"),
		Storage: StorageConfig{
			Path:          ExpandPath(v.GetString("storage.path")),
			PersistLedger: v.GetBool("storage.persist_ledger"),
		},
		ObjectStore: download.ObjectStoreConfig{
			Endpoint:  v.GetString("objectstore.endpoint"),
			Bucket:    v.GetString("objectstore.bucket"),
			AccessKey: v.GetString("objectstore.access_key"),
			SecretKey: v.GetString("objectstore.secret_key"),
			UseSSL:    v.GetBool("objectstore.use_ssl"),
		},
		ProxyListen: v.GetString("proxy.listen"),
		DownloadDir: ExpandPath(v.GetString("download.dir")),
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
			File:   ExpandPath(v.GetString("logging.file")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	if err := validateURL("api.url", c.API.URL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("hub.url", c.Hub.URL, "http", "https", "ws", "wss"); err != nil {
		return err
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be positive", common.ErrInvalidConfig)
	}
	if c.NotifyTTL <= 0 {
		return fmt.Errorf("%w: notify.ttl must be positive", common.ErrInvalidConfig)
	}
	if c.PollEvery < 0 {
		return fmt.Errorf("%w: poll.interval cannot be negative", common.ErrInvalidConfig)
	}
	if c.Hub.ReconnectInitial < 0 || c.Hub.ReconnectMax < c.Hub.ReconnectInitial {
		return fmt.Errorf("%w: hub.reconnect.max must not be below hub.reconnect.initial", common.ErrInvalidConfig)
	}
	if c.ObjectStore.Endpoint != "" && c.ObjectStore.Bucket == "" {
		return fmt.Errorf("%w: objectstore.bucket is required with objectstore.endpoint", common.ErrInvalidConfig)
	}
	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%w: %s", common.ErrMissingConfig, key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be an absolute %s URL, got %q", common.ErrInvalidConfig, key, strings.Join(schemes, "/"), raw)
}

// SessionProvider picks how bearer tokens are obtained: a fixed auth.token,
// client credentials when a client secret is configured, or the token file
// written by `susa login`.
func (c *Config) SessionProvider() (session.Provider, error) {
	switch {
	case strings.TrimSpace(c.AuthToken) != "":
		return session.NewStatic(c.AuthToken), nil
	case c.Auth.ClientSecret != "":
		return session.NewClientCredentials(c.Auth)
	default:
		return session.NewFile(c.Auth.TokenFile, c.Auth.OAuth2()), nil
	}
}
