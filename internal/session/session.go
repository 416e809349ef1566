// Package session supplies bearer tokens for calls to the SUSA backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Session errors. Callers map them onto the auth marker semantics of the
// gateway and the proxy.
var (
	ErrNoSession    = errors.New("no session")
	ErrNoCredential = errors.New("session has no usable access token")
)

// Provider returns the access token of the current session.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Config describes the identity provider used for login and refresh.
type Config struct {
	Issuer        string
	ClientID      string
	ClientSecret  string
	Audience      string
	DeviceAuthURL string
	TokenURL      string
	TokenFile     string
	Scopes        []string
}

// OAuth2 builds the oauth2 configuration. Endpoints not set explicitly are
// derived from the issuer.
func (c Config) OAuth2() *oauth2.Config {
	issuer := strings.TrimSuffix(c.Issuer, "/")
	deviceURL := c.DeviceAuthURL
	if deviceURL == "" && issuer != "" {
		deviceURL = issuer + "/oauth/device/code"
	}
	tokenURL := c.TokenURL
	if tokenURL == "" && issuer != "" {
		tokenURL = issuer + "/oauth/token"
	}

	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "offline_access"}
	}

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: deviceURL,
			TokenURL:      tokenURL,
		},
	}
}

func (c Config) authParams() []oauth2.AuthCodeOption {
	if c.Audience == "" {
		return nil
	}
	return []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("audience", c.Audience)}
}

// Static serves a fixed token, typically from SUSA_AUTH_TOKEN.
type Static struct {
	token string
}

// NewStatic creates a provider for a fixed token.
func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token)}
}

// Token implements Provider.
func (s *Static) Token(_ context.Context) (string, error) {
	if s.token == "" {
		return "", ErrNoSession
	}
	return s.token, nil
}

// ClientCredentials obtains tokens for unattended use.
type ClientCredentials struct {
	source oauth2.TokenSource
	config clientcredentials.Config
	mu     sync.Mutex
}

// NewClientCredentials creates a provider from the client id and secret in cfg.
func NewClientCredentials(cfg Config) (*ClientCredentials, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client credentials require auth.client_id and auth.client_secret")
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.OAuth2().Endpoint.TokenURL,
		Scopes:       cfg.Scopes,
	}
	if cfg.Audience != "" {
		cc.EndpointParams = map[string][]string{"audience": {cfg.Audience}}
	}
	return &ClientCredentials{config: cc}, nil
}

// Token implements Provider.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.source == nil {
		c.source = c.config.TokenSource(context.WithoutCancel(ctx))
	}
	source := c.source
	c.mu.Unlock()

	tok, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoCredential, err)
	}
	if tok.AccessToken == "" {
		return "", ErrNoCredential
	}
	return tok.AccessToken, nil
}
