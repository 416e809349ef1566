package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Login runs the device authorization flow. prompt is called once with the
// verification URL and user code; the token is saved to cfg.TokenFile.
func Login(ctx context.Context, cfg Config, prompt func(*oauth2.DeviceAuthResponse)) (*oauth2.Token, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("login requires auth.client_id")
	}
	conf := cfg.OAuth2()
	if conf.Endpoint.DeviceAuthURL == "" || conf.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf("login requires auth.issuer or explicit endpoints")
	}

	resp, err := conf.DeviceAuth(ctx, cfg.authParams()...)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}
	if prompt != nil {
		prompt(resp)
	}

	tok, err := conf.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("device login failed: %w", err)
	}

	if cfg.TokenFile != "" {
		if err := SaveToken(cfg.TokenFile, tok); err != nil {
			return nil, err
		}
	}
	return tok, nil
}

// Logout removes the saved token. A missing file is not an error.
func Logout(tokenFile string) error {
	if err := os.Remove(tokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// Claims is the unverified identity carried in an access token.
type Claims struct {
	ExpiresAt time.Time
	Subject   string
	Issuer    string
	Email     string
}

// Expired reports whether the token expired before now. Tokens without an
// exp claim never expire here.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Inspect parses a JWT access token without verifying its signature. The
// backend verifies; the client only needs the expiry and subject.
func Inspect(raw string) (*Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return nil, fmt.Errorf("token is not a JWT: %w", err)
	}

	claims := &Claims{}
	claims.Subject, _ = mc.GetSubject()
	claims.Issuer, _ = mc.GetIssuer()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if email, ok := mc["email"].(string); ok {
		claims.Email = email
	}
	return claims, nil
}
