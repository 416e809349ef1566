package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// File serves the token saved by Login, refreshing it when it expires.
type File struct {
	oauth *oauth2.Config
	path  string
	mu    sync.Mutex
}

// NewFile creates a provider backed by the token file at path. cfg may be nil,
// in which case expired tokens are not refreshed.
func NewFile(path string, cfg *oauth2.Config) *File {
	return &File{path: path, oauth: cfg}
}

// Token implements Provider.
func (f *File) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tok, err := LoadToken(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoCredential, err)
	}

	if usable(tok) {
		return tok.AccessToken, nil
	}

	if tok.RefreshToken == "" || f.oauth == nil {
		return "", ErrNoCredential
	}

	expired := *tok
	expired.Expiry = time.Now().Add(-time.Minute)
	refreshed, err := f.oauth.TokenSource(ctx, &expired).Token()
	if err != nil {
		return "", fmt.Errorf("%w: refresh failed: %w", ErrNoCredential, err)
	}
	if err := SaveToken(f.path, refreshed); err != nil {
		slog.Warn("Failed to persist refreshed token", "error", err, "file", f.path)
	}
	return refreshed.AccessToken, nil
}

// usable reports whether the token can be sent as is. Tokens without an
// expiry fall back to the exp claim of the JWT, when there is one.
func usable(tok *oauth2.Token) bool {
	if tok.AccessToken == "" {
		return false
	}
	if !tok.Expiry.IsZero() {
		return tok.Valid()
	}
	claims, err := Inspect(tok.AccessToken)
	if err != nil {
		return true
	}
	return !claims.Expired(time.Now())
}

// LoadToken reads a token file.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	return tok, nil
}

// SaveToken writes a token file readable only by the current user.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
