// Package proxy serves /api/proxy/*, forwarding requests to the SUSA backend
// with the bearer token of the local session attached.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/session"
)

const (
	// Prefix is the route prefix the proxy serves.
	Prefix = "/api/proxy"

	gracefulShutdownTimeout = 5 * time.Second
)

// hop-by-hop headers are never copied from the backend response.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Server forwards authenticated requests to the backend.
type Server struct {
	backend  *url.URL
	sessions session.Provider
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithHTTPClient sets the client used to reach the backend.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a proxy for the backend at backendURL.
func New(backendURL string, sessions session.Provider, opts ...Option) (*Server, error) {
	u, err := url.Parse(strings.TrimSuffix(backendURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid backend URL %q", common.ErrInvalidConfig, backendURL)
	}
	s := &Server{
		backend:  u,
		sessions: sessions,
		client:   &http.Client{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the proxy's router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(
		RequestID,
		Logger(s.logger),
		chiMiddleware.Recoverer,
	)
	router.Route(Prefix, func(r chi.Router) {
		r.Get("/*", s.forward)
		r.Post("/*", s.forward)
		r.Put("/*", s.forward)
		r.Delete("/*", s.forward)
		r.Patch("/*", s.forward)
	})
	return router
}

// Run serves on listener until ctx is cancelled.
func (s *Server) Run(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down proxy", "reason", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Proxy listening", "addr", listener.Addr().String(), "backend", s.backend.String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request) {
	token, err := s.sessions.Token(r.Context())
	if err != nil {
		s.authFailure(w, err)
		return
	}

	target := *s.backend
	target.Path = s.backend.Path + "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	target.RawPath = ""
	target.RawQuery = r.URL.RawQuery

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Internal Proxy Error: %s", err.Error()), "")
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if id := RequestIDFromContext(r.Context()); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
	if r.ContentLength > 0 {
		req.ContentLength = r.ContentLength
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("Failed to connect to backend", "target", target.String(), "error", err)
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("Backend Connection Failed: %s", err.Error()), "")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for name, values := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Warn("Failed to stream backend response", "error", err)
	}
}

func (s *Server) authFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNoSession) {
		writeJSONError(w, http.StatusUnauthorized, "Not authenticated or missing access token.", common.AuthMarkerMissing)
		return
	}
	s.logger.Warn("Session has no usable access token", "error", err)
	writeJSONError(w, http.StatusUnauthorized, "Session has no usable access token.", common.AuthMarkerNoToken)
}

func writeJSONError(w http.ResponseWriter, status int, message, marker string) {
	if marker != "" {
		w.Header().Set(common.AuthMarkerHeader, marker)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
