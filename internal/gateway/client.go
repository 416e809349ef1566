// Package gateway provides a client for the SUSA backend REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/service"
	"github.com/Veraticus/susa-must-flow/internal/session"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// DefaultTimeout bounds each request unless overridden.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 4096

// Client talks to the SUSA backend, either directly or through the local
// authenticated proxy.
type Client struct {
	httpClient *http.Client
	session    session.Provider
	logger     *slog.Logger
	baseURL    string
	retry      service.RetryOptions
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSession attaches bearer tokens from the provider. Without a provider the
// client sends no Authorization header, which is how it talks to the proxy.
func WithSession(p session.Provider) Option {
	return func(c *Client) { c.session = p }
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetry configures retries of idempotent reads.
func WithRetry(opts service.RetryOptions) Option {
	return func(c *Client) { c.retry = opts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the API rooted at baseURL, e.g.
// http://localhost:5256/api or http://localhost:3000/api/proxy.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: api url %q", common.ErrInvalidConfig, baseURL)
	}

	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(u.String(), "/"),
		timeout:    DefaultTimeout,
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListProjects implements service.Gateway.
func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := c.readJSON(ctx, "/susa", &projects)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []model.Project{}
	}
	return projects, nil
}

// GetProject implements service.Gateway.
func (c *Client) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	var project model.Project
	if err := c.readJSON(ctx, projectPath(id, ""), &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// UploadFile implements service.Gateway. The content is streamed as the
// multipart field "file".
func (c *Client) UploadFile(ctx context.Context, fileName string, content io.Reader) (int64, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", fileName)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	resp, err := c.do(ctx, http.MethodPost, "/susa/upload", mw.FormDataContentType(), pr)
	if err != nil {
		_ = pr.Close()
		return 0, err
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, c.apiError(resp, "Upload failed")
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := decode(resp, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// PreAnalyze implements service.Gateway.
func (c *Client) PreAnalyze(ctx context.Context, id int64) (*model.PreAnalysisResult, error) {
	resp, err := c.do(ctx, http.MethodPost, projectPath(id, "/pre-analyze"), "", nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp, "Pre-analysis failed")
	}

	var result model.PreAnalysisResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Analyze implements service.Gateway. A 202 yields the queued acknowledgement,
// a 200 the cached result.
func (c *Client) Analyze(ctx context.Context, id int64, mappings map[string]string) (*service.AnalyzeResponse, error) {
	if mappings == nil {
		mappings = map[string]string{}
	}
	body, err := json.Marshal(struct {
		Mappings map[string]string `json:"mappings"`
	}{Mappings: mappings})
	if err != nil {
		return nil, fmt.Errorf("failed to encode mappings: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, projectPath(id, "/analyze"), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusAccepted:
		var queued model.QueuedJob
		if err := decode(resp, &queued); err != nil {
			return nil, err
		}
		return &service.AnalyzeResponse{Queued: &queued}, nil
	case http.StatusOK:
		var result model.AnalysisResult
		if err := decode(resp, &result); err != nil {
			return nil, err
		}
		return &service.AnalyzeResponse{Result: &result}, nil
	default:
		return nil, c.apiError(resp, "Analysis failed")
	}
}

// RenameProject implements service.Gateway.
func (c *Client) RenameProject(ctx context.Context, id int64, newName string) error {
	body, err := json.Marshal(struct {
		NewName string `json:"newName"`
	}{NewName: newName})
	if err != nil {
		return fmt.Errorf("failed to encode rename request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, projectPath(id, "/rename"), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp, "Rename failed")
	}
	return nil
}

// DeleteProject implements service.Gateway.
func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	resp, err := c.do(ctx, http.MethodDelete, projectPath(id, ""), "", nil)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return c.apiError(resp, "Delete failed")
	}
	return nil
}

// DownloadResult implements service.Gateway. It returns the number of bytes
// written to dst.
func (c *Client) DownloadResult(ctx context.Context, taskID, fileName string, dst io.Writer) (int64, error) {
	path := "/susa/download-result/" + url.PathEscape(taskID) + "/" + url.PathEscape(fileName)

	var resp *http.Response
	err := common.WithRetry(ctx, func() error {
		r, err := c.do(ctx, http.MethodGet, path, "", nil)
		if err != nil {
			return err
		}
		if r.StatusCode != http.StatusOK {
			defer closeBody(r)
			return c.apiError(r, "Download failed")
		}
		resp = r
		return nil
	}, c.retry)
	if err != nil {
		return 0, err
	}
	defer closeBody(resp)

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("%w: download interrupted: %w", common.ErrNetworkFailure, err)
	}
	return n, nil
}

// readJSON performs an idempotent GET with retries and decodes the body.
func (c *Client) readJSON(ctx context.Context, path string, out any) error {
	return common.WithRetry(ctx, func() error {
		resp, err := c.do(ctx, http.MethodGet, path, "", nil)
		if err != nil {
			return err
		}
		defer closeBody(resp)

		if resp.StatusCode != http.StatusOK {
			return c.apiError(resp, "Request failed")
		}
		return decode(resp, out)
	}, c.retry)
}

// do sends one request. Session failures are reported as the same 401
// classifications the proxy would produce, without touching the network.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	if c.session != nil {
		token, err := c.session.Token(ctx)
		if err != nil {
			return nil, sessionError(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := c.httpClient
	if c.timeout > 0 {
		shallow := *c.httpClient
		shallow.Timeout = c.timeout
		client = &shallow
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", common.ErrNetworkFailure, err)
	}

	c.logger.Debug("Backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))
	return resp, nil
}

func (c *Client) apiError(resp *http.Response, fallback string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := ErrorMessage(data)
	if message == "" {
		message = fallback
	}
	return common.NewAPIError(resp.StatusCode, resp.Header.Get(common.AuthMarkerHeader), message)
}

// ErrorMessage extracts the human-readable message from an error body. The
// backend and the proxy use error, message, detail or title; anything else
// is returned as trimmed text.
func ErrorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var payload map[string]any
	if err := json.Unmarshal(trimmed, &payload); err == nil {
		for _, key := range []string{"error", "message", "detail", "title"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
		return ""
	}

	text := string(trimmed)
	if strings.HasPrefix(text, "<") {
		return ""
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return common.NewAPIError(http.StatusUnauthorized, common.AuthMarkerMissing, "Not authenticated or missing access token.")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return common.NewAPIError(http.StatusUnauthorized, common.AuthMarkerNoToken, err.Error())
	}
}

func decode(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", common.ErrUnexpectedResponse, err)
	}
	return nil
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

func projectPath(id int64, suffix string) string {
	return "/susa/" + strconv.FormatInt(id, 10) + suffix
}

var _ service.Gateway = (*Client)(nil)
