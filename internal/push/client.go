// Package push maintains the connection to the backend's job event hub.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/session"
)

// State is the connection state of the client.
type State string

// Connection states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Default timings of the hub protocol.
const (
	DefaultKeepAlive     = 15 * time.Second
	DefaultServerTimeout = 30 * time.Second
)

// ErrHandshake is returned when the hub refuses the protocol handshake.
var ErrHandshake = errors.New("hub handshake failed")

// Event is one invocation received from the hub.
type Event struct {
	ReceivedAt time.Time
	Target     string
	Arguments  []json.RawMessage
}

// Handler receives events for a subscribed target.
type Handler func(Event)

// Client keeps one hub connection open and fans events out to subscribers.
// Events are dispatched sequentially in arrival order from the read loop.
type Client struct {
	hub           *url.URL
	session       session.Provider
	httpClient    *http.Client
	dialer        *websocket.Dialer
	logger        *slog.Logger
	onState       func(State)
	subs          map[string]map[*Subscription]struct{}
	lastEvent     *Event
	state         State
	initialDelay  time.Duration
	maxDelay      time.Duration
	keepAlive     time.Duration
	serverTimeout time.Duration
	mu            sync.RWMutex
}

// Option configures a Client.
type Option func(*Client)

// WithReconnectDelay sets the first and the maximum reconnect delay.
func WithReconnectDelay(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.initialDelay = initial
		c.maxDelay = maxDelay
	}
}

// WithTimeouts sets the keep-alive interval and the server timeout.
func WithTimeouts(keepAlive, serverTimeout time.Duration) Option {
	return func(c *Client) {
		c.keepAlive = keepAlive
		c.serverTimeout = serverTimeout
	}
}

// WithHTTPClient sets the client used for negotiation.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithStateListener registers a callback for connection state changes.
func WithStateListener(fn func(State)) Option {
	return func(c *Client) { c.onState = fn }
}

// New creates a client for the hub at hubURL, e.g.
// http://localhost:5256/simulationHub. The provider may be nil for hubs that
// need no credential.
func New(hubURL string, provider session.Provider, opts ...Option) (*Client, error) {
	u, err := url.Parse(hubURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid hub url %q", hubURL)
	}

	c := &Client{
		hub:           u,
		session:       provider,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		dialer:        &websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment},
		logger:        slog.Default(),
		subs:          make(map[string]map[*Subscription]struct{}),
		state:         StateDisconnected,
		initialDelay:  2 * time.Second,
		maxDelay:      30 * time.Second,
		keepAlive:     DefaultKeepAlive,
		serverTimeout: DefaultServerTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastEvent returns the most recent event received on any target.
func (c *Client) LastEvent() (Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastEvent == nil {
		return Event{}, false
	}
	return *c.lastEvent, true
}

// Subscribe registers h for events named target. The returned subscription's
// handler can be replaced at any time without touching the connection.
func (c *Client) Subscribe(target string, h Handler) *Subscription {
	sub := &Subscription{client: c, target: target}
	sub.handler.Store(&h)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[target] == nil {
		c.subs[target] = make(map[*Subscription]struct{})
	}
	c.subs[target][sub] = struct{}{}
	return sub
}

// OnJobUpdate subscribes fn to JobUpdate events. Malformed payloads are
// logged through the client's logger.
func (c *Client) OnJobUpdate(fn func(model.JobUpdate)) *Subscription {
	return c.Subscribe(model.JobUpdateEvent, JobUpdates(c.logger, fn))
}

// Run connects and keeps the connection alive until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialDelay
	b.MaxInterval = c.maxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		c.setState(StateConnecting)
		conn, pending, err := c.connect(ctx)
		if err == nil {
			b.Reset()
			c.setState(StateConnected)
			c.logger.Info("Connected to job hub", "hub", c.hub.Redacted())
			err = c.serve(ctx, conn, pending)
		}

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}

		c.setState(StateError)
		wait := b.NextBackOff()
		c.logger.Warn("Job hub connection lost, reconnecting", "error", err, "retry_in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateDisconnected)
			return nil
		case <-timer.C:
		}
	}
}

// connect opens the socket and completes the handshake. Records the hub sent
// in the same frame as its handshake reply are returned for dispatch.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, [][]byte, error) {
	var token string
	if c.session != nil {
		t, err := c.session.Token(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("no credential for job hub: %w", err)
		}
		token = t
	}

	hub := c.hub
	neg, err := c.negotiate(ctx, hub, token)
	if err != nil {
		return nil, nil, err
	}
	if neg.URL != "" {
		redirect, err := url.Parse(neg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid hub redirect %q: %w", neg.URL, err)
		}
		hub = redirect
		if neg.AccessToken != "" {
			token = neg.AccessToken
		}
		if neg, err = c.negotiate(ctx, hub, token); err != nil {
			return nil, nil, err
		}
	}

	connectionToken := neg.ConnectionToken
	if connectionToken == "" {
		connectionToken = neg.ConnectionID
	}
	target, err := socketURL(hub, connectionToken, token)
	if err != nil {
		return nil, nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open hub socket: %w", err)
	}

	pending, err := handshake(conn, c.serverTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, pending, nil
}

func (c *Client) negotiate(ctx context.Context, hub *url.URL, token string) (*negotiateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, negotiateURL(hub), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build negotiate request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub negotiate failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("hub negotiate returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var neg negotiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&neg); err != nil {
		return nil, fmt.Errorf("invalid negotiate response: %w", err)
	}
	if neg.Error != "" {
		return nil, fmt.Errorf("hub negotiate refused: %s", neg.Error)
	}
	return &neg, nil
}

// handshake negotiates the JSON protocol and returns the records that
// followed the reply in its frame.
func handshake(conn *websocket.Conn, timeout time.Duration) ([][]byte, error) {
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(websocket.TextMessage, handshakeRequest); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	records := splitRecords(data)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrHandshake)
	}
	var resp handshakeResponse
	if err := json.Unmarshal(records[0], &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrHandshake, resp.Error)
	}
	return records[1:], nil
}

// serve handles pending, then reads until the connection fails or ctx ends.
// A keep-alive ping is written while the connection is idle.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, pending [][]byte) error {
	done := make(chan struct{})
	defer close(done)
	defer func() { _ = conn.Close() }()

	var writeMu sync.Mutex
	go func() {
		ticker := time.NewTicker(c.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(c.serverTimeout))
				err := conn.WriteMessage(websocket.TextMessage, pingMessage)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	if err := c.handleRecords(pending); err != nil {
		return err
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.serverTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("hub read failed: %w", err)
		}
		if err := c.handleRecords(splitRecords(data)); err != nil {
			return err
		}
	}
}

// handleRecords dispatches invocations in order. It returns an error when
// the hub closed the connection.
func (c *Client) handleRecords(records [][]byte) error {
	for _, record := range records {
		var msg hubMessage
		if err := json.Unmarshal(record, &msg); err != nil {
			c.logger.Warn("Discarding malformed hub message", "error", err)
			continue
		}

		switch msg.Type {
		case messageInvocation:
			c.dispatch(Event{Target: msg.Target, Arguments: msg.Arguments, ReceivedAt: time.Now()})
		case messagePing:
		case messageClose:
			if msg.Error != "" {
				return fmt.Errorf("hub closed connection: %s", msg.Error)
			}
			return errors.New("hub closed connection")
		default:
			c.logger.Debug("Ignoring hub message", "type", msg.Type)
		}
	}
	return nil
}

func (c *Client) dispatch(ev Event) {
	c.mu.Lock()
	c.lastEvent = &ev
	subs := make([]*Subscription, 0, len(c.subs[ev.Target]))
	for sub := range c.subs[ev.Target] {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		if h := sub.handler.Load(); h != nil && *h != nil {
			(*h)(ev)
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.onState != nil {
		c.onState(s)
	}
}

// Subscription is a registered listener with a replaceable handler slot.
type Subscription struct {
	client  *Client
	handler atomic.Pointer[Handler]
	target  string
}

// Replace swaps the handler. The next dispatched event goes to h.
func (s *Subscription) Replace(h Handler) {
	s.handler.Store(&h)
}

// Unsubscribe stops delivery to this subscription.
func (s *Subscription) Unsubscribe() {
	c := s.client
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs[s.target], s)
	if len(c.subs[s.target]) == 0 {
		delete(c.subs, s.target)
	}
}
