package push

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/session"
)

// testHub is an in-process job hub speaking the JSON hub protocol.
type testHub struct {
	t          *testing.T
	server     *httptest.Server
	conns      chan *websocket.Conn
	negotiated atomic.Int32
	authHeader atomic.Value
	queryToken atomic.Value
	// replyTail is appended to the handshake reply frame.
	replyTail atomic.Value
	upgrader   websocket.Upgrader
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	h := &testHub{t: t, conns: make(chan *websocket.Conn, 8)}

	mux := http.NewServeMux()
	mux.HandleFunc("/simulationHub/negotiate", func(w http.ResponseWriter, r *http.Request) {
		h.negotiated.Add(1)
		h.authHeader.Store(r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.URL.Query().Get("negotiateVersion"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"connectionId":     "c1",
			"connectionToken":  "ct1",
			"negotiateVersion": 1,
		})
	})
	mux.HandleFunc("/simulationHub", func(w http.ResponseWriter, r *http.Request) {
		h.queryToken.Store(r.URL.Query().Get("access_token"))
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return
		}
		assert.Equal(t, string(handshakeRequest), string(data))
		reply := "{}\x1e"
		if tail, ok := h.replyTail.Load().(string); ok {
			reply += tail
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(reply))
		h.conns <- conn
	})

	h.server = httptest.NewServer(mux)
	t.Cleanup(h.server.Close)
	return h
}

func (h *testHub) url() string {
	return h.server.URL + "/simulationHub"
}

func (h *testHub) accept() *websocket.Conn {
	h.t.Helper()
	select {
	case conn := <-h.conns:
		h.t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		h.t.Fatal("client did not connect")
		return nil
	}
}

func sendJobUpdate(t *testing.T, conn *websocket.Conn, jobID int64, status string) {
	t.Helper()
	payload := `{"type":1,"target":"JobUpdate","arguments":[{"jobId":` +
		jsonNumber(jobID) + `,"status":"` + status + `"}]}` + "\x1e"
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

type collector struct {
	updates []model.JobUpdate
	mu      sync.Mutex
}

func (c *collector) add(u model.JobUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, u)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func (c *collector) get(i int) model.JobUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates[i]
}

func startClient(t *testing.T, hubURL string, provider session.Provider) *Client {
	t.Helper()
	c, err := New(hubURL, provider,
		WithReconnectDelay(10*time.Millisecond, 50*time.Millisecond),
		WithTimeouts(time.Second, 5*time.Second))
	require.NoError(t, err)
	runClient(t, c)
	return c
}

func runClient(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestClient_HandshakeAndDelivery(t *testing.T) {
	hub := newTestHub(t)
	var got collector

	c := startClient(t, hub.url(), session.NewStatic("tok-1"))
	c.Subscribe(model.JobUpdateEvent, JobUpdates(nil, got.add))

	conn := hub.accept()
	require.Eventually(t, func() bool { return c.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	sendJobUpdate(t, conn, 42, "Processing")
	require.Eventually(t, func() bool { return got.len() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, model.JobUpdate{JobID: 42, Status: model.StatusProcessing}, got.get(0))
	assert.Equal(t, "Bearer tok-1", hub.authHeader.Load())
	assert.Equal(t, "tok-1", hub.queryToken.Load())

	last, ok := c.LastEvent()
	require.True(t, ok)
	assert.Equal(t, model.JobUpdateEvent, last.Target)
}

func TestClient_MultipleRecordsPerFrame(t *testing.T) {
	hub := newTestHub(t)
	var got collector

	c := startClient(t, hub.url(), nil)
	c.Subscribe(model.JobUpdateEvent, JobUpdates(nil, got.add))
	conn := hub.accept()

	frame := `{"type":6}` + "\x1e" +
		`{"type":1,"target":"JobUpdate","arguments":[{"jobId":1,"status":"Queued"}]}` + "\x1e" +
		`{"type":1,"target":"JobUpdate","arguments":[{"jobId":1,"status":"Completed"}]}` + "\x1e"
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	require.Eventually(t, func() bool { return got.len() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.StatusQueued, got.get(0).Status)
	assert.Equal(t, model.StatusAnalysisComplete, got.get(1).Status)
}

func TestClient_ReconnectsAfterServerDrop(t *testing.T) {
	hub := newTestHub(t)
	var got collector

	c := startClient(t, hub.url(), nil)
	c.Subscribe(model.JobUpdateEvent, JobUpdates(nil, got.add))

	first := hub.accept()
	sendJobUpdate(t, first, 7, "Processing")
	require.Eventually(t, func() bool { return got.len() == 1 }, 2*time.Second, 5*time.Millisecond)

	_ = first.Close()

	second := hub.accept()
	sendJobUpdate(t, second, 7, "Analysis Complete")
	require.Eventually(t, func() bool { return got.len() == 2 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, model.StatusAnalysisComplete, got.get(1).Status)
	assert.GreaterOrEqual(t, hub.negotiated.Load(), int32(2))
}

func TestClient_ReplaceHandlerKeepsConnection(t *testing.T) {
	hub := newTestHub(t)
	var first, second collector

	c := startClient(t, hub.url(), nil)
	sub := c.Subscribe(model.JobUpdateEvent, JobUpdates(nil, first.add))
	conn := hub.accept()

	sendJobUpdate(t, conn, 1, "Queued")
	require.Eventually(t, func() bool { return first.len() == 1 }, 2*time.Second, 5*time.Millisecond)

	sub.Replace(JobUpdates(nil, second.add))
	sendJobUpdate(t, conn, 1, "Processing")
	require.Eventually(t, func() bool { return second.len() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, first.len())
	assert.Equal(t, int32(1), hub.negotiated.Load())
}

func TestClient_IndependentSubscribers(t *testing.T) {
	hub := newTestHub(t)
	var a, b collector

	c := startClient(t, hub.url(), nil)
	subA := c.Subscribe(model.JobUpdateEvent, JobUpdates(nil, a.add))
	c.Subscribe(model.JobUpdateEvent, JobUpdates(nil, b.add))
	conn := hub.accept()

	sendJobUpdate(t, conn, 3, "Queued")
	require.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, 2*time.Second, 5*time.Millisecond)

	subA.Unsubscribe()
	sendJobUpdate(t, conn, 3, "Processing")
	require.Eventually(t, func() bool { return b.len() == 2 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, a.len())
	assert.Equal(t, StateConnected, c.State())
}

func TestClient_StopsOnCancel(t *testing.T) {
	hub := newTestHub(t)
	var states []State
	var mu sync.Mutex

	c, err := New(hub.url(), nil, WithStateListener(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	hub.accept()
	require.Eventually(t, func() bool { return c.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, StateDisconnected, c.State())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected}, states)
}

func TestClient_MissingSessionRetries(t *testing.T) {
	hub := newTestHub(t)
	c := startClient(t, hub.url(), session.NewStatic(""))

	require.Eventually(t, func() bool { return c.State() == StateError }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, hub.negotiated.Load())
}

func TestSocketURL(t *testing.T) {
	hub, err := url.Parse("https://api.example.com/simulationHub")
	require.NoError(t, err)

	got, err := socketURL(hub, "ct", "tok")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "wss://api.example.com/simulationHub?"))
	assert.Contains(t, got, "id=ct")
	assert.Contains(t, got, "access_token=tok")

	assert.Equal(t, "https://api.example.com/simulationHub/negotiate?negotiateVersion=1", negotiateURL(hub))

	_, err = socketURL(&url.URL{Scheme: "ftp", Host: "x"}, "", "")
	assert.Error(t, err)
}

func TestDecodeJobUpdate(t *testing.T) {
	_, err := DecodeJobUpdate(Event{Target: model.JobUpdateEvent})
	assert.Error(t, err)

	update, err := DecodeJobUpdate(Event{
		Target:    model.JobUpdateEvent,
		Arguments: []json.RawMessage{json.RawMessage(`{"jobId":9,"status":"Failed: bad header","error":"bad header"}`)},
	})
	require.NoError(t, err)
	assert.True(t, update.Status.IsFailed())
	assert.Equal(t, "bad header", update.Error)
}

func TestClient_EventsInHandshakeFrame(t *testing.T) {
	hub := newTestHub(t)
	hub.replyTail.Store(
		`{"type":1,"target":"JobUpdate","arguments":[{"jobId":11,"status":"Queued"}]}` + "\x1e" +
			`{"type":1,"target":"JobUpdate","arguments":[{"jobId":11,"status":"Processing"}]}` + "\x1e")

	c, err := New(hub.url(), nil, WithTimeouts(time.Second, 5*time.Second))
	require.NoError(t, err)
	var got collector
	c.OnJobUpdate(got.add)
	runClient(t, c)

	conn := hub.accept()
	require.Eventually(t, func() bool { return got.len() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.StatusQueued, got.get(0).Status)
	assert.Equal(t, model.StatusProcessing, got.get(1).Status)

	sendJobUpdate(t, conn, 11, "Analysis Complete")
	require.Eventually(t, func() bool { return got.len() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnected, c.State())
}

func TestClient_MalformedJobUpdateUsesClientLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c, err := New("http://localhost:5256/simulationHub", nil, WithLogger(logger))
	require.NoError(t, err)
	var got collector
	c.OnJobUpdate(got.add)

	c.dispatch(Event{
		Target:    model.JobUpdateEvent,
		Arguments: []json.RawMessage{json.RawMessage(`{"jobId":"not-a-number"}`)},
	})

	assert.Zero(t, got.len())
	assert.Contains(t, buf.String(), "Dropping job update")
	assert.Contains(t, buf.String(), "target=JobUpdate")
}
