package push

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// recordSeparator terminates every message of the JSON hub protocol.
const recordSeparator = 0x1e

// Hub protocol message types.
const (
	messageInvocation = 1
	messagePing       = 6
	messageClose      = 7
)

var (
	handshakeRequest = append([]byte(`{"protocol":"json","version":1}`), recordSeparator)
	pingMessage      = append([]byte(`{"type":6}`), recordSeparator)
)

// hubMessage is the subset of hub protocol fields the client consumes.
type hubMessage struct {
	Target         string            `json:"target,omitempty"`
	Error          string            `json:"error,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Type           int               `json:"type"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// negotiateResponse is the reply of {hub}/negotiate. A response carrying URL
// redirects the client to another hub, e.g. a managed service.
type negotiateResponse struct {
	ConnectionID     string `json:"connectionId"`
	ConnectionToken  string `json:"connectionToken"`
	URL              string `json:"url"`
	AccessToken      string `json:"accessToken"`
	Error            string `json:"error"`
	NegotiateVersion int    `json:"negotiateVersion"`
}

// splitRecords returns the non-empty records of a frame.
func splitRecords(frame []byte) [][]byte {
	parts := bytes.Split(frame, []byte{recordSeparator})
	out := parts[:0]
	for _, p := range parts {
		if len(bytes.TrimSpace(p)) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// negotiateURL returns {hub}/negotiate?negotiateVersion=1, keeping any query
// parameters of the hub URL.
func negotiateURL(hub *url.URL) string {
	u := *hub
	u.Path = strings.TrimSuffix(u.Path, "/") + "/negotiate"
	q := u.Query()
	q.Set("negotiateVersion", "1")
	u.RawQuery = q.Encode()
	return u.String()
}

// socketURL converts the hub URL into the websocket endpoint for a
// negotiated connection.
func socketURL(hub *url.URL, connectionToken, accessToken string) (string, error) {
	u := *hub
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported hub scheme %q", hub.Scheme)
	}
	q := u.Query()
	if connectionToken != "" {
		q.Set("id", connectionToken)
	}
	if accessToken != "" {
		q.Set("access_token", accessToken)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
