package kchat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// PushEvent is the frame shape on the push channel. The message payload is a
// fully-formed, already-persisted message; the channel itself neither
// validates nor persists.
type PushEvent struct {
	Event   string  `json:"event"` // "group_message" or "private_message"
	Message Message `json:"message"`
}

// PushConn is a live connection to the push channel.
type PushConn struct {
	ws *websocket.Conn
	mu sync.Mutex // guards writes
}

// DialPush connects to the push channel using the client's token.
func (c *Client) DialPush(ctx context.Context) (*PushConn, error) {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.Token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return &PushConn{ws: ws}, nil
}

// Emit sends an event to the channel. Best effort: the server neither
// acknowledges nor orders deliveries.
func (p *PushConn) Emit(ev PushEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ws.WriteMessage(websocket.TextMessage, payload)
}

// Next blocks until the next event arrives.
func (p *PushConn) Next() (*PushEvent, error) {
	_, payload, err := p.ws.ReadMessage()
	if err != nil {
		return nil, err
	}

	var ev PushEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Close closes the connection.
func (p *PushConn) Close() error {
	return p.ws.Close()
}
