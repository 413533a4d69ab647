package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kchat-io/kchat/internal/api/middleware"
)

const (
	maxFrameSize = 8 * 1024
	pongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is wide open on the REST surface; the push channel matches
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Push handles the bidirectional event stream. Every frame a client sends is
// re-broadcast verbatim to the other connections of the same tenant; the
// payload is assumed to carry an already-persisted message. Nothing on this
// path validates, persists, or acknowledges.
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		return
	}

	conn := h.hub.Register(principal.Tenant, principal.User, ws)
	defer h.hub.Unregister(conn)

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		h.hub.Publish(principal.Tenant, conn.ID, payload)
	}
}
