package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mbenaiss/conseiller-chat/models"
)

// Hub fans notifications out to every connected UI.
type Hub struct {
	log zerolog.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:   log.With().Str("component", "notify-hub").Logger(),
		conns: make(map[string]*Connection),
	}
}

// Attach registers conn and starts its write loop.
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()

	go conn.writeLoop()
	h.log.Debug().Str("connection", conn.ID).Msg("listener attached")
}

// Detach forgets conn.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	delete(h.conns, conn.ID)
	h.mu.Unlock()
}

// Len returns the number of attached listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Notify implements chat.Notifier.
func (h *Hub) Notify(ctx context.Context, n models.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode notification")
		return
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(payload); err != nil {
			h.log.Debug().Err(err).Str("connection", c.ID).Msg("dropping listener")
			h.Detach(c)
		}
	}
}

// Close disconnects every listener.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*Connection)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "shutting down")
	}
}
