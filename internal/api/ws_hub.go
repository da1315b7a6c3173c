package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"kitsupub/internal/logging"
	"kitsupub/internal/metrics"
)

// Envelope is the websocket message shape.
type Envelope struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// WSHub fans events out to every connected websocket client. Slow clients
// miss messages rather than block publishers.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	seq     atomic.Uint64
	logger  *slog.Logger
}

// NewWSHub constructs an empty hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WSHub{clients: map[*websocket.Conn]struct{}{}, logger: logger}
}

// HandleWS upgrades the request and holds the connection until the client
// goes away. Client messages are read and discarded.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", logging.Error(err))
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	metrics.WSConnected()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		metrics.WSDisconnected()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends payload under topic to every client.
func (h *WSHub) Publish(topic string, payload any) {
	msg, err := json.Marshal(Envelope{
		ID:      fmt.Sprintf("evt_%d", h.seq.Add(1)),
		Topic:   topic,
		Payload: payload,
	})
	if err != nil {
		h.logger.Debug("websocket payload not encoded", logging.String("topic", topic), logging.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		_ = c.Write(ctx, websocket.MessageText, msg)
		cancel()
	}
}

// Close disconnects every client.
func (h *WSHub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = map[*websocket.Conn]struct{}{}
	h.mu.Unlock()
	for c := range clients {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
