package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cardiolab/afdash/internal/analysis"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// The API is token-authenticated; origin checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	clientSendSize = 8
)

// wsMessage is the envelope pushed to subscribers. Type is "records" for a
// full snapshot of saved records and "alert" for a one-shot risk
// notification.
type wsMessage struct {
	Type    string            `json:"type"`
	Records []analysis.Record `json:"records,omitempty"`
	Title   string            `json:"title,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks record subscribers per user and pushes snapshots and alerts to
// all of a user's open connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*wsClient]struct{}),
		log:     log,
	}
}

// PublishRecords pushes a full snapshot of the user's saved records to every
// subscriber of that user. Subscribers always receive whole snapshots, never
// deltas, so a dropped message cannot leave a client stale forever.
func (h *Hub) PublishRecords(userID string, records []analysis.Record) {
	if records == nil {
		records = []analysis.Record{}
	}
	h.publish(userID, wsMessage{Type: "records", Records: records})
}

// Notify pushes a one-shot alert to the user's subscribers.
func (h *Hub) Notify(userID, title, body string) {
	h.publish(userID, wsMessage{Type: "alert", Title: title, Body: body})
}

func (h *Hub) publish(userID string, msg wsMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshaling push message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			// Slow consumer; it will miss this message and catch up on
			// the next snapshot.
		}
	}
}

func (h *Hub) register(userID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*wsClient]struct{})
	}
	h.clients[userID][c] = struct{}{}
}

func (h *Hub) unregister(userID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
}

// SubscriberCount reports how many connections a user has open.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// handleSubscribe upgrades the connection and streams record snapshots and
// alerts. The current snapshot is sent immediately on connect.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())

	records, err := s.records.ListRecordsByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, clientSendSize)}
	s.hub.register(userID, client)

	go client.writePump()
	go func() {
		defer func() {
			s.hub.unregister(userID, client)
			conn.Close()
		}()
		// Subscribers never send application messages; reading only
		// detects the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.hub.PublishRecords(userID, records)
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
