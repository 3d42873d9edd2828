package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"errortracker/src/model"
)

const (
	liveSendBuffer   = 16
	liveWriteTimeout = 5 * time.Second
)

// LiveEvent is the frame pushed to live clients.
type LiveEvent struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Timestamp int64            `json:"timestamp"`
	Subject   string           `json:"subject"`
	Aggregate AggregateSummary `json:"aggregate"`
}

type liveClient struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *liveClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// LiveHub broadcasts notifications to connected websocket clients. A client
// whose buffer is full is disconnected rather than slowing down capture.
type LiveHub struct {
	upgrader websocket.Upgrader
	logger   *logrus.Entry

	mu      sync.RWMutex
	clients map[string]*liveClient
}

func NewLiveHub(logger *logrus.Entry) *LiveHub {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LiveHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[string]*liveClient),
	}
}

// ServeHTTP upgrades the connection and streams events until the client leaves.
func (h *LiveHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("[live] websocket upgrade failed")
		return
	}

	client := &liveClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, liveSendBuffer)}
	h.register(client)

	go h.writePump(client)
	h.readPump(client)
}

func (h *LiveHub) register(c *liveClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.WithField("client_id", c.id).Info("[live] client connected")
}

func (h *LiveHub) unregister(c *liveClient) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		c.close()
	}
	h.mu.Unlock()
}

// readPump discards inbound frames and detects disconnects.
func (h *LiveHub) readPump(c *liveClient) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.logger.WithField("client_id", c.id).Info("[live] client disconnected")
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *LiveHub) writePump(c *liveClient) {
	defer func() {
		_ = c.conn.Close()
	}()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.WithError(err).WithField("client_id", c.id).Debug("[live] write failed")
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// Clients returns the number of connected clients.
func (h *LiveHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *LiveHub) Notify(_ context.Context, _ *http.Request, aggregate *model.ErrorAggregate, n model.Notification) error {
	msg, err := json.Marshal(LiveEvent{
		ID:        uuid.NewString(),
		Type:      "error",
		Timestamp: time.Now().UnixMilli(),
		Subject:   n.Subject,
		Aggregate: summarize(aggregate),
	})
	if err != nil {
		return fmt.Errorf("marshal live event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, id)
			c.close()
			h.logger.WithField("client_id", id).Warn("[live] slow client dropped")
		}
	}
	return nil
}

// Close disconnects every client.
func (h *LiveHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
}
