// Package ws pushes finished automation runs to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Topics a client may subscribe to. Execution topics are also addressable
// per bot as "executions:{bot}".
const (
	TopicExecutions = "executions"
	TopicStatus     = "status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// envelope is the frame sent to clients.
type envelope struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// subscribeMsg is sent by clients to change their topics.
type subscribeMsg struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// Hub tracks connected clients and fans execution results out to the ones
// subscribed. It implements domain.ExecutionRecorder so the automation
// engine can feed it directly.
type Hub struct {
	logger    *slog.Logger
	mode      string
	startedAt time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub. mode is reported in the status frame sent on
// connect.
func NewHub(mode string, logger *slog.Logger) *Hub {
	return &Hub{
		logger:    logger.With(slog.String("component", "ws_hub")),
		mode:      mode,
		startedAt: time.Now().UTC(),
		clients:   make(map[*client]struct{}),
	}
}

// RecordExecution implements domain.ExecutionRecorder.
func (h *Hub) RecordExecution(_ context.Context, res domain.ExecutionResult) error {
	msg, err := json.Marshal(envelope{Type: "execution", Topic: TopicExecutions, Payload: res})
	if err != nil {
		return fmt.Errorf("ws: encode execution %s: %w", res.ID, err)
	}
	h.broadcast(TopicExecutions+":"+res.BotName, msg)
	return nil
}

// broadcast delivers msg to every client subscribed to topic or to its
// prefix before the first colon. Slow clients drop the message.
func (h *Hub) broadcast(topic string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(topic) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping message for slow client", slog.String("topic", topic))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// HandleWS upgrades the request and registers the client. Clients start
// subscribed to every topic; ?topics=a,b narrows that.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{TopicExecutions: true, TopicStatus: true},
	}
	if q := r.URL.Query().Get("topics"); q != "" {
		c.subs = map[string]bool{}
		for _, t := range strings.Split(q, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.subs[t] = true
			}
		}
	}
	c.sendStatus()
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	h.logger.Info("client connected", slog.Int("total_clients", h.ClientCount()))

	go c.writePump()
	go c.readPump()
}

func (c *client) sendStatus() {
	if !c.subscribed(TopicStatus) {
		return
	}
	msg, err := json.Marshal(envelope{Type: "bot_status", Topic: TopicStatus, Payload: map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": max(0, int64(time.Since(c.hub.startedAt).Seconds())),
	}})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// subscribed matches topic exactly or by its prefix before ':'.
func (c *client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs[topic] {
		return true
	}
	if i := strings.IndexByte(topic, ':'); i > 0 {
		return c.subs[topic[:i]]
	}
	return false
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Topics {
			c.subs[t] = true
		}
	case "unsubscribe":
		for _, t := range msg.Topics {
			delete(c.subs, t)
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
		c.hub.logger.Info("client disconnected", slog.Int("total_clients", c.hub.ClientCount()))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg subscribeMsg
		if json.Unmarshal(data, &msg) == nil && msg.Action != "" {
			c.handleSubscription(msg)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ domain.ExecutionRecorder = (*Hub)(nil)
