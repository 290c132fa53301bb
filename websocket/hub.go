package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gojuon-server/metrics"
)

const sendBuffer = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

// Client represents a browser tab connected for live reload
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the connected clients and fans messages out to them
type Hub struct {
	clients map[*Client]bool
	logger  *slog.Logger

	mu sync.Mutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger,
	}
}

// IncomingMessage is a message sent by the page
type IncomingMessage struct {
	Type string `json:"type"`
}

// HandleWebSocket upgrades the request and starts the client pumps
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "err", err)
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.register(client)
	h.SendToClient(client, map[string]string{"type": "connected"})

	go client.writePump()
	go client.readPump()
}

// Broadcast sends message to every connected client
func (h *Hub) Broadcast(message any) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.deliver(client, data)
	}
}

// SendToClient sends message to a single client
func (h *Hub) SendToClient(client *Client, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.deliver(client, data)
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Close disconnects every client. Hijacked connections are not closed by
// http.Server.Shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.conn.Close()
		h.drop(client)
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.Get().WebSocketConnections.Inc()
	h.logger.Info("client connected", "client", client.id, "total", total)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if h.clients[client] {
		h.drop(client)
	}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client disconnected", "client", client.id, "total", total)
}

// deliver queues data for client; h.mu must be held
func (h *Hub) deliver(client *Client, data []byte) {
	if !h.clients[client] {
		return
	}

	select {
	case client.send <- data:
	default:
		// buffer full, the client is not reading
		h.logger.Warn("dropping slow client", "client", client.id)
		h.drop(client)
	}
}

// drop removes client; h.mu must be held
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	metrics.Get().WebSocketConnections.Dec()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("read error", "client", c.id, "err", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Debug("invalid message", "client", c.id, "err", err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.hub.logger.Debug("write error", "client", c.id, "err", err)
			return
		}
	}

	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

func (c *Client) handleMessage(msg IncomingMessage) {
	switch msg.Type {
	case "ping":
		c.hub.SendToClient(c, map[string]string{"type": "pong"})

	default:
		c.hub.logger.Debug("unknown message type", "client", c.id, "type", msg.Type)
	}
}
