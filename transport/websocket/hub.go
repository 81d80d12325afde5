package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Yquannn/multiplayer-phaser/game/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Defaults used when Config leaves a field at zero.
	defaultMaxMessageSize = 1024
	defaultSendBuffer     = 256
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrSendBufferFull     = errors.New("send buffer full")
)

// Handler receives connection lifecycle events and inbound messages.
type Handler interface {
	Connect(connID string)
	Dispatch(connID string, env protocol.Envelope) error
	Disconnect(connID string)
}

// Config tunes the hub's connection handling.
type Config struct {
	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	MaxMessageSize int64
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
	// AllowedOrigins restricts the Origin header. Empty allows any origin.
	AllowedOrigins []string
}

// Client represents a WebSocket client
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	groups map[string]bool

	// Closed once the hub has registered the client
	ready chan struct{}
}

func newClient(h *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.config.SendBuffer),
		id:     id,
		groups: make(map[string]bool),
		ready:  make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string {
	return c.id
}

// Hub maintains the set of active clients and their room groups
type Hub struct {
	mu sync.RWMutex

	// Registered clients by connection ID
	clients map[string]*Client

	// Room groups: roomID -> connID -> client
	groups map[string]map[string]*Client

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	handler  Handler
	upgrader websocket.Upgrader
	config   Config
	logger   *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(cfg Config, logger *zap.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     cfg,
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetHandler sets the receiver of inbound events. It must be called before Run.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Run starts the hub's event loop and blocks until ctx is done, at which
// point every connection is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h, conn, uuid.NewString())

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	// Events read from the socket must not reach the handler before Connect.
	<-client.ready

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// Send delivers a message to one connection.
func (h *Hub) Send(connID string, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	if !h.enqueue(client, data) {
		return ErrSendBufferFull
	}
	return nil
}

// Broadcast delivers a message to every connection in a room group except
// the listed ones.
func (h *Hub) Broadcast(roomID string, msg protocol.Message, except ...string) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message",
			zap.String("room_id", roomID), zap.String("event", msg.Event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID, client := range h.groups[roomID] {
		if contains(except, connID) {
			continue
		}
		h.enqueue(client, data)
	}
}

// JoinGroup adds a registered connection to a room group.
func (h *Hub) JoinGroup(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	if h.groups[roomID] == nil {
		h.groups[roomID] = make(map[string]*Client)
	}
	h.groups[roomID][connID] = client
	client.groups[roomID] = true
}

// LeaveGroup removes a connection from a room group.
func (h *Hub) LeaveGroup(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[connID]; ok {
		delete(client.groups, roomID)
	}
	h.removeFromGroup(roomID, connID)
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GroupSize returns the number of connections in a room group.
func (h *Hub) GroupSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[roomID])
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client registered", zap.String("conn_id", client.id), zap.Int("clients", total))

	if h.handler != nil {
		h.handler.Connect(client.id)
	}
	close(client.ready)
}

// unregisterClient removes a client from the hub and all of its groups
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.id]; !ok || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	for roomID := range client.groups {
		h.removeFromGroup(roomID, client.id)
	}
	close(client.send)
	remaining := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client unregistered", zap.String("conn_id", client.id), zap.Int("clients", remaining))

	if h.handler != nil {
		h.handler.Disconnect(client.id)
	}
}

// closeAll drops every client without notifying the handler.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
	h.groups = make(map[string]map[string]*Client)
}

// removeFromGroup must be called with the write lock held.
func (h *Hub) removeFromGroup(roomID, connID string) {
	group, ok := h.groups[roomID]
	if !ok {
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(h.groups, roomID)
	}
}

// enqueue must be called with at least the read lock held. A client whose
// queue is full has its socket closed; its read pump then unregisters it
// after the last event it read has been dispatched.
func (h *Hub) enqueue(client *Client, data []byte) bool {
	select {
	case client.send <- data:
		return true
	default:
		h.logger.Warn("send buffer full, dropping client", zap.String("conn_id", client.id))
		if client.conn != nil {
			client.conn.Close()
		}
		return false
	}
}

func (h *Hub) evict(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	return contains(h.config.AllowedOrigins, r.Header.Get("Origin"))
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// readPump pumps messages from the WebSocket connection to the handler
func (c *Client) readPump() {
	defer func() {
		c.hub.evict(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.hub.logger.Debug("ignoring undecodable frame", zap.String("conn_id", c.id), zap.Error(err))
			continue
		}
		if c.hub.handler == nil {
			continue
		}
		if err := c.hub.handler.Dispatch(c.id, env); err != nil {
			c.hub.logger.Debug("ignoring event",
				zap.String("conn_id", c.id), zap.String("event", env.Event), zap.Error(err))
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One envelope per frame so clients can parse each frame as JSON.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
