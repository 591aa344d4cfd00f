package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Frame is the JSON envelope pushed to clients
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RoomFor returns the room that receives a user's events
func RoomFor(ownerID string) string {
	return "user_" + ownerID
}

// Hub fans user events out to the websocket connections of their owner.
// Slow clients are dropped instead of blocking the sender.
type Hub struct {
	upgrader gws.Upgrader
	logger   *zap.Logger

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// NewHub creates a hub. An empty allowedOrigins list or "*" accepts any origin.
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		logger: logger,
		rooms:  make(map[string]map[*client]struct{}),
	}
	h.upgrader = gws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		return set[strings.ToLower(origin)]
	}
}

// ServeHTTP upgrades the request and joins the room of the userId query parameter
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		room: RoomFor(userID),
		send: make(chan []byte, sendBuffer),
	}
	h.register(c)
	h.logger.Debug("websocket client connected", zap.String("room", c.room))

	go c.writePump()
	go c.readPump()
}

// Broadcast queues msg for every client in room and returns how many
// clients accepted it.
func (h *Hub) Broadcast(room string, msg []byte) int {
	var slow []*client
	sent := 0

	h.mu.RLock()
	for c := range h.rooms[room] {
		select {
		case c.send <- msg:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", zap.String("room", room))
		h.unregister(c)
	}
	return sent
}

// Handle implements event.EventHandler for user-facing events
func (h *Hub) Handle(e event.DomainEvent) error {
	ue, ok := e.(event.UserEvent)
	if !ok || ue.Owner() == "" {
		return nil
	}

	msg, err := json.Marshal(Frame{Event: e.EventName(), Data: ue.Payload()})
	if err != nil {
		return err
	}
	h.Broadcast(RoomFor(ue.Owner()), msg)
	return nil
}

// HandledEvents returns the events pushed to clients
func (h *Hub) HandledEvents() []string {
	return []string{
		event.NameQueued,
		event.NameProgress,
		event.NameCompleted,
		event.NameFailed,
		event.NameCancelled,
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.room]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.room] = room
	}
	room[c] = struct{}{}
}

// unregister removes c and closes its send channel exactly once
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[c.room]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.room)
	}
	close(c.send)
}

type client struct {
	hub  *Hub
	conn *gws.Conn
	room string
	send chan []byte
}

// readPump discards inbound messages and keeps the connection alive
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", zap.String("room", c.room), zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(gws.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(gws.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
