package hub

import (
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chat-sync/internal/events"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

// Conn is the connection surface the hub writes to and closes. Satisfied by
// *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one registered socket connection. A user with several devices has
// several clients.
type Client struct {
	conn Conn
	info ConnInfo

	mu       sync.Mutex
	userID   string
	userName string
}

// NewClient wraps a connection before identity registration.
func NewClient(conn Conn, info ConnInfo) *Client {
	return &Client{conn: conn, info: info}
}

// UserID returns the registered identity, empty before user-online.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) displayName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userName
}

func (c *Client) setIdentity(userID, userName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.userName = userName
}

// send serializes writes on the connection.
func (c *Client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks which users are connected and which conversation rooms each
// connection has joined, and fans events out to them.
type Hub struct {
	messages repositories.MessageRepository
	log      zerolog.Logger

	mu     sync.RWMutex
	byUser map[string]map[*Client]struct{}
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub(messages repositories.MessageRepository, log zerolog.Logger) *Hub {
	return &Hub{
		messages: messages,
		log:      log,
		byUser:   make(map[string]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		joined:   make(map[*Client]map[string]struct{}),
	}
}

// Register adds a client under its user id and reports whether this is the
// user's first live connection.
func (h *Hub) Register(c *Client) bool {
	userID := c.UserID()
	if userID == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.byUser[userID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.byUser[userID] = clients
	}
	clients[c] = struct{}{}
	return len(clients) == 1
}

// Unregister removes a client from its user entry and every joined room, and
// reports whether the user has no connections left.
func (h *Hub) Unregister(c *Client) bool {
	userID := c.UserID()
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.joined[c] {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.joined, c)

	if userID == "" {
		return false
	}
	clients, ok := h.byUser[userID]
	if !ok {
		return false
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.byUser, userID)
		return true
	}
	return false
}

// JoinRoom subscribes the connection to a conversation room. Membership is
// per connection and does not survive a reconnect.
func (h *Hub) JoinRoom(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Client]struct{})
	}
	h.rooms[conversationID][c] = struct{}{}
	if _, ok := h.joined[c]; !ok {
		h.joined[c] = make(map[string]struct{})
	}
	h.joined[c][conversationID] = struct{}{}
}

// OnlineUsers returns the ids of all users with at least one connection.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.byUser))
	for id := range h.byUser {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// SendTo delivers an event to a single connection.
func (h *Hub) SendTo(c *Client, kind string, payload any) {
	env, err := events.NewEnvelope(kind, payload)
	if err != nil {
		h.log.Error().Err(err).Str("kind", kind).Msg("event encode failed")
		return
	}
	data, _ := json.Marshal(env)
	if err := c.send(data); err != nil {
		h.log.Warn().Err(err).Str("kind", kind).Str("conn_id", c.info.ConnID).Msg("websocket write failed")
		h.dropClient(c)
	}
}

// BroadcastRoom fans an event out to every connection in a conversation room,
// skipping except when set.
func (h *Hub) BroadcastRoom(conversationID, kind string, payload any, except *Client) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.fanOut(targets, kind, payload)
}

// BroadcastAll fans an event out to every registered connection.
func (h *Hub) BroadcastAll(kind string, payload any, except *Client) {
	h.mu.RLock()
	var targets []*Client
	for _, clients := range h.byUser {
		for c := range clients {
			if c != except {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()
	h.fanOut(targets, kind, payload)
}

// BroadcastNewMessage pushes a freshly stored message to its conversation
// room. Called by the REST layer after a successful insert; the sender's own
// connections receive the echo too.
func (h *Hub) BroadcastNewMessage(conversationID string, msg models.Message) {
	h.BroadcastRoom(conversationID, events.NewMessage, events.NewMessagePayload{
		ConversationID: conversationID,
		Message:        msg,
	}, nil)
}

func (h *Hub) fanOut(targets []*Client, kind string, payload any) {
	env, err := events.NewEnvelope(kind, payload)
	if err != nil {
		h.log.Error().Err(err).Str("kind", kind).Msg("event encode failed")
		return
	}
	data, _ := json.Marshal(env)
	for _, c := range targets {
		if err := c.send(data); err != nil {
			h.log.Warn().Err(err).Str("kind", kind).Str("conn_id", c.info.ConnID).Msg("websocket write failed")
			h.dropClient(c)
		}
	}
}

// dropClient closes a dead connection and, when it was the user's last one,
// announces the user offline.
func (h *Hub) dropClient(c *Client) {
	_ = c.conn.Close()
	userID := c.UserID()
	if h.Unregister(c) {
		h.BroadcastAll(events.UserStatusChanged, events.UserStatusChangedPayload{
			UserID: userID,
			Status: events.StatusOffline,
		}, nil)
	}
}
