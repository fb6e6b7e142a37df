package chattest

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/omochice/hybrid-chat/internal/chat"
	"github.com/omochice/hybrid-chat/pkg/protocol"
	"github.com/omochice/hybrid-chat/pkg/protocol/pb"
)

// Client represents a connected client.
type Client struct {
	Conn     chat.Conn
	UserID   string
	Username string
	Outgoing chan []byte

	rooms map[string]bool
}

// NewClient wraps conn.
func NewClient(conn chat.Conn) *Client {
	return &Client{
		Conn:     conn,
		Outgoing: make(chan []byte, 64),
		rooms:    make(map[string]bool),
	}
}

// Behavior toggles how the hub answers, to exercise client edge cases.
type Behavior struct {
	// SilentJoins suppresses the user_joined / user_left echoes.
	SilentJoins bool
	// SilentPongs stops answering heartbeats.
	SilentPongs bool
	// SilentMessages stops broadcasting new_message frames.
	SilentMessages bool
	// DropClientID strips client_id from broadcast messages.
	DropClientID bool
}

// Hub manages connected clients, room membership and broadcast.
type Hub struct {
	store *Store

	mu       sync.RWMutex
	clients  map[*Client]bool
	behavior Behavior
	received []protocol.Frame
}

// NewHub creates a hub persisting messages to store.
func NewHub(store *Store) *Hub {
	return &Hub{
		store:   store,
		clients: make(map[*Client]bool),
	}
}

// SetBehavior changes how the hub answers.
func (h *Hub) SetBehavior(b Behavior) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.behavior = b
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub and its rooms.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	rooms := make([]string, 0, len(client.rooms))
	for room := range client.rooms {
		rooms = append(rooms, room)
	}
	h.mu.Unlock()

	for _, room := range rooms {
		h.broadcast(room, protocol.UserLeft{UserID: client.UserID, Username: client.Username, RoomID: room}, client)
	}
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Received returns every frame received from clients, in arrival order.
func (h *Hub) Received() []protocol.Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.received)
}

// Members returns the user ids in room.
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for c := range h.clients {
		if c.rooms[room] {
			ids = append(ids, c.UserID)
		}
	}
	slices.Sort(ids)
	return ids
}

// Kick drops every client connection without a close frame.
func (h *Hub) Kick() {
	h.mu.RLock()
	conns := make([]chat.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.Conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if d, ok := conn.(interface{ Drop() error }); ok {
			_ = d.Drop()
			continue
		}
		_ = conn.Close()
	}
}

// HandleClient reads frames from client until its connection fails.
func (h *Hub) HandleClient(client *Client) {
	defer h.Unregister(client)

	for {
		data, err := client.Conn.Read(context.Background())
		if err != nil {
			return
		}
		f, err := protocol.Decode(data)
		if err != nil {
			log.Debug().Str("component", "chattest").Err(err).Msg("bad frame from client")
			h.send(client, protocol.ServerError{Message: err.Error()})
			continue
		}
		h.mu.Lock()
		h.received = append(h.received, f)
		h.mu.Unlock()
		h.handle(client, f)
	}
}

func (h *Hub) handle(client *Client, f protocol.Frame) {
	h.mu.RLock()
	b := h.behavior
	h.mu.RUnlock()

	switch f := f.(type) {
	case protocol.JoinRoom:
		h.mu.Lock()
		client.UserID = f.UserID
		if client.Username == "" {
			client.Username = f.UserID
		}
		client.rooms[f.RoomID] = true
		h.mu.Unlock()
		if !b.SilentJoins {
			h.broadcast(f.RoomID, protocol.UserJoined{UserID: f.UserID, Username: client.Username, RoomID: f.RoomID}, nil)
		}

	case protocol.LeaveRoom:
		if !b.SilentJoins {
			h.broadcast(f.RoomID, protocol.UserLeft{UserID: f.UserID, Username: client.Username, RoomID: f.RoomID}, nil)
		}
		h.mu.Lock()
		delete(client.rooms, f.RoomID)
		h.mu.Unlock()

	case protocol.SendMessage:
		stored, _ := h.store.Add(pb.ChatMessage{
			UserID:      f.UserID,
			Username:    client.Username,
			Content:     f.Content,
			RoomID:      f.RoomID,
			MessageType: protocol.ParseKind(f.MessageType).Number(),
		})
		if b.SilentMessages {
			return
		}
		wire := protocol.WireMessage{
			ID:          stored.ID,
			UserID:      stored.UserID,
			Username:    stored.Username,
			Content:     stored.Content,
			RoomID:      stored.RoomID,
			MessageType: protocol.KindFromNumber(stored.MessageType),
			Timestamp:   stored.Timestamp,
		}
		if !b.DropClientID {
			wire.ClientID = f.ClientID
		}
		h.broadcast(f.RoomID, protocol.NewMessage{Message: wire}, nil)

	case protocol.GetOnlineUsers:
		h.send(client, protocol.OnlineUsersList{RoomID: f.RoomID, Users: h.online(f.RoomID)})

	case protocol.Ping:
		if !b.SilentPongs {
			h.send(client, protocol.Pong{Timestamp: f.Timestamp})
		}

	case protocol.Pong:

	default:
		h.send(client, protocol.ServerError{Message: "unsupported frame " + string(f.Type())})
	}
}

func (h *Hub) online(room string) []protocol.User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := []protocol.User{}
	for c := range h.clients {
		if c.rooms[room] {
			users = append(users, protocol.User{ID: c.UserID, Name: c.Username, Online: true})
		}
	}
	slices.SortFunc(users, func(a, b protocol.User) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return users
}

// Push sends f to every member of room.
func (h *Hub) Push(room string, f protocol.Frame) {
	h.broadcast(room, f, nil)
}

// broadcast sends f to every member of room except skip.
func (h *Hub) broadcast(room string, f protocol.Frame, skip *Client) {
	data, err := protocol.Encode(f)
	if err != nil {
		log.Error().Str("component", "chattest").Err(err).Msg("encode broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c == skip || !c.rooms[room] {
			continue
		}
		select {
		case c.Outgoing <- data:
		default:
			log.Warn().Str("component", "chattest").Str("user_id", c.UserID).Msg("client channel full, skipping")
		}
	}
}

func (h *Hub) send(c *Client, f protocol.Frame) {
	data, err := protocol.Encode(f)
	if err != nil {
		return
	}
	select {
	case c.Outgoing <- data:
	default:
		log.Warn().Str("component", "chattest").Str("user_id", c.UserID).Msg("client channel full, skipping")
	}
}
