package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omochice/hybrid-chat/internal/chaterr"
	"github.com/omochice/hybrid-chat/internal/connection"
	"github.com/omochice/hybrid-chat/internal/dispatch"
	"github.com/omochice/hybrid-chat/internal/presence"
	"github.com/omochice/hybrid-chat/internal/room"
	"github.com/omochice/hybrid-chat/internal/timeline"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// core owns the components and receives every callback they emit. It
// is confined to the event loop.
type core struct {
	cfg Config
	// bg bounds background RPCs; it is cancelled when the session ends.
	bg context.Context

	conn       *connection.Manager
	dispatcher *dispatch.Dispatcher
	rooms      *room.Session
	timeline   *timeline.Timeline
	presence   *presence.Tracker

	events        chan Event
	defaultJoined bool
}

func (c *core) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("component", "session").
			Str("event", ev.Type.String()).
			Str("room_id", ev.Room).
			Msg("event channel full, dropping")
	}
}

func (c *core) fail(room string, err error) {
	c.emit(Event{Type: EventError, Room: room, Err: err})
}

// connection.Handler

func (c *core) HandleFrame(data []byte) {
	c.dispatcher.HandleFrame(data)
}

func (c *core) Connected() {
	c.rooms.Rejoin()
	if c.defaultJoined || c.cfg.DefaultRoom == "" {
		return
	}
	c.defaultJoined = true
	if err := c.rooms.Join(c.cfg.DefaultRoom); err != nil {
		c.fail(c.cfg.DefaultRoom, err)
	}
}

func (c *core) Disconnected(err error) {
	c.rooms.ConnectionLost()
	// Lists are stale once the socket is gone; rejoins fetch new ones.
	c.presence.Reset()
	if err != nil {
		c.fail("", err)
	}
}

func (c *core) StateChanged(s connection.State) {
	c.emit(Event{Type: EventConnection, Conn: s})
}

// dispatch.Handler

func (c *core) NewMessage(msg protocol.Message) {
	c.timeline.Append(msg)
}

func (c *core) UserJoined(f protocol.UserJoined) {
	c.rooms.HandleUserJoined(f)
	if !c.rooms.Accepts(f.RoomID) {
		return
	}
	c.presence.Adjust(f.RoomID, protocol.User{ID: f.UserID, Name: f.Username}, presence.Joined)
	c.emit(Event{Type: EventPresence, Room: f.RoomID})
}

func (c *core) UserLeft(f protocol.UserLeft) {
	if c.rooms.HandleUserLeft(f) {
		return
	}
	if !c.rooms.Accepts(f.RoomID) {
		return
	}
	c.presence.Adjust(f.RoomID, protocol.User{ID: f.UserID, Name: f.Username}, presence.Left)
	c.emit(Event{Type: EventPresence, Room: f.RoomID})
}

func (c *core) OnlineUsers(f protocol.OnlineUsersList) {
	if !c.rooms.Accepts(f.RoomID) {
		log.Debug().Str("component", "session").Str("room_id", f.RoomID).Msg("dropping online users of inactive room")
		return
	}
	c.presence.Replace(f.RoomID, f.Users)
	c.emit(Event{Type: EventPresence, Room: f.RoomID})
}

func (c *core) Ping(f protocol.Ping) {
	c.conn.HandlePing(f.Timestamp)
}

func (c *core) Pong(f protocol.Pong) {
	c.conn.HandlePong(f.Timestamp)
}

func (c *core) ServerError(f protocol.ServerError) {
	log.Warn().Str("component", "session").Str("message", f.Message).Msg("server reported an error")
	c.fail("", chaterr.Protocol("server", errors.New(f.Message)))
}

// room.Listener and timeline.Listener

func (c *core) Joined(room string) {
	c.emit(Event{Type: EventJoined, Room: room})
	if err := c.conn.Send(protocol.GetOnlineUsers{RoomID: room}); err != nil {
		log.Warn().Str("component", "session").Str("room_id", room).Err(err).Msg("online users request failed")
	}
	if err := c.timeline.LoadHistory(c.bg, room, 0, c.cfg.HistoryLimit, nil); err != nil {
		c.fail(room, err)
	}
}

func (c *core) Left(room string) {
	c.timeline.Clear(room)
	c.presence.Clear(room)
	c.emit(Event{Type: EventLeft, Room: room})
}

func (c *core) Failed(name string, err error) {
	if c.rooms.State(name) == room.NotJoined {
		// A failed join leaves nothing to reconcile against.
		c.timeline.Clear(name)
		c.presence.Clear(name)
	}
	c.fail(name, err)
}

func (c *core) Changed(room string) {
	c.emit(Event{Type: EventMessages, Room: room})
}

// teardown releases the socket, timers and state.
func (c *core) teardown() {
	c.conn.Disconnect()
	c.rooms.Teardown()
	c.timeline.Reset()
	c.presence.Reset()
}

var (
	_ connection.Handler = (*core)(nil)
	_ dispatch.Handler   = (*core)(nil)
	_ room.Listener      = (*core)(nil)
	_ timeline.Listener  = (*core)(nil)
)
