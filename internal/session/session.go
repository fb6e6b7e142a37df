// Package session wires the connection, dispatch, room, timeline and
// presence components into one chat session. Every component runs on the
// session's event loop; the exported methods are safe for concurrent use
// and hop onto the loop for each call.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omochice/hybrid-chat/internal/chat"
	"github.com/omochice/hybrid-chat/internal/clock"
	"github.com/omochice/hybrid-chat/internal/connection"
	"github.com/omochice/hybrid-chat/internal/dispatch"
	"github.com/omochice/hybrid-chat/internal/eventloop"
	"github.com/omochice/hybrid-chat/internal/history"
	"github.com/omochice/hybrid-chat/internal/presence"
	"github.com/omochice/hybrid-chat/internal/room"
	"github.com/omochice/hybrid-chat/internal/timeline"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// queryTimeout bounds the read accessors, which take no context.
const queryTimeout = 5 * time.Second

// Config tunes a session.
type Config struct {
	UserID   string
	UserName string

	// DefaultRoom is joined on the first successful connect. Empty skips it.
	DefaultRoom string
	// HistoryLimit is the page size of history loads.
	HistoryLimit int
	// RPCTimeout bounds each request/response call.
	RPCTimeout time.Duration

	Connection connection.Config

	JoinTimeout  time.Duration
	LeaveTimeout time.Duration

	MatchWindow time.Duration
	SendGrace   time.Duration

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
	// LoopQueue is the capacity of the event loop queue.
	LoopQueue int
}

func (c Config) withDefaults() Config {
	if c.UserName == "" {
		c.UserName = c.UserID
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 10 * time.Second
	}
	if c.LeaveTimeout <= 0 {
		c.LeaveTimeout = 10 * time.Second
	}
	if c.MatchWindow <= 0 {
		c.MatchWindow = 10 * time.Second
	}
	if c.SendGrace <= 0 {
		c.SendGrace = 2 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 128
	}
	return c
}

// Option customizes a Session.
type Option func(*options)

type options struct {
	clock clock.Clock
	newID func() string
}

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDs replaces the correlation id generator.
func WithIDs(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// Session is a chat session over a push channel and an RPC channel.
type Session struct {
	loop   *eventloop.Loop
	core   *core
	cancel context.CancelFunc

	runOnce sync.Once
}

// New creates a session. Nothing happens until Run is started and Connect
// is called.
func New(cfg Config, dialer chat.Dialer, rpc history.RPC, opts ...Option) *Session {
	o := options{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.withDefaults()

	loop := eventloop.New(cfg.LoopQueue)
	lc := loop.Clock(o.clock)
	bg, cancel := context.WithCancel(context.Background())

	c := &core{
		cfg:      cfg,
		bg:       bg,
		presence: presence.New(),
		events:   make(chan Event, cfg.EventBuffer),
	}
	c.conn = connection.New(cfg.Connection, dialer, loop, lc, c)
	c.dispatcher = dispatch.New(c)
	c.dispatcher.OnError = func(err error) { c.fail("", err) }
	c.rooms = room.New(room.Config{
		UserID:       cfg.UserID,
		JoinTimeout:  cfg.JoinTimeout,
		LeaveTimeout: cfg.LeaveTimeout,
	}, c.conn, lc, c)
	c.timeline = timeline.New(timeline.Config{
		UserID:      cfg.UserID,
		UserName:    cfg.UserName,
		MatchWindow: cfg.MatchWindow,
		SendGrace:   cfg.SendGrace,
		NewID:       o.newID,
	}, history.New(rpc, cfg.RPCTimeout), c.conn, c.rooms, loop, lc, c)

	return &Session{loop: loop, core: c, cancel: cancel}
}

// Run executes the session until ctx is cancelled or Close is called.
// On return the socket is closed and Events is closed.
func (s *Session) Run(ctx context.Context) error {
	err := errors.New("session already ran")
	s.runOnce.Do(func() {
		log.Info().Str("component", "session").Str("user_id", s.core.cfg.UserID).Msg("session started")
		err = s.loop.Run(ctx)
		// The loop has stopped, so this goroutine is the only one left
		// touching component state.
		s.core.teardown()
		s.cancel()
		close(s.core.events)
		log.Info().Str("component", "session").Str("user_id", s.core.cfg.UserID).Msg("session stopped")
	})
	return err
}

// Close stops Run.
func (s *Session) Close() {
	s.loop.Stop()
}

// Events returns the notification channel. Events are dropped when the
// channel is full.
func (s *Session) Events() <-chan Event {
	return s.core.events
}

// Connect opens the push channel, reconnecting on failure until Disconnect.
func (s *Session) Connect(ctx context.Context) error {
	return s.loop.Call(ctx, s.core.conn.Connect)
}

// Disconnect closes the push channel and stops reconnecting.
func (s *Session) Disconnect(ctx context.Context) error {
	return s.loop.Call(ctx, s.core.conn.Disconnect)
}

// Join asks to enter room.
func (s *Session) Join(ctx context.Context, room string) error {
	return s.do(ctx, func() error { return s.core.rooms.Join(room) })
}

// Leave asks to exit room.
func (s *Session) Leave(ctx context.Context, room string) error {
	return s.do(ctx, func() error { return s.core.rooms.Leave(room) })
}

// Send posts body to room. The returned entry is optimistic; it is
// replaced in the timeline once the server confirms it.
func (s *Session) Send(ctx context.Context, room, body string, kind protocol.Kind) (protocol.Message, error) {
	var msg protocol.Message
	err := s.do(ctx, func() error {
		var err error
		msg, err = s.core.timeline.SendOptimistic(s.core.bg, room, body, kind)
		return err
	})
	return msg, err
}

// LoadHistory loads the page preceding the oldest confirmed message of
// room. Merged messages are announced with EventMessages.
func (s *Session) LoadHistory(ctx context.Context, room string) error {
	return s.do(ctx, func() error {
		c := s.core
		return c.timeline.LoadHistory(c.bg, room, c.timeline.Oldest(room), c.cfg.HistoryLimit, nil)
	})
}

// RequestOnlineUsers asks the server for the online users of room.
func (s *Session) RequestOnlineUsers(ctx context.Context, room string) error {
	return s.do(ctx, func() error {
		if !s.core.rooms.Accepts(room) {
			return errors.Wrapf(timeline.ErrNotJoined, "online users of %s", room)
		}
		return s.core.conn.Send(protocol.GetOnlineUsers{RoomID: room})
	})
}

// Messages returns the timeline of room.
func (s *Session) Messages(room string) []protocol.Message {
	var out []protocol.Message
	s.query(func() { out = s.core.timeline.Messages(room) })
	return out
}

// OnlineUsers returns the known online users of room.
func (s *Session) OnlineUsers(room string) []protocol.User {
	var out []protocol.User
	s.query(func() { out = s.core.presence.Users(room) })
	return out
}

// Rooms returns the membership state of every tracked room.
func (s *Session) Rooms() map[string]room.State {
	out := map[string]room.State{}
	s.query(func() {
		for _, name := range s.core.rooms.Rooms() {
			out[name] = s.core.rooms.State(name)
		}
	})
	return out
}

// State returns the connection state.
func (s *Session) State() connection.State {
	st := connection.Disconnected
	s.query(func() { st = s.core.conn.State() })
	return st
}

func (s *Session) do(ctx context.Context, fn func() error) error {
	var err error
	if callErr := s.loop.Call(ctx, func() { err = fn() }); callErr != nil {
		return callErr
	}
	return err
}

func (s *Session) query(fn func()) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := s.loop.Call(ctx, fn); err != nil {
		log.Debug().Str("component", "session").Err(err).Msg("query not served")
	}
}
