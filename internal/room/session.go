// Package room tracks the membership state of the local user in each
// room. Join and leave are confirmed by the server echoing the user's own
// user_joined / user_left presence frame; there is no dedicated ack.
package room

import (
	"slices"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omochice/hybrid-chat/internal/chaterr"
	"github.com/omochice/hybrid-chat/internal/clock"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// State is the membership state of one room.
type State int

const (
	NotJoined State = iota
	JoinPending
	Joined
	LeavePending
)

func (s State) String() string {
	switch s {
	case NotJoined:
		return "not_joined"
	case JoinPending:
		return "join_pending"
	case Joined:
		return "joined"
	case LeavePending:
		return "leave_pending"
	default:
		return "unknown"
	}
}

var (
	// ErrLeavePending is returned by Join while a leave is unconfirmed.
	ErrLeavePending = errors.New("leave in progress")
	// ErrConnectionLost fails pending joins when the socket drops.
	ErrConnectionLost = errors.New("connection lost")
)

// Sender emits push-channel frames.
type Sender interface {
	Send(f protocol.Frame) error
}

// Listener is notified of membership outcomes.
type Listener interface {
	// Joined is called when a join is confirmed.
	Joined(room string)
	// Left is called when the user is no longer in the room.
	Left(room string)
	// Failed is called when a pending join or leave did not complete.
	Failed(room string, err error)
}

// Config tunes the session.
type Config struct {
	UserID       string
	JoinTimeout  time.Duration
	LeaveTimeout time.Duration
}

type membership struct {
	state State
	// rejoin marks a JoinPending entry re-issued for a room that was
	// already joined before the socket dropped.
	rejoin bool
	issued time.Time
	timer  clock.Timer
}

// Session is the RoomSession. It must only be used on the event loop.
type Session struct {
	cfg      Config
	sender   Sender
	clock    clock.Clock
	listener Listener
	rooms    map[string]*membership
}

// New creates a session. c must run its callbacks on the event loop.
func New(cfg Config, sender Sender, c clock.Clock, l Listener) *Session {
	return &Session{
		cfg:      cfg,
		sender:   sender,
		clock:    c,
		listener: l,
		rooms:    make(map[string]*membership),
	}
}

// State returns the membership state of room.
func (s *Session) State(room string) State {
	if m, ok := s.rooms[room]; ok {
		return m.state
	}
	return NotJoined
}

// Accepts reports whether live frames and history pages for room should
// be applied.
func (s *Session) Accepts(room string) bool {
	st := s.State(room)
	return st == JoinPending || st == Joined
}

// Rooms returns the rooms in the given states, sorted. Without states it
// returns every tracked room.
func (s *Session) Rooms(states ...State) []string {
	out := make([]string, 0, len(s.rooms))
	for name, m := range s.rooms {
		if len(states) == 0 || slices.Contains(states, m.state) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Join asks to enter room. It is a no-op while joined or joining.
func (s *Session) Join(room string) error {
	switch s.State(room) {
	case JoinPending, Joined:
		return nil
	case LeavePending:
		return errors.Wrapf(ErrLeavePending, "join %s", room)
	}
	return s.requestJoin(room, false)
}

// Leave asks to exit room. It is a no-op unless joined or joining.
func (s *Session) Leave(room string) error {
	m, ok := s.rooms[room]
	if !ok || m.state == LeavePending {
		return nil
	}
	if err := s.sender.Send(protocol.LeaveRoom{RoomID: room, UserID: s.cfg.UserID}); err != nil {
		return err
	}
	s.stop(m)
	m.state = LeavePending
	m.rejoin = false
	m.issued = s.clock.Now()
	m.timer = s.clock.AfterFunc(s.cfg.LeaveTimeout, func() { s.leaveExpired(room, m) })
	log.Debug().Str("component", "room").Str("room_id", room).Msg("leave requested")
	return nil
}

// HandleUserJoined applies a user_joined frame. It reports whether the
// frame was the local user's own echo.
func (s *Session) HandleUserJoined(f protocol.UserJoined) bool {
	if f.UserID != s.cfg.UserID {
		return false
	}
	m, ok := s.rooms[f.RoomID]
	if !ok || m.state != JoinPending {
		return true
	}
	s.stop(m)
	m.state = Joined
	m.rejoin = false
	log.Info().Str("component", "room").Str("room_id", f.RoomID).
		Dur("latency", s.clock.Now().Sub(m.issued)).
		Msg("joined")
	s.listener.Joined(f.RoomID)
	return true
}

// HandleUserLeft applies a user_left frame. It reports whether the frame
// was the local user's own echo.
func (s *Session) HandleUserLeft(f protocol.UserLeft) bool {
	if f.UserID != s.cfg.UserID {
		return false
	}
	m, ok := s.rooms[f.RoomID]
	if !ok {
		return true
	}
	if m.state == JoinPending {
		// Echo of an earlier leave racing a new join.
		return true
	}
	s.stop(m)
	delete(s.rooms, f.RoomID)
	log.Info().Str("component", "room").Str("room_id", f.RoomID).Msg("left")
	s.listener.Left(f.RoomID)
	return true
}

// ConnectionLost settles pending operations after the socket dropped.
// Pending joins fail, pending leaves complete (the server drops the
// membership with the socket) and joined rooms are kept for Rejoin.
// Unconfirmed rejoins count as joined.
func (s *Session) ConnectionLost() {
	for _, room := range s.Rooms(JoinPending, LeavePending) {
		m := s.rooms[room]
		s.stop(m)
		if m.rejoin {
			m.state = Joined
			continue
		}
		delete(s.rooms, room)
		if m.state == JoinPending {
			s.listener.Failed(room, chaterr.Transport("join "+room, ErrConnectionLost))
		} else {
			s.listener.Left(room)
		}
	}
}

// Rejoin re-issues join_room for exactly the rooms that were joined.
func (s *Session) Rejoin() {
	for _, room := range s.Rooms(Joined) {
		if err := s.requestJoin(room, true); err != nil {
			log.Warn().Str("component", "room").Str("room_id", room).Err(err).Msg("rejoin failed")
		}
	}
}

// Teardown cancels every timer and forgets every membership.
func (s *Session) Teardown() {
	for _, m := range s.rooms {
		s.stop(m)
	}
	s.rooms = make(map[string]*membership)
}

func (s *Session) requestJoin(room string, rejoin bool) error {
	if err := s.sender.Send(protocol.JoinRoom{RoomID: room, UserID: s.cfg.UserID}); err != nil {
		return err
	}
	m, ok := s.rooms[room]
	if !ok {
		m = &membership{}
		s.rooms[room] = m
	}
	s.stop(m)
	m.state = JoinPending
	m.rejoin = rejoin
	m.issued = s.clock.Now()
	m.timer = s.clock.AfterFunc(s.cfg.JoinTimeout, func() { s.joinExpired(room, m) })
	log.Debug().Str("component", "room").Str("room_id", room).Msg("join requested")
	return nil
}

func (s *Session) joinExpired(room string, m *membership) {
	if s.rooms[room] != m || m.state != JoinPending {
		return
	}
	m.timer = nil
	delete(s.rooms, room)
	log.Warn().Str("component", "room").Str("room_id", room).Msg("join timed out")
	s.listener.Failed(room, chaterr.Timeout("join", room))
}

func (s *Session) leaveExpired(room string, m *membership) {
	if s.rooms[room] != m || m.state != LeavePending {
		return
	}
	m.timer = nil
	m.state = Joined
	log.Warn().Str("component", "room").Str("room_id", room).Msg("leave timed out")
	s.listener.Failed(room, chaterr.Timeout("leave", room))
}

func (s *Session) stop(m *membership) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
