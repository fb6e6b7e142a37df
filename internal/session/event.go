package session

import (
	"github.com/omochice/hybrid-chat/internal/connection"
)

// EventType tells what changed.
type EventType int

const (
	// EventConnection carries the new connection state in Conn.
	EventConnection EventType = iota
	// EventJoined reports a confirmed join of Room.
	EventJoined
	// EventLeft reports that the user is no longer in Room.
	EventLeft
	// EventMessages reports that the timeline of Room changed.
	EventMessages
	// EventPresence reports that the online users of Room changed.
	EventPresence
	// EventError carries a failure in Err; Room is set when it concerns one.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConnection:
		return "connection"
	case EventJoined:
		return "joined"
	case EventLeft:
		return "left"
	case EventMessages:
		return "messages"
	case EventPresence:
		return "presence"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification published on Session.Events.
type Event struct {
	Type EventType
	Room string
	Conn connection.State
	Err  error
}
