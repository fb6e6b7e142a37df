// Package presence keeps the online-user snapshot of each room.
package presence

import (
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// Delta is an incremental presence change.
type Delta int

const (
	Joined Delta = iota
	Left
)

func (d Delta) String() string {
	if d == Left {
		return "left"
	}
	return "joined"
}

type change struct {
	user  protocol.User
	delta Delta
}

// Tracker is the PresenceTracker. It must only be used on the event loop.
//
// A room's snapshot is replaced wholesale by every online_users_list.
// Deltas adjust an existing snapshot. Deltas arriving before the first
// list are buffered in arrival order; the first list supersedes them.
type Tracker struct {
	snapshots map[string][]protocol.User
	buffered  map[string][]change
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		snapshots: make(map[string][]protocol.User),
		buffered:  make(map[string][]change),
	}
}

// Replace installs users as the snapshot of room.
// Duplicate ids keep their first occurrence.
func (t *Tracker) Replace(room string, users []protocol.User) {
	snapshot := make([]protocol.User, 0, len(users))
	for _, u := range users {
		if u.ID == "" || indexOf(snapshot, u.ID) >= 0 {
			continue
		}
		u.Online = true
		snapshot = append(snapshot, u)
	}
	if n := len(t.buffered[room]); n > 0 {
		log.Debug().Str("component", "presence").Str("room_id", room).Int("deltas", n).Msg("list supersedes buffered deltas")
	}
	delete(t.buffered, room)
	t.snapshots[room] = snapshot
}

// Adjust applies a user_joined or user_left to room.
func (t *Tracker) Adjust(room string, user protocol.User, d Delta) {
	if user.ID == "" {
		return
	}
	snapshot, ok := t.snapshots[room]
	if !ok {
		t.buffered[room] = append(t.buffered[room], change{user: user, delta: d})
		return
	}
	t.snapshots[room] = apply(snapshot, change{user: user, delta: d})
}

// Users returns the online users of room in snapshot order. Without a
// snapshot it returns the provisional view built from buffered deltas.
func (t *Tracker) Users(room string) []protocol.User {
	if snapshot, ok := t.snapshots[room]; ok {
		return slices.Clone(snapshot)
	}
	var view []protocol.User
	for _, c := range t.buffered[room] {
		view = apply(view, c)
	}
	return view
}

// HasSnapshot reports whether an online_users_list was received for room.
func (t *Tracker) HasSnapshot(room string) bool {
	_, ok := t.snapshots[room]
	return ok
}

// Clear forgets room.
func (t *Tracker) Clear(room string) {
	delete(t.snapshots, room)
	delete(t.buffered, room)
}

// Reset forgets every room.
func (t *Tracker) Reset() {
	t.snapshots = make(map[string][]protocol.User)
	t.buffered = make(map[string][]change)
}

func apply(users []protocol.User, c change) []protocol.User {
	i := indexOf(users, c.user.ID)
	switch c.delta {
	case Left:
		if i >= 0 {
			users = slices.Delete(users, i, i+1)
		}
	default:
		u := c.user
		u.Online = true
		if i >= 0 {
			if u.Name == "" {
				u.Name = users[i].Name
			}
			if u.Avatar == "" {
				u.Avatar = users[i].Avatar
			}
			users[i] = u
		} else {
			users = append(users, u)
		}
	}
	return users
}

func indexOf(users []protocol.User, id string) int {
	return slices.IndexFunc(users, func(u protocol.User) bool { return u.ID == id })
}
