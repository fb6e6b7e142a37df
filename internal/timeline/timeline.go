// Package timeline builds the per-room message list from optimistic
// local sends, live pushed messages and historical pages.
//
// Entries of a room are kept sorted by (CreatedAt, ID). A message whose ID
// is already present updates that entry in place, so applying the same
// page or frame twice is harmless. A confirmed message replaces the
// optimistic entry it corresponds to: first by correlation id, then by
// author and body within the match window, earliest entry first.
package timeline

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omochice/hybrid-chat/internal/clock"
	"github.com/omochice/hybrid-chat/internal/history"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

var (
	// ErrDuplicateSend rejects a send identical to one still pending.
	ErrDuplicateSend = errors.New("identical message is still being sent")
	// ErrNotJoined rejects operations on rooms the user is not in.
	ErrNotJoined = errors.New("not joined to room")
	// ErrEmptyMessage rejects blank sends.
	ErrEmptyMessage = errors.New("empty message")
)

// Gateway is the request/response channel.
type Gateway interface {
	Page(ctx context.Context, room string, before int64, limit int) ([]protocol.Message, error)
	Send(ctx context.Context, req history.SendRequest) (protocol.Message, error)
}

// Sender emits push-channel frames.
type Sender interface {
	Send(f protocol.Frame) error
}

// Gate decides whether a room currently accepts updates.
type Gate interface {
	Accepts(room string) bool
}

// Poster schedules a closure on the event loop.
type Poster interface {
	Post(fn func()) bool
}

// Listener is notified of timeline changes.
type Listener interface {
	// Changed is called after the entries of room changed.
	Changed(room string)
	// Failed is called when a history load failed or a send was rolled back.
	Failed(room string, err error)
}

// Config tunes the timeline.
type Config struct {
	UserID   string
	UserName string
	// MatchWindow bounds the CreatedAt distance between an optimistic
	// entry and a confirmed message matched by content.
	MatchWindow time.Duration
	// SendGrace is how long the push echo is awaited before the RPC result
	// is applied.
	SendGrace time.Duration
	// NewID generates correlation ids. Defaults to random UUIDs.
	NewID func() string
}

// pendingSend tracks one optimistic entry until it is confirmed or rolled
// back.
type pendingSend struct {
	room     string
	clientID string
	timer    clock.Timer

	graceOver bool
	rpcDone   bool
	result    protocol.Message
	rpcErr    error
}

// Timeline is the MessageTimeline. It must only be used on the event loop.
type Timeline struct {
	cfg      Config
	gateway  Gateway
	sender   Sender
	gate     Gate
	loop     Poster
	clock    clock.Clock
	listener Listener

	rooms   map[string][]protocol.Message
	pending map[string]*pendingSend
}

// New creates a timeline. c must run its callbacks on the loop behind
// loop.
func New(cfg Config, gateway Gateway, sender Sender, gate Gate, loop Poster, c clock.Clock, l Listener) *Timeline {
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Timeline{
		cfg:      cfg,
		gateway:  gateway,
		sender:   sender,
		gate:     gate,
		loop:     loop,
		clock:    c,
		listener: l,
		rooms:    make(map[string][]protocol.Message),
		pending:  make(map[string]*pendingSend),
	}
}

// Messages returns a copy of the entries of room in timeline order.
func (t *Timeline) Messages(room string) []protocol.Message {
	return slices.Clone(t.rooms[room])
}

// Append applies a confirmed message from a transport. It reports whether
// the message was applied; messages for rooms that are not accepted are
// dropped.
func (t *Timeline) Append(msg protocol.Message) bool {
	if msg.ID == "" || msg.RoomID == "" {
		log.Warn().Str("component", "timeline").Str("room_id", msg.RoomID).Msg("dropping message without id or room")
		return false
	}
	if !t.gate.Accepts(msg.RoomID) {
		log.Debug().Str("component", "timeline").Str("room_id", msg.RoomID).Str("id", msg.ID).Msg("dropping message for inactive room")
		return false
	}
	msg.Origin = protocol.OriginConfirmed
	t.apply(msg)
	t.listener.Changed(msg.RoomID)
	return true
}

// Merge applies a page of confirmed messages and returns how many were
// applied.
func (t *Timeline) Merge(room string, page []protocol.Message) int {
	if !t.gate.Accepts(room) {
		log.Debug().Str("component", "timeline").Str("room_id", room).Int("size", len(page)).Msg("dropping stale history page")
		return 0
	}
	n := 0
	for _, msg := range page {
		if msg.ID == "" || msg.RoomID != room {
			continue
		}
		msg.Origin = protocol.OriginConfirmed
		t.apply(msg)
		n++
	}
	if n > 0 {
		t.listener.Changed(room)
	}
	return n
}

// LoadHistory fetches a page older than before (0 for the latest) in the
// background and merges it on the loop. done, when set, is called on the
// loop with the number of merged messages.
func (t *Timeline) LoadHistory(ctx context.Context, room string, before int64, limit int, done func(n int, err error)) error {
	if !t.gate.Accepts(room) {
		return errors.Wrapf(ErrNotJoined, "load history of %s", room)
	}
	if done == nil {
		done = func(int, error) {}
	}

	go func() {
		page, err := t.gateway.Page(ctx, room, before, limit)
		t.loop.Post(func() {
			if err != nil {
				log.Warn().Str("component", "timeline").Str("room_id", room).Err(err).Msg("history load failed")
				t.listener.Failed(room, err)
				done(0, err)
				return
			}
			done(t.Merge(room, page), nil)
		})
	}()
	return nil
}

// Oldest returns the CreatedAt of the oldest confirmed entry of room, or 0.
func (t *Timeline) Oldest(room string) int64 {
	for _, m := range t.rooms[room] {
		if m.Origin == protocol.OriginConfirmed {
			return m.CreatedAt
		}
	}
	return 0
}

// SendOptimistic shows body in room immediately and sends it over both
// channels: the push channel for live fan-out and the RPC channel for
// durable storage.
func (t *Timeline) SendOptimistic(ctx context.Context, room, body string, kind protocol.Kind) (protocol.Message, error) {
	if body == "" {
		return protocol.Message{}, ErrEmptyMessage
	}
	if !t.gate.Accepts(room) {
		return protocol.Message{}, errors.Wrapf(ErrNotJoined, "send to %s", room)
	}

	now := t.clock.Now().UnixMilli()
	if t.hasPendingDuplicate(room, body, now) {
		return protocol.Message{}, errors.Wrapf(ErrDuplicateSend, "send to %s", room)
	}

	clientID := t.cfg.NewID()
	msg := protocol.Message{
		ID:         clientID,
		ClientID:   clientID,
		RoomID:     room,
		AuthorID:   t.cfg.UserID,
		AuthorName: t.cfg.UserName,
		Body:       body,
		Kind:       kind,
		CreatedAt:  now,
		Origin:     protocol.OriginOptimistic,
	}
	t.insert(msg)

	p := &pendingSend{room: room, clientID: clientID}
	t.pending[clientID] = p
	p.timer = t.clock.AfterFunc(t.cfg.SendGrace, func() { t.graceExpired(p) })

	err := t.sender.Send(protocol.SendMessage{
		UserID:      t.cfg.UserID,
		Content:     body,
		RoomID:      room,
		MessageType: kind.WireName(),
		ClientID:    clientID,
	})
	if err != nil {
		log.Warn().Str("component", "timeline").Str("room_id", room).Err(err).Msg("push send failed, relying on rpc")
	}

	req := history.SendRequest{
		RoomID:     room,
		AuthorID:   t.cfg.UserID,
		AuthorName: t.cfg.UserName,
		Body:       body,
		Kind:       kind,
		CreatedAt:  now,
	}
	go func() {
		stored, err := t.gateway.Send(ctx, req)
		t.loop.Post(func() { t.rpcFinished(p, stored, err) })
	}()

	t.listener.Changed(room)
	return msg, nil
}

// Clear drops the entries and pending sends of room.
func (t *Timeline) Clear(room string) {
	delete(t.rooms, room)
	for id, p := range t.pending {
		if p.room == room {
			p.timer.Stop()
			delete(t.pending, id)
		}
	}
}

// Reset drops every room.
func (t *Timeline) Reset() {
	for _, p := range t.pending {
		p.timer.Stop()
	}
	t.rooms = make(map[string][]protocol.Message)
	t.pending = make(map[string]*pendingSend)
}

// Pending returns the number of sends awaiting confirmation.
func (t *Timeline) Pending() int {
	return len(t.pending)
}

func (t *Timeline) rpcFinished(p *pendingSend, stored protocol.Message, err error) {
	if t.pending[p.clientID] != p {
		// Already confirmed by the echo, or the room was cleared.
		return
	}
	p.rpcDone = true
	p.result = stored
	p.rpcErr = err
	if p.graceOver {
		t.settleRPC(p)
	}
}

func (t *Timeline) graceExpired(p *pendingSend) {
	if t.pending[p.clientID] != p {
		return
	}
	p.graceOver = true
	if p.rpcDone {
		t.settleRPC(p)
	}
}

// settleRPC applies the RPC outcome once no echo arrived in time.
func (t *Timeline) settleRPC(p *pendingSend) {
	delete(t.pending, p.clientID)
	if !t.gate.Accepts(p.room) {
		// Nothing can reconcile the entry any more.
		t.remove(p.room, func(m protocol.Message) bool {
			return m.Origin == protocol.OriginOptimistic && m.ClientID == p.clientID
		})
		log.Debug().Str("component", "timeline").Str("room_id", p.room).Msg("dropping send result for inactive room")
		t.listener.Changed(p.room)
		return
	}

	if p.rpcErr != nil {
		t.remove(p.room, func(m protocol.Message) bool {
			return m.Origin == protocol.OriginOptimistic && m.ClientID == p.clientID
		})
		log.Warn().Str("component", "timeline").Str("room_id", p.room).Err(p.rpcErr).Msg("send failed, rolled back")
		t.listener.Changed(p.room)
		t.listener.Failed(p.room, p.rpcErr)
		return
	}

	confirmed := p.result
	confirmed.ClientID = p.clientID
	confirmed.RoomID = p.room
	confirmed.Origin = protocol.OriginConfirmed
	t.apply(confirmed)
	t.listener.Changed(p.room)
}

// apply inserts or reconciles a confirmed message.
func (t *Timeline) apply(msg protocol.Message) {
	list := t.rooms[msg.RoomID]

	if i := slices.IndexFunc(list, func(m protocol.Message) bool { return m.ID == msg.ID }); i >= 0 {
		if list[i].Origin == protocol.OriginOptimistic {
			t.confirmed(list[i].ClientID)
		}
		if msg.ClientID == "" {
			msg.ClientID = list[i].ClientID
		}
		list = slices.Delete(list, i, i+1)
		// The stored copy may arrive after another channel already
		// confirmed it, while the optimistic entry it stands for is
		// still listed.
		t.rooms[msg.RoomID] = slices.DeleteFunc(list, func(m protocol.Message) bool {
			return m.Origin == protocol.OriginOptimistic && m.ClientID == msg.ClientID
		})
		t.confirmed(msg.ClientID)
		t.insert(msg)
		return
	}

	if i := t.match(list, msg); i >= 0 {
		if list[i].Origin == protocol.OriginOptimistic {
			t.confirmed(list[i].ClientID)
		}
		if msg.ClientID == "" {
			msg.ClientID = list[i].ClientID
		}
		t.rooms[msg.RoomID] = slices.Delete(list, i, i+1)
	}
	t.insert(msg)
}

// match finds the entry msg supersedes: any entry carrying the same
// correlation id, or else an optimistic entry with the same author and body.
func (t *Timeline) match(list []protocol.Message, msg protocol.Message) int {
	if msg.ClientID != "" {
		if i := slices.IndexFunc(list, func(m protocol.Message) bool {
			return m.ClientID == msg.ClientID
		}); i >= 0 {
			return i
		}
	}
	window := t.cfg.MatchWindow.Milliseconds()
	// list is sorted, so the first hit is the earliest entry.
	return slices.IndexFunc(list, func(m protocol.Message) bool {
		return m.Origin == protocol.OriginOptimistic &&
			m.AuthorID == msg.AuthorID &&
			m.Body == msg.Body &&
			abs(m.CreatedAt-msg.CreatedAt) <= window
	})
}

func (t *Timeline) hasPendingDuplicate(room, body string, now int64) bool {
	window := t.cfg.MatchWindow.Milliseconds()
	return slices.ContainsFunc(t.rooms[room], func(m protocol.Message) bool {
		return m.Origin == protocol.OriginOptimistic &&
			m.AuthorID == t.cfg.UserID &&
			m.Body == body &&
			abs(now-m.CreatedAt) <= window
	})
}

// confirmed forgets the pending send of an optimistic entry that a
// confirmed message replaced.
func (t *Timeline) confirmed(clientID string) {
	if p, ok := t.pending[clientID]; ok {
		p.timer.Stop()
		delete(t.pending, clientID)
	}
}

func (t *Timeline) insert(msg protocol.Message) {
	list := t.rooms[msg.RoomID]
	i, _ := slices.BinarySearchFunc(list, msg, compare)
	t.rooms[msg.RoomID] = slices.Insert(list, i, msg)
}

func (t *Timeline) remove(room string, match func(protocol.Message) bool) {
	t.rooms[room] = slices.DeleteFunc(t.rooms[room], match)
}

func compare(a, b protocol.Message) int {
	if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
