// Package chattest provides an in-process chat server speaking both the
// push protocol (WebSocket) and the chat RPC service (gRPC). It backs the
// session tests and cmd/devserver.
package chattest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/omochice/hybrid-chat/pkg/protocol/pb"
)

// dedupeWindow is how close two identical writes of one author must be to
// be stored once. Clients write every message over both channels.
const dedupeWindow = 5 * time.Second

// Store keeps messages per room.
type Store struct {
	mu    sync.Mutex
	now   func() time.Time
	seq   int
	rooms map[string][]pb.ChatMessage
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{now: time.Now, rooms: make(map[string][]pb.ChatMessage)}
}

// SetNow replaces the clock stamping stored messages.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Add stores a message and returns it with its id and timestamp set.
// An identical message written by the same user moments earlier is
// returned instead of stored twice; the second result reports that.
func (s *Store) Add(m pb.ChatMessage) (pb.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	msgs := s.rooms[m.RoomID]
	for i := len(msgs) - 1; i >= 0; i-- {
		prev := msgs[i]
		if now-prev.Timestamp > dedupeWindow.Milliseconds() {
			break
		}
		if prev.UserID == m.UserID && prev.Content == m.Content {
			return prev, true
		}
	}

	s.seq++
	m.ID = fmt.Sprintf("msg_%d", s.seq)
	m.Timestamp = now
	s.rooms[m.RoomID] = append(msgs, m)
	return m, false
}

// Page returns up to limit of the newest messages of room created before
// before (0 for no bound), oldest first.
func (s *Store) Page(room string, before int64, limit int) []pb.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.rooms[room]
	end := len(msgs)
	if before > 0 {
		end = sort.Search(len(msgs), func(i int) bool { return msgs[i].Timestamp >= before })
	}
	begin := 0
	if limit > 0 && end-limit > 0 {
		begin = end - limit
	}
	return append([]pb.ChatMessage(nil), msgs[begin:end]...)
}

// Len returns the number of messages stored for room.
func (s *Store) Len(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[room])
}
