package room_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/hybrid-chat/internal/chaterr"
	"github.com/omochice/hybrid-chat/internal/clock"
	"github.com/omochice/hybrid-chat/internal/room"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

const me = "u-me"

type fakeSender struct {
	sent []protocol.Frame
	err  error
}

func (s *fakeSender) Send(f protocol.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, f)
	return nil
}

type events struct {
	joined []string
	left   []string
	failed map[string]error
}

func (e *events) Joined(r string) { e.joined = append(e.joined, r) }
func (e *events) Left(r string)   { e.left = append(e.left, r) }
func (e *events) Failed(r string, err error) {
	if e.failed == nil {
		e.failed = map[string]error{}
	}
	e.failed[r] = err
}

func newSession() (*room.Session, *fakeSender, *clock.Fake, *events) {
	sender := &fakeSender{}
	c := clock.NewFake(time.Unix(1700000000, 0))
	ev := &events{}
	s := room.New(room.Config{UserID: me, JoinTimeout: 5 * time.Second, LeaveTimeout: 3 * time.Second}, sender, c, ev)
	return s, sender, c, ev
}

func joinAndConfirm(t *testing.T, s *room.Session, name string) {
	t.Helper()
	require.NoError(t, s.Join(name))
	require.True(t, s.HandleUserJoined(protocol.UserJoined{UserID: me, Username: "me", RoomID: name}))
	require.Equal(t, room.Joined, s.State(name))
}

func TestSession_JoinConfirmedByOwnEcho(t *testing.T) {
	s, sender, c, ev := newSession()

	require.NoError(t, s.Join("general"))
	assert.Equal(t, room.JoinPending, s.State("general"))
	assert.True(t, s.Accepts("general"))
	assert.Equal(t, []protocol.Frame{protocol.JoinRoom{RoomID: "general", UserID: me}}, sender.sent)

	assert.False(t, s.HandleUserJoined(protocol.UserJoined{UserID: "u-other", RoomID: "general"}))
	assert.Equal(t, room.JoinPending, s.State("general"))

	assert.True(t, s.HandleUserJoined(protocol.UserJoined{UserID: me, RoomID: "general"}))
	assert.Equal(t, room.Joined, s.State("general"))
	assert.Equal(t, []string{"general"}, ev.joined)
	assert.Equal(t, 0, c.Pending())
}

func TestSession_JoinIsIdempotent(t *testing.T) {
	s, sender, _, _ := newSession()

	require.NoError(t, s.Join("general"))
	require.NoError(t, s.Join("general"))
	assert.Len(t, sender.sent, 1)

	s.HandleUserJoined(protocol.UserJoined{UserID: me, RoomID: "general"})
	require.NoError(t, s.Join("general"))
	assert.Len(t, sender.sent, 1)
}

func TestSession_JoinTimeout(t *testing.T) {
	s, _, c, ev := newSession()

	require.NoError(t, s.Join("general"))
	c.Advance(5*time.Second - time.Millisecond)
	assert.Equal(t, room.JoinPending, s.State("general"))

	c.Advance(time.Millisecond)
	assert.Equal(t, room.NotJoined, s.State("general"))
	assert.False(t, s.Accepts("general"))
	require.Contains(t, ev.failed, "general")
	assert.True(t, chaterr.Is(ev.failed["general"], chaterr.KindTimeout))

	// A late echo does not resurrect the room.
	s.HandleUserJoined(protocol.UserJoined{UserID: me, RoomID: "general"})
	assert.Equal(t, room.NotJoined, s.State("general"))
	assert.Empty(t, ev.joined)
}

func TestSession_JoinSendFailureLeavesRoomUntouched(t *testing.T) {
	s, sender, c, _ := newSession()
	sender.err = chaterr.Transport("send join_room", errors.New("not connected"))

	err := s.Join("general")
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.KindTransport))
	assert.Equal(t, room.NotJoined, s.State("general"))
	assert.Equal(t, 0, c.Pending())
}

func TestSession_LeaveConfirmedByOwnEcho(t *testing.T) {
	s, sender, _, ev := newSession()
	joinAndConfirm(t, s, "general")

	require.NoError(t, s.Leave("general"))
	assert.Equal(t, room.LeavePending, s.State("general"))
	assert.False(t, s.Accepts("general"))
	assert.Equal(t, protocol.LeaveRoom{RoomID: "general", UserID: me}, sender.sent[len(sender.sent)-1])

	err := s.Join("general")
	assert.ErrorIs(t, err, room.ErrLeavePending)

	assert.True(t, s.HandleUserLeft(protocol.UserLeft{UserID: me, RoomID: "general"}))
	assert.Equal(t, room.NotJoined, s.State("general"))
	assert.Equal(t, []string{"general"}, ev.left)
}

func TestSession_LeaveTimeoutRevertsToJoined(t *testing.T) {
	s, _, c, ev := newSession()
	joinAndConfirm(t, s, "general")

	require.NoError(t, s.Leave("general"))
	c.Advance(3 * time.Second)

	assert.Equal(t, room.Joined, s.State("general"))
	require.Contains(t, ev.failed, "general")
	assert.True(t, chaterr.Is(ev.failed["general"], chaterr.KindTimeout))
}

func TestSession_LeaveUnknownRoomIsNoop(t *testing.T) {
	s, sender, _, _ := newSession()

	require.NoError(t, s.Leave("nowhere"))
	assert.Empty(t, sender.sent)
}

func TestSession_RejoinsExactlyJoinedRooms(t *testing.T) {
	s, sender, _, ev := newSession()

	joinAndConfirm(t, s, "a")
	require.NoError(t, s.Join("b"))
	joinAndConfirm(t, s, "c")
	joinAndConfirm(t, s, "d")
	require.NoError(t, s.Leave("d"))

	s.ConnectionLost()

	assert.Equal(t, room.Joined, s.State("a"))
	assert.Equal(t, room.NotJoined, s.State("b"))
	assert.Equal(t, room.Joined, s.State("c"))
	assert.Equal(t, room.NotJoined, s.State("d"))
	require.Contains(t, ev.failed, "b")
	assert.True(t, chaterr.Is(ev.failed["b"], chaterr.KindTransport))
	assert.Equal(t, []string{"d"}, ev.left)

	sender.sent = nil
	s.Rejoin()

	assert.ElementsMatch(t, []protocol.Frame{
		protocol.JoinRoom{RoomID: "a", UserID: me},
		protocol.JoinRoom{RoomID: "c", UserID: me},
	}, sender.sent)
	assert.Equal(t, room.JoinPending, s.State("a"))
	assert.Equal(t, room.JoinPending, s.State("c"))
	assert.Equal(t, []string{"a", "c"}, s.Rooms())
}

func TestSession_KickedByServer(t *testing.T) {
	s, _, _, ev := newSession()
	joinAndConfirm(t, s, "general")

	s.HandleUserLeft(protocol.UserLeft{UserID: me, RoomID: "general"})

	assert.Equal(t, room.NotJoined, s.State("general"))
	assert.Equal(t, []string{"general"}, ev.left)
}

func TestSession_TeardownCancelsTimers(t *testing.T) {
	s, _, c, ev := newSession()

	require.NoError(t, s.Join("a"))
	joinAndConfirm(t, s, "b")
	require.NoError(t, s.Leave("b"))
	require.Equal(t, 2, c.Pending())

	s.Teardown()

	assert.Equal(t, 0, c.Pending())
	assert.Empty(t, s.Rooms())
	c.Advance(time.Minute)
	assert.Empty(t, ev.failed)
}

func TestSession_RejoinSurvivesRepeatedDrops(t *testing.T) {
	s, sender, c, ev := newSession()
	joinAndConfirm(t, s, "general")
	require.NoError(t, s.Join("fresh"))

	s.ConnectionLost()
	s.Rejoin()
	require.Equal(t, room.JoinPending, s.State("general"))

	// Dropped again before the rejoin echo arrived.
	s.ConnectionLost()
	assert.Equal(t, room.Joined, s.State("general"))
	assert.NotContains(t, ev.failed, "general")
	assert.Equal(t, 0, c.Pending())

	sender.sent = nil
	s.Rejoin()
	assert.Equal(t, []protocol.Frame{protocol.JoinRoom{RoomID: "general", UserID: me}}, sender.sent)
	assert.Equal(t, room.JoinPending, s.State("general"))

	require.True(t, s.HandleUserJoined(protocol.UserJoined{UserID: me, RoomID: "general"}))
	assert.Equal(t, room.Joined, s.State("general"))

	// A user-initiated join still fails on a drop.
	require.Contains(t, ev.failed, "fresh")
	assert.Equal(t, room.NotJoined, s.State("fresh"))
}

func TestSession_LeaveDuringRejoinCompletesOnDrop(t *testing.T) {
	s, _, _, ev := newSession()
	joinAndConfirm(t, s, "general")

	s.ConnectionLost()
	s.Rejoin()
	require.NoError(t, s.Leave("general"))
	s.ConnectionLost()

	assert.Equal(t, room.NotJoined, s.State("general"))
	assert.Equal(t, []string{"general"}, ev.left)
}
