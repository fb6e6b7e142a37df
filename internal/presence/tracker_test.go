package presence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omochice/hybrid-chat/internal/presence"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

func user(id, name string) protocol.User {
	return protocol.User{ID: id, Name: name}
}

func online(id, name string) protocol.User {
	return protocol.User{ID: id, Name: name, Online: true}
}

func TestTracker_ListThenLeave(t *testing.T) {
	tr := presence.New()

	tr.Replace("general", []protocol.User{user("a", "alice"), user("b", "bob")})
	tr.Adjust("general", user("b", "bob"), presence.Left)

	assert.Equal(t, []protocol.User{online("a", "alice")}, tr.Users("general"))
}

type step struct {
	u protocol.User
	d presence.Delta
}

func TestTracker_Adjust(t *testing.T) {
	tests := []struct {
		name   string
		deltas []step
		want   []protocol.User
	}{
		{
			name:   "join appends",
			deltas: []step{{user("c", "carol"), presence.Joined}},
			want:   []protocol.User{online("a", "alice"), online("c", "carol")},
		},
		{
			name:   "join of a known user updates in place",
			deltas: []step{{user("a", "alice2"), presence.Joined}},
			want:   []protocol.User{online("a", "alice2")},
		},
		{
			name:   "leave of unknown user is ignored",
			deltas: []step{{user("z", "zed"), presence.Left}},
			want:   []protocol.User{online("a", "alice")},
		},
		{
			name:   "leave then rejoin",
			deltas: []step{{user("a", "alice"), presence.Left}, {user("a", "alice"), presence.Joined}},
			want:   []protocol.User{online("a", "alice")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := presence.New()
			tr.Replace("general", []protocol.User{user("a", "alice")})
			for _, d := range tt.deltas {
				tr.Adjust("general", d.u, d.d)
			}
			assert.Equal(t, tt.want, tr.Users("general"))
		})
	}
}

func TestTracker_ReplaceIsWholesale(t *testing.T) {
	tr := presence.New()

	tr.Replace("general", []protocol.User{user("a", "alice"), user("b", "bob")})
	tr.Replace("general", []protocol.User{user("c", "carol"), user("c", "dup"), {Name: "no id"}})

	assert.Equal(t, []protocol.User{online("c", "carol")}, tr.Users("general"))
}

func TestTracker_FirstListSupersedesBufferedDeltas(t *testing.T) {
	tr := presence.New()

	tr.Adjust("general", user("a", "alice"), presence.Joined)
	tr.Adjust("general", user("b", "bob"), presence.Joined)
	tr.Adjust("general", user("a", "alice"), presence.Left)

	assert.False(t, tr.HasSnapshot("general"))
	assert.Equal(t, []protocol.User{online("b", "bob")}, tr.Users("general"))

	tr.Replace("general", []protocol.User{user("c", "carol")})

	assert.True(t, tr.HasSnapshot("general"))
	assert.Equal(t, []protocol.User{online("c", "carol")}, tr.Users("general"))
}

func TestTracker_RoomsAreIndependent(t *testing.T) {
	tr := presence.New()

	tr.Replace("general", []protocol.User{user("a", "alice")})
	tr.Replace("random", []protocol.User{user("b", "bob")})
	tr.Clear("general")

	assert.Empty(t, tr.Users("general"))
	assert.False(t, tr.HasSnapshot("general"))
	assert.Equal(t, []protocol.User{online("b", "bob")}, tr.Users("random"))

	tr.Reset()
	assert.Empty(t, tr.Users("random"))
}

func TestTracker_UsersReturnsACopy(t *testing.T) {
	tr := presence.New()
	tr.Replace("general", []protocol.User{user("a", "alice")})

	got := tr.Users("general")
	got[0].Name = "mallory"

	assert.Equal(t, "alice", tr.Users("general")[0].Name)
}
