package chattest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/omochice/hybrid-chat/internal/auth"
	"github.com/omochice/hybrid-chat/internal/chat"
	"github.com/omochice/hybrid-chat/internal/chattest"
	"github.com/omochice/hybrid-chat/internal/transport/rpc"
	"github.com/omochice/hybrid-chat/internal/transport/ws"
	"github.com/omochice/hybrid-chat/pkg/protocol"
	"github.com/omochice/hybrid-chat/pkg/protocol/pb"
)

func startServer(t *testing.T, opts ...chattest.Option) *chattest.Server {
	t.Helper()
	srv := chattest.New(opts...)
	require.NoError(t, srv.Start("127.0.0.1:0", "127.0.0.1:0"))
	t.Cleanup(srv.Stop)
	return srv
}

func dial(t *testing.T, srv *chattest.Server, token string) chat.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := ws.Dialer{Token: token}.Dial(ctx, srv.URL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func write(t *testing.T, conn chat.Conn, f protocol.Frame) {
	t.Helper()
	data, err := protocol.Encode(f)
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), data))
}

func read(t *testing.T, conn chat.Conn) protocol.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := conn.Read(ctx)
	require.NoError(t, err)
	f, err := protocol.Decode(data)
	require.NoError(t, err)
	return f
}

func TestServer_PushRoundTrip(t *testing.T) {
	srv := startServer(t)
	conn := dial(t, srv, "")

	write(t, conn, protocol.JoinRoom{RoomID: "general", UserID: "alice"})
	assert.Equal(t, protocol.UserJoined{UserID: "alice", Username: "alice", RoomID: "general"}, read(t, conn))

	write(t, conn, protocol.Ping{Timestamp: 42})
	assert.Equal(t, protocol.Pong{Timestamp: 42}, read(t, conn))

	write(t, conn, protocol.SendMessage{UserID: "alice", Content: "hello", RoomID: "general", MessageType: "text", ClientID: "c-1"})
	f, ok := read(t, conn).(protocol.NewMessage)
	require.True(t, ok)
	assert.Equal(t, "c-1", f.Message.ClientID)
	assert.Equal(t, 1, srv.Store.Len("general"))
}

func TestServer_RPCSharesStore(t *testing.T) {
	srv := startServer(t)
	client, err := rpc.Dial(srv.RPCAddr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.SendMessage(ctx, pb.SendMessageRequest{UserID: "alice", Content: "hi", RoomID: "general"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NotNil(t, resp.ChatMessage)
	assert.Equal(t, resp.ChatMessage.ID, resp.Message)

	conn := dial(t, srv, "")
	write(t, conn, protocol.JoinRoom{RoomID: "general", UserID: "alice"})
	read(t, conn)
	write(t, conn, protocol.SendMessage{UserID: "alice", Content: "hi", RoomID: "general"})
	f := read(t, conn).(protocol.NewMessage)
	assert.Equal(t, resp.ChatMessage.ID, f.Message.ID, "dual write must be stored once")

	msgs, err := client.GetMessages(ctx, pb.GetMessagesRequest{RoomID: "general", Limit: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	srv.RPC.RejectSends("rate limited")
	resp, err = client.SendMessage(ctx, pb.SendMessageRequest{UserID: "alice", Content: "again", RoomID: "general"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "rate limited", resp.Message)
}

func TestServer_Token(t *testing.T) {
	srv := startServer(t, chattest.WithToken("secret"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := ws.Dialer{Token: "wrong"}.Dial(ctx, srv.URL())
	require.Error(t, err)

	dial(t, srv, "secret")

	bad, err := rpc.Dial(srv.RPCAddr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bad.Close() })
	_, err = bad.GetMessages(ctx, pb.GetMessagesRequest{RoomID: "general"})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, rpc.Code(err))

	good, err := rpc.Dial(srv.RPCAddr(), rpc.WithToken("secret"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = good.Close() })
	_, err = good.GetMessages(ctx, pb.GetMessagesRequest{RoomID: "general"})
	require.NoError(t, err)
}

func TestServer_Secret(t *testing.T) {
	secret := []byte("dev-secret")
	srv := startServer(t, chattest.WithSecret(secret))

	token, err := auth.Issue("u1", "alice", secret, time.Hour, time.Now())
	require.NoError(t, err)
	forged, err := auth.Issue("u1", "alice", []byte("other"), time.Hour, time.Now())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = ws.Dialer{Token: forged}.Dial(ctx, srv.URL())
	require.Error(t, err)

	conn := dial(t, srv, token)
	write(t, conn, protocol.JoinRoom{RoomID: "general", UserID: "u1"})
	assert.Equal(t, protocol.UserJoined{UserID: "u1", Username: "alice", RoomID: "general"}, read(t, conn))
}
