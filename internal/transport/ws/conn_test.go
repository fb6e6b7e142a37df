package ws_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wstransport "github.com/omochice/hybrid-chat/internal/transport/ws"
)

// newServer starts an httptest server that upgrades every request and
// hands the server side of the socket to handle.
func newServer(t *testing.T, handle func(r *http.Request, conn net.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(r, conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConn_Read(t *testing.T) {
	url := newServer(t, func(_ *http.Request, conn net.Conn) {
		_ = wsutil.WriteServerText(conn, []byte(`{"type":"pong","timestamp":1}`))
		_, _, _ = wsutil.ReadClientData(conn)
	})

	conn, err := wstransport.Dialer{}.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	data, err := conn.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"pong","timestamp":1}`, string(data))
}

func TestConn_Write(t *testing.T) {
	received := make(chan []byte, 1)
	url := newServer(t, func(_ *http.Request, conn net.Conn) {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		if op == ws.OpText {
			received <- data
		}
	})

	conn, err := wstransport.Dialer{}.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Write(context.Background(), []byte("hello")))

	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the frame")
	}
}

func TestDialer_SendsBearerToken(t *testing.T) {
	auth := make(chan string, 1)
	url := newServer(t, func(r *http.Request, conn net.Conn) {
		auth <- r.Header.Get("Authorization")
	})

	conn, err := wstransport.Dialer{Token: "secret"}.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "Bearer secret", <-auth)
}

func TestDialer_Refused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	_, err := wstransport.Dialer{Timeout: time.Second}.Dial(context.Background(), url)
	assert.Error(t, err)
}

func TestConn_ReadReturnsEOFOnServerClose(t *testing.T) {
	url := newServer(t, func(_ *http.Request, conn net.Conn) {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "bye")
		_ = wsutil.WriteServerMessage(conn, ws.OpClose, body)
	})

	conn, err := wstransport.Dialer{}.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestConn_ReadHonoursContext(t *testing.T) {
	release := make(chan struct{})
	url := newServer(t, func(_ *http.Request, conn net.Conn) {
		<-release
	})
	defer close(release)

	conn, err := wstransport.Dialer{}.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = conn.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConn_AnswersServerPing(t *testing.T) {
	pong := make(chan []byte, 1)
	url := newServer(t, func(_ *http.Request, conn net.Conn) {
		_ = wsutil.WriteServerMessage(conn, ws.OpPing, []byte("hb"))
		_ = wsutil.WriteServerText(conn, []byte("after-ping"))
		for {
			frame, err := ws.ReadFrame(conn)
			if err != nil {
				return
			}
			frame = ws.UnmaskFrameInPlace(frame)
			if frame.Header.OpCode == ws.OpPong {
				pong <- frame.Payload
				return
			}
		}
	})

	conn, err := wstransport.Dialer{}.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	data, err := conn.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "after-ping", string(data))

	select {
	case payload := <-pong:
		assert.Equal(t, "hb", string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no pong for the server ping")
	}
}

func TestConn_RemoteAddr(t *testing.T) {
	url := newServer(t, func(_ *http.Request, conn net.Conn) {
		_, _, _ = wsutil.ReadClientData(conn)
	})

	conn, err := wstransport.Dialer{}.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	assert.NotEmpty(t, conn.RemoteAddr())
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	url := newServer(t, func(_ *http.Request, conn net.Conn) {
		_, _, _ = wsutil.ReadClientData(conn)
	})

	conn, err := wstransport.Dialer{}.Dial(context.Background(), url)
	require.NoError(t, err)

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}

func TestConn_InvalidUTF8TextKeepsConnection(t *testing.T) {
	url := newServer(t, func(_ *http.Request, conn net.Conn) {
		_ = wsutil.WriteServerText(conn, []byte{'{', 0xff, 0xfe, '}'})
		_ = wsutil.WriteServerText(conn, []byte(`{"type":"pong","timestamp":2}`))
		_, _, _ = wsutil.ReadClientData(conn)
	})

	conn, err := wstransport.Dialer{}.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	data, err := conn.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{'{', 0xff, 0xfe, '}'}, data)

	data, err = conn.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"pong","timestamp":2}`, string(data))
}
