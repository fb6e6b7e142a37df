package chattest

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/hybrid-chat/internal/chat"
)

// serverConn is the server side of a push-channel socket.
type serverConn struct {
	conn      net.Conn
	r         io.Reader
	wmu       sync.Mutex
	closeOnce sync.Once
}

// newServerConn wraps a hijacked socket. br holds bytes buffered during the
// handshake and may be nil.
func newServerConn(conn net.Conn, br *bufio.Reader) *serverConn {
	c := &serverConn{conn: conn, r: conn}
	if br != nil {
		c.r = br
	}
	return c
}

func (c *serverConn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		// ReadClientData answers control frames itself.
		data, op, err := wsutil.ReadClientData(lockedRW{c})
		if err != nil {
			return nil, err
		}
		if op == ws.OpText || op == ws.OpBinary {
			return data, nil
		}
	}
}

func (c *serverConn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetWriteDeadline(time.Now()) })
	defer stop()
	return wsutil.WriteServerText(c.conn, data)
}

func (c *serverConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusGoingAway, ""))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Drop closes the socket without a close frame, like a network failure.
func (c *serverConn) Drop() error {
	return c.conn.Close()
}

func (c *serverConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// lockedRW routes control-frame replies through the write lock.
type lockedRW struct {
	c *serverConn
}

func (rw lockedRW) Read(p []byte) (int, error) {
	return rw.c.r.Read(p)
}

func (rw lockedRW) Write(p []byte) (int, error) {
	rw.c.wmu.Lock()
	defer rw.c.wmu.Unlock()
	return rw.c.conn.Write(p)
}

var _ chat.Conn = (*serverConn)(nil)
