// Package ws provides the WebSocket push-channel transport for the chat
// client, built on gobwas/ws.
package ws

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/pkg/errors"
)

// Conn adapts a client-side gobwas/ws connection to chat.Conn.
// Frames are written as text messages. Control frames (ping, close)
// received while reading are answered automatically.
type Conn struct {
	conn   net.Conn
	reader *wsutil.Reader

	// wmu serialises frame writes, including control replies issued by
	// the reader.
	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established client connection. br is the buffered
// reader returned by the handshake and may be nil.
func NewConn(conn net.Conn, br *bufio.Reader) *Conn {
	var src io.Reader = conn
	if br != nil {
		src = br
	}
	c := &Conn{conn: conn}
	c.reader = &wsutil.Reader{
		Source:         src,
		State:          ws.StateClientSide,
		// RFC 6455 says to fail the connection on invalid UTF-8 text.
		// Payloads go to the frame decoder instead, which drops a bad
		// frame without costing a reconnect.
		CheckUTF8:      false,
		OnIntermediate: c.handleControl,
	}
	return c
}

// Read implements chat.Conn.
// Reads the next text or binary message. A close frame from the server
// is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, c.readErr(ctx, err)
		}
		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, c.reader); err != nil {
				return nil, c.readErr(ctx, err)
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := c.reader.Discard(); err != nil {
				return nil, c.readErr(ctx, err)
			}
			continue
		}
		data, err := io.ReadAll(c.reader)
		if err != nil {
			return nil, c.readErr(ctx, err)
		}
		return data, nil
	}
}

// Write implements chat.Conn.
// Writes a text message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := wsutil.WriteClientText(c.conn, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "write websocket frame")
	}
	return nil
}

// Close implements chat.Conn.
// Sends a normal-closure frame and closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
		c.wmu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.ControlFrameHandler(c.conn, ws.StateClientSide)(hdr, r)
}

func (c *Conn) readErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var closed wsutil.ClosedError
	if errors.As(err, &closed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return errors.Wrap(err, "read websocket frame")
}
