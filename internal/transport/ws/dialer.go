package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/pkg/errors"

	"github.com/omochice/hybrid-chat/internal/chat"
)

// Dialer opens push-channel connections. It implements chat.Dialer.
type Dialer struct {
	// Token is sent as a bearer credential in the handshake when set.
	Token string
	// Timeout bounds the TCP connect and the handshake.
	Timeout time.Duration
}

// Dial implements chat.Dialer.
func (d Dialer) Dial(ctx context.Context, url string) (chat.Conn, error) {
	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}
	dialer := ws.Dialer{
		Header:  ws.HandshakeHeaderHTTP(header),
		Timeout: d.Timeout,
	}

	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return NewConn(conn, br), nil
}

var _ chat.Dialer = Dialer{}
