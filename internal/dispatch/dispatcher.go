// Package dispatch decodes inbound push-channel frames and routes each
// one to the component that owns it.
package dispatch

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omochice/hybrid-chat/internal/chaterr"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// Handler receives decoded inbound frames, one method per frame type.
type Handler interface {
	NewMessage(msg protocol.Message)
	UserJoined(f protocol.UserJoined)
	UserLeft(f protocol.UserLeft)
	OnlineUsers(f protocol.OnlineUsersList)
	Ping(f protocol.Ping)
	Pong(f protocol.Pong)
	ServerError(f protocol.ServerError)
}

// ErrUnexpectedDirection marks a client-to-server frame received from the
// server.
var ErrUnexpectedDirection = errors.New("client frame received from server")

// Dispatcher is the FrameDispatcher.
type Dispatcher struct {
	handler Handler
	// OnError is called with every ProtocolError; it may be nil.
	OnError func(err error)
}

// New creates a dispatcher routing to h.
func New(h Handler) *Dispatcher {
	return &Dispatcher{handler: h}
}

// Dispatch decodes data and routes the frame. Unknown, malformed and
// misdirected frames are logged and dropped; the returned error is a
// ProtocolError.
func (d *Dispatcher) Dispatch(data []byte) error {
	f, err := protocol.Decode(data)
	if err != nil {
		return d.drop(chaterr.Protocol("decode frame", err), data)
	}

	switch f := f.(type) {
	case protocol.NewMessage:
		d.handler.NewMessage(f.Message.Message())
	case protocol.UserJoined:
		d.handler.UserJoined(f)
	case protocol.UserLeft:
		d.handler.UserLeft(f)
	case protocol.OnlineUsersList:
		d.handler.OnlineUsers(f)
	case protocol.Ping:
		d.handler.Ping(f)
	case protocol.Pong:
		d.handler.Pong(f)
	case protocol.ServerError:
		d.handler.ServerError(f)
	default:
		err := errors.Wrapf(ErrUnexpectedDirection, "%s", f.Type())
		return d.drop(chaterr.Protocol("dispatch frame", err), data)
	}
	return nil
}

// HandleFrame adapts Dispatch to the connection handler signature.
func (d *Dispatcher) HandleFrame(data []byte) {
	_ = d.Dispatch(data)
}

func (d *Dispatcher) drop(err error, data []byte) error {
	const maxLogged = 256
	raw := data
	if len(raw) > maxLogged {
		raw = raw[:maxLogged]
	}
	log.Warn().Str("component", "dispatch").Err(err).Bytes("frame", raw).Msg("dropping frame")
	if d.OnError != nil {
		d.OnError(err)
	}
	return err
}
