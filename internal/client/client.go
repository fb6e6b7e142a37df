// Package client defines the common interface for chat clients and the
// line-oriented console that drives one.
package client

import (
	"context"

	"github.com/omochice/hybrid-chat/internal/connection"
	"github.com/omochice/hybrid-chat/internal/room"
	"github.com/omochice/hybrid-chat/internal/session"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// Client defines the interface for chat clients.
// session.Session satisfies it.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	State() connection.State

	Join(ctx context.Context, room string) error
	Leave(ctx context.Context, room string) error
	Rooms() map[string]room.State

	Send(ctx context.Context, room, body string, kind protocol.Kind) (protocol.Message, error)
	LoadHistory(ctx context.Context, room string) error
	Messages(room string) []protocol.Message

	RequestOnlineUsers(ctx context.Context, room string) error
	OnlineUsers(room string) []protocol.User

	Events() <-chan session.Event
}

var _ Client = (*session.Session)(nil)
