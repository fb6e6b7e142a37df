// Package history is the request/response side of the session: paged
// history reads and durable message writes over the chat RPC service.
package history

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omochice/hybrid-chat/internal/chaterr"
	"github.com/omochice/hybrid-chat/pkg/protocol"
	"github.com/omochice/hybrid-chat/pkg/protocol/pb"
)

// RPC is the subset of the chat service used by the gateway.
type RPC interface {
	GetMessages(ctx context.Context, req pb.GetMessagesRequest) ([]pb.ChatMessage, error)
	SendMessage(ctx context.Context, req pb.SendMessageRequest) (pb.SendMessageResponse, error)
}

// SendRequest is a durable write of a user message.
type SendRequest struct {
	RoomID     string
	AuthorID   string
	AuthorName string
	Body       string
	Kind       protocol.Kind
	// CreatedAt is the client-side send time in milliseconds.
	CreatedAt int64
}

// Gateway fetches history pages and stores messages.
// It holds no session state and is safe for concurrent use.
type Gateway struct {
	rpc     RPC
	timeout time.Duration
}

// New creates a gateway. A zero timeout leaves calls bounded only by the
// caller's context.
func New(rpc RPC, timeout time.Duration) *Gateway {
	return &Gateway{rpc: rpc, timeout: timeout}
}

// Page fetches up to limit messages of room created strictly before
// before (milliseconds, 0 for the latest page). The result is normalized
// to confirmed messages of that room; entries of other rooms are dropped.
func (g *Gateway) Page(ctx context.Context, room string, before int64, limit int) ([]protocol.Message, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	raw, err := g.rpc.GetMessages(ctx, pb.GetMessagesRequest{
		RoomID:          room,
		Limit:           int32(limit),
		BeforeTimestamp: before,
	})
	if err != nil {
		return nil, chaterr.RPC("get messages", room, err)
	}

	msgs := make([]protocol.Message, 0, len(raw))
	for _, c := range raw {
		if c.RoomID != "" && c.RoomID != room {
			log.Warn().Str("component", "history").
				Str("room_id", room).
				Str("message_room_id", c.RoomID).
				Msg("dropping history entry of another room")
			continue
		}
		if c.ID == "" {
			log.Warn().Str("component", "history").Str("room_id", room).Msg("dropping history entry without id")
			continue
		}
		m := fromChatMessage(c)
		m.RoomID = room
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Send stores a message. The returned message is the confirmed entry;
// when the service answers without the stored message, it is rebuilt from
// the request and the returned id.
func (g *Gateway) Send(ctx context.Context, req SendRequest) (protocol.Message, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.rpc.SendMessage(ctx, pb.SendMessageRequest{
		UserID:      req.AuthorID,
		Content:     req.Body,
		RoomID:      req.RoomID,
		MessageType: req.Kind.Number(),
		Timestamp:   req.CreatedAt,
	})
	if err != nil {
		return protocol.Message{}, chaterr.RPC("send message", req.RoomID, err)
	}
	if !resp.Success {
		reason := resp.Message
		if reason == "" {
			reason = "rejected by server"
		}
		return protocol.Message{}, chaterr.RPC("send message", req.RoomID, errors.New(reason))
	}

	if resp.ChatMessage != nil && resp.ChatMessage.ID != "" {
		m := fromChatMessage(*resp.ChatMessage)
		if m.RoomID == "" {
			m.RoomID = req.RoomID
		}
		if m.AuthorName == "" {
			m.AuthorName = req.AuthorName
		}
		return m, nil
	}
	if resp.Message == "" {
		return protocol.Message{}, chaterr.RPC("send message", req.RoomID, errors.New("response carries no message id"))
	}
	return protocol.Message{
		ID:         resp.Message,
		RoomID:     req.RoomID,
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Body:       req.Body,
		Kind:       req.Kind,
		CreatedAt:  protocol.NormalizeTimestamp(req.CreatedAt),
		Origin:     protocol.OriginConfirmed,
	}, nil
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func fromChatMessage(c pb.ChatMessage) protocol.Message {
	return protocol.Message{
		ID:         c.ID,
		RoomID:     c.RoomID,
		AuthorID:   c.UserID,
		AuthorName: c.Username,
		Body:       c.Content,
		Kind:       protocol.KindFromNumber(c.MessageType),
		CreatedAt:  protocol.NormalizeTimestamp(c.Timestamp),
		Origin:     protocol.OriginConfirmed,
	}
}
