// Package rpc provides the request/response channel to the chat service
// over gRPC.
package rpc

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/omochice/hybrid-chat/pkg/protocol/pb"
)

// AuthorizationHeader is the metadata key carrying the bearer credential.
const AuthorizationHeader = "authorization"

// Client calls chat.ChatService.
type Client struct {
	conn *grpc.ClientConn
	api  pb.ChatServiceClient
}

// Option configures Dial.
type Option func(*options)

type options struct {
	token    string
	dialOpts []grpc.DialOption
}

// WithToken attaches a bearer credential to every call.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithDialOptions appends raw gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

// Dial creates a client for addr. The connection is established lazily
// on the first call.
func Dial(addr string, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(logCalls),
	}
	if o.token != "" {
		dialOpts = append(dialOpts, grpc.WithChainUnaryInterceptor(bearer(o.token)))
	}
	dialOpts = append(dialOpts, o.dialOpts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "dial chat service %s", addr)
	}
	return &Client{conn: conn, api: pb.NewChatServiceClient(conn)}, nil
}

// GetMessages fetches one page of room history.
func (c *Client) GetMessages(ctx context.Context, req pb.GetMessagesRequest) ([]pb.ChatMessage, error) {
	msgs, err := c.api.GetMessages(ctx, req)
	if err != nil {
		return nil, callError("GetMessages", err)
	}
	return msgs, nil
}

// SendMessage stores a message durably.
func (c *Client) SendMessage(ctx context.Context, req pb.SendMessageRequest) (pb.SendMessageResponse, error) {
	resp, err := c.api.SendMessage(ctx, req)
	if err != nil {
		return pb.SendMessageResponse{}, callError("SendMessage", err)
	}
	return resp, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Code returns the gRPC status code carried by err, looking through
// wrapping.
func Code(err error) codes.Code {
	return status.Code(err)
}

func callError(method string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return errors.Wrap(err, method)
	}
	return errors.Wrapf(err, "%s (%s)", method, st.Code())
}

func bearer(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, AuthorizationHeader, "Bearer "+token)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func logCalls(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	err := invoker(ctx, method, req, reply, cc, opts...)
	if err != nil {
		log.Debug().Str("component", "rpc").Str("method", method).Err(err).Msg("call failed")
	}
	return err
}
