package rpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/omochice/hybrid-chat/internal/transport/rpc"
	"github.com/omochice/hybrid-chat/pkg/protocol/pb"
)

type stubService struct {
	auth     chan string
	messages []pb.ChatMessage
	sendErr  error
	lastReq  chan pb.GetMessagesRequest
}

func (s *stubService) GetMessages(ctx context.Context, req pb.GetMessagesRequest) ([]pb.ChatMessage, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(rpc.AuthorizationHeader); len(v) > 0 {
			s.auth <- v[0]
		}
	}
	s.lastReq <- req
	return s.messages, nil
}

func (s *stubService) SendMessage(ctx context.Context, req pb.SendMessageRequest) (pb.SendMessageResponse, error) {
	if s.sendErr != nil {
		return pb.SendMessageResponse{}, s.sendErr
	}
	return pb.SendMessageResponse{
		Success: true,
		Message: "m-1",
		ChatMessage: &pb.ChatMessage{
			ID:          "m-1",
			UserID:      req.UserID,
			Content:     req.Content,
			RoomID:      req.RoomID,
			MessageType: req.MessageType,
			Timestamp:   req.Timestamp,
		},
	}, nil
}

func startServer(t *testing.T, svc pb.ChatServiceServer) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	pb.RegisterChatServiceServer(server, svc)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	return listener.Addr().String()
}

func newStub() *stubService {
	return &stubService{
		auth:    make(chan string, 4),
		lastReq: make(chan pb.GetMessagesRequest, 4),
	}
}

func TestClient_GetMessages(t *testing.T) {
	svc := newStub()
	svc.messages = []pb.ChatMessage{
		{ID: "m1", UserID: "u1", Username: "alice", Content: "hi", RoomID: "general", Timestamp: 1700000000},
	}
	addr := startServer(t, svc)

	client, err := rpc.Dial(addr, rpc.WithToken("tok"))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := client.GetMessages(ctx, pb.GetMessagesRequest{RoomID: "general", Limit: 20, BeforeTimestamp: 42})
	require.NoError(t, err)
	assert.Equal(t, svc.messages, msgs)
	assert.Equal(t, pb.GetMessagesRequest{RoomID: "general", Limit: 20, BeforeTimestamp: 42}, <-svc.lastReq)
	assert.Equal(t, "Bearer tok", <-svc.auth)
}

func TestClient_SendMessage(t *testing.T) {
	addr := startServer(t, newStub())

	client, err := rpc.Dial(addr)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.SendMessage(ctx, pb.SendMessageRequest{UserID: "u1", Content: "hello", RoomID: "general", MessageType: 2, Timestamp: 7})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.ChatMessage)
	assert.Equal(t, "m-1", resp.ChatMessage.ID)
	assert.Equal(t, int32(2), resp.ChatMessage.MessageType)
}

func TestClient_StatusErrorsKeepTheirCode(t *testing.T) {
	svc := newStub()
	svc.sendErr = status.Error(codes.Unavailable, "store down")
	addr := startServer(t, svc)

	client, err := rpc.Dial(addr)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.SendMessage(ctx, pb.SendMessageRequest{UserID: "u1", Content: "x", RoomID: "general"})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, rpc.Code(err))
	assert.Contains(t, err.Error(), "SendMessage")
}
