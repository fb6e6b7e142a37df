package chattest

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/omochice/hybrid-chat/pkg/protocol/pb"
)

const defaultPageSize = 50

// Service implements the chat RPC service on a Store.
type Service struct {
	store *Store

	mu      sync.Mutex
	sendErr error
	reject  string
	delay   time.Duration
	sends   []pb.SendMessageRequest
}

// NewService creates a service persisting to store.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// FailSends makes SendMessage return err. nil restores normal behavior.
func (s *Service) FailSends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// RejectSends makes SendMessage answer success=false with reason.
func (s *Service) RejectSends(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = reason
}

// DelaySends holds every SendMessage for d before answering.
func (s *Service) DelaySends(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Sends returns every SendMessage request received.
func (s *Service) Sends() []pb.SendMessageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pb.SendMessageRequest(nil), s.sends...)
}

func (s *Service) GetMessages(ctx context.Context, req pb.GetMessagesRequest) ([]pb.ChatMessage, error) {
	if req.RoomID == "" {
		return nil, status.Error(codes.InvalidArgument, "room_id is required")
	}
	limit := int(req.Limit)
	if limit <= 0 {
		limit = defaultPageSize
	}
	return s.store.Page(req.RoomID, req.BeforeTimestamp, limit), nil
}

func (s *Service) SendMessage(ctx context.Context, req pb.SendMessageRequest) (pb.SendMessageResponse, error) {
	s.mu.Lock()
	s.sends = append(s.sends, req)
	sendErr, reject, delay := s.sendErr, s.reject, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return pb.SendMessageResponse{}, status.FromContextError(ctx.Err()).Err()
		case <-time.After(delay):
		}
	}
	if sendErr != nil {
		return pb.SendMessageResponse{}, sendErr
	}
	if reject != "" {
		return pb.SendMessageResponse{Success: false, Message: reject}, nil
	}
	if req.RoomID == "" || req.Content == "" {
		return pb.SendMessageResponse{Success: false, Message: "room_id and content are required"}, nil
	}

	stored, _ := s.store.Add(pb.ChatMessage{
		UserID:      req.UserID,
		Username:    req.UserID,
		Content:     req.Content,
		RoomID:      req.RoomID,
		MessageType: req.MessageType,
	})
	return pb.SendMessageResponse{Success: true, Message: stored.ID, ChatMessage: &stored}, nil
}

// authorize rejects calls without the expected bearer credential.
func (s *Server) authorize(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var header string
	if v := md.Get("authorization"); len(v) > 0 {
		header = v[0]
	}
	if _, ok := s.identify(header); !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return handler(ctx, req)
}

var _ pb.ChatServiceServer = (*Service)(nil)
