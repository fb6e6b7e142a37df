package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ChatServiceClient is the client API for chat.ChatService.
type ChatServiceClient interface {
	GetMessages(ctx context.Context, req GetMessagesRequest, opts ...grpc.CallOption) ([]ChatMessage, error)
	SendMessage(ctx context.Context, req SendMessageRequest, opts ...grpc.CallOption) (SendMessageResponse, error)
}

type chatServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewChatServiceClient returns a client that invokes chat.ChatService on cc.
func NewChatServiceClient(cc grpc.ClientConnInterface) ChatServiceClient {
	return &chatServiceClient{cc: cc}
}

func (c *chatServiceClient) GetMessages(ctx context.Context, req GetMessagesRequest, opts ...grpc.CallOption) ([]ChatMessage, error) {
	out := NewMessage(GetMessagesResponseDesc)
	if err := c.cc.Invoke(ctx, MethodGetMessages, req.Proto(), out, opts...); err != nil {
		return nil, err
	}
	return ChatMessagesFromProto(out), nil
}

func (c *chatServiceClient) SendMessage(ctx context.Context, req SendMessageRequest, opts ...grpc.CallOption) (SendMessageResponse, error) {
	out := NewMessage(SendMessageResponseDesc)
	if err := c.cc.Invoke(ctx, MethodSendMessage, req.Proto(), out, opts...); err != nil {
		return SendMessageResponse{}, err
	}
	return SendMessageResponseFromProto(out), nil
}

// ChatServiceServer is the server API for chat.ChatService.
type ChatServiceServer interface {
	GetMessages(ctx context.Context, req GetMessagesRequest) ([]ChatMessage, error)
	SendMessage(ctx context.Context, req SendMessageRequest) (SendMessageResponse, error)
}

// RegisterChatServiceServer registers srv on s.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&chatServiceDesc, srv)
}

var chatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMessages", Handler: getMessagesHandler},
		{MethodName: "SendMessage", Handler: sendMessageHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chat.proto",
}

func getMessagesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := NewMessage(GetMessagesRequestDesc)
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		msgs, err := srv.(ChatServiceServer).GetMessages(ctx, GetMessagesRequestFromProto(req.(*dynamicpb.Message)))
		if err != nil {
			return nil, err
		}
		return GetMessagesResponseProto(msgs), nil
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetMessages}
	return interceptor(ctx, in, info, handle)
}

func sendMessageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := NewMessage(SendMessageRequestDesc)
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		resp, err := srv.(ChatServiceServer).SendMessage(ctx, SendMessageRequestFromProto(req.(*dynamicpb.Message)))
		if err != nil {
			return nil, err
		}
		return resp.Proto(), nil
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodSendMessage}
	return interceptor(ctx, in, info, handle)
}
