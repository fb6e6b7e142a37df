package pb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/omochice/hybrid-chat/pkg/protocol/pb"
)

func TestFile_DescribesChatService(t *testing.T) {
	svc := pb.File.Services().ByName("ChatService")
	require.NotNil(t, svc)

	assert.NotNil(t, svc.Methods().ByName("GetMessages"))
	assert.NotNil(t, svc.Methods().ByName("SendMessage"))
	assert.Equal(t, "chat.ChatService", string(svc.FullName()))
	assert.Equal(t, 4, pb.MessageTypeDesc.Values().Len())
}

func TestGetMessagesResponse_SurvivesWireEncoding(t *testing.T) {
	msgs := []pb.ChatMessage{
		{ID: "m1", UserID: "u1", Username: "alice", Content: "hi", RoomID: "general", MessageType: 0, Timestamp: 1700000000000},
		{ID: "m2", UserID: "u2", Username: "bob", Content: "pic", RoomID: "general", MessageType: 1, Timestamp: 1700000001},
	}

	data, err := proto.Marshal(pb.GetMessagesResponseProto(msgs))
	require.NoError(t, err)

	decoded := pb.NewMessage(pb.GetMessagesResponseDesc)
	require.NoError(t, proto.Unmarshal(data, decoded))

	assert.Equal(t, msgs, pb.ChatMessagesFromProto(decoded))
}

func TestGetMessagesRequest_Proto(t *testing.T) {
	req := pb.GetMessagesRequest{RoomID: "general", Limit: 50, BeforeTimestamp: 1700000000000}

	data, err := proto.Marshal(req.Proto())
	require.NoError(t, err)

	decoded := pb.NewMessage(pb.GetMessagesRequestDesc)
	require.NoError(t, proto.Unmarshal(data, decoded))
	assert.Equal(t, req, pb.GetMessagesRequestFromProto(decoded))
}

func TestSendMessage_Proto(t *testing.T) {
	req := pb.SendMessageRequest{UserID: "u1", Content: "hi", RoomID: "general", MessageType: 2, Timestamp: 1700000000000}
	assert.Equal(t, req, pb.SendMessageRequestFromProto(req.Proto()))

	tests := []struct {
		name string
		resp pb.SendMessageResponse
	}{
		{
			name: "with stored message",
			resp: pb.SendMessageResponse{
				Success:     true,
				Message:     "m1",
				ChatMessage: &pb.ChatMessage{ID: "m1", UserID: "u1", Content: "hi", RoomID: "general", Timestamp: 5},
			},
		},
		{
			name: "id only",
			resp: pb.SendMessageResponse{Success: true, Message: "m1"},
		},
		{
			name: "failure",
			resp: pb.SendMessageResponse{Success: false, Message: "room not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := proto.Marshal(tt.resp.Proto())
			require.NoError(t, err)

			decoded := pb.NewMessage(pb.SendMessageResponseDesc)
			require.NoError(t, proto.Unmarshal(data, decoded))
			assert.Equal(t, tt.resp, pb.SendMessageResponseFromProto(decoded))
		})
	}
}
