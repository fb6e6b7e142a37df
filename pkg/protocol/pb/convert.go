package pb

import (
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ChatMessage mirrors chat.ChatMessage.
type ChatMessage struct {
	ID          string
	UserID      string
	Username    string
	Content     string
	RoomID      string
	MessageType int32
	Timestamp   int64
}

// GetMessagesRequest mirrors chat.GetMessagesRequest.
// BeforeTimestamp 0 asks for the latest page.
type GetMessagesRequest struct {
	RoomID          string
	Limit           int32
	BeforeTimestamp int64
}

// SendMessageRequest mirrors chat.SendMessageRequest.
type SendMessageRequest struct {
	UserID      string
	Content     string
	RoomID      string
	MessageType int32
	Timestamp   int64
}

// SendMessageResponse mirrors chat.SendMessageResponse.
// Message holds the stored message id on success and a reason otherwise.
type SendMessageResponse struct {
	Success     bool
	Message     string
	ChatMessage *ChatMessage
}

// NewMessage returns an empty dynamic message of the given type.
func NewMessage(md protoreflect.MessageDescriptor) *dynamicpb.Message {
	return dynamicpb.NewMessage(md)
}

func field(m protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	return m.Descriptor().Fields().ByName(name)
}

func setString(m protoreflect.Message, name protoreflect.Name, v string) {
	m.Set(field(m, name), protoreflect.ValueOfString(v))
}

func getString(m protoreflect.Message, name protoreflect.Name) string {
	return m.Get(field(m, name)).String()
}

// ToProto populates m, which must be a chat.ChatMessage.
func (c ChatMessage) ToProto(m protoreflect.Message) {
	setString(m, "id", c.ID)
	setString(m, "user_id", c.UserID)
	setString(m, "username", c.Username)
	setString(m, "content", c.Content)
	setString(m, "room_id", c.RoomID)
	m.Set(field(m, "message_type"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(c.MessageType)))
	m.Set(field(m, "timestamp"), protoreflect.ValueOfInt64(c.Timestamp))
}

// ChatMessageFromProto reads a chat.ChatMessage.
func ChatMessageFromProto(m protoreflect.Message) ChatMessage {
	return ChatMessage{
		ID:          getString(m, "id"),
		UserID:      getString(m, "user_id"),
		Username:    getString(m, "username"),
		Content:     getString(m, "content"),
		RoomID:      getString(m, "room_id"),
		MessageType: int32(m.Get(field(m, "message_type")).Enum()),
		Timestamp:   m.Get(field(m, "timestamp")).Int(),
	}
}

// Proto builds a chat.GetMessagesRequest.
func (r GetMessagesRequest) Proto() *dynamicpb.Message {
	m := NewMessage(GetMessagesRequestDesc)
	setString(m, "room_id", r.RoomID)
	m.Set(field(m, "limit"), protoreflect.ValueOfInt32(r.Limit))
	m.Set(field(m, "before_timestamp"), protoreflect.ValueOfInt64(r.BeforeTimestamp))
	return m
}

// GetMessagesRequestFromProto reads a chat.GetMessagesRequest.
func GetMessagesRequestFromProto(m protoreflect.Message) GetMessagesRequest {
	return GetMessagesRequest{
		RoomID:          getString(m, "room_id"),
		Limit:           int32(m.Get(field(m, "limit")).Int()),
		BeforeTimestamp: m.Get(field(m, "before_timestamp")).Int(),
	}
}

// GetMessagesResponseProto builds a chat.GetMessagesResponse.
func GetMessagesResponseProto(msgs []ChatMessage) *dynamicpb.Message {
	m := NewMessage(GetMessagesResponseDesc)
	list := m.Mutable(field(m, "messages")).List()
	for _, c := range msgs {
		elem := list.NewElement()
		c.ToProto(elem.Message())
		list.Append(elem)
	}
	return m
}

// ChatMessagesFromProto reads the messages of a chat.GetMessagesResponse.
func ChatMessagesFromProto(m protoreflect.Message) []ChatMessage {
	list := m.Get(field(m, "messages")).List()
	out := make([]ChatMessage, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		out = append(out, ChatMessageFromProto(list.Get(i).Message()))
	}
	return out
}

// Proto builds a chat.SendMessageRequest.
func (r SendMessageRequest) Proto() *dynamicpb.Message {
	m := NewMessage(SendMessageRequestDesc)
	setString(m, "user_id", r.UserID)
	setString(m, "content", r.Content)
	setString(m, "room_id", r.RoomID)
	m.Set(field(m, "message_type"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(r.MessageType)))
	m.Set(field(m, "timestamp"), protoreflect.ValueOfInt64(r.Timestamp))
	return m
}

// SendMessageRequestFromProto reads a chat.SendMessageRequest.
func SendMessageRequestFromProto(m protoreflect.Message) SendMessageRequest {
	return SendMessageRequest{
		UserID:      getString(m, "user_id"),
		Content:     getString(m, "content"),
		RoomID:      getString(m, "room_id"),
		MessageType: int32(m.Get(field(m, "message_type")).Enum()),
		Timestamp:   m.Get(field(m, "timestamp")).Int(),
	}
}

// Proto builds a chat.SendMessageResponse.
func (r SendMessageResponse) Proto() *dynamicpb.Message {
	m := NewMessage(SendMessageResponseDesc)
	m.Set(field(m, "success"), protoreflect.ValueOfBool(r.Success))
	setString(m, "message", r.Message)
	if r.ChatMessage != nil {
		fd := field(m, "chat_message")
		child := m.NewField(fd)
		r.ChatMessage.ToProto(child.Message())
		m.Set(fd, child)
	}
	return m
}

// SendMessageResponseFromProto reads a chat.SendMessageResponse.
func SendMessageResponseFromProto(m protoreflect.Message) SendMessageResponse {
	resp := SendMessageResponse{
		Success: m.Get(field(m, "success")).Bool(),
		Message: getString(m, "message"),
	}
	if fd := field(m, "chat_message"); m.Has(fd) {
		c := ChatMessageFromProto(m.Get(fd).Message())
		resp.ChatMessage = &c
	}
	return resp
}
