// Package pb holds the schema of the chat RPC service (chat.proto) and the
// conversions between its protobuf messages and plain Go values.
//
// The schema is assembled as a FileDescriptorProto and messages are built
// with dynamicpb, so no generated code is needed to talk to the service.
// proto/chat.proto is the readable source; the descriptor set generated
// from it is checked against the assembled schema in tests.
package pb

//go:generate protoc --proto_path=../../../proto --descriptor_set_out=chat.pb.bin ../../../proto/chat.proto

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	// ServiceName is the fully qualified name of the chat service.
	ServiceName = "chat.ChatService"

	MethodGetMessages = "/" + ServiceName + "/GetMessages"
	MethodSendMessage = "/" + ServiceName + "/SendMessage"
)

var (
	// File is the descriptor of chat.proto.
	File protoreflect.FileDescriptor

	ChatMessageDesc         protoreflect.MessageDescriptor
	GetMessagesRequestDesc  protoreflect.MessageDescriptor
	GetMessagesResponseDesc protoreflect.MessageDescriptor
	SendMessageRequestDesc  protoreflect.MessageDescriptor
	SendMessageResponseDesc protoreflect.MessageDescriptor
	MessageTypeDesc         protoreflect.EnumDescriptor
)

func init() {
	fd, err := protodesc.NewFile(fileProto(), new(protoregistry.Files))
	if err != nil {
		panic(fmt.Sprintf("pb: invalid chat.proto descriptor: %v", err))
	}
	File = fd

	msgs := fd.Messages()
	ChatMessageDesc = msgs.ByName("ChatMessage")
	GetMessagesRequestDesc = msgs.ByName("GetMessagesRequest")
	GetMessagesResponseDesc = msgs.ByName("GetMessagesResponse")
	SendMessageRequestDesc = msgs.ByName("SendMessageRequest")
	SendMessageResponseDesc = msgs.ByName("SendMessageResponse")
	MessageTypeDesc = fd.Enums().ByName("MessageType")
}

func fileProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("chat.proto"),
		Package: proto.String("chat"),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("MessageType"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("TEXT"), Number: proto.Int32(0)},
				{Name: proto.String("IMAGE"), Number: proto.Int32(1)},
				{Name: proto.String("FILE"), Number: proto.Int32(2)},
				{Name: proto.String("SYSTEM"), Number: proto.Int32(3)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("ChatMessage"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("user_id", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("username", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("content", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("room_id", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					enum("message_type", 6, ".chat.MessageType"),
					scalar("timestamp", 7, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				},
			},
			{
				Name: proto.String("GetMessagesRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("room_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("limit", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalar("before_timestamp", 3, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				},
			},
			{
				Name: proto.String("GetMessagesResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated("messages", 1, ".chat.ChatMessage"),
				},
			},
			{
				Name: proto.String("SendMessageRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("user_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("content", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("room_id", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					enum("message_type", 4, ".chat.MessageType"),
					scalar("timestamp", 5, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				},
			},
			{
				Name: proto.String("SendMessageResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("success", 1, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					scalar("message", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					message("chat_message", 3, ".chat.ChatMessage"),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("ChatService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				{
					Name:       proto.String("GetMessages"),
					InputType:  proto.String(".chat.GetMessagesRequest"),
					OutputType: proto.String(".chat.GetMessagesResponse"),
				},
				{
					Name:       proto.String("SendMessage"),
					InputType:  proto.String(".chat.SendMessageRequest"),
					OutputType: proto.String(".chat.SendMessageResponse"),
				},
			},
		}},
	}
}

func scalar(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func enum(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, number, descriptorpb.FieldDescriptorProto_TYPE_ENUM)
	f.TypeName = proto.String(typeName)
	return f
}

func message(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String(typeName)
	return f
}

func repeated(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := message(name, number, typeName)
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}
