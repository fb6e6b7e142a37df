// Package protocol defines the push-channel frames exchanged with the chat
// server and the message model shared by every component.
package protocol

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Type is the discriminant carried in the "type" field of every frame.
type Type string

const (
	TypeJoinRoom        Type = "join_room"
	TypeLeaveRoom       Type = "leave_room"
	TypeSendMessage     Type = "send_message"
	TypeGetOnlineUsers  Type = "get_online_users"
	TypeNewMessage      Type = "new_message"
	TypeUserJoined      Type = "user_joined"
	TypeUserLeft        Type = "user_left"
	TypeOnlineUsersList Type = "online_users_list"
	TypePing            Type = "ping"
	TypePong            Type = "pong"
	TypeError           Type = "error"
)

var (
	// ErrUnknownType is returned by Decode for a discriminant this client does not know.
	ErrUnknownType = errors.New("unknown frame type")
	// ErrMalformed is returned by Decode for frames that are not valid JSON
	// objects or miss a required field.
	ErrMalformed = errors.New("malformed frame")
)

// Frame is a push-channel frame. The set is closed: only the types
// declared in this package implement it.
type Frame interface {
	Type() Type
	isFrame()
}

// JoinRoom asks the server to add the user to a room.
type JoinRoom struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// LeaveRoom asks the server to remove the user from a room.
type LeaveRoom struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// SendMessage publishes a message for live fan-out.
// ClientID is the correlation id of the optimistic entry; servers that
// do not know it ignore the field.
type SendMessage struct {
	UserID      string `json:"user_id"`
	Content     string `json:"content"`
	RoomID      string `json:"room_id"`
	MessageType string `json:"message_type"`
	ClientID    string `json:"client_id,omitempty"`
}

// GetOnlineUsers requests an online_users_list for a room.
type GetOnlineUsers struct {
	RoomID string `json:"room_id"`
}

// NewMessage carries a message pushed by the server.
type NewMessage struct {
	Message WireMessage `json:"message"`
}

// UserJoined announces a user entering a room.
type UserJoined struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
}

// UserLeft announces a user leaving a room.
type UserLeft struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
}

// OnlineUsersList is the full presence list of a room.
type OnlineUsersList struct {
	RoomID string `json:"room_id"`
	Users  []User `json:"users"`
}

// Ping is a liveness probe. Both sides may send it.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Pong answers the Ping carrying the same timestamp.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// ServerError reports a request the server refused.
type ServerError struct {
	Message string `json:"message"`
}

func (JoinRoom) Type() Type        { return TypeJoinRoom }
func (LeaveRoom) Type() Type       { return TypeLeaveRoom }
func (SendMessage) Type() Type     { return TypeSendMessage }
func (GetOnlineUsers) Type() Type  { return TypeGetOnlineUsers }
func (NewMessage) Type() Type      { return TypeNewMessage }
func (UserJoined) Type() Type      { return TypeUserJoined }
func (UserLeft) Type() Type        { return TypeUserLeft }
func (OnlineUsersList) Type() Type { return TypeOnlineUsersList }
func (Ping) Type() Type            { return TypePing }
func (Pong) Type() Type            { return TypePong }
func (ServerError) Type() Type     { return TypeError }

func (JoinRoom) isFrame()        {}
func (LeaveRoom) isFrame()       {}
func (SendMessage) isFrame()     {}
func (GetOnlineUsers) isFrame()  {}
func (NewMessage) isFrame()      {}
func (UserJoined) isFrame()      {}
func (UserLeft) isFrame()        {}
func (OnlineUsersList) isFrame() {}
func (Ping) isFrame()            {}
func (Pong) isFrame()            {}
func (ServerError) isFrame()     {}

// InboundTypes lists the frame types a server sends to the client.
func InboundTypes() []Type {
	return []Type{
		TypeNewMessage,
		TypeUserJoined,
		TypeUserLeft,
		TypeOnlineUsersList,
		TypePing,
		TypePong,
		TypeError,
	}
}

// Encode encodes the frame into a JSON object tagged with its type.
func Encode(f Frame) ([]byte, error) {
	if f == nil {
		return nil, errors.New("encode frame: nil frame")
	}
	body, err := json.Marshal(f)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s frame", f.Type())
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, errors.Wrapf(err, "encode %s frame", f.Type())
	}
	tag, err := json.Marshal(f.Type())
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s frame", f.Type())
	}
	fields["type"] = tag

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s frame", f.Type())
	}
	return data, nil
}

// Decode decodes a JSON frame into its concrete type.
// Errors wrap ErrUnknownType or ErrMalformed.
func Decode(data []byte) (Frame, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if head.Type == "" {
		return nil, errors.Wrap(ErrMalformed, "missing type")
	}

	switch head.Type {
	case TypeJoinRoom:
		return decodeAs[JoinRoom](data)
	case TypeLeaveRoom:
		return decodeAs[LeaveRoom](data)
	case TypeSendMessage:
		return decodeAs[SendMessage](data)
	case TypeGetOnlineUsers:
		return decodeAs[GetOnlineUsers](data)
	case TypeNewMessage:
		return decodeAs[NewMessage](data)
	case TypeUserJoined:
		return decodeAs[UserJoined](data)
	case TypeUserLeft:
		return decodeAs[UserLeft](data)
	case TypeOnlineUsersList:
		return decodeAs[OnlineUsersList](data)
	case TypePing:
		return decodeAs[Ping](data)
	case TypePong:
		return decodeAs[Pong](data)
	case TypeError:
		return decodeAs[ServerError](data)
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%q", head.Type)
	}
}

func decodeAs[T Frame](data []byte) (Frame, error) {
	var f T
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%s: %v", f.Type(), err)
	}
	if v, ok := any(f).(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "%s: %v", f.Type(), err)
		}
	}
	return f, nil
}

func (f NewMessage) validate() error {
	if f.Message.RoomID == "" {
		return errors.New("message.room_id is required")
	}
	return nil
}

func (f UserJoined) validate() error { return requireRoomAndUser(f.RoomID, f.UserID) }

func (f UserLeft) validate() error { return requireRoomAndUser(f.RoomID, f.UserID) }

func (f OnlineUsersList) validate() error {
	if f.RoomID == "" {
		return errors.New("room_id is required")
	}
	return nil
}

func requireRoomAndUser(roomID, userID string) error {
	if roomID == "" {
		return errors.New("room_id is required")
	}
	if userID == "" {
		return errors.New("user_id is required")
	}
	return nil
}
