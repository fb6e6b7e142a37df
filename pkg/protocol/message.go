package protocol

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Kind represents the content type of a chat message
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindFile
	KindSystem
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindText:
		return "TEXT"
	case KindImage:
		return "IMAGE"
	case KindFile:
		return "FILE"
	case KindSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// WireName returns the lowercase name carried by send_message frames.
func (k Kind) WireName() string {
	if k < KindText || k > KindSystem {
		return "text"
	}
	return strings.ToLower(k.String())
}

// Number returns the RPC enum number of the kind.
func (k Kind) Number() int32 {
	if k < KindText || k > KindSystem {
		return int32(KindText)
	}
	return int32(k)
}

// ParseKind accepts both the lowercase push-channel names and the
// upper-case enum names. Unknown names degrade to KindText rather than
// failing, so a newer server cannot break the timeline.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image":
		return KindImage
	case "file":
		return KindFile
	case "system":
		return KindSystem
	default:
		return KindText
	}
}

// KindFromNumber converts an RPC enum number to Kind.
// Unknown numbers degrade to KindText.
func KindFromNumber(n int32) Kind {
	k := Kind(n)
	if k < KindText || k > KindSystem {
		return KindText
	}
	return k
}

// MarshalJSON encodes the kind as its enum number, matching the server.
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(k.Number()))), nil
}

// UnmarshalJSON accepts either the enum number or a kind name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = ParseKind(s)
		return nil
	}
	var n int32
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*k = KindFromNumber(n)
	return nil
}

// Origin tells whether a message has been acknowledged by a transport.
type Origin int

const (
	// OriginConfirmed is the zero value: anything received from a
	// transport is authoritative.
	OriginConfirmed Origin = iota
	OriginOptimistic
)

func (o Origin) String() string {
	if o == OriginOptimistic {
		return "optimistic"
	}
	return "confirmed"
}

// Message is a single entry of a room timeline.
// CreatedAt is always in milliseconds since the epoch.
type Message struct {
	ID         string
	ClientID   string
	RoomID     string
	AuthorID   string
	AuthorName string
	Body       string
	Kind       Kind
	CreatedAt  int64
	Origin     Origin
}

// WireMessage is the message object carried inside new_message frames.
type WireMessage struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Content     string `json:"content"`
	RoomID      string `json:"room_id"`
	MessageType Kind   `json:"message_type"`
	Timestamp   int64  `json:"timestamp"`
	ClientID    string `json:"client_id,omitempty"`
}

// Message converts the wire shape into a confirmed timeline entry.
func (w WireMessage) Message() Message {
	return Message{
		ID:         w.ID,
		ClientID:   w.ClientID,
		RoomID:     w.RoomID,
		AuthorID:   w.UserID,
		AuthorName: w.Username,
		Body:       w.Content,
		Kind:       w.MessageType,
		CreatedAt:  NormalizeTimestamp(w.Timestamp),
		Origin:     OriginConfirmed,
	}
}

// WireFromMessage converts a timeline entry into its wire shape.
func WireFromMessage(m Message) WireMessage {
	return WireMessage{
		ID:          m.ID,
		UserID:      m.AuthorID,
		Username:    m.AuthorName,
		Content:     m.Body,
		RoomID:      m.RoomID,
		MessageType: m.Kind,
		Timestamp:   m.CreatedAt,
		ClientID:    m.ClientID,
	}
}

// User is a presence entry.
type User struct {
	ID     string `json:"user_id"`
	Name   string `json:"username"`
	Avatar string `json:"avatar,omitempty"`
	Online bool   `json:"online,omitempty"`
}
