// Package chaterr defines the error taxonomy of the session layer.
// No error in this taxonomy is fatal to the process: transport errors
// trigger reconnects, protocol errors drop a frame, RPC and timeout errors
// are surfaced to the caller as retryable failures.
package chaterr

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind int

const (
	// KindTransport is a connect, read or write failure on the push channel.
	KindTransport Kind = iota + 1
	// KindProtocol is an unrecognized or malformed frame.
	KindProtocol
	// KindRPC is a failed history fetch or durable write.
	KindRPC
	// KindTimeout is a pending join/leave expiry or a missed heartbeat.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindRPC:
		return "rpc"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Room string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Room != "" {
		b.WriteString(" [room ")
		b.WriteString(e.Room)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the user may retry the failed action.
// Protocol errors concern a single received frame and have nothing to retry.
func (e *Error) Retryable() bool {
	return e.Kind != KindProtocol
}

func newError(kind Kind, op, room string, err error) error {
	return &Error{Kind: kind, Op: op, Room: room, Err: errors.WithStack(err)}
}

// Transport classifies a push-channel failure.
func Transport(op string, err error) error {
	return newError(KindTransport, op, "", err)
}

// Protocol classifies a frame that could not be handled.
func Protocol(op string, err error) error {
	return newError(KindProtocol, op, "", err)
}

// RPC classifies a request/response failure for a room.
func RPC(op, room string, err error) error {
	return newError(KindRPC, op, room, err)
}

// Timeout classifies an expired pending operation for a room.
func Timeout(op, room string) error {
	return newError(KindTimeout, op, room, errors.New("timed out"))
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or 0 when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
