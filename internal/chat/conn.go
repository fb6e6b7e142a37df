// Package chat provides the transport abstractions the session layer is
// built on.
package chat

import "context"

// Conn abstracts a bidirectional push-channel connection.
// This interface isolates transport details from session logic.
type Conn interface {
	// Read reads a single frame (JSON bytes).
	// Returns io.EOF when the connection is closed by the peer.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single frame (JSON bytes).
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens push-channel connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}
