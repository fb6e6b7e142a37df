// Package connection owns the lifecycle of the push channel: dialing,
// reconnecting with backoff, heartbeats and the per-socket write queue.
//
// Every exported method of Manager must be called on the session's event
// loop. Socket I/O runs on background goroutines that only post results
// back to the loop.
package connection

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omochice/hybrid-chat/internal/chat"
	"github.com/omochice/hybrid-chat/internal/chaterr"
	"github.com/omochice/hybrid-chat/internal/clock"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// State is the lifecycle state of the push channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned by Send while no socket is open.
	ErrNotConnected = errors.New("not connected")
	// ErrQueueFull is returned by Send when the write queue is saturated.
	ErrQueueFull = errors.New("write queue full")
)

// Handler receives connection events on the loop.
type Handler interface {
	// HandleFrame is called for every frame read from the current socket.
	HandleFrame(data []byte)
	// Connected is called after a socket opened.
	Connected()
	// Disconnected is called when an open socket is lost or closed.
	// err is nil after an explicit Disconnect.
	Disconnected(err error)
	// StateChanged is called on every state transition.
	StateChanged(s State)
}

// Poster schedules a closure on the event loop.
type Poster interface {
	Post(fn func()) bool
}

// Config tunes the manager.
type Config struct {
	URL string

	BackoffBase   time.Duration
	BackoffCap    time.Duration
	BackoffJitter float64
	// MaxAttempts stops reconnecting after that many consecutive failures.
	// Zero retries forever.
	MaxAttempts int

	HeartbeatInterval time.Duration
	HeartbeatDeadline time.Duration

	WriteQueue int
}

// Manager is the ConnectionManager.
type Manager struct {
	cfg     Config
	dialer  chat.Dialer
	loop    Poster
	clock   clock.Clock
	handler Handler
	backoff *backoff.ExponentialBackOff

	state    State
	attempts int
	lastErr  error

	// gen identifies the current dial attempt or socket. Results and
	// frames from an older generation are dropped.
	gen    uint64
	conn   chat.Conn
	out    chan []byte
	cancel context.CancelFunc

	retryTimer     clock.Timer
	heartbeatTimer clock.Timer
	deadlineTimer  clock.Timer
	pendingPing    int64
	lastPing       int64
}

// New creates a manager. c must run its callbacks on the loop behind
// loop, see eventloop.Loop.Clock.
func New(cfg Config, dialer chat.Dialer, loop Poster, c clock.Clock, h Handler) *Manager {
	if cfg.WriteQueue <= 0 {
		cfg.WriteQueue = 64
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.BackoffBase,
		RandomizationFactor: cfg.BackoffJitter,
		Multiplier:          2,
		MaxInterval:         cfg.BackoffCap,
	}
	b.Reset()
	return &Manager{
		cfg:     cfg,
		dialer:  dialer,
		loop:    loop,
		clock:   c,
		handler: h,
		backoff: b,
	}
}

func (m *Manager) State() State { return m.state }

// Attempts is the number of consecutive failed attempts since the last
// successful connect.
func (m *Manager) Attempts() int { return m.attempts }

// LastError is the most recent connection failure.
func (m *Manager) LastError() error { return m.lastErr }

// Connect starts connecting. It is a no-op while connecting or connected.
// While a retry is scheduled it dials immediately.
func (m *Manager) Connect() {
	switch m.state {
	case Connecting, Connected:
		return
	case Reconnecting:
		if m.retryTimer == nil {
			// A dial is already in flight.
			return
		}
		m.stopTimer(&m.retryTimer)
	case Disconnected:
		m.attempts = 0
		m.backoff.Reset()
		m.setState(Connecting)
	}
	m.dial()
}

// Disconnect closes the socket and suppresses every scheduled retry.
// A later Connect starts over.
func (m *Manager) Disconnect() {
	if m.state == Disconnected {
		return
	}
	wasConnected := m.state == Connected
	m.stopTimer(&m.retryTimer)
	m.closeSocket()
	m.attempts = 0
	m.lastErr = nil
	m.setState(Disconnected)
	if wasConnected {
		m.handler.Disconnected(nil)
	}
}

// Send queues a frame on the current socket.
func (m *Manager) Send(f protocol.Frame) error {
	if m.state != Connected {
		return chaterr.Transport("send "+string(frameType(f)), ErrNotConnected)
	}
	data, err := protocol.Encode(f)
	if err != nil {
		return chaterr.Protocol("send", err)
	}
	select {
	case m.out <- data:
		return nil
	default:
		return chaterr.Transport("send "+string(f.Type()), ErrQueueFull)
	}
}

// HandlePong completes the outstanding heartbeat when ts matches it.
func (m *Manager) HandlePong(ts int64) {
	if m.pendingPing == 0 || ts != m.pendingPing {
		log.Debug().Str("component", "connection").Int64("timestamp", ts).Msg("ignoring unexpected pong")
		return
	}
	m.pendingPing = 0
	m.stopTimer(&m.deadlineTimer)
}

// HandlePing answers a server ping.
func (m *Manager) HandlePing(ts int64) {
	if err := m.Send(protocol.Pong{Timestamp: ts}); err != nil {
		log.Warn().Str("component", "connection").Err(err).Msg("failed to answer ping")
	}
}

func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	log.Debug().Str("component", "connection").
		Stringer("from", m.state).
		Stringer("to", s).
		Int("attempts", m.attempts).
		Msg("state changed")
	m.state = s
	m.handler.StateChanged(s)
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	log.Info().Str("component", "connection").Str("url", m.cfg.URL).Int("attempt", m.attempts+1).Msg("dialing")

	go func() {
		conn, err := m.dialer.Dial(ctx, m.cfg.URL)
		posted := m.loop.Post(func() { m.onDial(gen, conn, err) })
		if !posted && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) onDial(gen uint64, conn chat.Conn, err error) {
	if gen != m.gen {
		if conn != nil {
			go conn.Close()
		}
		return
	}
	if err != nil {
		m.cancel()
		m.cancel = nil
		m.fail(chaterr.Transport("dial", err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.conn = conn
	m.out = make(chan []byte, m.cfg.WriteQueue)
	m.attempts = 0
	m.lastErr = nil
	m.backoff.Reset()

	go m.readLoop(ctx, gen, conn)
	go m.writeLoop(ctx, gen, conn, m.out)

	log.Info().Str("component", "connection").Str("remote", conn.RemoteAddr()).Msg("connected")
	m.setState(Connected)
	m.scheduleHeartbeat()
	m.handler.Connected()
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, conn chat.Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.loop.Post(func() { m.onLost(gen, chaterr.Transport("read", err)) })
			return
		}
		m.loop.Post(func() {
			if gen != m.gen || m.state != Connected {
				return
			}
			m.handler.HandleFrame(data)
		})
	}
}

func (m *Manager) writeLoop(ctx context.Context, gen uint64, conn chat.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-out:
			if err := conn.Write(ctx, data); err != nil {
				m.loop.Post(func() { m.onLost(gen, chaterr.Transport("write", err)) })
				return
			}
		}
	}
}

func (m *Manager) onLost(gen uint64, err error) {
	if gen != m.gen || m.state != Connected {
		return
	}
	log.Warn().Str("component", "connection").Err(err).Msg("connection lost")
	m.closeSocket()
	m.handler.Disconnected(err)
	m.fail(err)
}

// fail records err and schedules the next attempt.
func (m *Manager) fail(err error) {
	m.lastErr = err
	m.attempts++
	if m.cfg.MaxAttempts > 0 && m.attempts >= m.cfg.MaxAttempts {
		log.Error().Str("component", "connection").Err(err).Int("attempts", m.attempts).Msg("giving up reconnecting")
		m.setState(Disconnected)
		return
	}

	delay := m.backoff.NextBackOff()
	if m.cfg.BackoffCap > 0 && delay > m.cfg.BackoffCap {
		delay = m.cfg.BackoffCap
	}
	log.Info().Str("component", "connection").Err(err).
		Int("attempt", m.attempts).
		Dur("delay", delay).
		Msg("scheduling reconnect")

	m.setState(Reconnecting)
	m.retryTimer = m.clock.AfterFunc(delay, func() {
		m.retryTimer = nil
		m.dial()
	})
}

// closeSocket invalidates the current generation and releases the socket.
func (m *Manager) closeSocket() {
	m.stopTimer(&m.heartbeatTimer)
	m.stopTimer(&m.deadlineTimer)
	m.pendingPing = 0
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		go m.conn.Close()
		m.conn = nil
	}
	m.out = nil
}

func (m *Manager) scheduleHeartbeat() {
	if m.cfg.HeartbeatInterval <= 0 {
		return
	}
	m.heartbeatTimer = m.clock.AfterFunc(m.cfg.HeartbeatInterval, m.beat)
}

func (m *Manager) beat() {
	m.heartbeatTimer = nil
	if m.state != Connected {
		return
	}
	defer m.scheduleHeartbeat()
	if m.pendingPing != 0 {
		return
	}

	ts := m.clock.Now().UnixMilli()
	if ts <= m.lastPing {
		ts = m.lastPing + 1
	}
	m.lastPing = ts
	if err := m.Send(protocol.Ping{Timestamp: ts}); err != nil {
		log.Warn().Str("component", "connection").Err(err).Msg("failed to send heartbeat")
		return
	}
	m.pendingPing = ts
	if m.cfg.HeartbeatDeadline > 0 {
		m.deadlineTimer = m.clock.AfterFunc(m.cfg.HeartbeatDeadline, m.heartbeatExpired)
	}
}

func (m *Manager) heartbeatExpired() {
	m.deadlineTimer = nil
	if m.state != Connected || m.pendingPing == 0 {
		return
	}
	err := chaterr.Timeout("heartbeat", "")
	log.Warn().Str("component", "connection").Int64("timestamp", m.pendingPing).Msg("heartbeat missed, reconnecting")
	m.closeSocket()
	m.handler.Disconnected(err)
	m.fail(err)
}

func (m *Manager) stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func frameType(f protocol.Frame) protocol.Type {
	if f == nil {
		return ""
	}
	return f.Type()
}
