// Package eventloop runs every state mutation of a session on a single
// goroutine. Background work (socket reads, dials, RPC calls, timers)
// never touches component state directly; it posts a closure instead.
package eventloop

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/omochice/hybrid-chat/internal/clock"
)

// ErrStopped is returned when work is submitted to a stopped loop.
var ErrStopped = errors.New("event loop stopped")

// Loop is a FIFO executor backed by one goroutine.
type Loop struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a loop with the given queue capacity.
func New(capacity int) *Loop {
	if capacity <= 0 {
		capacity = 256
	}
	return &Loop{
		queue: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
}

// Run executes posted closures until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			fn()
		}
	}
}

// Stop makes Run return. Queued closures are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop is stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn. It must not be called from the loop goroutine while the
// queue is full. It returns false once the loop is stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
// It must not be called from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Clock wraps c so that timer callbacks run on the loop. A timer stopped
// from the loop never fires, even when the underlying timer already
// expired and its callback is queued.
func (l *Loop) Clock(c clock.Clock) clock.Clock {
	return &loopClock{loop: l, inner: c}
}

type loopClock struct {
	loop  *Loop
	inner clock.Clock
}

type loopTimer struct {
	inner clock.Timer
	// done is only read and written on the loop goroutine.
	done bool
}

func (c *loopClock) Now() time.Time { return c.inner.Now() }

func (c *loopClock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	t := &loopTimer{}
	t.inner = c.inner.AfterFunc(d, func() {
		c.loop.Post(func() {
			if t.done {
				return
			}
			t.done = true
			fn()
		})
	})
	return t
}

func (t *loopTimer) Stop() bool {
	t.inner.Stop()
	if t.done {
		return false
	}
	t.done = true
	return true
}
