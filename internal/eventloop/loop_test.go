package eventloop_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/hybrid-chat/internal/clock"
	"github.com/omochice/hybrid-chat/internal/eventloop"
)

func startLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	loop := eventloop.New(16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func TestLoop_RunsPostedWorkInOrder(t *testing.T) {
	loop := startLoop(t)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, loop.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, loop.Call(context.Background(), func() {}))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_PostAfterStop(t *testing.T) {
	loop := startLoop(t)
	loop.Stop()

	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Call(context.Background(), func() {}), eventloop.ErrStopped)
}

func TestLoop_CallHonoursContext(t *testing.T) {
	loop := eventloop.New(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := loop.Call(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopClock_FiresOnLoop(t *testing.T) {
	loop := startLoop(t)
	fake := clock.NewFake(time.Unix(0, 0))
	c := loop.Clock(fake)

	fired := 0
	require.NoError(t, loop.Call(context.Background(), func() {
		c.AfterFunc(time.Second, func() { fired++ })
	}))

	fake.Advance(time.Second)

	var got int
	require.NoError(t, loop.Call(context.Background(), func() { got = fired }))
	assert.Equal(t, 1, got)
}

func TestLoopClock_StopAfterExpirySuppressesCallback(t *testing.T) {
	loop := startLoop(t)
	fake := clock.NewFake(time.Unix(0, 0))
	c := loop.Clock(fake)

	fired := false
	var timer clock.Timer
	block := make(chan struct{})

	require.NoError(t, loop.Call(context.Background(), func() {
		timer = c.AfterFunc(time.Second, func() { fired = true })
	}))

	// Hold the loop so the expired callback is queued behind Stop.
	var stopped bool
	require.True(t, loop.Post(func() { <-block }))
	require.True(t, loop.Post(func() { stopped = timer.Stop() }))
	fake.Advance(time.Second)
	close(block)

	require.NoError(t, loop.Call(context.Background(), func() {}))
	var got bool
	require.NoError(t, loop.Call(context.Background(), func() { got = fired }))
	assert.False(t, got)
	assert.True(t, stopped)
}
