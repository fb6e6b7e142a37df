package chaterr_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/omochice/hybrid-chat/internal/chaterr"
)

func TestError_Classification(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name      string
		err       error
		kind      chaterr.Kind
		retryable bool
		message   string
	}{
		{
			name:      "transport",
			err:       chaterr.Transport("dial", cause),
			kind:      chaterr.KindTransport,
			retryable: true,
			message:   "transport error: dial: connection refused",
		},
		{
			name:      "protocol",
			err:       chaterr.Protocol("decode frame", cause),
			kind:      chaterr.KindProtocol,
			retryable: false,
			message:   "protocol error: decode frame: connection refused",
		},
		{
			name:      "rpc",
			err:       chaterr.RPC("get messages", "general", cause),
			kind:      chaterr.KindRPC,
			retryable: true,
			message:   "rpc error: get messages [room general]: connection refused",
		},
		{
			name:      "timeout",
			err:       chaterr.Timeout("join", "general"),
			kind:      chaterr.KindTimeout,
			retryable: true,
			message:   "timeout error: join [room general]: timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, chaterr.Is(tt.err, tt.kind))
			assert.Equal(t, tt.kind, chaterr.KindOf(tt.err))
			assert.Equal(t, tt.message, tt.err.Error())

			var e *chaterr.Error
			assert.True(t, errors.As(tt.err, &e))
			assert.Equal(t, tt.retryable, e.Retryable())
		})
	}
}

func TestError_WrappedStillClassified(t *testing.T) {
	err := errors.Wrap(chaterr.Timeout("leave", "general"), "leave room")

	assert.True(t, chaterr.Is(err, chaterr.KindTimeout))
	assert.False(t, chaterr.Is(err, chaterr.KindRPC))
	assert.Equal(t, chaterr.Kind(0), chaterr.KindOf(errors.New("plain")))
}

func TestError_UnwrapsToCause(t *testing.T) {
	cause := errors.New("boom")
	err := chaterr.RPC("send message", "general", cause)

	assert.True(t, errors.Is(err, cause))
}
