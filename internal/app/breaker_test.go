package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/gateway"
)

func TestSinkBreaker(t *testing.T) {
	ctx := context.Background()
	ev := gateway.Event{Kind: gateway.KindState, Serial: "ABC", Topic: gateway.TopicCharge}

	newBreaker := func(sink *recordingSink) (*SinkBreaker, *time.Time) {
		clock := time.Unix(1700000000, 0)
		b := NewSinkBreaker(sink, 3, time.Minute, nil)
		b.now = func() time.Time { return clock }
		return b, &clock
	}

	t.Run("连续失败后熔断", func(t *testing.T) {
		sink := &recordingSink{name: "redis", err: errors.New("down")}
		b, _ := newBreaker(sink)
		assert.Equal(t, "redis", b.Name())

		for i := 0; i < 3; i++ {
			assert.Error(t, b.Publish(ctx, ev))
		}
		assert.Equal(t, BreakerOpen, b.State())
		assert.ErrorIs(t, b.Publish(ctx, ev), ErrCircuitOpen)
		assert.EqualValues(t, 3, sink.calls.Load())
		assert.EqualValues(t, 1, b.Trips())
	})

	t.Run("成功会清零失败计数", func(t *testing.T) {
		sink := &recordingSink{name: "pg", err: errors.New("down")}
		b, _ := newBreaker(sink)
		require.Error(t, b.Publish(ctx, ev))
		require.Error(t, b.Publish(ctx, ev))
		sink.err = nil
		require.NoError(t, b.Publish(ctx, ev))
		sink.err = errors.New("down")
		require.Error(t, b.Publish(ctx, ev))
		assert.Equal(t, BreakerClosed, b.State())
	})

	t.Run("冷却后探测成功恢复", func(t *testing.T) {
		sink := &recordingSink{name: "webhook", err: errors.New("down")}
		b, clock := newBreaker(sink)
		for i := 0; i < 3; i++ {
			_ = b.Publish(ctx, ev)
		}
		*clock = clock.Add(59 * time.Second)
		assert.ErrorIs(t, b.Publish(ctx, ev), ErrCircuitOpen)

		*clock = clock.Add(2 * time.Second)
		sink.err = nil
		require.NoError(t, b.Publish(ctx, ev))
		assert.Equal(t, BreakerClosed, b.State())
		assert.EqualValues(t, 4, sink.calls.Load())
	})

	t.Run("探测失败重新熔断", func(t *testing.T) {
		sink := &recordingSink{name: "webhook", err: errors.New("down")}
		b, clock := newBreaker(sink)
		for i := 0; i < 3; i++ {
			_ = b.Publish(ctx, ev)
		}
		*clock = clock.Add(time.Minute)
		assert.Error(t, b.Publish(ctx, ev))
		assert.Equal(t, BreakerOpen, b.State())
		assert.ErrorIs(t, b.Publish(ctx, ev), ErrCircuitOpen)
		assert.EqualValues(t, 2, b.Trips())
	})
}

func TestGuardSink(t *testing.T) {
	sink := &recordingSink{name: "pg"}
	assert.Same(t, gateway.Sink(sink), GuardSink(sink, cfgpkg.EventsConfig{}, nil))

	guarded := GuardSink(sink, cfgpkg.EventsConfig{BreakerThreshold: 2, BreakerCooldown: time.Second}, nil)
	require.IsType(t, &SinkBreaker{}, guarded)
	assert.Equal(t, "pg", guarded.Name())
}
