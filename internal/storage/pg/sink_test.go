package pg

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/evse-gateway/internal/gateway"
	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
	"github.com/taoyao-code/evse-gateway/internal/session"
)

type fakeHistory struct {
	devices   map[string]session.Identity
	online    map[string]bool
	telemetry []evse.ACStatus
	events    map[uuid.UUID]string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		devices: make(map[string]session.Identity),
		online:  make(map[string]bool),
		events:  make(map[uuid.UUID]string),
	}
}

func (f *fakeHistory) UpsertDevice(_ context.Context, serial string, id session.Identity) error {
	f.devices[serial] = id
	return nil
}

func (f *fakeHistory) SetOnline(_ context.Context, serial string, online bool) error {
	f.online[serial] = online
	return nil
}

func (f *fakeHistory) InsertTelemetry(_ context.Context, _ string, _ time.Time, t evse.ACStatus) error {
	f.telemetry = append(f.telemetry, t)
	return nil
}

func (f *fakeHistory) InsertChargeEvent(_ context.Context, id uuid.UUID, _ string, _ uint16, _ time.Time, payload []byte) error {
	f.events[id] = string(payload)
	return nil
}

func TestSinkRouting(t *testing.T) {
	h := newFakeHistory()
	s := NewSink(h)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Publish(ctx, gateway.Event{Kind: gateway.KindIdentity, Serial: "ABC", Payload: session.Identity{Model: "Wallbox"}}))
	assert.Equal(t, "Wallbox", h.devices["ABC"].Model)

	require.NoError(t, s.Publish(ctx, gateway.Event{Kind: gateway.KindAvailability, Serial: "ABC", Online: true}))
	assert.True(t, h.online["ABC"])

	t.Run("只记录 charge 主题", func(t *testing.T) {
		require.NoError(t, s.Publish(ctx, gateway.Event{Kind: gateway.KindState, Serial: "ABC", Topic: gateway.TopicConfig, Payload: session.Config{}}))
		require.NoError(t, s.Publish(ctx, gateway.Event{Kind: gateway.KindState, Serial: "ABC", Topic: gateway.TopicCharge, At: now, Payload: evse.ACStatus{LineID: 1}}))
		require.Len(t, h.telemetry, 1)
		assert.Equal(t, 1, h.telemetry[0].LineID)
	})

	t.Run("充电事件以事件ID写入", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, s.Publish(ctx, gateway.Event{ID: id, Kind: gateway.KindCharge, Serial: "ABC", Cmd: evse.CmdChargeStopAck,
			Payload: evse.ChargeStopAck{LineID: 1, StopResult: "App stop"}}))
		assert.JSONEq(t, `{"line_id":1,"stop_result":"App stop","error_reason":0}`, h.events[id])
	})

	t.Run("负载类型不符", func(t *testing.T) {
		err := s.Publish(ctx, gateway.Event{Kind: gateway.KindIdentity, Serial: "ABC", Payload: "oops"})
		assert.Error(t, err)
	})
}
