package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/evse-gateway/internal/gateway"
	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
	"github.com/taoyao-code/evse-gateway/internal/session"
)

// history Sink 需要的写入能力，*Repository 实现
type history interface {
	UpsertDevice(ctx context.Context, serial string, id session.Identity) error
	SetOnline(ctx context.Context, serial string, online bool) error
	InsertTelemetry(ctx context.Context, serial string, at time.Time, t evse.ACStatus) error
	InsertChargeEvent(ctx context.Context, eventID uuid.UUID, serial string, cmd uint16, at time.Time, payload []byte) error
}

// Sink 把网关事件写入历史表；配置记录不入库
type Sink struct {
	repo history
}

func NewSink(repo history) *Sink { return &Sink{repo: repo} }

func (s *Sink) Name() string { return "postgres" }

// Publish 实现 gateway.Sink
func (s *Sink) Publish(ctx context.Context, ev gateway.Event) error {
	switch ev.Kind {
	case gateway.KindIdentity:
		id, ok := ev.Payload.(session.Identity)
		if !ok {
			return fmt.Errorf("identity payload: unexpected %T", ev.Payload)
		}
		return s.repo.UpsertDevice(ctx, ev.Serial, id)
	case gateway.KindAvailability:
		return s.repo.SetOnline(ctx, ev.Serial, ev.Online)
	case gateway.KindState:
		if ev.Topic != gateway.TopicCharge {
			return nil
		}
		st, ok := ev.Payload.(evse.ACStatus)
		if !ok {
			return fmt.Errorf("telemetry payload: unexpected %T", ev.Payload)
		}
		return s.repo.InsertTelemetry(ctx, ev.Serial, ev.At, st)
	case gateway.KindCharge:
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		return s.repo.InsertChargeEvent(ctx, ev.ID, ev.Serial, ev.Cmd, ev.At, payload)
	}
	return nil
}
