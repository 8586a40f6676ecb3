package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind 事件类型
type Kind string

const (
	KindState        Kind = "state"
	KindAvailability Kind = "availability"
	KindCharge       Kind = "charge_event"
	KindIdentity     Kind = "identity"
)

// 状态主题
const (
	TopicCharge = "charge"
	TopicConfig = "config"
)

// Event 网关对外事件，Payload 为发出时刻的记录副本
type Event struct {
	ID      uuid.UUID `json:"id"`
	Kind    Kind      `json:"kind"`
	Serial  string    `json:"serial"`
	Topic   string    `json:"topic,omitempty"`
	Online  bool      `json:"online,omitempty"`
	Cmd     uint16    `json:"cmd,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

func newEvent(kind Kind, serial string, now time.Time) Event {
	return Event{ID: uuid.New(), Kind: kind, Serial: serial, At: now}
}

// Sink 事件下游（MQTT、Redis、PostgreSQL）
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}
