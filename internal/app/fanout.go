package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/evse-gateway/internal/gateway"
	"github.com/taoyao-code/evse-gateway/internal/metrics"
)

// EventFanout 把处理器事件分发到各下游。每个下游独立协程与缓冲，
// 某个下游变慢或失败只丢弃它自己的事件。
type EventFanout struct {
	log     *zap.Logger
	metrics *metrics.GatewayMetrics

	// Timeout 单次发布超时
	Timeout time.Duration
	// Buffer 每个下游的待发布缓冲
	Buffer int

	sinks []gateway.Sink
}

// NewEventFanout 创建分发器；logger/metrics 可为 nil
func NewEventFanout(logger *zap.Logger, m *metrics.GatewayMetrics, sinks ...gateway.Sink) *EventFanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventFanout{
		log:     logger,
		metrics: m,
		Timeout: 5 * time.Second,
		Buffer:  64,
		sinks:   sinks,
	}
}

// Add 追加下游，须在 Run 之前调用
func (f *EventFanout) Add(s gateway.Sink) { f.sinks = append(f.sinks, s) }

// Sinks 已注册下游名称
func (f *EventFanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Run 消费事件直到 ctx 结束或通道关闭。ctx 结束后把通道里已缓冲的事件
// （例如致命退出前的 offline）发完再返回。
func (f *EventFanout) Run(ctx context.Context, events <-chan gateway.Event) {
	queues := make([]chan gateway.Event, len(f.sinks))
	var wg sync.WaitGroup
	for i, s := range f.sinks {
		queues[i] = make(chan gateway.Event, f.Buffer)
		wg.Add(1)
		go func(s gateway.Sink, q <-chan gateway.Event) {
			defer wg.Done()
			for ev := range q {
				f.publish(s, ev)
			}
		}(s, queues[i])
	}

	dispatch := func(ev gateway.Event) {
		for i, q := range queues {
			select {
			case q <- ev:
			default:
				f.log.Warn("sink backlog full, event dropped",
					zap.String("sink", f.sinks[i].Name()),
					zap.String("kind", string(ev.Kind)),
					zap.String("serial", ev.Serial))
			}
		}
	}

loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			dispatch(ev)
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						break loop
					}
					dispatch(ev)
				default:
					break loop
				}
			}
		}
	}

	for _, q := range queues {
		close(q)
	}
	wg.Wait()
}

func (f *EventFanout) publish(s gateway.Sink, ev gateway.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), f.Timeout)
	defer cancel()
	if err := s.Publish(ctx, ev); err != nil {
		f.log.Warn("publish event failed",
			zap.String("sink", s.Name()),
			zap.String("kind", string(ev.Kind)),
			zap.String("topic", eventLabel(ev)),
			zap.Error(err))
		return
	}
	if f.metrics != nil {
		f.metrics.EventsPublished.WithLabelValues(s.Name(), eventLabel(ev)).Inc()
	}
}

// eventLabel 指标 topic 标签
func eventLabel(ev gateway.Event) string {
	switch ev.Kind {
	case gateway.KindState:
		return "state/" + ev.Topic
	case gateway.KindCharge:
		return "event/" + strconv.Itoa(int(ev.Cmd))
	default:
		return string(ev.Kind)
	}
}
