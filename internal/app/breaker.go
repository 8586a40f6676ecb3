package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/gateway"
)

// ErrCircuitOpen 下游熔断中，事件直接丢弃
var ErrCircuitOpen = errors.New("sink circuit open")

// BreakerState 熔断状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常发布
	BreakerOpen                         // 熔断，直接拒绝
	BreakerHalfOpen                     // 冷却结束，放一个探测事件
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// SinkBreaker 包装一个下游：连续失败 Threshold 次后熔断 Cooldown，
// 冷却期内事件不再等待发布超时。冷却结束后的第一个事件作为探测，
// 成功则恢复，失败则重新熔断。
type SinkBreaker struct {
	sink gateway.Sink
	log  *zap.Logger

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
	trips    int64
}

// NewSinkBreaker 创建熔断包装；threshold < 1 按 1 处理
func NewSinkBreaker(s gateway.Sink, threshold int, cooldown time.Duration, logger *zap.Logger) *SinkBreaker {
	if threshold < 1 {
		threshold = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SinkBreaker{
		sink:      s,
		log:       logger,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// GuardSink 按配置给下游加熔断；BreakerThreshold <= 0 时原样返回
func GuardSink(s gateway.Sink, cfg cfgpkg.EventsConfig, logger *zap.Logger) gateway.Sink {
	if cfg.BreakerThreshold <= 0 {
		return s
	}
	return NewSinkBreaker(s, cfg.BreakerThreshold, cfg.BreakerCooldown, logger)
}

func (b *SinkBreaker) Name() string { return b.sink.Name() }

// Publish 实现 gateway.Sink
func (b *SinkBreaker) Publish(ctx context.Context, ev gateway.Event) error {
	if !b.allow() {
		return ErrCircuitOpen
	}
	err := b.sink.Publish(ctx, ev)
	b.record(err)
	return err
}

// State 当前状态
func (b *SinkBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trips 累计熔断次数
func (b *SinkBreaker) Trips() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

func (b *SinkBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.transition(BreakerHalfOpen)
		b.probing = true
		return true
	case BreakerHalfOpen:
		// 探测进行中，其余事件继续拒绝
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

func (b *SinkBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.probing = false
		if err != nil {
			b.trip()
			return
		}
		b.failures = 0
		b.transition(BreakerClosed)
		return
	}
	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip()
	}
}

func (b *SinkBreaker) trip() {
	b.openedAt = b.now()
	b.trips++
	b.transition(BreakerOpen)
}

func (b *SinkBreaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.log.Warn("sink circuit state changed",
		zap.String("sink", b.sink.Name()),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("failures", b.failures))
}
