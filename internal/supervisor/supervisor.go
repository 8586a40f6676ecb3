// Package supervisor 负责链路生命周期：连接重试、会话代数、读协程、看门狗与信号强度轮询。
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/evse-gateway/internal/gateway"
	"github.com/taoyao-code/evse-gateway/internal/metrics"
	"github.com/taoyao-code/evse-gateway/internal/outbound"
	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
	"github.com/taoyao-code/evse-gateway/internal/session"
	"github.com/taoyao-code/evse-gateway/internal/transport"
)

// ErrConnectExhausted 连接重试次数耗尽
var ErrConnectExhausted = errors.New("supervisor: connect attempts exhausted")

// 会话重启原因（evse_session_restarts_total 的 reason 标签）
const (
	ReasonLiveness = "liveness"
	ReasonLinkLost = "link_lost"
)

// Config 监督器参数
type Config struct {
	Address          string
	ConnectAttempts  int
	RetryDelay       time.Duration
	WatchdogInterval time.Duration
	RSSIInterval     time.Duration
	WriteInterval    time.Duration
	ReconnectPause   time.Duration
}

// Supervisor 单设备会话监督器
type Supervisor struct {
	cfg       Config
	transport transport.Transport
	handler   *gateway.Handler
	queue     *outbound.Queue
	liveness  *session.Liveness
	log       *zap.Logger
	metrics   *metrics.GatewayMetrics

	// Now/Sleep 可替换为测试时钟
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu   sync.RWMutex
	link transport.Link
}

// New 创建监督器；logger/metrics 可为 nil
func New(cfg Config, tr transport.Transport, h *gateway.Handler, q *outbound.Queue, live *session.Liveness, logger *zap.Logger, m *metrics.GatewayMetrics) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectAttempts < 1 {
		cfg.ConnectAttempts = 1
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = 5 * time.Second
	}
	return &Supervisor{
		cfg:       cfg,
		transport: tr,
		handler:   h,
		queue:     q,
		liveness:  live,
		log:       logger,
		metrics:   m,
		Now:       time.Now,
		Sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected 当前是否持有链路
func (s *Supervisor) Connected() bool { return s.activeLink() != nil }

// LastFrame 最近一次有效帧时间
func (s *Supervisor) LastFrame() time.Time { return s.liveness.Last() }

func (s *Supervisor) activeLink() transport.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.link
}

func (s *Supervisor) setLink(l transport.Link) {
	s.mu.Lock()
	s.link = l
	s.mu.Unlock()
	if s.metrics != nil {
		metrics.SetBool(s.metrics.LinkConnected, l != nil)
	}
}

// Run 逐代运行会话，直到 ctx 结束（返回 nil）或出现致命错误
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		reason, err := s.runGeneration(ctx)
		if err != nil {
			s.log.Error("session ended with fatal error", zap.Error(err))
			s.handler.EmitAvailability(false)
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("restarting session", zap.String("reason", reason))
		s.handler.EmitAvailability(false)
		if s.metrics != nil {
			s.metrics.SessionRestarts.WithLabelValues(reason).Inc()
		}
	}
}

// 一代会话的结束原因
type exit struct {
	reason string
	err    error
}

// generation 一代会话内共享的运行时
type generation struct {
	id    uint64
	ctx   context.Context
	wg    sync.WaitGroup
	exits chan exit
}

func (g *generation) stop(e exit) {
	select {
	case g.exits <- e:
	default:
	}
}

func (g *generation) spawn(fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

func (s *Supervisor) runGeneration(ctx context.Context) (string, error) {
	id := s.queue.Reset()
	s.handler.Begin(ctx, id)
	hs := s.handler.Handshake()
	_ = hs.Connect(ctx)

	link, err := s.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil
		}
		return "", err
	}
	_ = hs.LinkUp(ctx)
	s.setLink(link)
	s.liveness.Touch()
	s.log.Info("session started", zap.Uint64("gen", id), zap.String("address", s.cfg.Address))

	gctx, cancel := context.WithCancel(ctx)
	g := &generation{id: id, ctx: gctx, exits: make(chan exit, 4)}

	g.spawn(func() { s.read(g, link) })
	g.spawn(func() {
		if err := s.newWorker(g).Run(gctx, id); err != nil {
			g.stop(exit{err: err})
		}
	})
	g.spawn(func() { s.watchdog(g) })
	if r, ok := s.transport.(transport.RSSIReader); ok && s.cfg.RSSIInterval > 0 {
		g.spawn(func() { s.pollRSSI(g, r) })
	}

	var e exit
	select {
	case e = <-g.exits:
	case <-ctx.Done():
	}
	cancel()
	g.wg.Wait()

	if l := s.activeLink(); l != nil {
		if err := l.Disconnect(); err != nil {
			s.log.Debug("disconnect failed", zap.Error(err))
		}
	}
	s.setLink(nil)
	return e.reason, e.err
}

// connect 按重试策略连接配置的地址
func (s *Supervisor) connect(ctx context.Context) (transport.Link, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.ConnectAttempts; attempt++ {
		link, err := s.transport.Connect(ctx, s.cfg.Address)
		if err == nil {
			s.log.Info("link connected", zap.String("address", s.cfg.Address), zap.Int("attempt", attempt))
			return link, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		s.log.Warn("connect failed",
			zap.String("address", s.cfg.Address),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.ConnectAttempts),
			zap.Error(err))
		if attempt < s.cfg.ConnectAttempts {
			if err := s.Sleep(ctx, s.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w (%d attempts): %w", ErrConnectExhausted, s.cfg.ConnectAttempts, lastErr)
}

func (s *Supervisor) newWorker(g *generation) *outbound.Worker {
	w := outbound.NewWorker(s.queue, s.activeLink, s.cfg.WriteInterval)
	w.ReconnectPause = s.cfg.ReconnectPause
	w.Sleep = s.Sleep
	w.Logger = s.log.Named("outbound")
	w.Metrics = s.metrics
	w.Reconnect = func(ctx context.Context) error { return s.reconnect(ctx, g) }
	return w
}

// reconnect 同一代会话内重连：替换活动链路并在新链路上重启读协程
func (s *Supervisor) reconnect(ctx context.Context, g *generation) error {
	old := s.activeLink()
	// 先摘除活动链路，旧读协程看到通道关闭后安静退出
	s.setLink(nil)
	if old != nil {
		_ = old.Disconnect()
	}
	link, err := s.connect(ctx)
	if err != nil {
		return err
	}
	s.setLink(link)
	s.liveness.Touch()
	s.log.Info("link re-established within session", zap.Uint64("gen", g.id))
	g.spawn(func() { s.read(g, link) })
	return nil
}

// read 通知 → 重组 → 校验 → 解析 → 处理器
func (s *Supervisor) read(g *generation, link transport.Link) {
	r := evse.NewReassembler()
	for {
		select {
		case <-g.ctx.Done():
			return
		case chunk, ok := <-link.Notifications():
			if !ok {
				if s.activeLink() == link {
					s.log.Warn("link notifications closed")
					g.stop(exit{reason: ReasonLinkLost})
				}
				return
			}
			if s.metrics != nil {
				s.metrics.BytesReceived.Add(float64(len(chunk)))
			}
			s.log.Debug("notification", zap.Binary("chunk", chunk))
			for _, raw := range r.Feed(chunk) {
				f, err := evse.Parse(raw)
				if err != nil {
					s.metrics.Frame(frameResult(err))
					s.log.Warn("invalid frame dropped", zap.Error(err), zap.Binary("frame", raw))
					continue
				}
				s.liveness.Touch()
				if err := s.handler.HandleFrame(g.ctx, g.id, f); err != nil {
					g.stop(exit{err: err})
					return
				}
			}
		}
	}
}

func frameResult(err error) string {
	switch {
	case errors.Is(err, evse.ErrBadChecksum):
		return metrics.ResultBadChecksum
	case errors.Is(err, evse.ErrShortFrame), errors.Is(err, evse.ErrBadLength):
		return metrics.ResultShort
	default:
		return metrics.ResultDecodeError
	}
}

// watchdog 周期检查活性，超时后结束本代会话
func (s *Supervisor) watchdog(g *generation) {
	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			now := s.Now()
			if s.liveness.Expired(now) {
				s.log.Warn("no valid frame within liveness timeout",
					zap.Duration("age", s.liveness.Age(now)),
					zap.Duration("timeout", s.liveness.Timeout()))
				g.stop(exit{reason: ReasonLiveness})
				return
			}
		}
	}
}

func (s *Supervisor) pollRSSI(g *generation, r transport.RSSIReader) {
	ticker := time.NewTicker(s.cfg.RSSIInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			rssi, err := r.RSSI(g.ctx, s.cfg.Address)
			if err != nil {
				s.log.Debug("rssi read failed", zap.Error(err))
				continue
			}
			s.log.Debug("rssi", zap.Int("dbm", rssi))
			s.handler.SetRSSI(rssi)
		}
	}
}
