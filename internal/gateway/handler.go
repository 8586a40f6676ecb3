package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/evse-gateway/internal/metrics"
	"github.com/taoyao-code/evse-gateway/internal/outbound"
	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
	"github.com/taoyao-code/evse-gateway/internal/session"
)

var (
	// ErrPasswordRejected 设备拒绝蓝牙密码（指令 341），会话终止
	ErrPasswordRejected = errors.New("gateway: password rejected by device")
	ErrNotLoggedIn      = errors.New("gateway: device not logged in")
)

// Options 握手与转发参数
type Options struct {
	Password           [evse.PasswordLen]byte
	UserID             string
	LoginRetryInterval time.Duration
	SettleDelay        time.Duration
	KilowattUnit       bool
	EventBuffer        int
}

// Handler 帧路由与握手处理。帧处理路径是唯一写者，状态变更在 mu 内完成，
// 下行指令在释放锁后按顺序入队。
type Handler struct {
	opts    Options
	store   *session.Store
	queue   *outbound.Queue
	decoder *evse.Decoder
	hs      *Handshake
	events  chan Event
	log     *zap.Logger
	metrics *metrics.GatewayMetrics

	// Now/Sleep 可替换，便于测试
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	gen        uint64
	serial     uint64 // 原始序列号，用于下行编码
	lastSerial string // 最近一次登录横幅的序列号，跨代保留，仅用于离线通知
	online     bool   // 本代会话是否已发布 online
}

// NewHandler 创建处理器；logger/metrics 可为 nil
func NewHandler(opts Options, store *session.Store, queue *outbound.Queue, decoder *evse.Decoder, logger *zap.Logger, m *metrics.GatewayMetrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if decoder == nil {
		decoder = evse.NewDecoder(nil)
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if opts.LoginRetryInterval <= 0 {
		opts.LoginRetryInterval = 5 * time.Second
	}
	return &Handler{
		opts:    opts,
		store:   store,
		queue:   queue,
		decoder: decoder,
		hs:      NewHandshake(logger),
		events:  make(chan Event, opts.EventBuffer),
		log:     logger,
		metrics: m,
		Now:     time.Now,
		Sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// Events 事件通道，由 app.EventFanout 消费
func (h *Handler) Events() <-chan Event { return h.events }

// Handshake 握手状态机
func (h *Handler) Handshake() *Handshake { return h.hs }

// Store 会话状态
func (h *Handler) Store() *session.Store { return h.store }

// Begin 开始新一代会话：丢弃会话状态并重置握手
func (h *Handler) Begin(ctx context.Context, gen uint64) {
	h.mu.Lock()
	h.gen = gen
	h.online = false
	h.mu.Unlock()
	h.store.Reset()
	_ = h.hs.Reset(ctx)
	if h.metrics != nil {
		h.metrics.LoggedIn.Set(0)
	}
}

// Generation 当前代数
func (h *Handler) Generation() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen
}

// Ready 已登录（readyz 使用）
func (h *Handler) Ready() bool { return h.hs.Is(PhaseLoggedIn) }

// Phase 当前握手阶段
func (h *Handler) Phase() string { return h.hs.Phase() }

// 一次帧处理的结果：待发送指令、待发布事件、收尾动作
type outcome struct {
	reqs   []evse.Request
	events []Event
	settle bool
	err    error
}

// HandleFrame 处理一个已通过校验的帧。gen 与当前代数不同的帧被丢弃。
func (h *Handler) HandleFrame(ctx context.Context, gen uint64, f *evse.Frame) error {
	msg, err := h.decoder.Decode(f)
	if err != nil {
		h.metrics.Frame(metrics.ResultDecodeError)
		h.log.Warn("decode failed", zap.Uint16("cmd", f.Cmd), zap.Error(err))
		return nil
	}
	if _, ok := msg.(*evse.Unknown); ok {
		h.metrics.Frame(metrics.ResultUnknown)
		h.log.Debug("unknown command ignored", zap.Uint16("cmd", f.Cmd), zap.Binary("payload", f.Payload))
		return nil
	}
	h.metrics.Frame(metrics.ResultOK)
	if h.metrics != nil {
		h.metrics.FramesRouted.WithLabelValues(strconv.Itoa(int(f.Cmd))).Inc()
	}

	h.mu.Lock()
	if gen != h.gen {
		h.mu.Unlock()
		h.log.Debug("drop frame from stale generation", zap.Uint64("gen", gen), zap.Uint16("cmd", f.Cmd))
		return nil
	}
	out := h.apply(ctx, f, msg)
	serial := h.serial
	h.mu.Unlock()

	h.emit(out.events...)
	if err := h.enqueue(ctx, gen, serial, out.reqs); err != nil {
		h.log.Debug("reply not fully queued", zap.Uint16("cmd", f.Cmd), zap.Error(err))
	}
	if out.settle {
		if err := h.Sleep(ctx, h.opts.SettleDelay); err != nil {
			return nil
		}
	}
	return out.err
}

// apply 在锁内更新状态，返回需要的下行指令与事件
func (h *Handler) apply(ctx context.Context, f *evse.Frame, msg evse.Message) outcome {
	var out outcome
	now := h.Now()
	snap := h.store.Snapshot()
	serialHex := f.SerialHex()

	switch m := msg.(type) {
	case *evse.LoginInfo:
		if m.Cmd == evse.CmdLoginResponse {
			return h.loginResponse(ctx, m, snap)
		}
		h.serial = f.Serial
		h.lastSerial = serialHex
		h.store.Update(func(s *session.State) {
			applyLoginInfo(&s.Identity, m, serialHex)
			s.Initialized = true
		})
		if snap.LoggedIn {
			return out
		}
		if h.hs.Is(PhaseLoginRequested) && now.Sub(snap.LoginRequestedAt) < h.opts.LoginRetryInterval {
			h.log.Debug("duplicate login banner ignored", zap.String("serial", serialHex))
			return out
		}
		h.log.Info("device sent login banner, requesting login", zap.String("serial", serialHex), zap.String("model", m.Model))
		_ = h.hs.Banner(ctx)
		h.store.Update(func(s *session.State) { s.LoginRequestedAt = now })
		out.reqs = append(out.reqs, evse.LoginRequest(), evse.SetChargeFee(), evse.SetServiceFee())

	case *evse.HeartbeatPing:
		if snap.Initialized {
			h.log.Debug("device heartbeat, replying")
			out.reqs = append(out.reqs, evse.Heartbeat(), evse.SetSystemTime(now))
		}

	case *evse.ACStatus:
		if h.opts.KilowattUnit {
			m.CurrentEnergy = m.CurrentEnergy / 1000
		}
		h.store.Update(func(s *session.State) { s.Telemetry = m })
		out.events = h.forward(serialHex, TopicCharge, snap.Initialized, now)

	case *evse.SystemTime:
		out.events = h.updateConfig(serialHex, snap.Initialized, now, func(c *session.Config) {
			c.SystemTime, c.SystemTimeRaw = m.Local, m.Raw
		})
	case *evse.OutputAmps:
		// 设备上报的电流同时作为下次启动充电的电流
		out.events = h.updateConfig(serialHex, snap.Initialized, now, func(c *session.Config) {
			c.OutputAmps = m.Amps
			if m.Amps > 0 {
				c.ChargeAmps = m.Amps
			}
		})
	case *evse.DeviceName:
		out.events = h.updateConfig(serialHex, snap.Initialized, now, func(c *session.Config) { c.DeviceName = m.Name })
	case *evse.Language:
		out.events = h.updateConfig(serialHex, snap.Initialized, now, func(c *session.Config) { c.Language = m.Name })
	case *evse.TemperatureUnit:
		out.events = h.updateConfig(serialHex, snap.Initialized, now, func(c *session.Config) { c.TemperatureUnit = m.Name })

	case *evse.Version:
		h.store.Update(func(s *session.State) {
			s.Identity.HardwareVersion = m.HardwareVersion
			s.Identity.SoftwareVersion = m.SoftwareVersion
			s.Identity.Feature = m.Feature
		})
		if snap.LoggedIn && !h.online {
			h.online = true
			h.log.Info("device ready", zap.String("serial", serialHex), zap.String("software", m.SoftwareVersion))
			ident := h.store.Snapshot().Identity
			idEv := newEvent(KindIdentity, serialHex, now)
			idEv.Payload = ident
			avail := newEvent(KindAvailability, serialHex, now)
			avail.Online = true
			out.events = append(out.events, idEv, avail)
		}

	case *evse.ChargeStatus:
		h.log.Info("device sent charge status", zap.Int("state", m.CurrentState), zap.String("charge_id", m.ChargeID))
		h.store.Update(func(s *session.State) { s.LastCharge = m })
		out.events = append(out.events, h.chargeEvent(serialHex, m.Cmd, *m, now))
	case *evse.ChargeStartAck:
		h.log.Info("device responded to charge start", zap.String("result", m.ErrorReason), zap.Int("amps", m.OutputAmps))
		out.events = append(out.events, h.chargeEvent(serialHex, evse.CmdChargeStartAck, *m, now))
	case *evse.ChargeStopAck:
		h.log.Info("device responded to charge stop", zap.String("result", m.StopResult))
		out.events = append(out.events, h.chargeEvent(serialHex, evse.CmdChargeStopAck, *m, now))

	case *evse.PasswordRejected:
		h.log.Error("password was not accepted by device", zap.String("serial", serialHex))
		_ = h.hs.Reject(ctx)
		out.err = ErrPasswordRejected
	}
	return out
}

func (h *Handler) loginResponse(ctx context.Context, m *evse.LoginInfo, snap session.State) outcome {
	var out outcome
	if snap.LoggedIn || snap.Identity.SoftwareVersion != "" || !h.hs.Is(PhaseLoginRequested) {
		h.log.Debug("login response ignored", zap.String("phase", h.hs.Phase()))
		return out
	}
	h.log.Info("device accepted login request, confirming login")
	_ = h.hs.LoginOK(ctx)
	h.store.Update(func(s *session.State) { s.LoggedIn = true })
	if h.metrics != nil {
		h.metrics.LoggedIn.Set(1)
	}
	out.reqs = []evse.Request{
		evse.LoginConfirm(),
		evse.GetTemperatureUnit(),
		evse.GetVersion(),
		evse.GetDeviceName(),
		evse.GetOutputAmps(),
		evse.GetLanguage(),
		evse.GetLCDBrightness(),
		evse.SetSystemTime(h.Now()),
		evse.GetChargeStatusRecord(),
	}
	out.settle = true
	return out
}

func applyLoginInfo(id *session.Identity, m *evse.LoginInfo, serial string) {
	id.Serial = serial
	id.Type = m.Type
	id.Phases = m.Phases
	id.Manufacturer = m.Manufacturer
	id.Model = m.Model
	id.HardwareVersion = m.HardwareVersion
	id.OutputPower = m.OutputPower
	id.OutputMaxAmps = m.OutputMaxAmps
	id.Support = m.Support
}

func (h *Handler) updateConfig(serial string, initialized bool, now time.Time, fn func(c *session.Config)) []Event {
	h.store.Update(func(s *session.State) { fn(&s.Config) })
	return h.forward(serial, TopicConfig, initialized, now)
}

// forward 初始化完成后转发该主题的完整记录
func (h *Handler) forward(serial, topic string, initialized bool, now time.Time) []Event {
	if !initialized {
		return nil
	}
	snap := h.store.Snapshot()
	ev := newEvent(KindState, serial, now)
	ev.Topic = topic
	switch topic {
	case TopicCharge:
		if snap.Telemetry == nil {
			return nil
		}
		ev.Payload = *snap.Telemetry
	case TopicConfig:
		ev.Payload = snap.Config
	}
	return []Event{ev}
}

func (h *Handler) chargeEvent(serial string, cmd uint16, payload any, now time.Time) Event {
	ev := newEvent(KindCharge, serial, now)
	ev.Cmd = cmd
	ev.Payload = payload
	return ev
}

// EmitAvailability 发布在线/离线状态（供 supervisor 在重启与退出时使用）
func (h *Handler) EmitAvailability(online bool) {
	h.mu.Lock()
	serial := h.lastSerial
	h.mu.Unlock()
	if serial == "" {
		return
	}
	ev := newEvent(KindAvailability, serial, h.Now())
	ev.Online = online
	h.emit(ev)
}

// SetRSSI 记录信号强度
func (h *Handler) SetRSSI(rssi int) {
	h.store.Update(func(s *session.State) { s.Config.RSSI = rssi })
	if h.metrics != nil {
		h.metrics.LinkRSSI.Set(float64(rssi))
	}
}

func (h *Handler) emit(events ...Event) {
	for _, ev := range events {
		select {
		case h.events <- ev:
		default:
			h.log.Warn("event buffer full, dropping event", zap.String("kind", string(ev.Kind)), zap.String("topic", ev.Topic))
		}
	}
}

// enqueue 按顺序入队，遇到第一个失败即停止并返回（队列满、代数过期或取消）
func (h *Handler) enqueue(ctx context.Context, gen, serial uint64, reqs []evse.Request) error {
	for i, r := range reqs {
		cmd := outbound.NewCommand(gen, r, serial, h.opts.Password)
		if err := h.queue.Put(ctx, cmd); err != nil {
			if errors.Is(err, outbound.ErrQueueFull) {
				h.log.Warn("outbound queue full, command dropped", zap.Stringer("cmd", cmd), zap.Int("remaining", len(reqs)-i))
			}
			return fmt.Errorf("queue %s: %w", cmd, err)
		}
		h.log.Debug("command queued", zap.Stringer("cmd", cmd))
	}
	return nil
}
