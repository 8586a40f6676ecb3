package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// 握手阶段
const (
	PhaseDisconnected   = "disconnected"
	PhaseConnecting     = "connecting"
	PhaseAwaitingBanner = "awaiting_banner"
	PhaseLoginRequested = "login_requested"
	PhaseLoggedIn       = "logged_in"
	PhaseRejected       = "rejected"
)

// 握手事件
const (
	evConnect = "connect"
	evLinkUp  = "link_up"
	evBanner  = "banner"
	evLoginOK = "login_ok"
	evReject  = "reject"
	evReset   = "reset"
)

var allPhases = []string{
	PhaseDisconnected, PhaseConnecting, PhaseAwaitingBanner,
	PhaseLoginRequested, PhaseLoggedIn, PhaseRejected,
}

// Handshake 登录握手状态机
type Handshake struct {
	mu  sync.Mutex
	fsm *fsm.FSM
}

// NewHandshake 创建状态机，状态变化记录到 logger
func NewHandshake(logger *zap.Logger) *Handshake {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := fsm.NewFSM(
		PhaseDisconnected,
		fsm.Events{
			{Name: evConnect, Src: []string{PhaseDisconnected}, Dst: PhaseConnecting},
			{Name: evLinkUp, Src: []string{PhaseConnecting}, Dst: PhaseAwaitingBanner},
			{Name: evBanner, Src: []string{PhaseAwaitingBanner, PhaseLoginRequested}, Dst: PhaseLoginRequested},
			{Name: evLoginOK, Src: []string{PhaseLoginRequested}, Dst: PhaseLoggedIn},
			{Name: evReject, Src: allPhases, Dst: PhaseRejected},
			{Name: evReset, Src: allPhases, Dst: PhaseDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("handshake transition",
					zap.String("event", e.Event),
					zap.String("from", e.Src),
					zap.String("to", e.Dst),
				)
			},
		},
	)
	return &Handshake{fsm: f}
}

func (h *Handshake) fire(ctx context.Context, event string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.fsm.Event(ctx, event)
	var same fsm.NoTransitionError
	if errors.As(err, &same) {
		return nil
	}
	return err
}

// Phase 当前阶段
func (h *Handshake) Phase() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fsm.Current()
}

// Is 是否处于指定阶段
func (h *Handshake) Is(phase string) bool { return h.Phase() == phase }

func (h *Handshake) Connect(ctx context.Context) error { return h.fire(ctx, evConnect) }
func (h *Handshake) LinkUp(ctx context.Context) error  { return h.fire(ctx, evLinkUp) }
func (h *Handshake) Banner(ctx context.Context) error  { return h.fire(ctx, evBanner) }
func (h *Handshake) LoginOK(ctx context.Context) error { return h.fire(ctx, evLoginOK) }
func (h *Handshake) Reject(ctx context.Context) error  { return h.fire(ctx, evReject) }
func (h *Handshake) Reset(ctx context.Context) error   { return h.fire(ctx, evReset) }
