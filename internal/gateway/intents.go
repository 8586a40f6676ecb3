package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
	"github.com/taoyao-code/evse-gateway/internal/session"
)

// ErrInvalidIntent 控制指令取值非法
var ErrInvalidIntent = errors.New("gateway: invalid intent")

// Intent MQTT 控制指令，nil 字段表示未携带
type Intent struct {
	ChargeState     *bool   `json:"charge_state,omitempty"`
	ChargeAmps      *int    `json:"charge_amps,omitempty"`
	LCDBrightness   *int    `json:"lcd_brightness,omitempty"`
	TemperatureUnit *string `json:"temperature_unit,omitempty"`
	Language        *string `json:"language,omitempty"`
	DeviceName      *string `json:"device_name,omitempty"`
}

// Empty 未携带任何已知字段
func (in Intent) Empty() bool {
	return in.ChargeState == nil && in.ChargeAmps == nil && in.LCDBrightness == nil &&
		in.TemperatureUnit == nil && in.Language == nil && in.DeviceName == nil
}

const (
	minChargeAmps = 6
	maxChargeAmps = 32
)

// intentStep 一个字段对应的下行指令；commit 在指令全部入队后才写入会话
type intentStep struct {
	reqs   []evse.Request
	commit func(s *session.State)
}

// ApplyIntent 按固定顺序把控制指令翻译为下行指令。
// 非法字段被跳过并在返回的错误中汇总，其余字段照常执行。
// 入队失败（如队列满）时停止后续字段，返回的错误包含 outbound.ErrQueueFull。
func (h *Handler) ApplyIntent(ctx context.Context, in Intent) error {
	h.mu.Lock()
	snap := h.store.Snapshot()
	if !snap.LoggedIn {
		h.mu.Unlock()
		return ErrNotLoggedIn
	}
	gen, serial := h.gen, h.serial
	now := h.Now()

	var (
		steps []intentStep
		errs  []error
	)
	add := func(commit func(s *session.State), reqs ...evse.Request) {
		steps = append(steps, intentStep{reqs: reqs, commit: commit})
	}
	invalid := func(key, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidIntent, key, fmt.Sprintf(format, args...)))
	}

	if in.ChargeState != nil {
		if *in.ChargeState {
			lineID := 1
			if snap.Identity.Phases == 3 {
				lineID = 2
			}
			h.log.Info("starting charge", zap.Int("amps", snap.Config.ChargeAmps), zap.Int("line", lineID))
			add(nil, evse.ChargeStart(lineID, h.opts.UserID, now, snap.Config.ChargeAmps))
		} else {
			h.log.Info("stopping charge")
			add(nil, evse.ChargeStop(h.opts.UserID))
		}
	}

	if in.ChargeAmps != nil {
		amps := *in.ChargeAmps
		limit := maxChargeAmps
		if snap.Identity.OutputMaxAmps > 0 && snap.Identity.OutputMaxAmps < limit {
			limit = snap.Identity.OutputMaxAmps
		}
		if amps < minChargeAmps || amps > limit {
			invalid("charge_amps", "%d not in %d-%d", amps, minChargeAmps, limit)
		} else {
			h.log.Info("setting charge amps", zap.Int("amps", amps))
			add(func(s *session.State) { s.Config.ChargeAmps = amps }, evse.SetOutputAmps(amps), evse.GetOutputAmps())
		}
	}

	if in.LCDBrightness != nil {
		level := *in.LCDBrightness
		if level < 1 || level > 100 {
			invalid("lcd_brightness", "%d not in 1-100", level)
		} else {
			h.log.Info("setting lcd brightness", zap.Int("level", level))
			add(func(s *session.State) { s.Config.LCDBrightness = level }, evse.SetLCDBrightness(level))
		}
	}

	if in.TemperatureUnit != nil {
		if code, ok := evse.TemperatureUnitCode(*in.TemperatureUnit); ok {
			h.log.Info("setting temperature unit", zap.String("unit", *in.TemperatureUnit), zap.Int("code", code))
			add(nil, evse.SetTemperatureUnit(code))
		} else {
			invalid("temperature_unit", "unknown unit %q", *in.TemperatureUnit)
		}
	}

	if in.Language != nil {
		if code, ok := evse.LanguageCode(*in.Language); ok {
			h.log.Info("setting language", zap.String("language", *in.Language), zap.Int("code", code))
			add(nil, evse.SetLanguage(code))
		} else {
			invalid("language", "unknown language %q", *in.Language)
		}
	}

	if in.DeviceName != nil {
		name := *in.DeviceName
		if name == "" || len(name) > evse.MaxNameLength {
			invalid("device_name", "length must be 1-%d bytes", evse.MaxNameLength)
		} else {
			h.log.Info("setting device name", zap.String("name", name))
			add(nil, evse.SetDeviceName(name), evse.GetDeviceName())
		}
	}
	h.mu.Unlock()

	for _, st := range steps {
		if err := h.enqueue(ctx, gen, serial, st.reqs); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if st.commit == nil {
			continue
		}
		h.mu.Lock()
		if h.gen == gen {
			h.store.Update(st.commit)
		}
		h.mu.Unlock()
	}
	return errors.Join(errs...)
}
