package health

import (
	"context"
	"time"
)

// LinkProbe 链路状态来源（supervisor.Supervisor 实现）
type LinkProbe interface {
	Connected() bool
	LastFrame() time.Time
}

// LinkChecker 蓝牙链路：已连接且已登录为健康，已连接未登录为降级
type LinkChecker struct {
	probe    LinkProbe
	loggedIn func() bool
	phase    func() string
	now      func() time.Time
}

func NewLinkChecker(probe LinkProbe, loggedIn func() bool, phase func() string) *LinkChecker {
	return &LinkChecker{probe: probe, loggedIn: loggedIn, phase: phase, now: time.Now}
}

func (c *LinkChecker) Name() string { return "link" }

func (c *LinkChecker) Check(context.Context) CheckResult {
	start := c.now()
	details := map[string]any{"phase": c.phase()}
	if last := c.probe.LastFrame(); !last.IsZero() {
		details["last_frame_age"] = start.Sub(last).Round(time.Millisecond).String()
	}

	res := CheckResult{Details: details}
	switch {
	case !c.probe.Connected():
		res.Status, res.Message = StatusUnhealthy, "link down"
	case !c.loggedIn():
		res.Status, res.Message = StatusDegraded, "connected, not logged in"
	default:
		res.Status, res.Message = StatusHealthy, "ok"
	}
	res.Latency = c.now().Sub(start)
	return res
}
