package health

import (
	"context"
	"time"
)

// MQTTChecker broker 连接状态
type MQTTChecker struct {
	connected func() bool
}

func NewMQTTChecker(connected func() bool) *MQTTChecker {
	return &MQTTChecker{connected: connected}
}

func (c *MQTTChecker) Name() string { return "mqtt" }

func (c *MQTTChecker) Check(context.Context) CheckResult {
	start := time.Now()
	if !c.connected() {
		return CheckResult{Status: StatusUnhealthy, Message: "broker disconnected", Latency: time.Since(start)}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok", Latency: time.Since(start)}
}
