package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/evse-gateway/internal/metrics"
)

// NewMetrics 初始化注册表与网关指标
func NewMetrics() (*prometheus.Registry, *metrics.GatewayMetrics) {
	reg := metrics.NewRegistry()
	m := metrics.NewGatewayMetrics(reg)
	return reg, m
}
