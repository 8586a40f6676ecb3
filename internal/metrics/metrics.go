package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// 帧处理结果标签
const (
	ResultOK          = "ok"
	ResultBadChecksum = "bad_checksum"
	ResultShort       = "short"
	ResultDecodeError = "decode_error"
	ResultUnknown     = "unknown"
)

// GatewayMetrics 网关业务指标
type GatewayMetrics struct {
	FramesTotal        *prometheus.CounterVec // labels: result
	FramesRouted       *prometheus.CounterVec // labels: cmd
	CommandsSent       *prometheus.CounterVec // labels: cmd
	CommandWriteErrors prometheus.Counter
	QueueDepth         prometheus.Gauge
	SessionRestarts    *prometheus.CounterVec // labels: reason
	LinkConnected      prometheus.Gauge
	LoggedIn           prometheus.Gauge
	LinkRSSI           prometheus.Gauge
	BytesReceived      prometheus.Counter
	EventsPublished    *prometheus.CounterVec // labels: sink, topic
}

// NewGatewayMetrics 注册并返回业务指标
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evse_frames_total",
			Help: "Candidate frames by validation/decode result.",
		}, []string{"result"}),
		FramesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evse_frames_routed_total",
			Help: "Decoded frames routed by command code.",
		}, []string{"cmd"}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evse_commands_sent_total",
			Help: "Commands written to the charger by command name.",
		}, []string{"cmd"}),
		CommandWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evse_command_write_errors_total",
			Help: "Failed link writes.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evse_outbound_queue_depth",
			Help: "Commands waiting in the outbound queue.",
		}),
		SessionRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evse_session_restarts_total",
			Help: "Session restarts by reason.",
		}, []string{"reason"}),
		LinkConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evse_link_connected",
			Help: "1 when the BLE link is up.",
		}),
		LoggedIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evse_logged_in",
			Help: "1 when the login handshake has completed.",
		}),
		LinkRSSI: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evse_link_rssi",
			Help: "Last observed signal strength in dBm.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evse_bytes_received_total",
			Help: "Total notification bytes received.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evse_events_published_total",
			Help: "Events delivered to sinks.",
		}, []string{"sink", "topic"}),
	}
	reg.MustRegister(
		m.FramesTotal, m.FramesRouted, m.CommandsSent, m.CommandWriteErrors, m.QueueDepth,
		m.SessionRestarts, m.LinkConnected, m.LoggedIn, m.LinkRSSI, m.BytesReceived, m.EventsPublished,
	)
	return m
}

// Frame 统计一次帧处理结果；m 为 nil 时忽略
func (m *GatewayMetrics) Frame(result string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(result).Inc()
}

// SetBool 将布尔状态写入 0/1 指标
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
