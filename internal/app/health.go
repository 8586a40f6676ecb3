package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/evse-gateway/internal/gateway"
	"github.com/taoyao-code/evse-gateway/internal/health"
	redisstorage "github.com/taoyao-code/evse-gateway/internal/storage/redis"
)

// NewHealthAggregator 创建健康检查聚合器，链路检查始终存在
func NewHealthAggregator(probe health.LinkProbe, h *gateway.Handler) *health.Aggregator {
	return health.NewAggregator(
		health.NewLinkChecker(probe, h.Ready, h.Phase),
	)
}

// NewReadiness 设备完成登录即就绪
func NewReadiness(h *gateway.Handler) *health.Readiness {
	r := health.NewReadiness()
	r.Add("logged_in", h.Ready)
	return r
}

// AddDatabaseChecker 添加数据库检查器
func AddDatabaseChecker(aggregator *health.Aggregator, pool *pgxpool.Pool) {
	if pool != nil {
		aggregator.AddChecker(health.NewDatabaseChecker(pool))
	}
}

// AddRedisChecker 添加Redis检查器
func AddRedisChecker(aggregator *health.Aggregator, client *redisstorage.Client) {
	if client != nil {
		aggregator.AddChecker(health.NewRedisChecker(client))
	}
}

// AddMQTTChecker 添加 MQTT 检查器
func AddMQTTChecker(aggregator *health.Aggregator, connected func() bool) {
	aggregator.AddChecker(health.NewMQTTChecker(connected))
}
