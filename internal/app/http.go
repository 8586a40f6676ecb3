package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/evse-gateway/internal/api"
	"github.com/taoyao-code/evse-gateway/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/health"
	"github.com/taoyao-code/evse-gateway/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器：健康检查、指标与设备接口
func NewHTTPServer(
	cfg cfgpkg.HTTPConfig,
	metricsPath string,
	metricsHandler http.Handler,
	aggregator *health.Aggregator,
	readiness *health.Readiness,
	devices *api.DeviceHandler,
	log *zap.Logger,
) *httpserver.Server {
	gin.SetMode(gin.ReleaseMode)
	authCfg := middleware.NewAuthConfig(cfg.APIKeys)
	rateCfg := middleware.RateLimitConfig{
		Enabled:        cfg.CommandsPerMin > 0,
		RequestsPerMin: cfg.CommandsPerMin,
		BurstSize:      5,
	}
	return httpserver.New(cfg, metricsPath, metricsHandler,
		func(r gin.IRouter) { health.RegisterHTTPRoutes(r, aggregator, readiness) },
		func(r gin.IRouter) { api.RegisterDeviceRoutes(r, devices, authCfg, rateCfg, log) },
	)
}
