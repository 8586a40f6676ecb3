package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/evse-gateway/internal/api/middleware"
)

// RegisterDeviceRoutes 注册设备查询与控制路由
func RegisterDeviceRoutes(
	r gin.IRouter,
	handler *DeviceHandler,
	authCfg middleware.AuthConfig,
	rateCfg middleware.RateLimitConfig,
	logger *zap.Logger,
) {
	if r == nil || handler == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api/v1")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	api.GET("/device", handler.GetDevice)
	api.GET("/device/telemetry", handler.ListTelemetry)
	api.POST("/device/commands", middleware.RateLimit(rateCfg), handler.PostCommand)

	logger.Info("device routes registered", zap.Int("endpoints", 3))
}
