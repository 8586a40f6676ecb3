package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/evse-gateway/internal/gateway"
	"github.com/taoyao-code/evse-gateway/internal/outbound"
	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
	"github.com/taoyao-code/evse-gateway/internal/session"
)

const (
	defaultTelemetryLimit = 20
	maxTelemetryLimit     = 500
)

// Gateway 设备接口依赖的网关能力，由 *gateway.Handler 实现
type Gateway interface {
	Phase() string
	Store() *session.Store
	ApplyIntent(ctx context.Context, in gateway.Intent) error
}

// SnapshotLoader 读取镜像的状态快照（Redis）
type SnapshotLoader interface {
	LoadState(ctx context.Context, serial, topic string, dst any) (bool, error)
}

// TelemetryHistory 遥测历史（PostgreSQL）
type TelemetryHistory interface {
	RecentTelemetry(ctx context.Context, serial string, n int) ([]evse.ACStatus, error)
}

// DeviceHandler 单设备查询与控制接口
type DeviceHandler struct {
	gw     Gateway
	logger *zap.Logger

	// 可选依赖，未启用对应存储时为 nil
	Snapshots SnapshotLoader
	History   TelemetryHistory
}

// NewDeviceHandler 创建设备接口处理器
func NewDeviceHandler(gw Gateway, logger *zap.Logger) *DeviceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceHandler{gw: gw, logger: logger}
}

// DeviceView GET /api/v1/device 响应体
type DeviceView struct {
	Serial     string             `json:"serial"`
	Phase      string             `json:"phase"`
	LoggedIn   bool               `json:"logged_in"`
	Identity   session.Identity   `json:"identity"`
	Config     session.Config     `json:"config"`
	Telemetry  *evse.ACStatus     `json:"telemetry,omitempty"`
	LastCharge *evse.ChargeStatus `json:"last_charge,omitempty"`
	Source     string             `json:"telemetry_source,omitempty"`
}

// GetDevice 查询设备快照
// @Summary 查询设备快照
// @Description 返回身份、配置、最近遥测与握手阶段；内存中无遥测时回退到 Redis 镜像
// @Tags 设备
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} DeviceView
// @Router /api/v1/device [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	st := h.gw.Store().Snapshot()
	view := DeviceView{
		Serial:     st.Identity.Serial,
		Phase:      h.gw.Phase(),
		LoggedIn:   st.LoggedIn,
		Identity:   st.Identity,
		Config:     st.Config,
		Telemetry:  st.Telemetry,
		LastCharge: st.LastCharge,
	}
	if view.Telemetry != nil {
		view.Source = "memory"
	} else if h.Snapshots != nil && view.Serial != "" {
		var t evse.ACStatus
		ok, err := h.Snapshots.LoadState(c.Request.Context(), view.Serial, gateway.TopicCharge, &t)
		switch {
		case err != nil:
			h.logger.Warn("load telemetry snapshot failed", zap.String("serial", view.Serial), zap.Error(err))
		case ok:
			view.Telemetry = &t
			view.Source = "redis"
		}
	}
	c.JSON(http.StatusOK, view)
}

// ListTelemetry 查询遥测历史
// @Summary 查询遥测历史
// @Tags 设备
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "条数(默认20，最大500)"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/device/telemetry [get]
func (h *DeviceHandler) ListTelemetry(c *gin.Context) {
	if h.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "telemetry history disabled"})
		return
	}
	serial := h.gw.Store().Serial()
	if serial == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "device serial not known yet"})
		return
	}
	limit := defaultTelemetryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTelemetryLimit)
	}

	rows, err := h.History.RecentTelemetry(c.Request.Context(), serial, limit)
	if err != nil {
		h.logger.Error("query telemetry failed", zap.String("serial", serial), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"serial": serial, "telemetry": rows})
}

// PostCommand 下发控制指令，字段与 MQTT 命令主题一致
// @Summary 下发控制指令
// @Tags 设备
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body gateway.Intent true "控制指令"
// @Success 202 {object} map[string]interface{} "已入队"
// @Failure 503 {object} map[string]interface{} "下行队列已满"
// @Router /api/v1/device/commands [post]
func (h *DeviceHandler) PostCommand(c *gin.Context) {
	var in gateway.Intent
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no known command field"})
		return
	}

	err := h.gw.ApplyIntent(c.Request.Context(), in)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
	case errors.Is(err, gateway.ErrNotLoggedIn):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, outbound.ErrQueueFull):
		// 队列满之前的字段已入队，之后的字段未执行
		h.logger.Warn("command rejected, outbound queue full", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"accepted": false, "error": err.Error()})
	case errors.Is(err, gateway.ErrInvalidIntent):
		// 合法字段已入队
		c.JSON(http.StatusUnprocessableEntity, gin.H{"accepted": false, "error": err.Error()})
	default:
		h.logger.Error("apply command failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
