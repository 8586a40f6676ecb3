package app

import (
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/gateway"
	"github.com/taoyao-code/evse-gateway/internal/metrics"
	"github.com/taoyao-code/evse-gateway/internal/outbound"
	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
	"github.com/taoyao-code/evse-gateway/internal/session"
	"github.com/taoyao-code/evse-gateway/internal/supervisor"
	"github.com/taoyao-code/evse-gateway/internal/transport"
	"github.com/taoyao-code/evse-gateway/internal/transport/ble"
)

// Gateway 单设备运行时组件
type Gateway struct {
	Store      *session.Store
	Queue      *outbound.Queue
	Handler    *gateway.Handler
	Liveness   *session.Liveness
	Supervisor *supervisor.Supervisor
}

// NewBLETransport 按配置创建蓝牙传输
func NewBLETransport(cfg cfgpkg.BLEConfig, log *zap.Logger) *ble.Transport {
	return ble.New(ble.Config{
		ScanTimeout:    cfg.ScanTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
	}, log.Named("ble"))
}

// NewDecoder 加载可选的故障表覆盖
func NewDecoder(cfg cfgpkg.ProtocolConfig, log *zap.Logger) (*evse.Decoder, error) {
	if cfg.ErrorTablePath == "" {
		return evse.NewDecoder(nil), nil
	}
	table, err := evse.LoadErrorTable(cfg.ErrorTablePath)
	if err != nil {
		return nil, err
	}
	log.Info("error table loaded", zap.String("path", cfg.ErrorTablePath), zap.Int("entries", len(table.Faults)))
	return evse.NewDecoder(table), nil
}

// NewGateway 组装会话状态、下行队列、处理器与监督器
func NewGateway(cfg *cfgpkg.Config, tr transport.Transport, log *zap.Logger, m *metrics.GatewayMetrics) (*Gateway, error) {
	password, err := evse.ParsePassword(cfg.BLE.Password)
	if err != nil {
		return nil, fmt.Errorf("ble.password: %w", err)
	}
	decoder, err := NewDecoder(cfg.Protocol, log)
	if err != nil {
		return nil, err
	}

	store := session.NewStore(cfg.Session.DefaultChargeAmps)
	queue := outbound.NewQueue(cfg.Outbound.QueueSize, cfg.Outbound.FailFast)
	if m != nil {
		queue.Depth = m.QueueDepth
	}
	handler := gateway.NewHandler(gateway.Options{
		Password:           password,
		UserID:             cfg.BLE.UserID,
		LoginRetryInterval: cfg.Session.LoginRetryInterval,
		SettleDelay:        cfg.Session.SettleDelay,
		KilowattUnit:       cfg.KilowattUnit(),
	}, store, queue, decoder, log.Named("gateway"), m)
	live := session.NewLiveness(cfg.Session.LivenessTimeout, nil)

	sup := supervisor.New(supervisor.Config{
		Address:          cfg.BLE.Address,
		ConnectAttempts:  cfg.BLE.ConnectAttempts,
		RetryDelay:       cfg.BLE.RetryDelay,
		WatchdogInterval: cfg.Session.WatchdogInterval,
		RSSIInterval:     cfg.BLE.RSSIInterval,
		WriteInterval:    cfg.Outbound.WriteInterval,
		ReconnectPause:   cfg.Outbound.ReconnectPause,
	}, tr, handler, queue, live, log.Named("supervisor"), m)

	return &Gateway{
		Store:      store,
		Queue:      queue,
		Handler:    handler,
		Liveness:   live,
		Supervisor: sup,
	}, nil
}
