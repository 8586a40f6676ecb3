package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	redisstorage "github.com/taoyao-code/evse-gateway/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端；未启用时返回 nil, nil
func NewRedisClient(ctx context.Context, cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	client, err := redisstorage.NewClient(ctx, cfg)
	if errors.Is(err, redisstorage.ErrDisabled) {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))
	return client, nil
}

// NewSnapshotStore Redis 快照镜像
func NewSnapshotStore(client *redisstorage.Client, cfg cfgpkg.RedisConfig) *redisstorage.SnapshotStore {
	return redisstorage.NewSnapshotStore(client, cfg.KeyPrefix, cfg.TTL)
}
