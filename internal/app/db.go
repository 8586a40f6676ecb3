package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/migrate"
	pgstorage "github.com/taoyao-code/evse-gateway/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接并执行迁移；未启用时返回 nil, nil
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	if !cfg.Enable {
		log.Info("database is disabled, history will not be recorded")
		return nil, nil
	}
	dbpool, err := pgstorage.NewPool(ctx, cfg, log.Named("pgx"))
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	if cfg.MigrationsDir != "" {
		if err = (migrate.Runner{Dir: cfg.MigrationsDir, Logger: log}).Up(ctx, dbpool); err != nil {
			log.Error("db migrate error", zap.Error(err))
			dbpool.Close()
			return nil, err
		}
		log.Info("db migrations applied", zap.String("dir", cfg.MigrationsDir))
	}
	return dbpool, nil
}
