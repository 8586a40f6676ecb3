package pg

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/evse-gateway/internal/migrate"
	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
	"github.com/taoyao-code/evse-gateway/internal/session"
)

// testPool 连接 TEST_DATABASE_URL 并执行迁移；未配置或不可用时跳过
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("database unavailable: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("database unavailable: %v", err)
	}
	t.Cleanup(pool.Close)
	require.NoError(t, migrate.Runner{Dir: "../../../db/migrations"}.Up(ctx, pool))
	return pool
}

func TestRepositoryHistory(t *testing.T) {
	pool := testPool(t)
	repo := &Repository{Pool: pool}
	ctx := context.Background()
	serial := "TEST" + uuid.NewString()[:8]
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM telemetry WHERE serial=$1`, serial)
		_, _ = pool.Exec(ctx, `DELETE FROM charge_events WHERE serial=$1`, serial)
		_, _ = pool.Exec(ctx, `DELETE FROM devices WHERE serial=$1`, serial)
	})

	t.Run("设备写入与更新", func(t *testing.T) {
		require.NoError(t, repo.UpsertDevice(ctx, serial, session.Identity{Model: "A", Phases: 1}))
		require.NoError(t, repo.UpsertDevice(ctx, serial, session.Identity{Model: "B", Phases: 3, SoftwareVersion: "SW"}))
		require.NoError(t, repo.SetOnline(ctx, serial, true))

		var model string
		var phases int
		var online bool
		err := pool.QueryRow(ctx, `SELECT model, phases, online FROM devices WHERE serial=$1`, serial).Scan(&model, &phases, &online)
		require.NoError(t, err)
		assert.Equal(t, "B", model)
		assert.Equal(t, 3, phases)
		assert.True(t, online)
	})

	t.Run("遥测按时间倒序", func(t *testing.T) {
		base := time.Now().UTC()
		require.NoError(t, repo.InsertTelemetry(ctx, serial, base, evse.ACStatus{LineID: 1, L1Voltage: 229.9}))
		require.NoError(t, repo.InsertTelemetry(ctx, serial, base.Add(time.Second), evse.ACStatus{LineID: 1, L1Voltage: 231.2}))
		got, err := repo.RecentTelemetry(ctx, serial, 5)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 231.2, got[0].L1Voltage)
	})

	t.Run("充电事件按事件ID去重", func(t *testing.T) {
		id := uuid.New()
		for i := 0; i < 2; i++ {
			require.NoError(t, repo.InsertChargeEvent(ctx, id, serial, evse.CmdChargeStatus, time.Now(), []byte(`{"port":1}`)))
		}
		var n int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM charge_events WHERE serial=$1`, serial).Scan(&n))
		assert.Equal(t, 1, n)
	})
}
