package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/supervisor"
	"github.com/taoyao-code/evse-gateway/internal/transport/transporttest"
)

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"带密码", "postgres://evse:secret@db:5432/evse", "postgres://evse:****@db:5432/evse"},
		{"无密码", "postgres://evse@db:5432/evse", "postgres://evse@db:5432/evse"},
		{"无用户", "postgres://db:5432/evse", "postgres://db:5432/evse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskDSN(tt.dsn))
		})
	}
}

func loadConfig(t *testing.T, body string) *cfgpkg.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := cfgpkg.Load(path, nil)
	require.NoError(t, err)
	return cfg
}

const baseConfig = `
ble:
  address: "AA:BB:CC:DD:EE:FF"
  connectAttempts: 1
http:
  enable: false
mqtt:
  enable: false
`

func TestRunConnectExhausted(t *testing.T) {
	tr := &transporttest.Transport{Fail: 5}
	err := Run(context.Background(), loadConfig(t, baseConfig), tr, zap.NewNop())
	assert.ErrorIs(t, err, supervisor.ErrConnectExhausted)
	assert.Equal(t, 1, tr.Attempts())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &transporttest.Transport{Links: []*transporttest.Link{transporttest.NewLink()}}
	assert.NoError(t, Run(ctx, loadConfig(t, baseConfig), tr, zap.NewNop()))
	assert.Zero(t, tr.Attempts())
}

func TestRunBadErrorTable(t *testing.T) {
	cfg := loadConfig(t, baseConfig)
	cfg.Protocol.ErrorTablePath = filepath.Join(t.TempDir(), "missing.yaml")
	err := Run(context.Background(), cfg, &transporttest.Transport{}, zap.NewNop())
	assert.ErrorContains(t, err, "read error table")
}

func TestRunBadWebhookURL(t *testing.T) {
	cfg := loadConfig(t, baseConfig)
	cfg.Webhook.Enable = true
	cfg.Webhook.URL = "ftp://hooks.local/evse"
	err := Run(context.Background(), cfg, &transporttest.Transport{}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported scheme")
}
