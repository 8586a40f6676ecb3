package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		checks []Checker
		want   Status
		ready  bool
	}{
		{"全部健康", []Checker{&mockChecker{"link", StatusHealthy}, &mockChecker{"mqtt", StatusHealthy}}, StatusHealthy, true},
		{"部分降级", []Checker{&mockChecker{"link", StatusDegraded}, &mockChecker{"mqtt", StatusHealthy}}, StatusDegraded, true},
		{"部分不健康", []Checker{&mockChecker{"link", StatusDegraded}, &mockChecker{"mqtt", StatusUnhealthy}}, StatusUnhealthy, false},
		{"无检查器", nil, StatusHealthy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(tt.checks...)
			assert.Equal(t, tt.want, agg.OverallStatus(ctx))
			assert.Equal(t, tt.ready, agg.Ready(ctx))
		})
	}

	t.Run("动态添加检查器", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"initial", StatusHealthy})
		agg.AddChecker(&mockChecker{"added", StatusHealthy})
		assert.Len(t, agg.CheckAll(ctx), 2)
	})
}

type fakeProbe struct {
	connected bool
	last      time.Time
}

func (p fakeProbe) Connected() bool      { return p.connected }
func (p fakeProbe) LastFrame() time.Time { return p.last }

func TestLinkChecker(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		probe    fakeProbe
		loggedIn bool
		want     Status
	}{
		{"未连接", fakeProbe{}, false, StatusUnhealthy},
		{"已连接未登录", fakeProbe{connected: true, last: now.Add(-3 * time.Second)}, false, StatusDegraded},
		{"已登录", fakeProbe{connected: true, last: now.Add(-3 * time.Second)}, true, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLinkChecker(tt.probe, func() bool { return tt.loggedIn }, func() string { return "logged_in" })
			c.now = func() time.Time { return now }
			res := c.Check(context.Background())
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, "logged_in", res.Details["phase"])
			if !tt.probe.last.IsZero() {
				assert.Equal(t, "3s", res.Details["last_frame_age"])
			}
		})
	}
}

type fakeRedis struct {
	err   error
	stats redis.PoolStats
}

func (f *fakeRedis) HealthCheck(context.Context) error { return f.err }
func (f *fakeRedis) Stats() *redis.PoolStats           { return &f.stats }

func TestRedisChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("Ping 失败", func(t *testing.T) {
		res := NewRedisChecker(&fakeRedis{err: errors.New("refused")}).Check(ctx)
		assert.Equal(t, StatusUnhealthy, res.Status)
		assert.Contains(t, res.Message, "refused")
	})

	t.Run("连接池耗尽", func(t *testing.T) {
		res := NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 10, IdleConns: 0}}).Check(ctx)
		assert.Equal(t, StatusUnhealthy, res.Status)
	})

	t.Run("命中率低", func(t *testing.T) {
		res := NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 10, IdleConns: 8, Hits: 1, Misses: 5}}).Check(ctx)
		assert.Equal(t, StatusDegraded, res.Status)
	})

	t.Run("正常", func(t *testing.T) {
		res := NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 4, IdleConns: 3, Hits: 9}}).Check(ctx)
		assert.Equal(t, StatusHealthy, res.Status)
		assert.Equal(t, "25.0%", res.Details["utilization"])
	})
}

func TestMQTTChecker(t *testing.T) {
	up := true
	c := NewMQTTChecker(func() bool { return up })
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	up = false
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
}

func TestReadiness(t *testing.T) {
	r := NewReadiness()
	loggedIn := false
	r.Add("logged_in", func() bool { return loggedIn })
	r.Add("mqtt", func() bool { return true })

	ok, pending := r.Ready()
	assert.False(t, ok)
	assert.Equal(t, []string{"logged_in"}, pending)

	loggedIn = true
	ok, pending = r.Ready()
	assert.True(t, ok)
	assert.Empty(t, pending)
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	loggedIn := false
	ready := NewReadiness()
	ready.Add("logged_in", func() bool { return loggedIn })
	agg := NewAggregator(&mockChecker{"link", StatusDegraded})
	RegisterHTTPRoutes(r, agg, ready)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	t.Run("healthz", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get("/healthz").Code)
	})

	t.Run("readyz 登录前后", func(t *testing.T) {
		w := get("/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "logged_in")
		loggedIn = true
		assert.Equal(t, http.StatusOK, get("/readyz").Code)
	})

	t.Run("降级仍返回 200", func(t *testing.T) {
		w := get("/health")
		require.Equal(t, http.StatusOK, w.Code)
		var report HealthReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, StatusDegraded, report.Status)
		assert.Contains(t, report.Checks, "link")
		assert.Equal(t, http.StatusOK, get("/health/ready").Code)
		assert.Equal(t, http.StatusOK, get("/health/live").Code)
	})
}
