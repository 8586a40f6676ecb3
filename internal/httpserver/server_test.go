package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/health"
	appmetrics "github.com/taoyao-code/evse-gateway/internal/metrics"
)

func serve(s *Server, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	reg := appmetrics.NewRegistry()
	appmetrics.NewGatewayMetrics(reg).Frame(appmetrics.ResultOK)

	loggedIn := false
	readiness := health.NewReadiness()
	readiness.Add("logged_in", func() bool { return loggedIn })
	agg := health.NewAggregator()

	srv := New(cfg, "/metrics", appmetrics.Handler(reg), func(r gin.IRouter) {
		health.RegisterHTTPRoutes(r, agg, readiness)
	})

	t.Run("healthz", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(srv, "/healthz").Code)
	})

	t.Run("未登录时readyz不可用", func(t *testing.T) {
		rr := serve(srv, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "logged_in")
	})

	t.Run("登录后readyz可用", func(t *testing.T) {
		loggedIn = true
		assert.Equal(t, http.StatusOK, serve(srv, "/readyz").Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rr := serve(srv, "/metrics")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `evse_frames_total{result="ok"} 1`)
	})
}

func TestDefaultMetricsPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := New(cfgpkg.HTTPConfig{Addr: ":0"}, "", appmetrics.Handler(appmetrics.NewRegistry()))
	assert.Equal(t, http.StatusOK, serve(srv, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, serve(srv, "/healthz").Code)
}

func TestStartShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := New(cfgpkg.HTTPConfig{Addr: "127.0.0.1:0"}, "", nil)
	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, srv.Shutdown(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
