package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func get(r http.Handler, header map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr.Code
}

func TestAPIKeyAuth(t *testing.T) {
	r := newRouter(APIKeyAuth(NewAuthConfig([]string{"sk_test_123456"}), nil))

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"缺少key", nil, http.StatusUnauthorized},
		{"X-API-Key有效", map[string]string{"X-API-Key": "sk_test_123456"}, http.StatusOK},
		{"Bearer有效", map[string]string{"Authorization": "Bearer sk_test_123456"}, http.StatusOK},
		{"无效key", map[string]string{"X-API-Key": "nope"}, http.StatusForbidden},
		{"非Bearer格式", map[string]string{"Authorization": "Basic sk_test_123456"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(r, tt.header))
		})
	}

	t.Run("未配置key时放行", func(t *testing.T) {
		open := newRouter(APIKeyAuth(NewAuthConfig(nil), nil))
		assert.Equal(t, http.StatusOK, get(open, nil))
	})
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk_t****3456", maskAPIKey("sk_test_123456"))
}

func TestRateLimit(t *testing.T) {
	t.Run("超过突发量返回429", func(t *testing.T) {
		r := newRouter(RateLimit(RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstSize: 2}))
		assert.Equal(t, http.StatusOK, get(r, nil))
		assert.Equal(t, http.StatusOK, get(r, nil))
		assert.Equal(t, http.StatusTooManyRequests, get(r, nil))
	})

	t.Run("未启用", func(t *testing.T) {
		r := newRouter(RateLimit(RateLimitConfig{}))
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, get(r, nil))
		}
	})
}
