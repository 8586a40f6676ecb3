package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/gateway"
)

// receiver 模拟接收方，按预设状态码依次应答并校验签名
type receiver struct {
	*httptest.Server
	secret string
	codes  []int
	hits   atomic.Int32

	mu       sync.Mutex
	events   []gateway.Event
	verified []bool
}

func newReceiver(t *testing.T, secret string, codes ...int) *receiver {
	r := &receiver{secret: secret, codes: codes}
	r.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		n := int(r.hits.Add(1))
		body, err := io.ReadAll(req.Body)
		assert.NoError(t, err)

		ts, _ := strconv.ParseInt(req.Header.Get(HeaderTimestamp), 10, 64)
		canonical := Canonical(req.Method, req.URL.Path, ts, req.Header.Get(HeaderNonce), body)
		var ev gateway.Event
		_ = json.Unmarshal(body, &ev)

		r.mu.Lock()
		r.events = append(r.events, ev)
		r.verified = append(r.verified, Verify(r.secret, canonical, req.Header.Get(HeaderSignature)))
		r.mu.Unlock()

		code := http.StatusOK
		if n <= len(r.codes) {
			code = r.codes[n-1]
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(r.Close)
	return r
}

func (r *receiver) received() ([]gateway.Event, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gateway.Event(nil), r.events...), append([]bool(nil), r.verified...)
}

func newSink(t *testing.T, url string, retries int) *Sink {
	t.Helper()
	s, err := New(cfgpkg.WebhookConfig{URL: url, APIKey: "key", Secret: "secret", Timeout: time.Second, Retries: retries}, nil, nil)
	require.NoError(t, err)
	s.Backoff = []time.Duration{time.Millisecond}
	return s
}

func TestNew(t *testing.T) {
	_, err := New(cfgpkg.WebhookConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrNoURL)

	_, err = New(cfgpkg.WebhookConfig{URL: "ftp://example.com/hook"}, nil, nil)
	assert.ErrorContains(t, err, "unsupported scheme")
}

func TestSinkPublish(t *testing.T) {
	ev := gateway.Event{Kind: gateway.KindState, Serial: "ABC123", Topic: gateway.TopicCharge, At: time.Unix(1700000000, 0).UTC()}

	t.Run("签名可被接收方校验", func(t *testing.T) {
		r := newReceiver(t, "secret")
		s := newSink(t, r.URL+"/hooks/evse", 0)
		assert.Equal(t, "webhook", s.Name())

		require.NoError(t, s.Publish(context.Background(), ev))
		events, verified := r.received()
		require.Len(t, events, 1)
		assert.True(t, verified[0])
		assert.Equal(t, "ABC123", events[0].Serial)
		assert.Equal(t, gateway.TopicCharge, events[0].Topic)
	})

	t.Run("5xx重试后成功", func(t *testing.T) {
		r := newReceiver(t, "secret", http.StatusBadGateway, http.StatusServiceUnavailable)
		s := newSink(t, r.URL, 3)
		require.NoError(t, s.Publish(context.Background(), ev))
		assert.EqualValues(t, 3, r.hits.Load())
		// 每次重试的请求体完整且签名有效
		_, verified := r.received()
		assert.Equal(t, []bool{true, true, true}, verified)
	})

	t.Run("4xx不重试", func(t *testing.T) {
		r := newReceiver(t, "secret", http.StatusUnauthorized)
		s := newSink(t, r.URL, 3)
		err := s.Publish(context.Background(), ev)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.Code)
		assert.EqualValues(t, 1, r.hits.Load())
	})

	t.Run("重试耗尽返回最后错误", func(t *testing.T) {
		r := newReceiver(t, "secret", 500, 500, 500)
		s := newSink(t, r.URL, 1)
		err := s.Publish(context.Background(), ev)
		assert.ErrorContains(t, err, "http 500")
		assert.EqualValues(t, 2, r.hits.Load())
	})

	t.Run("取消后停止重试", func(t *testing.T) {
		r := newReceiver(t, "secret", 500, 500, 500)
		s := newSink(t, r.URL, 2)
		s.Backoff = []time.Duration{time.Hour}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, s.Publish(ctx, ev), context.DeadlineExceeded)
		assert.EqualValues(t, 1, r.hits.Load())
	})
}

func TestSign(t *testing.T) {
	c := Canonical("post", "/path", 1700000000, "nonce", []byte(`{}`))
	assert.Contains(t, c, "POST\n/path\n1700000000\nnonce\n")
	sig := Sign("secret", c)
	assert.Len(t, sig, 64)
	assert.True(t, Verify("secret", c, sig))
	assert.False(t, Verify("other", c, sig))
}
