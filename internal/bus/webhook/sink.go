// Package webhook 把网关事件以签名 JSON POST 到外部 HTTP 地址。
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/gateway"
)

// ErrNoURL 启用了 webhook 但未配置地址
var ErrNoURL = errors.New("webhook: url is required")

// StatusError 接收方返回非 2xx
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: http %d: %s", e.Code, e.Body)
}

// Sink webhook 事件下游
type Sink struct {
	client   *http.Client
	endpoint string
	path     string
	apiKey   string
	secret   string
	log      *zap.Logger

	// Retries 5xx 与网络错误的重试次数
	Retries int
	// Backoff 第 i 次重试前的等待，超出长度时取最后一个
	Backoff []time.Duration

	now func() time.Time
}

// New 校验地址并创建下游；client 为 nil 时按 cfg.Timeout 新建
func New(cfg cfgpkg.WebhookConfig, client *http.Client, logger *zap.Logger) (*Sink, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("webhook: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook: unsupported scheme %q", u.Scheme)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		client:   client,
		endpoint: cfg.URL,
		path:     u.Path,
		apiKey:   cfg.APIKey,
		secret:   cfg.Secret,
		log:      logger,
		Retries:  cfg.Retries,
		Backoff:  []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second},
		now:      time.Now,
	}, nil
}

func (s *Sink) Name() string { return "webhook" }

// Publish 实现 gateway.Sink。4xx 不重试。
func (s *Sink) Publish(ctx context.Context, ev gateway.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.Retries; attempt++ {
		if attempt > 0 {
			wait := s.Backoff[min(attempt-1, len(s.Backoff)-1)]
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		lastErr = s.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && se.Code < 500 {
			return lastErr
		}
		s.log.Debug("webhook delivery failed",
			zap.String("event_id", ev.ID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return lastErr
}

func (s *Sink) post(ctx context.Context, body []byte) error {
	ts := s.now().Unix()
	nonce := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderNonce, nonce)
	if s.apiKey != "" {
		req.Header.Set(HeaderAPIKey, s.apiKey)
	}
	if s.secret != "" {
		req.Header.Set(HeaderSignature, Sign(s.secret, Canonical(http.MethodPost, s.path, ts, nonce, body)))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
