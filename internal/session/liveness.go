package session

import (
	"sync"
	"time"
)

// Liveness 记录最近一次解码成功的帧时间，超过 timeout 视为链路失活
type Liveness struct {
	mu      sync.RWMutex
	last    time.Time
	timeout time.Duration
	now     func() time.Time
}

// NewLiveness now 为空时使用 time.Now
func NewLiveness(timeout time.Duration, now func() time.Time) *Liveness {
	if timeout <= 0 {
		timeout = 35 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Liveness{timeout: timeout, now: now}
}

// Touch 收到有效帧
func (l *Liveness) Touch() {
	t := l.now()
	l.mu.Lock()
	l.last = t
	l.mu.Unlock()
}

// Last 最近一次有效帧时间
func (l *Liveness) Last() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Age 距最近一次有效帧的时长；从未收到时返回 0
func (l *Liveness) Age(now time.Time) time.Duration {
	last := l.Last()
	if last.IsZero() {
		return 0
	}
	return now.Sub(last)
}

// Expired 超时判断。会话开始时应先 Touch，否则永不过期。
func (l *Liveness) Expired(now time.Time) bool {
	last := l.Last()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) > l.timeout
}

// Timeout 配置的超时时长
func (l *Liveness) Timeout() time.Duration { return l.timeout }
