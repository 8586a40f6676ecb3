// Package transporttest 提供内存版 Transport，用于无蓝牙环境下的测试。
package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/taoyao-code/evse-gateway/internal/transport"
)

// Link 内存链路：记录写入的帧，测试通过 Push 注入通知
type Link struct {
	mu       sync.Mutex
	writes   [][]byte
	notify   chan []byte
	closed   bool
	writeErr error
	onWrite  func(b []byte)
}

// NewLink 创建内存链路
func NewLink() *Link {
	return &Link{notify: make(chan []byte, 64)}
}

func (l *Link) Write(_ context.Context, b []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return transport.ErrNotConnected
	}
	if l.writeErr != nil {
		err := l.writeErr
		l.mu.Unlock()
		return err
	}
	l.writes = append(l.writes, append([]byte(nil), b...))
	hook := l.onWrite
	l.mu.Unlock()
	if hook != nil {
		hook(b)
	}
	return nil
}

func (l *Link) Notifications() <-chan []byte { return l.notify }

func (l *Link) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.notify)
	}
	return nil
}

// Push 注入一个通知分片；链路已关闭时忽略
func (l *Link) Push(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.notify <- append([]byte(nil), b...)
}

// Drop 模拟对端断开：关闭通知通道，后续写入返回 ErrNotConnected
func (l *Link) Drop() { _ = l.Disconnect() }

// Closed 链路是否已关闭
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// FailWrites 让后续写入返回 err（nil 恢复）
func (l *Link) FailWrites(err error) {
	l.mu.Lock()
	l.writeErr = err
	l.mu.Unlock()
}

// OnWrite 写入成功后回调，可用于模拟设备应答
func (l *Link) OnWrite(fn func(b []byte)) {
	l.mu.Lock()
	l.onWrite = fn
	l.mu.Unlock()
}

// Writes 已写入帧的副本
func (l *Link) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.writes))
	copy(out, l.writes)
	return out
}

// ErrUnreachable 模拟连接失败
var ErrUnreachable = errors.New("transporttest: unreachable")

// Transport 按顺序返回预置链路；Fail 次数内的连接直接失败
type Transport struct {
	mu       sync.Mutex
	Links    []*Link
	Fail     int
	Peers    []transport.Peer
	Signal   int
	attempts int
	next     int
}

func (t *Transport) Connect(ctx context.Context, _ string) (transport.Link, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.attempts++
	if t.Fail > 0 {
		t.Fail--
		return nil, ErrUnreachable
	}
	if t.next >= len(t.Links) {
		return nil, ErrUnreachable
	}
	l := t.Links[t.next]
	t.next++
	return l, nil
}

func (t *Transport) Scan(context.Context) ([]transport.Peer, error) {
	return t.Peers, nil
}

func (t *Transport) RSSI(context.Context, string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Signal, nil
}

// Attempts 连接尝试次数
func (t *Transport) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}
