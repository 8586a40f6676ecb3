// Package ble 基于 tinygo bluetooth 的充电桩蓝牙链路。
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/taoyao-code/evse-gateway/internal/transport"
)

// NameFilter 充电桩广播名包含的标记
const NameFilter = "ACP#"

var (
	ErrDeviceNotFound   = errors.New("ble: device not found")
	ErrNoCharacteristic = errors.New("ble: characteristic not found")
)

// Board 硬件版本对应的服务与特征值
type Board struct {
	Name     string
	Services []string // 服务 UUID 前缀
	Write    string
	Notify   string
}

// 按检测优先级排列，最后一项为兜底
var boards = []Board{
	{
		Name:     "new",
		Services: []string{"0000ffe5-", "0000ffe0-"},
		Write:    "0000ffe9-0000-1000-8000-00805f9b34fb",
		Notify:   "0000ffe4-0000-1000-8000-00805f9b34fb",
	},
	{
		Name:     "rev",
		Services: []string{"0003cdd0-"},
		Write:    "0003cdd2-0000-1000-8000-00805f9b0131",
		Notify:   "0003cdd1-0000-1000-8000-00805f9b0131",
	},
	{
		Name:     "old",
		Services: []string{"0000fff0-"},
		Write:    "0000fff2-0000-1000-8000-00805f9b34fb",
		Notify:   "0000fff1-0000-1000-8000-00805f9b34fb",
	},
}

// DetectBoard 根据发现的服务 UUID 判断硬件版本，未匹配时按旧版处理
func DetectBoard(serviceUUIDs []string) Board {
	for _, b := range boards[:len(boards)-1] {
		for _, id := range serviceUUIDs {
			for _, prefix := range b.Services {
				if strings.HasPrefix(strings.ToLower(id), prefix) {
					return b
				}
			}
		}
	}
	return boards[len(boards)-1]
}

// Config 蓝牙参数
type Config struct {
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
}

// Transport tinygo bluetooth 实现
type Transport struct {
	adapter *bluetooth.Adapter
	cfg     Config
	log     *zap.Logger

	enableOnce sync.Once
	enableErr  error

	mu     sync.Mutex
	active map[string]*link // address -> 当前链路
}

// New 使用系统默认适配器
func New(cfg Config, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 10 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 65 * time.Second
	}
	t := &Transport{
		adapter: bluetooth.DefaultAdapter,
		cfg:     cfg,
		log:     logger,
		active:  make(map[string]*link),
	}
	return t
}

func (t *Transport) enable() error {
	t.enableOnce.Do(func() {
		t.enableErr = t.adapter.Enable()
		if t.enableErr != nil {
			return
		}
		t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			t.mu.Lock()
			l := t.active[normalize(device.Address.String())]
			t.mu.Unlock()
			if l != nil {
				t.log.Info("ble peer disconnected", zap.String("address", l.address))
				l.close()
			}
		})
	})
	return t.enableErr
}

func normalize(addr string) string { return strings.ToUpper(strings.TrimSpace(addr)) }

// scan 扫描直到 ctx 结束或 stop 返回 true
func (t *Transport) scan(ctx context.Context, fn func(bluetooth.ScanResult) (stop bool)) error {
	if err := t.enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- t.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if fn(r) {
				_ = a.StopScan()
			}
		})
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = t.adapter.StopScan()
		<-done
		return nil
	}
}

// Scan 列出广播名包含 "ACP#" 的充电桩
func (t *Transport) Scan(ctx context.Context) ([]transport.Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ScanTimeout)
	defer cancel()

	seen := make(map[string]transport.Peer)
	var mu sync.Mutex
	err := t.scan(ctx, func(r bluetooth.ScanResult) bool {
		name := r.LocalName()
		if !strings.Contains(name, NameFilter) {
			return false
		}
		mu.Lock()
		seen[r.Address.String()] = transport.Peer{Name: name, Address: r.Address.String(), RSSI: int(r.RSSI)}
		mu.Unlock()
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	peers := make([]transport.Peer, 0, len(seen))
	for _, p := range seen {
		peers = append(peers, p)
	}
	return peers, nil
}

// find 扫描指定地址，返回广播结果
func (t *Transport) find(ctx context.Context, address string) (bluetooth.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ScanTimeout)
	defer cancel()

	var (
		found  bluetooth.ScanResult
		ok     bool
		mu     sync.Mutex
		target = normalize(address)
	)
	err := t.scan(ctx, func(r bluetooth.ScanResult) bool {
		if normalize(r.Address.String()) != target {
			return false
		}
		mu.Lock()
		found, ok = r, true
		mu.Unlock()
		return true
	})
	if err != nil {
		return found, fmt.Errorf("scan: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !ok {
		return found, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
	}
	return found, nil
}

// RSSI 通过一次短扫描读取信号强度
func (t *Transport) RSSI(ctx context.Context, address string) (int, error) {
	r, err := t.find(ctx, address)
	if err != nil {
		return 0, err
	}
	return int(r.RSSI), nil
}

// Connect 扫描目标地址、建立连接、识别硬件版本并订阅通知
func (t *Transport) Connect(ctx context.Context, address string) (transport.Link, error) {
	result, err := t.find(ctx, address)
	if err != nil {
		return nil, err
	}

	type connected struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan connected, 1)
	go func() {
		dev, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		ch <- connected{dev, err}
	}()

	var dev bluetooth.Device
	timer := time.NewTimer(t.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case c := <-ch:
		if c.err != nil {
			return nil, fmt.Errorf("connect %s: %w", address, c.err)
		}
		dev = c.dev
	case <-timer.C:
		go func() {
			// 超时后到达的连接需释放
			if c := <-ch; c.err == nil {
				_ = c.dev.Disconnect()
			}
		}()
		return nil, fmt.Errorf("connect %s: timeout after %s", address, t.cfg.ConnectTimeout)
	case <-ctx.Done():
		go func() {
			if c := <-ch; c.err == nil {
				_ = c.dev.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}

	l, err := t.setup(dev, address)
	if err != nil {
		_ = dev.Disconnect()
		return nil, err
	}
	t.mu.Lock()
	t.active[normalize(address)] = l
	t.mu.Unlock()
	t.log.Info("ble connected",
		zap.String("address", address),
		zap.String("name", result.LocalName()),
		zap.String("board", l.board.Name),
		zap.Int16("rssi", result.RSSI),
	)
	return l, nil
}

func (t *Transport) setup(dev bluetooth.Device, address string) (*link, error) {
	services, err := dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	ids := make([]string, 0, len(services))
	for _, s := range services {
		ids = append(ids, s.UUID().String())
	}
	board := DetectBoard(ids)
	t.log.Debug("ble services", zap.Strings("uuids", ids), zap.String("board", board.Name))

	var writeChar, notifyChar *bluetooth.DeviceCharacteristic
	for _, s := range services {
		chars, err := s.DiscoverCharacteristics(nil)
		if err != nil {
			continue
		}
		for i := range chars {
			switch strings.ToLower(chars[i].UUID().String()) {
			case board.Write:
				writeChar = &chars[i]
			case board.Notify:
				notifyChar = &chars[i]
			}
		}
	}
	if writeChar == nil || notifyChar == nil {
		return nil, fmt.Errorf("%w: board %s", ErrNoCharacteristic, board.Name)
	}

	l := &link{
		address: address,
		board:   board,
		dev:     dev,
		write:   *writeChar,
		notify:  make(chan []byte, 64),
		done:    make(chan struct{}),
		onClose: func(l *link) {
			t.mu.Lock()
			if t.active[normalize(l.address)] == l {
				delete(t.active, normalize(l.address))
			}
			t.mu.Unlock()
		},
	}
	if err := notifyChar.EnableNotifications(l.deliver); err != nil {
		return nil, fmt.Errorf("enable notifications: %w", err)
	}
	return l, nil
}

type link struct {
	address string
	board   Board
	dev     bluetooth.Device
	write   bluetooth.DeviceCharacteristic
	onClose func(*link)

	mu        sync.Mutex
	closed    bool
	notify    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// deliver 通知回调：复制数据后投递，链路关闭后丢弃
func (l *link) deliver(buf []byte) {
	b := append([]byte(nil), buf...)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.notify <- b:
	case <-l.done:
	}
}

func (l *link) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return transport.ErrNotConnected
	}
	if _, err := l.write.WriteWithoutResponse(b); err != nil {
		l.mu.Lock()
		closed = l.closed
		l.mu.Unlock()
		if closed {
			return transport.ErrNotConnected
		}
		return fmt.Errorf("ble write: %w", err)
	}
	return nil
}

func (l *link) Notifications() <-chan []byte { return l.notify }

func (l *link) close() {
	l.closeOnce.Do(func() {
		// 先解除 deliver 的阻塞再关闭通知通道
		close(l.done)
		l.mu.Lock()
		l.closed = true
		close(l.notify)
		l.mu.Unlock()
		if l.onClose != nil {
			l.onClose(l)
		}
	})
}

func (l *link) Disconnect() error {
	l.mu.Lock()
	already := l.closed
	l.mu.Unlock()
	if already {
		return nil
	}
	err := l.dev.Disconnect()
	l.close()
	return err
}
