// Package transport 定义网关与充电桩之间的链路抽象。
package transport

import (
	"context"
	"errors"
)

// ErrNotConnected 链路已断开
var ErrNotConnected = errors.New("transport: not connected")

// Peer 扫描到的设备
type Peer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	RSSI    int    `json:"rssi"`
}

// Link 一条已建立的链路
type Link interface {
	// Write 写一个完整帧；断开后返回 ErrNotConnected
	Write(ctx context.Context, b []byte) error
	// Notifications 通知分片，断开时关闭
	Notifications() <-chan []byte
	Disconnect() error
}

// Transport 建立链路与扫描设备
type Transport interface {
	Connect(ctx context.Context, address string) (Link, error)
	Scan(ctx context.Context) ([]Peer, error)
}

// RSSIReader 可选能力：读取指定地址的信号强度
type RSSIReader interface {
	RSSI(ctx context.Context, address string) (int, error)
}
