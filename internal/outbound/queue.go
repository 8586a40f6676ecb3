package outbound

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
)

var (
	ErrQueueFull       = errors.New("outbound: queue full")
	ErrStaleGeneration = errors.New("outbound: stale generation")
)

// Command 一条已编码的下行指令，Gen 为创建它的会话代数
type Command struct {
	Gen        uint64
	Op         uint16
	Name       string
	Frame      []byte
	EnqueuedAt time.Time
}

// NewCommand 按设备序列号与密码编码请求
func NewCommand(gen uint64, req evse.Request, serial uint64, password [evse.PasswordLen]byte) Command {
	return Command{
		Gen:        gen,
		Op:         req.Op,
		Name:       req.Name,
		Frame:      req.Encode(serial, password),
		EnqueuedAt: time.Now(),
	}
}

func (c Command) String() string {
	return fmt.Sprintf("%s(%d)#%d", c.Name, c.Op, c.Gen)
}

// Queue 有界 FIFO 下行队列
type Queue struct {
	ch       chan Command
	failFast bool
	gen      atomic.Uint64

	// Depth 可选：队列深度指标
	Depth prometheus.Gauge
}

// NewQueue size<=0 时按 5 处理
func NewQueue(size int, failFast bool) *Queue {
	if size <= 0 {
		size = 5
	}
	return &Queue{ch: make(chan Command, size), failFast: failFast}
}

// Put 入队。failFast 时队列满立即返回 ErrQueueFull，否则阻塞直到有空位或 ctx 结束。
func (q *Queue) Put(ctx context.Context, cmd Command) error {
	if cmd.Gen != q.Generation() {
		return ErrStaleGeneration
	}
	if q.failFast {
		select {
		case q.ch <- cmd:
			q.observe()
			return nil
		default:
			return ErrQueueFull
		}
	}
	select {
	case q.ch <- cmd:
		q.observe()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get 阻塞取出下一条指令
func (q *Queue) Get(ctx context.Context) (Command, error) {
	select {
	case cmd := <-q.ch:
		q.observe()
		return cmd, nil
	case <-ctx.Done():
		return Command{}, ctx.Err()
	}
}

// Reset 开始新一代会话并丢弃队列中的指令，返回新代数
func (q *Queue) Reset() uint64 {
	gen := q.gen.Add(1)
	for {
		select {
		case <-q.ch:
		default:
			q.observe()
			return gen
		}
	}
}

// Generation 当前代数
func (q *Queue) Generation() uint64 { return q.gen.Load() }

// Len 当前深度
func (q *Queue) Len() int { return len(q.ch) }

// Cap 容量
func (q *Queue) Cap() int { return cap(q.ch) }

func (q *Queue) observe() {
	if q.Depth != nil {
		q.Depth.Set(float64(len(q.ch)))
	}
}
