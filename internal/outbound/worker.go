package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/evse-gateway/internal/metrics"
	"github.com/taoyao-code/evse-gateway/internal/transport"
)

// Worker 单线程消费下行队列，按 FIFO 写入当前链路
type Worker struct {
	Queue *Queue
	// Link 返回当前活动链路（重连后会被替换）
	Link func() transport.Link
	// Reconnect 链路断开时在同一代会话内重连；返回错误视为致命
	Reconnect      func(ctx context.Context) error
	Limiter        *rate.Limiter
	ReconnectPause time.Duration
	Sleep          func(ctx context.Context, d time.Duration) error
	Logger         *zap.Logger
	Metrics        *metrics.GatewayMetrics
}

// NewWorker interval 为两次写入的最小间隔，0 表示不限速
func NewWorker(q *Queue, link func() transport.Link, interval time.Duration) *Worker {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Worker{
		Queue:          q,
		Link:           link,
		Limiter:        rate.NewLimiter(limit, 1),
		ReconnectPause: time.Second,
		Sleep:          sleepCtx,
		Logger:         zap.NewNop(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 消费 gen 代的指令，直到 ctx 结束（返回 nil）或重连失败（返回错误）
func (w *Worker) Run(ctx context.Context, gen uint64) error {
	for {
		cmd, err := w.Queue.Get(ctx)
		if err != nil {
			return nil
		}
		if cmd.Gen != gen {
			w.Logger.Debug("drop stale command", zap.Stringer("cmd", cmd), zap.Uint64("gen", gen))
			continue
		}
		if err := w.Limiter.Wait(ctx); err != nil {
			return nil
		}
		if err := w.send(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// send 写入一条指令；链路断开时暂停、重连并重试同一条指令
func (w *Worker) send(ctx context.Context, cmd Command) error {
	for {
		link := w.Link()
		var err error
		if link == nil {
			err = transport.ErrNotConnected
		} else {
			err = link.Write(ctx, cmd.Frame)
		}
		if err == nil {
			w.Logger.Debug("command sent", zap.Stringer("cmd", cmd), zap.Binary("frame", cmd.Frame))
			if w.Metrics != nil {
				w.Metrics.CommandsSent.WithLabelValues(cmd.Name).Inc()
			}
			return nil
		}
		if w.Metrics != nil {
			w.Metrics.CommandWriteErrors.Inc()
		}
		if !errors.Is(err, transport.ErrNotConnected) {
			// 非断链错误：记录后丢弃该指令
			w.Logger.Warn("command write failed", zap.Stringer("cmd", cmd), zap.Error(err))
			return nil
		}

		w.Logger.Warn("link down while writing, reconnecting", zap.Stringer("cmd", cmd))
		if err := w.Sleep(ctx, w.ReconnectPause); err != nil {
			return err
		}
		if w.Reconnect == nil {
			return fmt.Errorf("write %s: %w", cmd, err)
		}
		if err := w.Reconnect(ctx); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
	}
}
