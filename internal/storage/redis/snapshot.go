package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/evse-gateway/internal/gateway"
)

// kv SnapshotStore 依赖的最小命令集
type kv interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// SnapshotStore 以 {prefix}:{serial}:{topic} 保存每个主题的最新记录
type SnapshotStore struct {
	rdb    kv
	prefix string
	ttl    time.Duration
}

// NewSnapshotStore ttl 为 0 表示不过期
func NewSnapshotStore(rdb kv, prefix string, ttl time.Duration) *SnapshotStore {
	if prefix == "" {
		prefix = "evse"
	}
	return &SnapshotStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *SnapshotStore) key(serial, topic string) string {
	return s.prefix + ":" + serial + ":" + topic
}

// SaveState 保存主题记录（JSON）
func (s *SnapshotStore) SaveState(ctx context.Context, serial, topic string, snapshot any) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := s.key(serial, topic)
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SaveAvailability 保存 online/offline
func (s *SnapshotStore) SaveAvailability(ctx context.Context, serial string, online bool) error {
	state := "offline"
	if online {
		state = "online"
	}
	key := s.key(serial, "availability")
	if err := s.rdb.Set(ctx, key, state, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// LoadState 读取主题记录到 dst；不存在时返回 false
func (s *SnapshotStore) LoadState(ctx context.Context, serial, topic string, dst any) (bool, error) {
	data, err := s.rdb.Get(ctx, s.key(serial, topic)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return true, nil
}

func (s *SnapshotStore) Name() string { return "redis" }

// Publish 实现 gateway.Sink
func (s *SnapshotStore) Publish(ctx context.Context, ev gateway.Event) error {
	switch ev.Kind {
	case gateway.KindState:
		return s.SaveState(ctx, ev.Serial, ev.Topic, ev.Payload)
	case gateway.KindIdentity:
		return s.SaveState(ctx, ev.Serial, "info", ev.Payload)
	case gateway.KindCharge:
		return s.SaveState(ctx, ev.Serial, "event:"+strconv.Itoa(int(ev.Cmd)), ev.Payload)
	case gateway.KindAvailability:
		return s.SaveAvailability(ctx, ev.Serial, ev.Online)
	}
	return nil
}
