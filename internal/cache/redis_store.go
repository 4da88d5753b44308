package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisBedCache 基于 Redis 的床位缓存
// 接收端与监护端作为独立进程运行时共享同一份缓存：
// 单个 hash 键，field 为床位号，value 为 BedState JSON
type RedisBedCache struct {
	client *redis.Client
	key    string
}

// NewRedisBedCache 创建 Redis 床位缓存
func NewRedisBedCache(client *redis.Client, key string) *RedisBedCache {
	if key == "" {
		key = "dm:beds"
	}
	return &RedisBedCache{client: client, key: key}
}

var _ BedCache = (*RedisBedCache)(nil)

// Update 覆盖指定床位的最新状态
func (c *RedisBedCache) Update(ctx context.Context, state BedState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal bed state: %w", err)
	}
	if err := c.client.HSet(ctx, c.key, state.BedID, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to set bed cache: %w", err)
	}
	return nil
}

// Snapshot 返回全部床位的一致性快照（HGETALL 单命令读取，不会观察到撕裂写入）
func (c *RedisBedCache) Snapshot(ctx context.Context) (map[string]BedState, error) {
	values, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read bed cache: %w", err)
	}

	snapshot := make(map[string]BedState, len(values))
	for bedID, raw := range values {
		var state BedState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bed state for %s: %w", bedID, err)
		}
		snapshot[bedID] = state
	}
	return snapshot, nil
}
