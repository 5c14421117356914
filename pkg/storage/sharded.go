package storage

import (
	"context"

	"memokit/pkg/core"
)

// DefaultShardCount 分片内存存储的默认分片数。
const DefaultShardCount = 16

// ShardedMemoryStorage 分片内存存储。
// 按键的 64 位哈希将条目分散到多个独立加锁的内存分片中，
// 降低高并发场景下无关键之间的锁竞争。
type ShardedMemoryStorage struct {
	shards []*MemoryStorage
}

// NewShardedMemoryStorage 创建分片内存存储。count <= 0 时使用默认分片数。
func NewShardedMemoryStorage(count int) *ShardedMemoryStorage {
	if count <= 0 {
		count = DefaultShardCount
	}
	shards := make([]*MemoryStorage, count)
	for i := range shards {
		shards[i] = NewMemoryStorage()
	}
	return &ShardedMemoryStorage{shards: shards}
}

// shard 返回键归属的分片。
func (ss *ShardedMemoryStorage) shard(key core.CacheKey) *MemoryStorage {
	return ss.shards[key.Shard(len(ss.shards))]
}

// Get 获取存储的值。
func (ss *ShardedMemoryStorage) Get(ctx context.Context, key core.CacheKey) (interface{}, error) {
	return ss.shard(key).Get(ctx, key)
}

// Put 写入一个键值对。
func (ss *ShardedMemoryStorage) Put(ctx context.Context, key core.CacheKey, value interface{}) error {
	return ss.shard(key).Put(ctx, key, value)
}

// Contains 判断键是否存在。
func (ss *ShardedMemoryStorage) Contains(ctx context.Context, key core.CacheKey) bool {
	return ss.shard(key).Contains(ctx, key)
}

// Evict 删除一个键。
func (ss *ShardedMemoryStorage) Evict(ctx context.Context, key core.CacheKey) bool {
	return ss.shard(key).Evict(ctx, key)
}

// Clear 清空所有分片。
func (ss *ShardedMemoryStorage) Clear(ctx context.Context) error {
	for _, shard := range ss.shards {
		if err := shard.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stats 聚合所有分片的统计信息。
func (ss *ShardedMemoryStorage) Stats() core.CacheStats {
	var agg core.CacheStats
	for _, shard := range ss.shards {
		stats := shard.Stats()
		agg.Size += stats.Size
		agg.HitCount += stats.HitCount
		agg.MissCount += stats.MissCount
	}
	if total := agg.HitCount + agg.MissCount; total > 0 {
		agg.HitRate = float64(agg.HitCount) / float64(total)
	}
	return agg
}

// Close 关闭所有分片。
func (ss *ShardedMemoryStorage) Close() error {
	for _, shard := range ss.shards {
		if err := shard.Close(); err != nil {
			return err
		}
	}
	return nil
}

var _ core.Storage = (*ShardedMemoryStorage)(nil)
