// Package core 定义了 memokit 的基础数据模型：缓存键、缓存条目、
// 存储后端接口以及统一的错误类型。
package core

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
)

// CacheKey 是由 KeyCodec 派生出的稳定缓存键，形式为摘要的小写十六进制串。
// 键是不可变、可比较、可全序排序的；两次参数相等的调用必然产生相等的键。
type CacheKey string

// String 返回键的字符串形式。
func (k CacheKey) String() string {
	return string(k)
}

// Shard 返回键在 n 个分片中的归属下标，用于分片存储和锁分域。
func (k CacheKey) Shard(n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(string(k)) % uint64(n))
}

// CacheEntry 代表存储后端中的一个条目。
// 值在 Put 返回后归存储所有；调用方拿到的要么是副本，要么是不应被修改的共享引用。
type CacheEntry struct {
	Key        CacheKey    // 缓存键
	Value      interface{} // 缓存的值
	CreateTime time.Time   // 创建时间
	AccessTime time.Time   // 最后访问时间
	HitCount   int64       // 命中次数
	Size       int64       // 条目大小（字节，估算值）
}

// CacheStats 包含了存储后端的详细统计信息。
type CacheStats struct {
	Size        int64     `json:"size"`         // 当前存储中的条目数
	MaxSize     int64     `json:"max_size"`     // 配置的最大容量（0 表示不限制）
	HitCount    int64     `json:"hit_count"`    // 命中次数
	MissCount   int64     `json:"miss_count"`   // 未命中次数
	HitRate     float64   `json:"hit_rate"`     // 命中率 (HitCount / (HitCount + MissCount))
	LastCleanup time.Time `json:"last_cleanup"` // 最后一次清理操作的时间
}

// Storage 定义了所有存储后端都必须遵循的通用接口。
// 未命中通过带 ErrCacheMiss 代码的错误表达，是一等结果而非故障；
// 后端不可达必须以 ErrStorageUnavailable 与未命中区分开。
type Storage interface {
	// Get 根据键从存储中检索一个值。键不存在时返回 ErrCacheMiss。
	Get(ctx context.Context, key CacheKey) (interface{}, error)
	// Put 将一个键值对写入存储，覆盖同键的已有条目。写入是原子的：
	// 并发的 Get 要么看到旧值，要么看到新值，绝不会看到部分写入。
	Put(ctx context.Context, key CacheKey, value interface{}) error
	// Contains 判断键是否存在。在没有并发修改的前提下与随后的 Get 一致。
	Contains(ctx context.Context, key CacheKey) bool
	// Evict 从存储中删除一个键，返回是否确实删除了条目。
	Evict(ctx context.Context, key CacheKey) bool
	// Clear 清空存储中的所有条目。
	Clear(ctx context.Context) error
	// Stats 返回当前存储的统计信息。
	Stats() CacheStats
	// Close 释放存储持有的资源。
	Close() error
}

// EstimateSize 估算值的大小（简单实现）。
func EstimateSize(value interface{}) int64 {
	switch v := value.(type) {
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	default:
		return 64 // 默认大小
	}
}
