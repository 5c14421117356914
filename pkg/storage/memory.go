// Package storage 提供了 core.Storage 的各种后端实现：
// 进程内内存存储、分片内存存储、磁盘文件存储、Redis 远程存储和分层存储。
package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"memokit/pkg/core"
)

// MemoryStorage 线程安全的进程内存储实现。
// 所有操作的期望复杂度为 O(1)，进程重启后数据不保留。
//
// 值以共享引用的形式返回，调用方不得在 Put 之后修改取回的值；
// 需要修改时应通过再次 Put 完成。
type MemoryStorage struct {
	mu        sync.RWMutex
	entries   map[core.CacheKey]*core.CacheEntry
	hitCount  int64
	missCount int64
	closed    bool
}

// NewMemoryStorage 创建新的内存存储。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[core.CacheKey]*core.CacheEntry),
	}
}

// Get 获取存储的值。
func (ms *MemoryStorage) Get(ctx context.Context, key core.CacheKey) (interface{}, error) {
	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return nil, core.NewError(core.ErrResourceClosed, "storage is closed")
	}
	entry, exists := ms.entries[key]
	if !exists {
		ms.mu.Unlock()
		atomic.AddInt64(&ms.missCount, 1)
		return nil, core.NewMiss(key)
	}

	// 更新访问信息
	entry.AccessTime = time.Now()
	entry.HitCount++
	ms.mu.Unlock()

	atomic.AddInt64(&ms.hitCount, 1)
	return entry.Value, nil
}

// Put 写入一个键值对，覆盖同键的已有条目。
func (ms *MemoryStorage) Put(ctx context.Context, key core.CacheKey, value interface{}) error {
	now := time.Now()
	entry := &core.CacheEntry{
		Key:        key,
		Value:      value,
		CreateTime: now,
		AccessTime: now,
		Size:       core.EstimateSize(value),
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return core.NewError(core.ErrResourceClosed, "storage is closed")
	}
	ms.entries[key] = entry
	return nil
}

// Contains 判断键是否存在。
func (ms *MemoryStorage) Contains(ctx context.Context, key core.CacheKey) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, exists := ms.entries[key]
	return exists
}

// Evict 删除一个键，返回是否确实删除了条目。
func (ms *MemoryStorage) Evict(ctx context.Context, key core.CacheKey) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.entries[key]; !exists {
		return false
	}
	delete(ms.entries, key)
	return true
}

// Clear 清空存储。
func (ms *MemoryStorage) Clear(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.entries = make(map[core.CacheKey]*core.CacheEntry)
	atomic.StoreInt64(&ms.hitCount, 0)
	atomic.StoreInt64(&ms.missCount, 0)
	return nil
}

// Stats 获取存储统计信息。
func (ms *MemoryStorage) Stats() core.CacheStats {
	ms.mu.RLock()
	size := int64(len(ms.entries))
	ms.mu.RUnlock()

	hitCount := atomic.LoadInt64(&ms.hitCount)
	missCount := atomic.LoadInt64(&ms.missCount)

	var hitRate float64
	if total := hitCount + missCount; total > 0 {
		hitRate = float64(hitCount) / float64(total)
	}

	return core.CacheStats{
		Size:      size,
		HitCount:  hitCount,
		MissCount: missCount,
		HitRate:   hitRate,
	}
}

// Close 关闭存储。
func (ms *MemoryStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closed = true
	ms.entries = nil
	return nil
}

var _ core.Storage = (*MemoryStorage)(nil)
