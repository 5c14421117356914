package policy

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"memokit/pkg/core"
	"memokit/pkg/logger"
)

// BoundedStorage 将一个淘汰策略与任意存储后端组合成有界存储。
//
// 策略记账与后端变更在同一个互斥域内完成，是一个逻辑步骤：
// 其他操作不可能观察到"策略认为存在而后端已删除"（或相反）的中间状态，
// 也不会出现读者命中已被策略判死的条目（幽灵命中）。
type BoundedStorage struct {
	mu      sync.Mutex
	backend core.Storage
	policy  EvictionPolicy
	log     *logrus.Entry
}

// Bound 用策略包装一个后端。
func Bound(backend core.Storage, p EvictionPolicy) *BoundedStorage {
	return &BoundedStorage{
		backend: backend,
		policy:  p,
		log:     logger.WithComponent("bounded_storage"),
	}
}

// Get 获取条目。若策略判定条目已过期，则当场从后端删除并返回未命中
// （TTL 的惰性检查）。命中时通知策略 Touch。
func (bs *BoundedStorage) Get(ctx context.Context, key core.CacheKey) (interface{}, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	now := time.Now()
	if bs.policy.Expired(key, now) {
		bs.backend.Evict(ctx, key)
		bs.policy.OnRemove(key)
		return nil, core.NewMiss(key)
	}

	value, err := bs.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	bs.policy.Touch(key, now)
	return value, nil
}

// Put 写入条目并立即执行策略评估，超额或过期的条目被同步淘汰。
func (bs *BoundedStorage) Put(ctx context.Context, key core.CacheKey, value interface{}) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if err := bs.backend.Put(ctx, key, value); err != nil {
		return err
	}

	now := time.Now()
	bs.policy.OnAdd(key, now)

	for _, victim := range bs.policy.SelectVictims(now) {
		bs.backend.Evict(ctx, victim)
		bs.policy.OnRemove(victim)
		bs.log.WithField("key", victim.String()).Debug("条目已被策略淘汰")
	}
	return nil
}

// Contains 判断键是否存在，已过期的条目按不存在处理并当场清除。
func (bs *BoundedStorage) Contains(ctx context.Context, key core.CacheKey) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.policy.Expired(key, time.Now()) {
		bs.backend.Evict(ctx, key)
		bs.policy.OnRemove(key)
		return false
	}
	return bs.backend.Contains(ctx, key)
}

// Evict 删除一个键并同步更新策略记账。
func (bs *BoundedStorage) Evict(ctx context.Context, key core.CacheKey) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	removed := bs.backend.Evict(ctx, key)
	if removed {
		bs.policy.OnRemove(key)
	}
	return removed
}

// Clear 清空后端并重置策略状态。
func (bs *BoundedStorage) Clear(ctx context.Context) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if err := bs.backend.Clear(ctx); err != nil {
		return err
	}
	bs.policy.Reset()
	return nil
}

// Sweep 主动执行一轮策略评估，淘汰所有当前应被淘汰的条目。
// 返回淘汰的条目数。供周期性清理任务调用。
func (bs *BoundedStorage) Sweep(ctx context.Context) int {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	removed := 0
	for _, victim := range bs.policy.SelectVictims(time.Now()) {
		if bs.backend.Evict(ctx, victim) {
			removed++
		}
		bs.policy.OnRemove(victim)
	}
	return removed
}

// Stats 返回后端的统计信息。
func (bs *BoundedStorage) Stats() core.CacheStats {
	stats := bs.backend.Stats()
	if lru, ok := bs.policy.(*LRUPolicy); ok {
		stats.MaxSize = int64(lru.Capacity())
	}
	return stats
}

// Close 关闭底层后端。
func (bs *BoundedStorage) Close() error {
	return bs.backend.Close()
}

var _ core.Storage = (*BoundedStorage)(nil)
