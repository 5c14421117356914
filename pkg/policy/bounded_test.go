package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"memokit/pkg/core"
	"memokit/pkg/storage"
)

// TestBoundedStorage_LRUEviction 容量为 2 时依次写入 A、B、C，A 被淘汰：
// 随后 Get(A) 未命中，Get(B)、Get(C) 命中。
func TestBoundedStorage_LRUEviction(t *testing.T) {
	bs := Bound(storage.NewMemoryStorage(), NewLRUPolicy(2))
	defer bs.Close()

	ctx := context.Background()

	assert.NoError(t, bs.Put(ctx, core.CacheKey("A"), "a"))
	assert.NoError(t, bs.Put(ctx, core.CacheKey("B"), "b"))
	assert.NoError(t, bs.Put(ctx, core.CacheKey("C"), "c"))

	_, err := bs.Get(ctx, core.CacheKey("A"))
	assert.True(t, core.IsMiss(err))

	value, err := bs.Get(ctx, core.CacheKey("B"))
	assert.NoError(t, err)
	assert.Equal(t, "b", value)

	value, err = bs.Get(ctx, core.CacheKey("C"))
	assert.NoError(t, err)
	assert.Equal(t, "c", value)

	assert.Equal(t, int64(2), bs.Stats().Size)
	assert.Equal(t, int64(2), bs.Stats().MaxSize)
}

// 访问改变 LRU 淘汰顺序
func TestBoundedStorage_LRUAccessOrder(t *testing.T) {
	bs := Bound(storage.NewMemoryStorage(), NewLRUPolicy(2))
	defer bs.Close()

	ctx := context.Background()

	assert.NoError(t, bs.Put(ctx, core.CacheKey("A"), "a"))
	assert.NoError(t, bs.Put(ctx, core.CacheKey("B"), "b"))

	// 访问 A 之后，B 成为最久未使用
	_, err := bs.Get(ctx, core.CacheKey("A"))
	assert.NoError(t, err)

	assert.NoError(t, bs.Put(ctx, core.CacheKey("C"), "c"))

	assert.True(t, bs.Contains(ctx, core.CacheKey("A")))
	assert.False(t, bs.Contains(ctx, core.CacheKey("B")))
}

// TestBoundedStorage_TTLLazyEviction 过期条目在 Get 时被当场清除
func TestBoundedStorage_TTLLazyEviction(t *testing.T) {
	backend := storage.NewMemoryStorage()
	bs := Bound(backend, NewTTLPolicy(50*time.Millisecond))
	defer bs.Close()

	ctx := context.Background()
	key := core.CacheKey("k")

	assert.NoError(t, bs.Put(ctx, key, "v"))

	value, err := bs.Get(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, "v", value)

	time.Sleep(60 * time.Millisecond)

	// 惰性检查：过期条目按未命中处理，且已从后端删除
	_, err = bs.Get(ctx, key)
	assert.True(t, core.IsMiss(err))
	assert.False(t, backend.Contains(ctx, key), "过期条目应已从后端删除")
}

// Contains 对过期条目同样返回 false
func TestBoundedStorage_TTLContains(t *testing.T) {
	bs := Bound(storage.NewMemoryStorage(), NewTTLPolicy(50*time.Millisecond))
	defer bs.Close()

	ctx := context.Background()
	key := core.CacheKey("k")

	assert.NoError(t, bs.Put(ctx, key, "v"))
	assert.True(t, bs.Contains(ctx, key))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, bs.Contains(ctx, key))
}

// TestBoundedStorage_Sweep 主动清理批量淘汰过期条目
func TestBoundedStorage_Sweep(t *testing.T) {
	bs := Bound(storage.NewMemoryStorage(), NewTTLPolicy(30*time.Millisecond))
	defer bs.Close()

	ctx := context.Background()

	assert.NoError(t, bs.Put(ctx, core.CacheKey("a"), 1))
	assert.NoError(t, bs.Put(ctx, core.CacheKey("b"), 2))

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 2, bs.Sweep(ctx))
	assert.Equal(t, int64(0), bs.Stats().Size)
}

// TestBoundedStorage_CompositeEviction 容量和 TTL 独立评估，任一触发即淘汰
func TestBoundedStorage_CompositeEviction(t *testing.T) {
	cp := NewCompositePolicy(NewLRUPolicy(10), NewTTLPolicy(50*time.Millisecond))
	bs := Bound(storage.NewMemoryStorage(), cp)
	defer bs.Close()

	ctx := context.Background()

	assert.NoError(t, bs.Put(ctx, core.CacheKey("short"), "v"))
	time.Sleep(60 * time.Millisecond)

	// 容量远未用尽，但 TTL 已触发
	_, err := bs.Get(ctx, core.CacheKey("short"))
	assert.True(t, core.IsMiss(err))
}

// Clear 同时清空后端和策略记账
func TestBoundedStorage_Clear(t *testing.T) {
	bs := Bound(storage.NewMemoryStorage(), NewLRUPolicy(2))
	defer bs.Close()

	ctx := context.Background()
	assert.NoError(t, bs.Put(ctx, core.CacheKey("A"), "a"))
	assert.NoError(t, bs.Clear(ctx))
	assert.Equal(t, int64(0), bs.Stats().Size)

	// 清空后重新写满容量不会误淘汰
	assert.NoError(t, bs.Put(ctx, core.CacheKey("B"), "b"))
	assert.NoError(t, bs.Put(ctx, core.CacheKey("C"), "c"))
	assert.True(t, bs.Contains(ctx, core.CacheKey("B")))
	assert.True(t, bs.Contains(ctx, core.CacheKey("C")))
}

// Evict 同步更新策略记账
func TestBoundedStorage_EvictUpdatesPolicy(t *testing.T) {
	bs := Bound(storage.NewMemoryStorage(), NewLRUPolicy(2))
	defer bs.Close()

	ctx := context.Background()
	assert.NoError(t, bs.Put(ctx, core.CacheKey("A"), "a"))
	assert.NoError(t, bs.Put(ctx, core.CacheKey("B"), "b"))

	assert.True(t, bs.Evict(ctx, core.CacheKey("A")))

	// A 已出账，写入 C 不应触发淘汰
	assert.NoError(t, bs.Put(ctx, core.CacheKey("C"), "c"))
	assert.True(t, bs.Contains(ctx, core.CacheKey("B")))
	assert.True(t, bs.Contains(ctx, core.CacheKey("C")))
}
