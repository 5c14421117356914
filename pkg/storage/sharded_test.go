package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"memokit/pkg/core"
)

// 测试分片存储的基本操作
func TestShardedMemoryStorage_BasicOperations(t *testing.T) {
	ss := NewShardedMemoryStorage(8)
	defer ss.Close()

	ctx := context.Background()

	for i := 0; i < 100; i++ {
		key := core.CacheKey(fmt.Sprintf("key%d", i))
		assert.NoError(t, ss.Put(ctx, key, i))
	}

	for i := 0; i < 100; i++ {
		key := core.CacheKey(fmt.Sprintf("key%d", i))
		value, err := ss.Get(ctx, key)
		assert.NoError(t, err)
		assert.Equal(t, i, value)
	}

	assert.Equal(t, int64(100), ss.Stats().Size)

	// 键分散到了多个分片
	populated := 0
	for _, shard := range ss.shards {
		if shard.Stats().Size > 0 {
			populated++
		}
	}
	assert.Greater(t, populated, 1, "键应分散到多个分片")
}

// TestShardedMemoryStorage_EvictAndClear 删除和清空作用于正确的分片
func TestShardedMemoryStorage_EvictAndClear(t *testing.T) {
	ss := NewShardedMemoryStorage(4)
	defer ss.Close()

	ctx := context.Background()
	key := core.CacheKey("target")

	assert.NoError(t, ss.Put(ctx, key, "v"))
	assert.True(t, ss.Contains(ctx, key))
	assert.True(t, ss.Evict(ctx, key))
	assert.False(t, ss.Contains(ctx, key))

	for i := 0; i < 20; i++ {
		assert.NoError(t, ss.Put(ctx, core.CacheKey(fmt.Sprintf("key%d", i)), i))
	}
	assert.NoError(t, ss.Clear(ctx))
	assert.Equal(t, int64(0), ss.Stats().Size)
}

// 默认分片数兜底
func TestShardedMemoryStorage_DefaultCount(t *testing.T) {
	ss := NewShardedMemoryStorage(0)
	defer ss.Close()
	assert.Len(t, ss.shards, DefaultShardCount)
}

// TestShardedMemoryStorage_Concurrent 并发访问不同键互不干扰
func TestShardedMemoryStorage_Concurrent(t *testing.T) {
	ss := NewShardedMemoryStorage(16)
	defer ss.Close()

	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := core.CacheKey(fmt.Sprintf("key%d", n))
			_ = ss.Put(ctx, key, n)
			value, err := ss.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, n, value)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(100), ss.Stats().Size)
}
