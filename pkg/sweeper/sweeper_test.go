package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"memokit/pkg/core"
	"memokit/pkg/storage"
)

// TestSweeper_RunOnce 立即清理过期条目
func TestSweeper_RunOnce(t *testing.T) {
	fs, err := storage.NewFileStorage(storage.FileStorageConfig{Dir: t.TempDir()})
	assert.NoError(t, err)
	defer fs.Close()

	ctx := context.Background()
	assert.NoError(t, fs.Put(ctx, core.CacheKey("fresh"), 1))
	assert.NoError(t, fs.Put(ctx, core.CacheKey("stale"), 2))

	// 把 stale 的修改时间拨到保留期之外
	stalePath := filepath.Join(fs.Dir(), "stale.cache")
	past := time.Now().Add(-2 * time.Hour)
	assert.NoError(t, os.Chtimes(stalePath, past, past))

	s, err := New(fs, Config{Schedule: "@every 1h", MaxAge: time.Hour})
	assert.NoError(t, err)

	removed, err := s.RunOnce()
	assert.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.True(t, fs.Contains(ctx, core.CacheKey("fresh")))
	assert.False(t, fs.Contains(ctx, core.CacheKey("stale")))
}

// 非法的 cron 表达式在创建时被拒绝
func TestSweeper_InvalidSchedule(t *testing.T) {
	fs, err := storage.NewFileStorage(storage.FileStorageConfig{Dir: t.TempDir()})
	assert.NoError(t, err)
	defer fs.Close()

	_, err = New(fs, Config{Schedule: "not a cron expression"})
	assert.Error(t, err)
	assert.Equal(t, core.ErrConfigInvalid, core.CodeOf(err))
}

// TestSweeper_Scheduled 按计划自动触发清理
func TestSweeper_Scheduled(t *testing.T) {
	fs, err := storage.NewFileStorage(storage.FileStorageConfig{Dir: t.TempDir()})
	assert.NoError(t, err)
	defer fs.Close()

	ctx := context.Background()
	assert.NoError(t, fs.Put(ctx, core.CacheKey("stale"), 1))

	stalePath := filepath.Join(fs.Dir(), "stale.cache")
	past := time.Now().Add(-time.Hour)
	assert.NoError(t, os.Chtimes(stalePath, past, past))

	// @every 的最小粒度是 1 秒
	s, err := New(fs, Config{Schedule: "@every 1s", MaxAge: time.Minute})
	assert.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return !fs.Contains(ctx, core.CacheKey("stale"))
	}, 5*time.Second, 100*time.Millisecond, "过期条目应被后台清理")
}

// 空表达式回落到默认计划
func TestSweeper_DefaultSchedule(t *testing.T) {
	fs, err := storage.NewFileStorage(storage.FileStorageConfig{Dir: t.TempDir()})
	assert.NoError(t, err)
	defer fs.Close()

	s, err := New(fs, Config{MaxAge: time.Hour})
	assert.NoError(t, err)
	assert.Equal(t, "@every 1m", s.config.Schedule)
}
