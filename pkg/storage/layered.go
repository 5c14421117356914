package storage

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"memokit/pkg/core"
	"memokit/pkg/logger"
)

// LayeredStorageConfig 分层存储配置。
type LayeredStorageConfig struct {
	PromoteEnabled bool `yaml:"promote_enabled"` // 下层命中时是否回填到上层
}

// LayeredStorage 分层存储实现。
// 按顺序组合多个后端（如 L1 内存 + L2 磁盘/Redis），读取自上而下逐层查找，
// 写入穿透所有层。下层命中时可选地将值回填到上层，加速后续访问。
type LayeredStorage struct {
	layers       []core.Storage
	config       LayeredStorageConfig
	promoteCount int64
	log          *logrus.Entry
}

// NewLayeredStorage 创建分层存储，layers 按从快到慢的顺序排列。
func NewLayeredStorage(config LayeredStorageConfig, layers ...core.Storage) (*LayeredStorage, error) {
	if len(layers) == 0 {
		return nil, core.NewError(core.ErrConfigInvalid, "至少需要一个存储层")
	}
	return &LayeredStorage{
		layers: layers,
		config: config,
		log:    logger.WithComponent("layered_storage"),
	}, nil
}

// Get 自上而下逐层查找。损坏或不可用的层按未命中跳过，继续向下查找。
func (ls *LayeredStorage) Get(ctx context.Context, key core.CacheKey) (interface{}, error) {
	for i, layer := range ls.layers {
		value, err := layer.Get(ctx, key)
		if err == nil {
			if ls.config.PromoteEnabled && i > 0 {
				ls.promote(ctx, key, value, i)
			}
			return value, nil
		}
		if !core.IsMiss(err) && !core.IsCorrupt(err) && !core.IsUnavailable(err) {
			return nil, err
		}
		if core.IsUnavailable(err) {
			ls.log.WithField("layer", i).WithError(err).Warn("存储层不可用，降级到下一层")
		}
	}
	return nil, core.NewMiss(key)
}

// promote 将下层命中的值回填到更快的上层。回填失败只记日志，不影响本次读取。
func (ls *LayeredStorage) promote(ctx context.Context, key core.CacheKey, value interface{}, hitLayer int) {
	for i := 0; i < hitLayer; i++ {
		if err := ls.layers[i].Put(ctx, key, value); err != nil {
			ls.log.WithField("layer", i).WithError(err).Debug("回填上层失败")
			continue
		}
	}
	atomic.AddInt64(&ls.promoteCount, 1)
}

// Put 写穿透：写入所有层。任意一层写入成功即认为写入成功；
// 全部失败时返回最后一个错误。
func (ls *LayeredStorage) Put(ctx context.Context, key core.CacheKey, value interface{}) error {
	var lastErr error
	succeeded := false

	for i, layer := range ls.layers {
		if err := layer.Put(ctx, key, value); err != nil {
			lastErr = err
			ls.log.WithField("layer", i).WithError(err).Warn("存储层写入失败")
			continue
		}
		succeeded = true
	}

	if !succeeded {
		return lastErr
	}
	return nil
}

// Contains 任意一层存在即认为存在。
func (ls *LayeredStorage) Contains(ctx context.Context, key core.CacheKey) bool {
	for _, layer := range ls.layers {
		if layer.Contains(ctx, key) {
			return true
		}
	}
	return false
}

// Evict 从所有层删除，任意一层删除成功即返回 true。
func (ls *LayeredStorage) Evict(ctx context.Context, key core.CacheKey) bool {
	removed := false
	for _, layer := range ls.layers {
		if layer.Evict(ctx, key) {
			removed = true
		}
	}
	return removed
}

// Clear 清空所有层。
func (ls *LayeredStorage) Clear(ctx context.Context) error {
	for i, layer := range ls.layers {
		if err := layer.Clear(ctx); err != nil {
			ls.log.WithField("layer", i).WithError(err).Warn("存储层清空失败")
			return err
		}
	}
	return nil
}

// Stats 聚合所有层的统计信息。条目数取第一层（最完整统计见各层自身）。
func (ls *LayeredStorage) Stats() core.CacheStats {
	var agg core.CacheStats
	for i, layer := range ls.layers {
		stats := layer.Stats()
		if i == 0 {
			agg.Size = stats.Size
			agg.MaxSize = stats.MaxSize
		}
		agg.HitCount += stats.HitCount
		agg.MissCount += stats.MissCount
	}
	if total := agg.HitCount + agg.MissCount; total > 0 {
		agg.HitRate = float64(agg.HitCount) / float64(total)
	}
	return agg
}

// Close 关闭所有层。
func (ls *LayeredStorage) Close() error {
	var lastErr error
	for _, layer := range ls.layers {
		if err := layer.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// PromoteCount 返回发生过的回填次数。
func (ls *LayeredStorage) PromoteCount() int64 {
	return atomic.LoadInt64(&ls.promoteCount)
}

var _ core.Storage = (*LayeredStorage)(nil)
