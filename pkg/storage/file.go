package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"memokit/pkg/core"
	"memokit/pkg/logger"
	"memokit/pkg/serde"
)

const (
	// cacheFileExt 缓存条目文件的扩展名。
	cacheFileExt = ".cache"
	// tempFileExt 写入过程中临时文件的扩展名。
	tempFileExt = ".tmp"
	// tempFileGrace 孤儿临时文件的保留期。写入进程异常终止会留下 .tmp 文件，
	// 超过保留期后由 SweepExpired 清除。
	tempFileGrace = 10 * time.Minute
)

// FileStorageConfig 文件存储配置。
type FileStorageConfig struct {
	Dir        string `yaml:"dir"`        // 缓存文件根目录
	Serializer string `yaml:"serializer"` // 值编解码器名称，如 "json", "gob"
}

// FileStorage 磁盘文件存储实现。
// 每个条目持久化为根目录下的一个文件，文件名为键摘要的小写十六进制形式。
// 写入采用"临时文件 + 原子重命名"，读者绝不会观察到部分写入；
// 进程在写入途中被终止时，磁盘上要么是旧条目要么没有条目。
//
// 条目的真实状态以文件系统为准，FileStorage 自身不维护内存索引，
// 因此多个进程可以共享同一个缓存目录。
type FileStorage struct {
	dir        string
	serializer serde.Serializer
	hitCount   int64
	missCount  int64
	log        *logrus.Entry
}

// NewFileStorage 创建文件存储实例，目录不存在时自动创建。
func NewFileStorage(config FileStorageConfig) (*FileStorage, error) {
	if config.Dir == "" {
		config.Dir = filepath.Join(os.TempDir(), "memokit_cache")
	}
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, core.WrapError(core.ErrStorageUnavailable, "创建缓存目录失败", err)
	}

	return &FileStorage{
		dir:        config.Dir,
		serializer: serde.New(config.Serializer),
		log:        logger.WithComponent("file_storage"),
	}, nil
}

// Dir 返回缓存根目录。
func (fs *FileStorage) Dir() string {
	return fs.dir
}

// entryPath 返回键对应的条目文件路径。
func (fs *FileStorage) entryPath(key core.CacheKey) string {
	return filepath.Join(fs.dir, strings.ToLower(key.String())+cacheFileExt)
}

// Get 从磁盘读取条目。文件不存在时返回未命中；内容无法解码时返回
// ENTRY_CORRUPT，由上层当作未命中处理（重算后覆盖写入，自愈）。
func (fs *FileStorage) Get(ctx context.Context, key core.CacheKey) (interface{}, error) {
	data, err := os.ReadFile(fs.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			atomic.AddInt64(&fs.missCount, 1)
			return nil, core.NewMiss(key)
		}
		return nil, core.WrapError(core.ErrStorageUnavailable, "读取缓存文件失败", err)
	}

	value, err := fs.serializer.Unmarshal(data)
	if err != nil {
		atomic.AddInt64(&fs.missCount, 1)
		fs.log.WithField("key", key.String()).WithError(err).Warn("缓存条目已损坏")
		return nil, core.WrapError(core.ErrEntryCorrupt, "缓存条目解码失败", err).
			WithContext("key", key.String())
	}

	atomic.AddInt64(&fs.hitCount, 1)
	return value, nil
}

// Put 将条目写入磁盘：先写入带唯一后缀的临时文件，再原子重命名到目标路径。
// 绝不使用原地截断写，避免并发读者观察到半写状态。
func (fs *FileStorage) Put(ctx context.Context, key core.CacheKey, value interface{}) error {
	data, err := fs.serializer.Marshal(value)
	if err != nil {
		return err
	}

	target := fs.entryPath(key)
	tempPath := fmt.Sprintf("%s.%s%s", target, uuid.NewString(), tempFileExt)

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return core.WrapError(core.ErrStorageUnavailable, "写入临时文件失败", err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return core.WrapError(core.ErrStorageUnavailable, "重命名缓存文件失败", err)
	}

	return nil
}

// Contains 判断条目文件是否存在。
func (fs *FileStorage) Contains(ctx context.Context, key core.CacheKey) bool {
	_, err := os.Stat(fs.entryPath(key))
	return err == nil
}

// Evict 删除条目文件，返回是否确实删除了条目。
func (fs *FileStorage) Evict(ctx context.Context, key core.CacheKey) bool {
	err := os.Remove(fs.entryPath(key))
	return err == nil
}

// Clear 删除目录下的所有条目文件和临时文件。
func (fs *FileStorage) Clear(ctx context.Context) error {
	names, err := fs.listFiles()
	if err != nil {
		return err
	}
	for _, name := range names {
		if strings.HasSuffix(name, cacheFileExt) || strings.HasSuffix(name, tempFileExt) {
			if err := os.Remove(filepath.Join(fs.dir, name)); err != nil && !os.IsNotExist(err) {
				return core.WrapError(core.ErrStorageUnavailable, "删除缓存文件失败", err)
			}
		}
	}
	atomic.StoreInt64(&fs.hitCount, 0)
	atomic.StoreInt64(&fs.missCount, 0)
	return nil
}

// Stats 获取存储统计信息。条目数通过扫描目录得到。
func (fs *FileStorage) Stats() core.CacheStats {
	var size int64
	if names, err := fs.listFiles(); err == nil {
		for _, name := range names {
			if strings.HasSuffix(name, cacheFileExt) {
				size++
			}
		}
	}

	hitCount := atomic.LoadInt64(&fs.hitCount)
	missCount := atomic.LoadInt64(&fs.missCount)

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

// SweepExpired 清除修改时间早于 maxAge 的条目文件，以及超过保留期的
// 孤儿临时文件。返回清除的文件数。maxAge <= 0 时只清理临时文件。
func (fs *FileStorage) SweepExpired(maxAge time.Duration) (int, error) {
	names, err := fs.listFiles()
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0

	for _, name := range names {
		path := filepath.Join(fs.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		var expired bool
		switch {
		case strings.HasSuffix(name, tempFileExt):
			expired = now.Sub(info.ModTime()) > tempFileGrace
		case strings.HasSuffix(name, cacheFileExt):
			expired = maxAge > 0 && now.Sub(info.ModTime()) > maxAge
		}

		if expired {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		fs.log.WithFields(logrus.Fields{
			"removed": removed,
			"dir":     fs.dir,
		}).Debug("过期条目清理完成")
	}
	return removed, nil
}

// Close 关闭存储。文件存储无持有资源，总是成功。
func (fs *FileStorage) Close() error {
	return nil
}

// listFiles 列出缓存目录下的文件名。
func (fs *FileStorage) listFiles() ([]string, error) {
	dirEntries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageUnavailable, "读取缓存目录失败", err)
	}
	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.IsDir() {
			names = append(names, de.Name())
		}
	}
	return names, nil
}

var _ core.Storage = (*FileStorage)(nil)
