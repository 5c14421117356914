package storage

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"memokit/pkg/core"
	"memokit/pkg/logger"
	"memokit/pkg/serde"
)

// RedisStorageConfig Redis 存储配置。
type RedisStorageConfig struct {
	Addr           string        `yaml:"addr"`            // Redis 服务器地址
	Password       string        `yaml:"password"`        // 密码（可为空）
	DB             int           `yaml:"db"`              // 数据库编号
	KeyPrefix      string        `yaml:"key_prefix"`      // 键前缀，用于隔离不同缓存
	EntryTTL       time.Duration `yaml:"entry_ttl"`       // 条目在 Redis 侧的过期时间（0 表示不过期）
	RequestTimeout time.Duration `yaml:"request_timeout"` // 单次请求超时
	Serializer     string        `yaml:"serializer"`      // 值编解码器名称
	BreakerEnabled bool          `yaml:"breaker_enabled"` // 是否启用熔断器
}

// DefaultRedisStorageConfig 默认 Redis 存储配置。
func DefaultRedisStorageConfig() RedisStorageConfig {
	return RedisStorageConfig{
		Addr:           "localhost:6379",
		KeyPrefix:      "memokit:",
		RequestTimeout: 3 * time.Second,
		Serializer:     "json",
		BreakerEnabled: true,
	}
}

// RedisStorage 网络后端存储实现，多个进程可共享同一份缓存。
//
// 错误语义：键不存在返回未命中；网络/服务端故障返回 STORAGE_UNAVAILABLE，
// 与未命中严格区分，上层据此决定是否退化为仅计算不缓存。
// 内置熔断器：服务端持续故障时快速失败，避免每次调用都等待超时。
type RedisStorage struct {
	client  *redis.Client
	config  RedisStorageConfig
	breaker *gobreaker.CircuitBreaker
	codec   serde.Serializer
	log     *logrus.Entry
}

// NewRedisStorage 创建 Redis 存储实例。不主动建连，首次操作时惰性连接。
func NewRedisStorage(config RedisStorageConfig) *RedisStorage {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.RequestTimeout,
		ReadTimeout:  config.RequestTimeout,
		WriteTimeout: config.RequestTimeout,
	})

	rs := &RedisStorage{
		client: client,
		config: config,
		codec:  serde.New(config.Serializer),
		log:    logger.WithComponent("redis_storage"),
	}

	if config.BreakerEnabled {
		rs.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "RedisStorage",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				rs.log.WithFields(logrus.Fields{
					"from": from.String(),
					"to":   to.String(),
				}).Warn("Redis 熔断器状态变更")
			},
		})
	}

	return rs
}

// Ping 检查与 Redis 服务器的连接状态。
func (rs *RedisStorage) Ping(ctx context.Context) error {
	if err := rs.client.Ping(ctx).Err(); err != nil {
		return core.WrapError(core.ErrStorageUnavailable, "Redis 连接检查失败", err)
	}
	return nil
}

// execute 通过熔断器执行一次 Redis 操作。
// redis.Nil（键不存在）不算故障，不会推动熔断器计数。
func (rs *RedisStorage) execute(op func() (interface{}, error)) (interface{}, error) {
	if rs.breaker == nil {
		return op()
	}
	result, err := rs.breaker.Execute(op)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, core.WrapError(core.ErrStorageUnavailable, "Redis 熔断器已打开", err)
	}
	return result, err
}

// entryKey 返回带前缀的 Redis 键。
func (rs *RedisStorage) entryKey(key core.CacheKey) string {
	return rs.config.KeyPrefix + key.String()
}

// Get 从 Redis 获取条目。
func (rs *RedisStorage) Get(ctx context.Context, key core.CacheKey) (interface{}, error) {
	result, err := rs.execute(func() (interface{}, error) {
		data, err := rs.client.Get(ctx, rs.entryKey(key)).Bytes()
		if err == redis.Nil {
			return nil, nil // 未命中不是故障
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		if core.IsUnavailable(err) {
			return nil, err
		}
		return nil, core.WrapError(core.ErrStorageUnavailable, "Redis 读取失败", err)
	}

	if result == nil {
		return nil, core.NewMiss(key)
	}

	value, err := rs.codec.Unmarshal(result.([]byte))
	if err != nil {
		rs.log.WithField("key", key.String()).WithError(err).Warn("远程缓存条目已损坏")
		return nil, core.WrapError(core.ErrEntryCorrupt, "远程条目解码失败", err).
			WithContext("key", key.String())
	}
	return value, nil
}

// Put 将条目写入 Redis。Redis 的 SET 本身是原子的。
func (rs *RedisStorage) Put(ctx context.Context, key core.CacheKey, value interface{}) error {
	data, err := rs.codec.Marshal(value)
	if err != nil {
		return err
	}

	_, err = rs.execute(func() (interface{}, error) {
		return nil, rs.client.Set(ctx, rs.entryKey(key), data, rs.config.EntryTTL).Err()
	})
	if err != nil {
		if core.IsUnavailable(err) {
			return err
		}
		return core.WrapError(core.ErrStorageUnavailable, "Redis 写入失败", err)
	}
	return nil
}

// Contains 判断键是否存在。后端不可达时按不存在处理。
func (rs *RedisStorage) Contains(ctx context.Context, key core.CacheKey) bool {
	result, err := rs.execute(func() (interface{}, error) {
		return rs.client.Exists(ctx, rs.entryKey(key)).Result()
	})
	if err != nil {
		return false
	}
	return result.(int64) > 0
}

// Evict 删除一个键，返回是否确实删除了条目。
func (rs *RedisStorage) Evict(ctx context.Context, key core.CacheKey) bool {
	result, err := rs.execute(func() (interface{}, error) {
		return rs.client.Del(ctx, rs.entryKey(key)).Result()
	})
	if err != nil {
		return false
	}
	return result.(int64) > 0
}

// Clear 删除当前前缀下的所有键。使用 SCAN 游标遍历，避免阻塞服务端。
func (rs *RedisStorage) Clear(ctx context.Context) error {
	_, err := rs.execute(func() (interface{}, error) {
		iter := rs.client.Scan(ctx, 0, rs.config.KeyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			if err := rs.client.Del(ctx, iter.Val()).Err(); err != nil {
				return nil, err
			}
		}
		return nil, iter.Err()
	})
	if err != nil {
		if core.IsUnavailable(err) {
			return err
		}
		return core.WrapError(core.ErrStorageUnavailable, "Redis 清空失败", err)
	}
	return nil
}

// Stats 获取存储统计信息。条目数通过 SCAN 统计当前前缀下的键数。
func (rs *RedisStorage) Stats() core.CacheStats {
	var stats core.CacheStats

	ctx, cancel := context.WithTimeout(context.Background(), rs.config.RequestTimeout)
	defer cancel()

	result, err := rs.execute(func() (interface{}, error) {
		var count int64
		iter := rs.client.Scan(ctx, 0, rs.config.KeyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			count++
		}
		return count, iter.Err()
	})
	if err == nil {
		stats.Size = result.(int64)
	}
	return stats
}

// Close 关闭 Redis 客户端连接。
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}

var _ core.Storage = (*RedisStorage)(nil)
