// Package config 定义了 memokit 的配置结构，并提供基于 viper 的
// 加载入口（yaml 文件 + MEMOKIT_ 前缀环境变量 + 默认值）。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"memokit/pkg/core"
	"memokit/pkg/logger"
	"memokit/pkg/memoize"
	"memokit/pkg/policy"
	"memokit/pkg/storage"
)

// Config 是 memokit 的主配置结构，聚合了所有子模块的配置。
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Memoize MemoizeConfig `mapstructure:"memoize"`
	Logging logger.Config `mapstructure:"logging"`
	Sweep   SweepConfig   `mapstructure:"sweep"`
}

// StorageConfig 定义了存储后端的配置。
type StorageConfig struct {
	Type       string      `mapstructure:"type"`       // 后端类型："memory", "sharded", "file", "redis", "layered"
	Shards     int         `mapstructure:"shards"`     // 分片数（sharded 类型）
	Dir        string      `mapstructure:"dir"`        // 缓存目录（file 类型）
	Serializer string      `mapstructure:"serializer"` // 值编解码器："json", "gob"
	Redis      RedisConfig `mapstructure:"redis"`      // Redis 连接配置（redis 类型）
	Layers     []string    `mapstructure:"layers"`     // 各层的后端类型（layered 类型，从快到慢）
	Promote    bool        `mapstructure:"promote"`    // 分层时下层命中是否回填上层
}

// RedisConfig 定义了 Redis 后端的连接配置。
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`            // 服务器地址
	Password       string        `mapstructure:"password"`        // 密码
	DB             int           `mapstructure:"db"`              // 数据库编号
	KeyPrefix      string        `mapstructure:"key_prefix"`      // 键前缀
	EntryTTL       time.Duration `mapstructure:"entry_ttl"`       // 条目过期时间
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 单次请求超时
}

// PolicyConfig 定义了淘汰策略的配置。
type PolicyConfig struct {
	Type     string        `mapstructure:"type"`     // 策略类型："none", "lru", "ttl", "lru+ttl"
	Capacity int           `mapstructure:"capacity"` // 容量上限（lru）
	TTL      time.Duration `mapstructure:"ttl"`      // 生存时间（ttl）
	Sliding  bool          `mapstructure:"sliding"`  // 访问是否顺延过期时间
}

// MemoizeConfig 定义了编排核心的配置。
type MemoizeConfig struct {
	DisableSingleFlight  bool          `mapstructure:"disable_single_flight"` // 放弃单飞保证
	Timeout              time.Duration `mapstructure:"timeout"`               // 追随者等待上限
	FailureMode          string        `mapstructure:"failure_mode"`          // "propagate" 或 "retry"
	PropagateUnavailable bool          `mapstructure:"propagate_unavailable"` // 后端不可用时是否报错
}

// SweepConfig 定义了周期清理任务的配置。
type SweepConfig struct {
	Schedule string        `mapstructure:"schedule"` // cron 表达式，如 "@every 1m"
	MaxAge   time.Duration `mapstructure:"max_age"`  // 条目最大保留时间
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Type:       "memory",
			Shards:     storage.DefaultShardCount,
			Serializer: "json",
			Redis: RedisConfig{
				Addr:           "localhost:6379",
				KeyPrefix:      "memokit:",
				RequestTimeout: 3 * time.Second,
			},
			Promote: true,
		},
		Policy: PolicyConfig{
			Type:     "none",
			Capacity: 1024,
			TTL:      10 * time.Minute,
		},
		Memoize: MemoizeConfig{
			FailureMode: "propagate",
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "text",
		},
		Sweep: SweepConfig{
			Schedule: "@every 1m",
			MaxAge:   24 * time.Hour,
		},
	}
}

// Load 加载配置。path 为空时在当前目录和 $HOME/.memokit 下查找 memokit.yaml；
// 找不到配置文件时返回默认值。环境变量以 MEMOKIT_ 为前缀覆盖同名配置项。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("memokit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.memokit")
	}

	setDefaults(v)

	v.SetEnvPrefix("MEMOKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, core.WrapError(core.ErrConfigInvalid, "读取配置文件失败", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, "解析配置失败", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 写入 viper 默认值，保证环境变量覆盖可用。
func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("storage.type", def.Storage.Type)
	v.SetDefault("storage.shards", def.Storage.Shards)
	v.SetDefault("storage.serializer", def.Storage.Serializer)
	v.SetDefault("storage.redis.addr", def.Storage.Redis.Addr)
	v.SetDefault("storage.redis.key_prefix", def.Storage.Redis.KeyPrefix)
	v.SetDefault("storage.redis.request_timeout", def.Storage.Redis.RequestTimeout)
	v.SetDefault("storage.promote", def.Storage.Promote)
	v.SetDefault("policy.type", def.Policy.Type)
	v.SetDefault("policy.capacity", def.Policy.Capacity)
	v.SetDefault("policy.ttl", def.Policy.TTL)
	v.SetDefault("memoize.failure_mode", def.Memoize.FailureMode)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("sweep.schedule", def.Sweep.Schedule)
	v.SetDefault("sweep.max_age", def.Sweep.MaxAge)
}

// Validate 校验配置的合法性。
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "memory", "sharded", "file", "redis", "layered":
	default:
		return core.NewError(core.ErrConfigInvalid,
			fmt.Sprintf("不支持的存储类型: %s", c.Storage.Type))
	}

	if c.Storage.Type == "layered" && len(c.Storage.Layers) == 0 {
		return core.NewError(core.ErrConfigInvalid, "分层存储至少需要一层")
	}

	switch c.Policy.Type {
	case "", "none", "lru", "ttl", "lru+ttl":
	default:
		return core.NewError(core.ErrConfigInvalid,
			fmt.Sprintf("不支持的淘汰策略: %s", c.Policy.Type))
	}

	if (c.Policy.Type == "lru" || c.Policy.Type == "lru+ttl") && c.Policy.Capacity <= 0 {
		return core.NewError(core.ErrConfigInvalid, "LRU 策略的容量必须大于 0")
	}
	if (c.Policy.Type == "ttl" || c.Policy.Type == "lru+ttl") && c.Policy.TTL <= 0 {
		return core.NewError(core.ErrConfigInvalid, "TTL 策略的生存时间必须大于 0")
	}

	switch c.Memoize.FailureMode {
	case "", "propagate", "retry":
	default:
		return core.NewError(core.ErrConfigInvalid,
			fmt.Sprintf("不支持的失败模式: %s", c.Memoize.FailureMode))
	}

	return nil
}

// BuildStorage 根据配置构建存储后端，必要时套上淘汰策略包装。
func (c *Config) BuildStorage() (core.Storage, error) {
	backend, err := c.buildBackend(c.Storage.Type)
	if err != nil {
		return nil, err
	}

	p := c.buildPolicy()
	if p == nil {
		return backend, nil
	}
	return policy.Bound(backend, p), nil
}

// buildBackend 构建单个后端实例。
func (c *Config) buildBackend(kind string) (core.Storage, error) {
	switch kind {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sharded":
		return storage.NewShardedMemoryStorage(c.Storage.Shards), nil
	case "file":
		return storage.NewFileStorage(storage.FileStorageConfig{
			Dir:        c.Storage.Dir,
			Serializer: c.Storage.Serializer,
		})
	case "redis":
		return storage.NewRedisStorage(storage.RedisStorageConfig{
			Addr:           c.Storage.Redis.Addr,
			Password:       c.Storage.Redis.Password,
			DB:             c.Storage.Redis.DB,
			KeyPrefix:      c.Storage.Redis.KeyPrefix,
			EntryTTL:       c.Storage.Redis.EntryTTL,
			RequestTimeout: c.Storage.Redis.RequestTimeout,
			Serializer:     c.Storage.Serializer,
			BreakerEnabled: true,
		}), nil
	case "layered":
		layers := make([]core.Storage, 0, len(c.Storage.Layers))
		for _, layerKind := range c.Storage.Layers {
			if layerKind == "layered" {
				return nil, core.NewError(core.ErrConfigInvalid, "分层存储不允许嵌套")
			}
			layer, err := c.buildBackend(layerKind)
			if err != nil {
				return nil, err
			}
			layers = append(layers, layer)
		}
		return storage.NewLayeredStorage(storage.LayeredStorageConfig{
			PromoteEnabled: c.Storage.Promote,
		}, layers...)
	default:
		return nil, core.NewError(core.ErrConfigInvalid,
			fmt.Sprintf("不支持的存储类型: %s", kind))
	}
}

// buildPolicy 构建淘汰策略，"none" 返回 nil。
func (c *Config) buildPolicy() policy.EvictionPolicy {
	newTTL := func() policy.EvictionPolicy {
		if c.Policy.Sliding {
			return policy.NewSlidingTTLPolicy(c.Policy.TTL)
		}
		return policy.NewTTLPolicy(c.Policy.TTL)
	}

	switch c.Policy.Type {
	case "lru":
		return policy.NewLRUPolicy(c.Policy.Capacity)
	case "ttl":
		return newTTL()
	case "lru+ttl":
		return policy.NewCompositePolicy(policy.NewLRUPolicy(c.Policy.Capacity), newTTL())
	default:
		return nil
	}
}

// MemoizeOptions 将配置转换为 memoize.Options。
func (c *Config) MemoizeOptions() memoize.Options {
	mode := memoize.FailurePropagate
	if c.Memoize.FailureMode == "retry" {
		mode = memoize.FailureRetry
	}
	return memoize.Options{
		DisableSingleFlight:  c.Memoize.DisableSingleFlight,
		Timeout:              c.Memoize.Timeout,
		FailureMode:          mode,
		PropagateUnavailable: c.Memoize.PropagateUnavailable,
	}
}
