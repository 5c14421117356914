// Package sweeper 提供周期性的缓存维护任务：按 cron 计划清除
// 文件存储中过期的条目和写入中断遗留的临时文件。
package sweeper

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"memokit/pkg/core"
	"memokit/pkg/logger"
)

// Sweepable 是可被周期清理的存储能力。FileStorage 实现了此接口。
type Sweepable interface {
	// SweepExpired 清除超过保留期的条目，返回清除的条目数。
	SweepExpired(maxAge time.Duration) (int, error)
}

// Config 清理任务配置。
type Config struct {
	Schedule string        `yaml:"schedule"` // cron 表达式，如 "@every 1m" 或 "0 3 * * *"
	MaxAge   time.Duration `yaml:"max_age"`  // 条目最大保留时间
}

// Sweeper 按 cron 计划对目标存储执行清理。
type Sweeper struct {
	target Sweepable
	config Config
	cron   *cron.Cron
	log    *logrus.Entry
}

// New 创建清理器。schedule 非法时返回 CONFIG_INVALID。
func New(target Sweepable, config Config) (*Sweeper, error) {
	if config.Schedule == "" {
		config.Schedule = "@every 1m"
	}

	s := &Sweeper{
		target: target,
		config: config,
		cron:   cron.New(),
		log:    logger.WithComponent("sweeper"),
	}

	if _, err := s.cron.AddFunc(config.Schedule, s.runOnce); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, "无效的清理计划表达式", err)
	}
	return s, nil
}

// Start 启动后台清理。
func (s *Sweeper) Start() {
	s.log.WithFields(logrus.Fields{
		"schedule": s.config.Schedule,
		"max_age":  s.config.MaxAge.String(),
	}).Info("清理任务已启动")
	s.cron.Start()
}

// Stop 停止后台清理，等待进行中的一轮清理结束。
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("清理任务已停止")
}

// RunOnce 立即执行一轮清理，返回清除的条目数。
func (s *Sweeper) RunOnce() (int, error) {
	return s.target.SweepExpired(s.config.MaxAge)
}

// runOnce cron 回调。
func (s *Sweeper) runOnce() {
	removed, err := s.RunOnce()
	if err != nil {
		s.log.WithError(err).Warn("清理执行失败")
		return
	}
	if removed > 0 {
		s.log.WithField("removed", removed).Info("清理完成")
	}
}
