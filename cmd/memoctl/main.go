// memoctl 是 memokit 的缓存目录管理工具。
// 核心的记忆化能力在 pkg/ 下，本工具只是一个薄的外围命令面，
// 用于检查、清空和维护文件缓存目录。
//
// 用法:
//
//	memoctl [flags] stats          输出缓存目录的统计信息
//	memoctl [flags] clear          清空缓存目录
//	memoctl [flags] evict <key>    删除指定键的条目
//	memoctl [flags] sweep          执行一轮过期清理（-daemon 时常驻）
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"memokit/pkg/config"
	"memokit/pkg/core"
	"memokit/pkg/logger"
	"memokit/pkg/storage"
	"memokit/pkg/sweeper"
)

var (
	configPath = flag.String("config", "", "配置文件路径（默认查找 ./memokit.yaml）")
	cacheDir   = flag.String("dir", "", "缓存目录（覆盖配置文件）")
	logLevel   = flag.String("log-level", "", "日志级别 (debug, info, warn, error)")
	logFormat  = flag.String("log-format", "", "日志格式 (json or text)")
	daemon     = flag.Bool("daemon", false, "sweep 命令常驻运行，按配置的计划周期清理")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	logger.Init(cfg.Logging)
	log := logger.WithComponent("memoctl")

	if *cacheDir != "" {
		cfg.Storage.Dir = *cacheDir
	}

	fs, err := storage.NewFileStorage(storage.FileStorageConfig{
		Dir:        cfg.Storage.Dir,
		Serializer: cfg.Storage.Serializer,
	})
	if err != nil {
		log.WithError(err).Fatal("打开缓存目录失败")
	}
	defer fs.Close()

	ctx := context.Background()

	switch flag.Arg(0) {
	case "stats":
		stats := fs.Stats()
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			log.WithError(err).Fatal("序列化统计信息失败")
		}
		fmt.Printf("目录: %s\n%s\n", fs.Dir(), data)

	case "clear":
		if err := fs.Clear(ctx); err != nil {
			log.WithError(err).Fatal("清空缓存失败")
		}
		log.WithField("dir", fs.Dir()).Info("缓存已清空")

	case "evict":
		key := flag.Arg(1)
		if key == "" {
			fmt.Fprintln(os.Stderr, "用法: memoctl evict <key>")
			os.Exit(2)
		}
		if fs.Evict(ctx, core.CacheKey(key)) {
			log.WithField("key", key).Info("条目已删除")
		} else {
			log.WithField("key", key).Warn("条目不存在")
		}

	case "sweep":
		sw, err := sweeper.New(fs, sweeper.Config{
			Schedule: cfg.Sweep.Schedule,
			MaxAge:   cfg.Sweep.MaxAge,
		})
		if err != nil {
			log.WithError(err).Fatal("创建清理任务失败")
		}

		removed, err := sw.RunOnce()
		if err != nil {
			log.WithError(err).Fatal("清理执行失败")
		}
		log.WithField("removed", removed).Info("清理完成")

		if *daemon {
			sw.Start()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan
			log.Info("正在停止清理任务...")
			sw.Stop()
		}

	default:
		flag.Usage()
		os.Exit(2)
	}
}
