package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eazyfind/internal/api"
	"eazyfind/internal/catalog"
	"eazyfind/internal/config"
	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/runguard"
	"eazyfind/internal/pkg/taskqueue"

	"github.com/redis/go-redis/v9"
)

// main 是管理 API 的入口函数。
//
// 它负责：
// 1. 加载配置与分区
// 2. 连接目录存储与 Redis
// 3. 启动 HTTP 服务并在收到信号后优雅关闭
func main() {
	configPath := flag.String("config", "", "path to config.json")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	partitions, err := config.LoadPartitions(cfg.Scraper.PartitionsFile)
	if err != nil {
		appLogger.Error("load partitions failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	cat, err := catalog.Open(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("open catalog failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cat.Close()

	if _, err := api.SeedPartitions(ctx, cat, partitions); err != nil {
		appLogger.Error("seed partitions failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := api.NewServer(cfg, appLogger, api.Deps{
		Partitions: partitions,
		Seeder:     cat,
		Runs:       taskqueue.NewProducer(rdb, appLogger, cfg.App.RunQueueStream),
		Guard:      runguard.New(rdb, cfg.App.RunGuardTTL),
		Pingers: map[string]api.Pinger{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"catalog": func(ctx context.Context) error {
				_, err := cat.ListPartitions(ctx)
				return err
			},
		},
	})

	httpServer := &http.Server{
		Addr:    cfg.App.HTTPAddr,
		Handler: srv.Router(),
	}

	go func() {
		appLogger.Info("api server listening", slog.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server run failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down api server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
}
