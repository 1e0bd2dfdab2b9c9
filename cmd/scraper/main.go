package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eazyfind/internal/catalog"
	"eazyfind/internal/config"
	"eazyfind/internal/model"
	"eazyfind/internal/orchestrator"
	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/notify"
	"eazyfind/internal/pkg/runguard"
	"eazyfind/internal/pkg/taskqueue"
	"eazyfind/internal/scraper/stores"
	"eazyfind/internal/trigger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// main 是抓取 worker 的入口函数。
//
// 它负责：
// 1. 加载配置与分区
// 2. 打开商品目录并初始化分区
// 3. 构建各商店适配器与编排器
// 4. 使用 -once 时同步运行一个分类；否则启动 cron 触发与队列消费
// 5. 优雅关闭
func main() {
	configPath := flag.String("config", "", "path to config.json")
	once := flag.String("once", "", "run a single category synchronously and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	appLogger := logger.NewDefault(cfg.App.LogLevel)

	if err := run(cfg, appLogger, *once); err != nil {
		appLogger.Error("scraper exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger *slog.Logger, once string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	partitions, err := config.LoadPartitions(cfg.Scraper.PartitionsFile)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	cat, err := catalog.Open(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()

	if err := cat.EnsurePartitions(ctx, partitions.Pairs()); err != nil {
		return fmt.Errorf("seed partitions: %w", err)
	}

	adapters, err := stores.Build(cfg, appLogger, rdb)
	if err != nil {
		return fmt.Errorf("build adapters: %w", err)
	}

	runner := orchestrator.New(partitions, adapters, cat,
		orchestrator.WithLogger(appLogger),
		orchestrator.WithParallelism(cfg.Scraper.StoreParallelism),
		orchestrator.WithScrapeCache(cfg.Scraper.ScrapeCacheTTL),
		orchestrator.WithNotifier(notify.NewEmailNotifier(cfg.Email, appLogger)),
	)

	if once != "" {
		return runOnce(ctx, runner, once)
	}

	producer := taskqueue.NewProducer(rdb, appLogger, cfg.App.RunQueueStream)
	consumer, err := taskqueue.NewConsumer(ctx, rdb, appLogger,
		cfg.App.RunQueueStream, cfg.App.RunQueueGroup, consumerID(),
		taskqueue.WithMaxRetry(cfg.App.MaxRunRetry),
		taskqueue.WithPendingIdle(cfg.App.RunTimeout+5*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("init consumer: %w", err)
	}

	var schedules map[string]string
	if cfg.Schedule.Enabled {
		schedules = cfg.Schedule.Cron
	}
	sched := trigger.NewScheduler(appLogger, producer, consumer,
		runguard.New(rdb, cfg.App.RunGuardTTL), runner.Run,
		trigger.Options{
			Schedules:       schedules,
			RunTimeout:      cfg.App.RunTimeout,
			ShutdownTimeout: cfg.App.ShutdownTimeout,
			Workers:         cfg.App.WorkerPoolSize,
			QueueCapacity:   cfg.App.QueueCapacity,
		})

	metricsServer := &http.Server{
		Addr:    cfg.App.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		appLogger.Info("scraper metrics server started", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	runErr := sched.Run(ctx)

	appLogger.Info("shutting down scraper...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}

	appLogger.Info("scraper stopped gracefully")
	return runErr
}

// runOnce 同步执行一个分类并把报告打印到标准输出。
func runOnce(ctx context.Context, runner *orchestrator.Runner, name string) error {
	category, err := model.ParseCategory(name)
	if err != nil {
		return err
	}
	report, err := runner.RunScrapersForCategory(ctx, category)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d stores failed", len(failed), len(report.Partitions))
	}
	return nil
}

func consumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "scraper"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
