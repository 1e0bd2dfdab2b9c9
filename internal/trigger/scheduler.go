// Package trigger 按 cron 计划触发分类运行，并在 worker 端消费运行消息。
//
// 流程：cron -> taskqueue.Producer -> Redis Stream -> Consumer -> runguard -> queue worker -> RunFunc。
// 多个 worker 进程共享同一个消费者组，同一条消息只会被一个进程执行。
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"eazyfind/internal/model"
	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/metrics"
	"eazyfind/internal/pkg/queue"
	"eazyfind/internal/pkg/runguard"
	"eazyfind/internal/pkg/taskqueue"

	"github.com/robfig/cron/v3"
)

// RunFunc 执行一次分类运行。
type RunFunc func(ctx context.Context, runID string, category model.CategoryType) (*model.RunReport, error)

// Options 调度器配置。
type Options struct {
	Schedules       map[string]string // 分类 -> cron 表达式，为空时只消费不产生
	RunTimeout      time.Duration
	ShutdownTimeout time.Duration
	Workers         int
	QueueCapacity   int
}

// Scheduler 运行触发器。
type Scheduler struct {
	logger   *slog.Logger
	producer *taskqueue.Producer
	consumer *taskqueue.Consumer
	guard    *runguard.Guard
	queue    *queue.Queue
	run      RunFunc
	opts     Options
	cron     *cron.Cron
}

// NewScheduler 创建调度器。guard 可以为 nil（不做跨进程互斥）。
func NewScheduler(log *slog.Logger, producer *taskqueue.Producer, consumer *taskqueue.Consumer, guard *runguard.Guard, run RunFunc, opts Options) *Scheduler {
	log = logger.OrDiscard(log)
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 90 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	q := queue.NewQueue(log, opts.Workers, opts.QueueCapacity)
	q.SetErrorHandler(func(job queue.Job, err error) {
		log.Error("category run failed",
			slog.String("category", job.Key),
			slog.String("error", err.Error()))
	})
	metrics.InitMetrics(q.Workers())

	return &Scheduler{
		logger:   log,
		producer: producer,
		consumer: consumer,
		guard:    guard,
		queue:    q,
		run:      run,
		opts:     opts,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}
}

// Queue 返回内部 worker 队列，供管理接口查询。
func (s *Scheduler) Queue() *queue.Queue { return s.queue }

// registerSchedules 为每个分类注册 cron 任务，触发时发布运行消息。
func (s *Scheduler) registerSchedules(ctx context.Context) error {
	categories := make([]string, 0, len(s.opts.Schedules))
	for c := range s.opts.Schedules {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, name := range categories {
		category, err := model.ParseCategory(name)
		if err != nil {
			return err
		}
		spec := s.opts.Schedules[name]
		_, err = s.cron.AddFunc(spec, func() {
			if _, err := s.producer.SubmitRun(ctx, string(category), taskqueue.SourceCron); err != nil {
				s.logger.Error("scheduled submit failed",
					slog.String("category", string(category)),
					slog.String("error", err.Error()))
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s %q: %w", category, spec, err)
		}
		s.logger.Info("category scheduled", slog.String("category", string(category)), slog.String("cron", spec))
	}
	return nil
}

// Run 启动 cron、worker 池与消费循环，阻塞直到 ctx 被取消。
func (s *Scheduler) Run(ctx context.Context) error {
	if s.producer != nil && len(s.opts.Schedules) > 0 {
		if err := s.registerSchedules(ctx); err != nil {
			return err
		}
		s.cron.Start()
	}
	s.queue.Start(ctx)
	s.logger.Info("trigger scheduler started",
		slog.Int("workers", s.queue.Workers()),
		slog.Int("schedules", len(s.opts.Schedules)))

	defer func() {
		<-s.cron.Stop().Done()
		if err := s.queue.ShutdownWithTimeout(s.opts.ShutdownTimeout); err != nil {
			s.logger.Error("queue shutdown failed", slog.String("error", err.Error()))
		}
		s.logger.Info("trigger scheduler stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		deliveries, err := s.consumer.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			s.logger.Error("read run messages failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, d := range deliveries {
			s.dispatch(ctx, d)
		}
	}
}

// dispatch 将消息交给 worker 池；同一分类已在本进程排队时直接确认。
func (s *Scheduler) dispatch(ctx context.Context, d *taskqueue.Delivery) {
	category, err := model.ParseCategory(d.Message.Category)
	if err != nil {
		s.logger.Error("drop run message with unknown category",
			slog.String("msg_id", d.ID),
			slog.String("category", d.Message.Category))
		s.ack(ctx, d)
		return
	}

	err = s.queue.EnqueueBlocking(ctx, queue.Job{
		Key: string(category),
		Run: func(ctx context.Context) error { return s.execute(ctx, d, category) },
	})
	switch {
	case errors.Is(err, queue.ErrAlreadyQueued):
		metrics.RunGuardSkippedTotal.WithLabelValues(string(category)).Inc()
		s.logger.Info("category already queued, skip run",
			slog.String("run_id", d.Message.RunID),
			slog.String("category", string(category)))
		s.ack(ctx, d)
	case err != nil:
		// 未确认的消息保留在 pending 列表中，之后会被重新认领
		s.logger.Warn("enqueue run failed",
			slog.String("run_id", d.Message.RunID),
			slog.String("error", err.Error()))
	}
}

// execute 在 worker 中执行一次运行，并根据结果确认、重试或进入死信队列。
func (s *Scheduler) execute(ctx context.Context, d *taskqueue.Delivery, category model.CategoryType) error {
	log := s.logger.With(slog.String("run_id", d.Message.RunID), slog.String("category", string(category)))

	if s.guard != nil {
		lease, err := s.guard.Acquire(ctx, string(category))
		if errors.Is(err, runguard.ErrHeld) {
			metrics.RunGuardSkippedTotal.WithLabelValues(string(category)).Inc()
			log.Info("category running elsewhere, skip run")
			s.ack(ctx, d)
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release run guard failed", slog.String("error", err.Error()))
			}
		}()
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	report, err := s.run(runCtx, d.Message.RunID, category)
	if ctx.Err() != nil {
		// 进程正在关闭，消息保持未确认
		return ctx.Err()
	}
	if err == nil && !allFailed(report) {
		s.ack(ctx, d)
		return nil
	}
	if err == nil {
		err = fmt.Errorf("all %d stores failed", len(report.Partitions))
	}

	action, ferr := s.consumer.HandleFailure(ctx, d, err)
	if ferr != nil {
		log.Error("handle run failure failed", slog.String("error", ferr.Error()))
	}
	log.Warn("run failed", slog.String("action", string(action)), slog.Int("retry", d.Message.Retry))
	return err
}

func (s *Scheduler) ack(ctx context.Context, d *taskqueue.Delivery) {
	if err := s.consumer.Ack(context.WithoutCancel(ctx), d.ID); err != nil {
		s.logger.Error("ack run message failed", slog.String("msg_id", d.ID), slog.String("error", err.Error()))
	}
}

func allFailed(r *model.RunReport) bool {
	if r == nil || len(r.Partitions) == 0 {
		return false
	}
	return len(r.Failed()) == len(r.Partitions)
}
