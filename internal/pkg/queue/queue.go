// Package queue 提供执行分类运行的内存任务队列与固定 worker 池。
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/metrics"
)

var (
	// ErrClosed 队列已关闭。
	ErrClosed = errors.New("queue is closed")
	// ErrFull 队列已满。
	ErrFull = errors.New("queue is full")
	// ErrAlreadyQueued 同一个 key 的任务已在等待或执行中。
	ErrAlreadyQueued = errors.New("job already queued")
)

// Job 一个可执行的运行任务。Key 相同的任务同一时间最多存在一个。
type Job struct {
	Key string
	Run func(ctx context.Context) error
}

// ErrorHandler 任务失败（含 panic）时的回调。
type ErrorHandler func(job Job, err error)

// Queue 内存任务队列。
type Queue struct {
	logger       *slog.Logger
	workers      int
	jobs         chan Job
	errorHandler ErrorHandler

	mu      sync.Mutex
	pending map[string]time.Time // key -> 入队时间，执行完成后移除

	wg     sync.WaitGroup
	closed atomic.Bool

	stats queueStats
}

type queueStats struct {
	enqueued  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// Stats 队列统计快照。
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"` // 队列满或重复
	Panics    int64 `json:"panics"`
}

// PendingJob 等待或执行中的任务。
type PendingJob struct {
	Key      string    `json:"key"`
	Enqueued time.Time `json:"enqueued_at"`
}

// NewQueue 创建任务队列。
//
// 参数:
//   - log: 日志记录器
//   - workers: worker 数量（至少为 1）
//   - capacity: 队列容量（至少为 1）
func NewQueue(log *slog.Logger, workers int, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		logger:  logger.OrDiscard(log),
		workers: workers,
		jobs:    make(chan Job, capacity),
		pending: make(map[string]time.Time),
	}
}

// SetErrorHandler 设置失败回调，需在 Start 之前调用。
func (q *Queue) SetErrorHandler(handler ErrorHandler) {
	q.errorHandler = handler
}

// Start 启动 worker 池，直到 ctx 被取消或调用 Shutdown。
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("worker stopped", slog.Int("worker_id", id))
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			metrics.QueueDepth.Set(float64(len(q.jobs)))
			q.execute(ctx, job, id)
		}
	}
}

func (q *Queue) execute(ctx context.Context, job Job, workerID int) {
	defer q.release(job.Key)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				q.stats.panics.Add(1)
				q.logger.Error("job panic recovered",
					slog.Int("worker_id", workerID),
					slog.String("key", job.Key),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = fmt.Errorf("job %s panicked: %v", job.Key, r)
			}
		}()
		return job.Run(ctx)
	}()

	if err == nil {
		q.stats.succeeded.Add(1)
		return
	}
	q.stats.failed.Add(1)
	q.logger.Warn("job failed",
		slog.Int("worker_id", workerID),
		slog.String("key", job.Key),
		slog.String("error", err.Error()))
	if q.errorHandler != nil {
		q.errorHandler(job, err)
	}
}

func (q *Queue) reserve(key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if key == "" {
		return nil
	}
	if _, ok := q.pending[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, key)
	}
	q.pending[key] = time.Now()
	return nil
}

func (q *Queue) release(key string) {
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()
}

// Enqueue 非阻塞入队。
func (q *Queue) Enqueue(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run func", job.Key)
	}
	if q.closed.Load() {
		return ErrClosed
	}
	if err := q.reserve(job.Key); err != nil {
		q.stats.rejected.Add(1)
		return err
	}

	select {
	case q.jobs <- job:
		q.stats.enqueued.Add(1)
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return nil
	default:
		q.release(job.Key)
		q.stats.rejected.Add(1)
		q.logger.Warn("queue full, drop job",
			slog.String("key", job.Key),
			slog.Int("capacity", cap(q.jobs)))
		return ErrFull
	}
}

// EnqueueBlocking 阻塞式入队，直到成功或 ctx 被取消。
func (q *Queue) EnqueueBlocking(ctx context.Context, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run func", job.Key)
	}
	if q.closed.Load() {
		return ErrClosed
	}
	if err := q.reserve(job.Key); err != nil {
		q.stats.rejected.Add(1)
		return err
	}

	select {
	case q.jobs <- job:
		q.stats.enqueued.Add(1)
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return nil
	case <-ctx.Done():
		q.release(job.Key)
		return ctx.Err()
	}
}

// ShutdownWithTimeout 停止接收新任务并等待 worker 完成当前任务。
func (q *Queue) ShutdownWithTimeout(timeout time.Duration) error {
	if !q.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(q.jobs)
	q.logger.Info("queue shutdown initiated", slog.String("timeout", timeout.String()))

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("queue shutdown completed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("queue shutdown timeout after %s", timeout)
	}
}

// Pending 返回等待或执行中的任务，按入队时间排序。
func (q *Queue) Pending() []PendingJob {
	q.mu.Lock()
	out := make([]PendingJob, 0, len(q.pending))
	for k, t := range q.pending {
		out = append(out, PendingJob{Key: k, Enqueued: t})
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Enqueued.Equal(out[j].Enqueued) {
			return out[i].Key < out[j].Key
		}
		return out[i].Enqueued.Before(out[j].Enqueued)
	})
	return out
}

// Stats 返回统计快照。
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.stats.enqueued.Load(),
		Succeeded: q.stats.succeeded.Load(),
		Failed:    q.stats.failed.Load(),
		Rejected:  q.stats.rejected.Load(),
		Panics:    q.stats.panics.Load(),
	}
}

// Len 返回队列中尚未被 worker 取走的任务数。
func (q *Queue) Len() int { return len(q.jobs) }

// Workers 返回 worker 数量。
func (q *Queue) Workers() int { return q.workers }
