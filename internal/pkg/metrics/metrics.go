package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eazyfind"

var (
	// ScrapePagesTotal 按商店与结果统计抓取的页数。
	ScrapePagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_pages_total",
		Help:      "Listing pages fetched, by store and outcome.",
	}, []string{"store", "outcome"})

	// ScrapeItemsTotal 按商店统计解析成功/失败的商品块数。
	ScrapeItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_items_total",
		Help:      "Item blocks parsed, by store and result.",
	}, []string{"store", "result"})

	// ScrapeStopTotal 分页终止原因。
	ScrapeStopTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_stop_total",
		Help:      "Pagination terminations, by store and reason.",
	}, []string{"store", "reason"})

	// FetchDuration 单次页面获取耗时。
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Page fetch latency, by store and strategy.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"store", "strategy"})

	// RenderJobPolls 渲染任务完成前的轮询次数。
	RenderJobPolls = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "render_job_polls",
		Help:      "Status polls needed per render job.",
		Buckets:   prometheus.LinearBuckets(1, 3, 10),
	})

	// ReconcileItemsTotal 对账结果数量。
	ReconcileItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_items_total",
		Help:      "Reconciled catalog items, by store, category and kind.",
	}, []string{"store", "category", "kind"})

	// PartitionRunsTotal 分区运行次数（按终态）。
	PartitionRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "partition_runs_total",
		Help:      "Partition runs, by store, category and status.",
	}, []string{"store", "category", "status", "reason"})

	// PartitionRunDuration 分区运行耗时。
	PartitionRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "partition_run_duration_seconds",
		Help:      "Duration of one store-partition run.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"category"})

	// InsertConflictsTotal 插入时的唯一 URL 冲突。
	InsertConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "insert_conflicts_total",
		Help:      "Rows skipped on insert due to unique url conflicts.",
	}, []string{"store", "category"})

	// RunsInFlight 正在执行的分类运行数。
	RunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "runs_in_flight",
		Help:      "Category sweeps currently running.",
	})

	// WorkerPoolCapacity 运行 worker 池大小。
	WorkerPoolCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_pool_capacity",
		Help:      "Configured worker pool size.",
	})

	// QueueDepth 内存队列中等待的任务数。
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Jobs waiting in the in-process run queue.",
	})

	// RateLimitWaitDuration 获取令牌的等待时间。
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent waiting for a rate limit token.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	// RateLimitTimeoutTotal 等待令牌超时次数。
	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_timeout_total",
		Help:      "Rate limit waits aborted by context.",
	})

	// TaskAutoClaimTotal 通过 XAUTOCLAIM 认领的消息数。
	TaskAutoClaimTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "run_queue_autoclaim_total",
		Help:      "Run messages reclaimed from idle consumers.",
	})

	// TaskDLQTotal 进入死信队列的消息数。
	TaskDLQTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "run_queue_dlq_total",
		Help:      "Run messages moved to the dead letter stream.",
	})

	// RunGuardSkippedTotal 因同一分类正在运行而跳过的触发。
	RunGuardSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "run_guard_skipped_total",
		Help:      "Triggers skipped because the category was already running.",
	}, []string{"category"})
)

// InitMetrics 设置静态指标。
func InitMetrics(workers int) {
	WorkerPoolCapacity.Set(float64(workers))
}
