// Package orchestrator 执行一次分类运行：并行抓取各商店、对账并持久化。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"eazyfind/internal/catalog"
	"eazyfind/internal/config"
	"eazyfind/internal/inferrer"
	"eazyfind/internal/model"
	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/metrics"
	"eazyfind/internal/pkg/notify"
	"eazyfind/internal/reconcile"
	"eazyfind/internal/scraper"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoSources 分类没有配置任何来源。
var ErrNoSources = errors.New("no sources configured for category")

// Runner 分类运行的编排器。
//
// 同一分类下的商店分区并行执行（上限 parallelism），单个分区内按来源顺序抓取。
// 分区之间互不影响：一个商店失败只记录在报告中，不会中止其他商店。
type Runner struct {
	partitions  config.Partitions
	adapters    scraper.Resolver
	catalog     catalog.Store
	inferrer    *inferrer.Inferrer
	notifier    notify.Notifier
	logger      *slog.Logger
	parallelism int
	now         func() time.Time
	cacheTTL    time.Duration
	cache       *scrapeCache
}

// Option Runner 配置选项。
type Option func(*Runner)

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger.OrDiscard(l) }
}

// WithNotifier 设置失败报告通知器。
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithInferrer 替换分类推断器。
func WithInferrer(i *inferrer.Inferrer) Option {
	return func(r *Runner) {
		if i != nil {
			r.inferrer = i
		}
	}
}

// WithParallelism 设置同一分类下并行的商店数。
func WithParallelism(n int) Option {
	return func(r *Runner) { r.parallelism = n }
}

// WithClock 设置时钟。
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithScrapeCache 在 ttl 内复用同一 (store, url) 的抓取结果，ttl <= 0 表示关闭。
func WithScrapeCache(ttl time.Duration) Option {
	return func(r *Runner) { r.cacheTTL = ttl }
}

// New 创建编排器。
func New(partitions config.Partitions, adapters scraper.Resolver, store catalog.Store, opts ...Option) *Runner {
	r := &Runner{
		partitions:  partitions,
		adapters:    adapters,
		catalog:     store,
		inferrer:    inferrer.Default(),
		notifier:    notify.Nop{},
		logger:      logger.Discard(),
		parallelism: 4,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.parallelism <= 0 {
		r.parallelism = 1
	}
	if r.cacheTTL > 0 {
		r.cache = newScrapeCache(r.cacheTTL, r.now)
	}
	return r
}

// Categories 返回已配置来源的分类。
func (r *Runner) Categories() []model.CategoryType {
	return r.partitions.Categories()
}

// storeGroup 同一分区 (store, category) 下的全部来源。
type storeGroup struct {
	store   model.StoreKey
	sources []config.PartitionSource
}

func groupByStore(sources []config.PartitionSource) []storeGroup {
	var groups []storeGroup
	index := make(map[model.StoreKey]int)
	for _, src := range sources {
		i, ok := index[src.Store]
		if !ok {
			i = len(groups)
			index[src.Store] = i
			groups = append(groups, storeGroup{store: src.Store})
		}
		groups[i].sources = append(groups[i].sources, src)
	}
	return groups
}

// RunScrapersForCategory 对一个分类的所有商店执行抓取、对账与持久化。
//
// 参数:
//
//	ctx: 取消信号；取消后尚未持久化的分区结果会被丢弃
//	category: 目标分类
//
// 返回值:
//
//	*model.RunReport: 每个商店分区的结果
//	error: 分类未配置或 ctx 被取消；单个商店的失败只体现在报告中
func (r *Runner) RunScrapersForCategory(ctx context.Context, category model.CategoryType) (*model.RunReport, error) {
	return r.Run(ctx, uuid.NewString(), category)
}

// Run 与 RunScrapersForCategory 相同，但使用调用方提供的运行 ID。
func (r *Runner) Run(ctx context.Context, runID string, category model.CategoryType) (*model.RunReport, error) {
	sources := r.partitions[category]
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSources, category)
	}

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	log := r.logger.With(slog.String("run_id", runID), slog.String("category", string(category)))
	report := &model.RunReport{RunID: runID, Category: category, StartedAt: r.now()}
	groups := groupByStore(sources)
	outcomes := make([]model.PartitionOutcome, len(groups))

	log.Info("category run started", slog.Int("stores", len(groups)))
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, grp := range groups {
		g.Go(func() error {
			outcomes[i] = r.runPartition(ctx, log, category, grp)
			return nil
		})
	}
	_ = g.Wait()

	report.Partitions = outcomes
	report.FinishedAt = r.now()
	metrics.PartitionRunDuration.WithLabelValues(string(category)).Observe(time.Since(start).Seconds())

	failed := report.Failed()
	log.Info("category run finished",
		slog.Int("stores", len(outcomes)),
		slog.Int("failed", len(failed)),
		slog.String("duration", time.Since(start).String()))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if len(failed) > 0 {
		if err := r.notifier.NotifyRun(ctx, report); err != nil {
			log.Error("send run report failed", slog.String("error", err.Error()))
		}
	}
	return report, nil
}

// runPartition 执行一个商店分区，所有错误都记录在返回的结果中。
func (r *Runner) runPartition(ctx context.Context, runLog *slog.Logger, category model.CategoryType, grp storeGroup) (out model.PartitionOutcome) {
	started := time.Now()
	log := runLog.With(slog.String("store", string(grp.store)))
	out = model.PartitionOutcome{Store: grp.store, Category: category}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("partition panic recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			out.Status = model.PartitionFailed
			out.Reason = "panic"
			out.Error = fmt.Sprintf("panic: %v", rec)
		}
		out.Duration = time.Since(started)
		metrics.PartitionRunsTotal.WithLabelValues(string(grp.store), string(category), string(out.Status), out.Reason).Inc()
	}()

	fail := func(stage string, err error) model.PartitionOutcome {
		if ctx.Err() != nil {
			out.Status = model.PartitionCanceled
			out.Reason = "canceled"
			out.Error = ctx.Err().Error()
			log.Warn("partition canceled", slog.String("stage", stage))
			return out
		}
		out.Status = model.PartitionFailed
		out.Reason = scraper.Classify(err)
		out.Error = err.Error()
		log.Error("store failed",
			slog.String("stage", stage),
			slog.String("reason", out.Reason),
			slog.String("error", err.Error()))
		return out
	}

	items, err := r.scrapeGroup(ctx, log, category, grp)
	if err != nil {
		return fail("scrape", err)
	}
	out.Scraped = len(items)

	// 抓取完成后再检查取消，保证不会持久化不完整的结果
	if err := ctx.Err(); err != nil {
		return fail("scrape", err)
	}

	partition, err := r.catalog.ResolvePartition(ctx, grp.store, category)
	if err != nil {
		return fail("resolve", err)
	}
	existing, err := r.catalog.GetExistingByPartition(ctx, partition)
	if err != nil {
		return fail("load", err)
	}

	result := reconcile.Reconcile(items, existing, partition, r.now())
	for _, a := range result.Anomalies {
		log.Warn("duplicate product detected",
			slog.String("url", a.URL),
			slog.Uint64("recorded_partition", uint64(a.RecordedPartition)),
			slog.Uint64("scraped_partition", uint64(a.ScrapedPartition)))
	}
	out.Anomalies = len(result.Anomalies)
	out.Unchanged = result.Unchanged

	inserted, err := r.catalog.BulkInsert(ctx, result.New)
	out.New = inserted
	var conflict *catalog.ConflictError
	switch {
	case errors.As(err, &conflict):
		out.Conflicts = len(conflict.URLs)
		metrics.InsertConflictsTotal.WithLabelValues(string(grp.store), string(category)).Add(float64(out.Conflicts))
		log.Warn("unique url conflict on insert",
			slog.Int("skipped", out.Conflicts),
			slog.String("error", err.Error()))
	case err != nil:
		return fail("insert", err)
	}

	if err := r.catalog.BulkUpdate(ctx, result.Updated); err != nil {
		return fail("update", err)
	}
	out.Updated = len(result.Updated)

	if err := r.catalog.BulkDelete(ctx, result.Deleted); err != nil {
		return fail("delete", err)
	}
	out.Deleted = len(result.Deleted)

	out.Status = model.PartitionDone
	metrics.ReconcileItemsTotal.WithLabelValues(string(grp.store), string(category), "new").Add(float64(out.New))
	metrics.ReconcileItemsTotal.WithLabelValues(string(grp.store), string(category), "updated").Add(float64(out.Updated))
	metrics.ReconcileItemsTotal.WithLabelValues(string(grp.store), string(category), "deleted").Add(float64(out.Deleted))
	metrics.ReconcileItemsTotal.WithLabelValues(string(grp.store), string(category), "unchanged").Add(float64(out.Unchanged))

	log.Info("partition processed",
		slog.Int("scraped", out.Scraped),
		slog.Int("new", out.New),
		slog.Int("updated", out.Updated),
		slog.Int("deleted", out.Deleted),
		slog.Int("unchanged", out.Unchanged))
	return out
}

// scrapeGroup 依次抓取分区的每个来源，按需做分类推断并按 URL 去重。
// 任一来源失败则整个分区失败，避免因部分来源缺失而大量删除。
func (r *Runner) scrapeGroup(ctx context.Context, log *slog.Logger, category model.CategoryType, grp storeGroup) ([]model.ScrapedItem, error) {
	adapter, err := r.adapters.Adapter(grp.store)
	if err != nil {
		return nil, err
	}

	var merged []model.ScrapedItem
	for _, src := range grp.sources {
		items, err := r.scrape(ctx, adapter, src.URL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.URL, err)
		}
		if src.RequiresCategoryInference {
			before := len(items)
			items = r.inferrer.Filter(items, category)
			log.Debug("category inference applied",
				slog.String("url", src.URL),
				slog.Int("scraped", before),
				slog.Int("kept", len(items)))
		}
		merged = append(merged, items...)
	}
	return reconcile.DedupByURL(merged), nil
}

func (r *Runner) scrape(ctx context.Context, adapter scraper.Adapter, url string) ([]model.ScrapedItem, error) {
	if r.cache == nil {
		return adapter.Scrape(ctx, url)
	}
	items, _, err := r.cache.get(ctx, adapter.Store(), url, func(ctx context.Context) ([]model.ScrapedItem, error) {
		return adapter.Scrape(ctx, url)
	})
	return items, err
}
