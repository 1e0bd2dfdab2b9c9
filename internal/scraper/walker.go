package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"eazyfind/internal/model"
	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/metrics"
)

// Stop 分页终止原因。
type Stop string

const (
	StopNone      Stop = ""
	StopExhausted Stop = "exhausted" // 页面没有商品块
	StopDuplicate Stop = "duplicate" // 出现已抓取过的 URL
	StopMaxPages  Stop = "max_pages" // 达到页数上限
	StopGone      Stop = "gone"      // 首页之后返回 404/410
	StopBudget    Stop = "budget"    // 错误预算耗尽
	StopFailed    Stop = "failed"    // 传输错误或状态码错误
	StopCanceled  Stop = "canceled"  // 上下文取消
)

// 每页最多记录的单品失败日志条数
const itemErrorLogLimit = 3

// Walker 是单个列表抓取的分页状态机。
//
// 它不做任何 I/O：调用方依次报告页的开始、商品块的解析结果，
// Walker 决定是否继续，并累积去重后的商品。
type Walker struct {
	store     string
	maxErrors int
	maxPages  int

	items       []model.ScrapedItem
	seen        map[string]struct{}
	consecutive int // 连续失败次数
	pages       int
	stop        Stop
}

// NewWalker 创建分页状态机。maxPages <= 0 表示不限页数。
func NewWalker(store string, maxErrors, maxPages int) *Walker {
	if maxErrors < 0 {
		maxErrors = 0
	}
	return &Walker{
		store:     store,
		maxErrors: maxErrors,
		maxPages:  maxPages,
		seen:      make(map[string]struct{}),
	}
}

// NextPage 开始新的一页；已终止或达到页数上限时返回 false。
func (w *Walker) NextPage() bool {
	if w.stop != StopNone {
		return false
	}
	if w.maxPages > 0 && w.pages >= w.maxPages {
		w.stop = StopMaxPages
		return false
	}
	w.pages++
	return true
}

// Exhausted 标记分页正常耗尽。
func (w *Walker) Exhausted() {
	w.finish(StopExhausted)
}

// Accept 接收一个解析成功的商品并重置连续失败计数。
// 返回 false 表示 URL 已出现过，分页应立即结束，该商品不会被加入。
func (w *Walker) Accept(item model.ScrapedItem) bool {
	if w.stop != StopNone {
		return false
	}
	key := strings.ToLower(item.URL)
	if _, ok := w.seen[key]; ok {
		w.stop = StopDuplicate
		return false
	}
	w.seen[key] = struct{}{}
	w.items = append(w.items, item)
	w.consecutive = 0
	return true
}

// Reject 记录一次单品解析失败。连续失败次数超过上限时返回终止错误。
func (w *Walker) Reject(cause error) error {
	w.consecutive++
	if w.consecutive > w.maxErrors {
		w.stop = StopBudget
		return fmt.Errorf("%w: %d consecutive item failures (max %d): %v",
			ErrErrorBudgetExceeded, w.consecutive, w.maxErrors, cause)
	}
	return nil
}

func (w *Walker) finish(s Stop) {
	if w.stop == StopNone {
		w.stop = s
	}
}

// Items 返回已累积的商品。
func (w *Walker) Items() []model.ScrapedItem { return w.items }

// Stopped 返回终止原因，尚未终止时为 StopNone。
func (w *Walker) Stopped() Stop { return w.stop }

// Pages 返回已开始的页数。
func (w *Walker) Pages() int { return w.pages }

// PageLoader 加载第 index 页（从 0 开始）的商品块。
type PageLoader[B any] func(ctx context.Context, index int) ([]B, error)

// Extractor 从一个商品块中提取商品。
type Extractor[B any] func(block B) (model.ScrapedItem, error)

// Walk 驱动分页：按顺序加载页、逐块提取，并由 Walker 决定何时结束。
//
// 参数:
//
//	ctx: 取消信号，取消时立即返回
//	w: 分页状态机
//	log: 日志记录器
//	load: 页面加载函数
//	extract: 商品块提取函数
//
// 返回值:
//
//	[]model.ScrapedItem: 已累积的商品（出错时同样返回）
//	error: 预算耗尽、传输错误或取消
func Walk[B any](ctx context.Context, w *Walker, log *slog.Logger, load PageLoader[B], extract Extractor[B]) ([]model.ScrapedItem, error) {
	log = logger.OrDiscard(log)

	for index := 0; w.NextPage(); index++ {
		if err := ctx.Err(); err != nil {
			w.finish(StopCanceled)
			return w.Items(), err
		}

		blocks, err := load(ctx, index)
		if err != nil {
			var se *StatusError
			if index > 0 && errors.As(err, &se) && se.Gone() {
				metrics.ScrapePagesTotal.WithLabelValues(w.store, "gone").Inc()
				w.finish(StopGone)
				break
			}
			metrics.ScrapePagesTotal.WithLabelValues(w.store, "error").Inc()
			if ctx.Err() != nil {
				w.finish(StopCanceled)
			} else {
				w.finish(StopFailed)
			}
			metrics.ScrapeStopTotal.WithLabelValues(w.store, string(w.stop)).Inc()
			return w.Items(), fmt.Errorf("%s page %d: %w", w.store, index+1, err)
		}

		if len(blocks) == 0 {
			metrics.ScrapePagesTotal.WithLabelValues(w.store, "empty").Inc()
			log.Info("no items found, finish scraping",
				slog.String("store", w.store),
				slog.Int("page", index+1))
			w.Exhausted()
			break
		}
		metrics.ScrapePagesTotal.WithLabelValues(w.store, "ok").Inc()

		logged := 0
		for i, block := range blocks {
			item, err := extract(block)
			if err != nil {
				metrics.ScrapeItemsTotal.WithLabelValues(w.store, "error").Inc()
				if logged < itemErrorLogLimit {
					logged++
					log.Warn("extract item failed",
						slog.String("store", w.store),
						slog.Int("page", index+1),
						slog.Int("index", i),
						slog.String("error", err.Error()))
				}
				if budgetErr := w.Reject(err); budgetErr != nil {
					log.Error("maximum count of errors reached, stop scraping",
						slog.String("store", w.store),
						slog.Int("max_errors", w.maxErrors))
					metrics.ScrapeStopTotal.WithLabelValues(w.store, string(StopBudget)).Inc()
					return w.Items(), budgetErr
				}
				continue
			}
			metrics.ScrapeItemsTotal.WithLabelValues(w.store, "ok").Inc()
			if !w.Accept(item) {
				log.Info("repeated item found, finish scraping",
					slog.String("store", w.store),
					slog.Int("page", index+1),
					slog.String("url", item.URL))
				break
			}
		}
	}

	metrics.ScrapeStopTotal.WithLabelValues(w.store, string(w.stop)).Inc()
	log.Info("total products scraped successfully",
		slog.String("store", w.store),
		slog.Int("count", len(w.items)),
		slog.Int("pages", w.pages),
		slog.String("stop", string(w.stop)))
	return w.Items(), nil
}
