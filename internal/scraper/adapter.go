// Package scraper 定义商店抓取适配器的契约以及各适配器共享的分页、获取与解析组件。
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"eazyfind/internal/model"
)

// Adapter 单个商店的抓取适配器。
//
// Scrape 逐页抓取 listingURL，直到分页耗尽。单品解析失败按错误预算处理；
// 传输层失败、非成功状态码与预算耗尽作为终止错误返回，同时返回已累积的商品。
type Adapter interface {
	Store() model.StoreKey
	Scrape(ctx context.Context, listingURL string) ([]model.ScrapedItem, error)
}

var (
	// ErrErrorBudgetExceeded 连续单品解析失败超过上限。
	ErrErrorBudgetExceeded = errors.New("error budget exceeded")
	// ErrBlocked 页面被反爬拦截（验证码、挑战页等）。
	ErrBlocked = errors.New("blocked page")
	// ErrMissingField 商品块缺少必需字段。
	ErrMissingField = errors.New("missing field")
	// ErrUnknownStore 注册表中没有该商店的构造函数。
	ErrUnknownStore = errors.New("unknown store")
)

// StatusError 上游返回了非成功状态码。
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// Gone 判断状态码是否表示页面不存在（可视为分页结束）。
func (e *StatusError) Gone() bool {
	return e.Code == http.StatusNotFound || e.Code == http.StatusGone
}

// Classify 返回用于 metrics 与日志的错误类型字符串。
func Classify(err error) string {
	if err == nil {
		return "none"
	}
	var se *StatusError
	var ne net.Error
	switch {
	case errors.Is(err, ErrErrorBudgetExceeded):
		return "budget"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.As(err, &se):
		if se.Code == http.StatusForbidden || se.Code == http.StatusTooManyRequests {
			return "blocked"
		}
		return "status"
	case errors.As(err, &ne):
		if ne.Timeout() {
			return "timeout"
		}
		return "network"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "no such host") || strings.Contains(msg, "tls"):
		return "network"
	}
	return "unknown"
}
