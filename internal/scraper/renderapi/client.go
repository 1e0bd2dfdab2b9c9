// Package renderapi 实现基于第三方异步渲染服务的页面获取器。
//
// 渲染服务以任务形式工作：提交任务后轮询状态地址，直到任务完成或轮询次数耗尽。
package renderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"eazyfind/internal/config"
	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/metrics"
	"eazyfind/internal/scraper"
)

// ErrJobTimeout 轮询次数耗尽时任务仍未完成。
var ErrJobTimeout = errors.New("render job did not finish within the polling window")

const (
	statusFinished = "finished"
	statusFailed   = "failed"
)

type jobRequest struct {
	APIKey    string            `json:"apiKey"`
	URLs      []string          `json:"urls"`
	APIParams map[string]string `json:"apiParams"`
}

type addedJob struct {
	ID        string `json:"id"`
	StatusURL string `json:"statusUrl"`
}

type jobStatus struct {
	Status   string `json:"status"`
	Response struct {
		StatusCode int    `json:"statusCode"`
		Body       string `json:"body"`
	} `json:"response"`
}

// Client 渲染服务获取器，实现 scraper.Fetcher。每个商店使用独立的 Client 与 Session。
type Client struct {
	http          *http.Client
	baseURL       string
	apiKey        string
	retryCount    int
	retryInterval time.Duration
	store         string
	session       *scraper.Session
	limiter       scraper.Limiter
	logger        *slog.Logger
}

// Option Client 选项。
type Option func(*Client)

// WithHTTPClient 替换默认 HTTP 客户端。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLimiter 提交任务前获取令牌。
func WithLimiter(l scraper.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = logger.OrDiscard(l) }
}

// New 创建渲染服务客户端。
func New(cfg config.RenderAPIConfig, store string, session *scraper.Session, opts ...Option) *Client {
	if session == nil {
		session = scraper.NewSession()
	}
	c := &Client{
		http:          &http.Client{Timeout: 60 * time.Second},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		retryCount:    cfg.RetryCount,
		retryInterval: cfg.RetryInterval,
		store:         store,
		session:       session,
		logger:        logger.Discard(),
	}
	if c.retryCount <= 0 {
		c.retryCount = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch 提交渲染任务并轮询结果。
//
// 参数:
//
//	ctx: 取消信号，等待与请求都会响应取消
//	req: 目标页面，WaitSelector 作为渲染等待条件
//
// 返回值:
//
//	*scraper.Response: 渲染后的页面
//	error: 任务失败、状态码错误或 ErrJobTimeout（此时会轮换会话号）
func (c *Client) Fetch(ctx context.Context, req scraper.Request) (*scraper.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("acquire rate limit: %w", err)
		}
	}

	session := c.session.Number()
	job, err := c.submit(ctx, req, session)
	if err != nil {
		return nil, err
	}
	c.logger.Info("render job started",
		slog.String("store", c.store),
		slog.String("job_id", job.ID),
		slog.Int("session", session))

	for attempt := 1; attempt <= c.retryCount; attempt++ {
		if err := sleep(ctx, c.retryInterval); err != nil {
			return nil, err
		}

		st, err := c.poll(ctx, job.StatusURL)
		if err != nil {
			return nil, err
		}

		switch st.Status {
		case statusFinished:
			metrics.RenderJobPolls.Observe(float64(attempt))
			if st.Response.StatusCode != http.StatusOK {
				return nil, &scraper.StatusError{Code: st.Response.StatusCode, URL: req.URL}
			}
			c.logger.Info("render job finished",
				slog.String("store", c.store),
				slog.String("job_id", job.ID),
				slog.Int("polls", attempt))
			return &scraper.Response{
				StatusCode: st.Response.StatusCode,
				URL:        req.URL,
				Body:       []byte(st.Response.Body),
			}, nil
		case statusFailed:
			metrics.RenderJobPolls.Observe(float64(attempt))
			return nil, fmt.Errorf("render job %s failed for %s", job.ID, req.URL)
		}

		c.logger.Debug("waiting for render job",
			slog.String("store", c.store),
			slog.String("job_id", job.ID),
			slog.String("status", st.Status),
			slog.Int("attempt", attempt))
	}

	next := c.session.Rotate()
	c.logger.Warn("render job timeout, session rotated",
		slog.String("store", c.store),
		slog.String("job_id", job.ID),
		slog.Int("old_session", session),
		slog.Int("new_session", next))
	return nil, fmt.Errorf("%w: job %s for %s", ErrJobTimeout, job.ID, req.URL)
}

func (c *Client) submit(ctx context.Context, req scraper.Request, session int) (*addedJob, error) {
	params := map[string]string{
		"render":         "true",
		"session_number": strconv.Itoa(session),
	}
	if req.WaitSelector != "" {
		params["wait_for_selector"] = req.WaitSelector
	}
	payload, err := json.Marshal(jobRequest{
		APIKey:    c.apiKey,
		URLs:      []string{req.URL},
		APIParams: params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal render job: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build render job request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var jobs []addedJob
	if err := c.doJSON(httpReq, &jobs); err != nil {
		return nil, fmt.Errorf("submit render job: %w", err)
	}
	if len(jobs) == 0 || jobs[0].StatusURL == "" {
		return nil, fmt.Errorf("submit render job: no status url returned")
	}
	job := jobs[0]
	job.StatusURL = c.resolve(job.StatusURL)
	return &job, nil
}

func (c *Client) poll(ctx context.Context, statusURL string) (*jobStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	var st jobStatus
	if err := c.doJSON(httpReq, &st); err != nil {
		return nil, fmt.Errorf("poll render job: %w", err)
	}
	return &st, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &scraper.StatusError{Code: resp.StatusCode, URL: req.URL.String()}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// resolve 处理服务返回相对状态地址的情况。
func (c *Client) resolve(statusURL string) string {
	u, err := url.Parse(statusURL)
	if err != nil || u.IsAbs() {
		return statusURL
	}
	return scraper.Resolve(c.baseURL+"/", statusURL)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
