package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"time"

	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/metrics"
)

// 获取策略
const (
	StrategyDirect = "direct"
	StrategyProxy  = "proxy"
	StrategyRender = "render"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	maxBodyBytes     = 16 << 20
)

// Request 一次页面获取请求。
type Request struct {
	Method string
	URL    string
	// Form 非空时以 multipart/form-data 提交
	Form url.Values
	// WaitSelector 渲染策略下等待出现的 CSS 选择器，直接获取时忽略
	WaitSelector string
	Header       http.Header
}

// Response 成功获取的页面。
type Response struct {
	StatusCode int
	URL        string
	Body       []byte
}

// Fetcher 获取页面。非 2xx 状态码以 *StatusError 返回。
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// FetcherFunc 函数适配器。
type FetcherFunc func(ctx context.Context, req Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*Response, error) { return f(ctx, req) }

// Limiter 请求前获取令牌。
type Limiter interface {
	Acquire(ctx context.Context) error
}

// HTTPFetcher 直接通过 HTTP 获取页面，可选代理与限流。
type HTTPFetcher struct {
	client      *http.Client
	limiter     Limiter
	userAgent   string
	logger      *slog.Logger
	detectBlock bool
}

// HTTPOption HTTPFetcher 选项。
type HTTPOption func(*HTTPFetcher) error

// WithLimiter 设置限流器。
func WithLimiter(l Limiter) HTTPOption {
	return func(f *HTTPFetcher) error {
		f.limiter = l
		return nil
	}
}

// WithProxy 通过代理发送请求。
func WithProxy(proxyURL string) HTTPOption {
	return func(f *HTTPFetcher) error {
		if proxyURL == "" {
			return nil
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(u)
		f.client.Transport = transport
		return nil
	}
}

// WithUserAgent 覆盖默认 User-Agent。
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) error {
		if ua != "" {
			f.userAgent = ua
		}
		return nil
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) HTTPOption {
	return func(f *HTTPFetcher) error {
		f.logger = logger.OrDiscard(l)
		return nil
	}
}

// WithoutBlockDetection 关闭拦截页检测（JSON 接口使用）。
func WithoutBlockDetection() HTTPOption {
	return func(f *HTTPFetcher) error {
		f.detectBlock = false
		return nil
	}
}

// NewHTTPFetcher 创建直接获取器。
func NewHTTPFetcher(timeout time.Duration, opts ...HTTPOption) (*HTTPFetcher, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	f := &HTTPFetcher{
		client:      &http.Client{Timeout: timeout},
		userAgent:   defaultUserAgent,
		logger:      logger.Discard(),
		detectBlock: true,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Fetch 发送请求并读取响应体。
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("acquire rate limit: %w", err)
		}
	}

	httpReq, err := f.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", req.URL, err)
	}

	if f.detectBlock {
		if blockType := DetectBlockType(body); blockType != "" {
			f.logger.Warn("blocked page detected",
				slog.String("url", req.URL),
				slog.String("block_type", blockType))
			return nil, fmt.Errorf("%w: %s at %s", ErrBlocked, blockType, req.URL)
		}
	}

	return &Response{StatusCode: resp.StatusCode, URL: resp.Request.URL.String(), Body: body}, nil
}

func (f *HTTPFetcher) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	var body io.Reader
	contentType := ""

	if req.Form != nil {
		if method == "" {
			method = http.MethodPost
		}
		buf, ct, err := encodeMultipart(req.Form)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	}
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", req.URL, err)
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

// encodeMultipart 按键名排序写入表单字段，保证请求体稳定。
func encodeMultipart(form url.Values) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range form[k] {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("write form field %s: %w", k, err)
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

// Instrument 包装获取器，记录耗时指标。
func Instrument(store, strategy string, next Fetcher) Fetcher {
	return FetcherFunc(func(ctx context.Context, req Request) (*Response, error) {
		start := time.Now()
		resp, err := next.Fetch(ctx, req)
		metrics.FetchDuration.WithLabelValues(store, strategy).Observe(time.Since(start).Seconds())
		return resp, err
	})
}
