package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Cursor 将页序号映射为商店的页码参数。
//
// 例如 Start=1, Step=1 生成 1,2,3...；Start=0, Step=12 生成偏移量 0,12,24...
type Cursor struct {
	Start int
	Step  int
}

// Page 返回第 index 页（从 0 开始）的页码值。
func (c Cursor) Page(index int) int {
	step := c.Step
	if step == 0 {
		step = 1
	}
	return c.Start + index*step
}

// WithQuery 在 rawURL 上新增或覆盖查询参数。
func WithQuery(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// WithPathSuffix 在 rawURL 的路径末尾追加 suffix，并设置查询参数。
func WithPathSuffix(rawURL, suffix string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(suffix, "/")
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// QueryPager 生成 ?name=<page> 形式的分页 URL。
func QueryPager(name string, c Cursor, extra map[string]string) func(base string, index int) (string, error) {
	return func(base string, index int) (string, error) {
		params := map[string]string{name: strconv.Itoa(c.Page(index))}
		for k, v := range extra {
			params[k] = v
		}
		return WithQuery(base, params)
	}
}

// PathPager 生成 /<format % page> 形式的分页 URL，如 "page-%d"。
func PathPager(format string, c Cursor, extra map[string]string) func(base string, index int) (string, error) {
	return func(base string, index int) (string, error) {
		return WithPathSuffix(base, fmt.Sprintf(format, c.Page(index)), extra)
	}
}

// Resolve 将相对链接解析为基于 base 的绝对链接。
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
