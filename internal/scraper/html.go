package scraper

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML 解析 HTML 文档。
func ParseHTML(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Text 返回去除多余空白后的文本。
func Text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// RequireText 返回 selector 匹配的第一个元素的文本，为空时返回 ErrMissingField。
func RequireText(s *goquery.Selection, selector, field string) (string, error) {
	txt := Text(s.Find(selector).First())
	if txt == "" {
		return "", fmt.Errorf("%w: %s (%s)", ErrMissingField, field, selector)
	}
	return txt, nil
}

// RequireAttr 返回 selector 匹配的第一个元素的属性值。
// attrs 按顺序尝试，适配懒加载图片的 data-src 等属性。
func RequireAttr(s *goquery.Selection, selector, field string, attrs ...string) (string, error) {
	node := s
	if selector != "" {
		node = s.Find(selector).First()
	}
	for _, attr := range attrs {
		if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", fmt.Errorf("%w: %s (%s[%s])", ErrMissingField, field, selector, strings.Join(attrs, "|"))
}

// HTMLPages 构造基于 HTML 列表页的 PageLoader。
//
// 参数:
//
//	fetch: 页面获取器
//	listingURL: 列表首页
//	pageURL: 由首页与页序号生成分页 URL
//	waitSelector: 渲染策略下等待的选择器
//	blockSelector: 商品块选择器
func HTMLPages(fetch Fetcher, listingURL string, pageURL func(base string, index int) (string, error), waitSelector, blockSelector string) PageLoader[*goquery.Selection] {
	return func(ctx context.Context, index int) ([]*goquery.Selection, error) {
		target, err := pageURL(listingURL, index)
		if err != nil {
			return nil, err
		}
		resp, err := fetch.Fetch(ctx, Request{URL: target, WaitSelector: waitSelector})
		if err != nil {
			return nil, err
		}
		doc, err := ParseHTML(resp.Body)
		if err != nil {
			return nil, err
		}
		var blocks []*goquery.Selection
		doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
			blocks = append(blocks, s)
		})
		return blocks, nil
	}
}

// SinglePage 只生成首页 URL 的分页函数。
func SinglePage(base string, _ int) (string, error) { return base, nil }
