// Package stores 包含各商店的抓取适配器及其注册与装配。
package stores

import (
	"context"

	"eazyfind/internal/model"
	"eazyfind/internal/scraper"

	"github.com/PuerkitoBio/goquery"
)

// blockExtractor 从商品块提取商品，listingURL 用于解析相对链接。
type blockExtractor func(listingURL string, s *goquery.Selection) (model.ScrapedItem, error)

// htmlStore 基于 HTML 列表页的通用适配器，各商店只提供分页方式、商品块选择器与字段提取。
type htmlStore struct {
	key        model.StoreKey
	deps       scraper.Deps
	pageURL    func(base string, index int) (string, error)
	block      string
	extract    blockExtractor
	singlePage bool
}

func (h *htmlStore) Store() model.StoreKey { return h.key }

func (h *htmlStore) Scrape(ctx context.Context, listingURL string) ([]model.ScrapedItem, error) {
	w := h.deps.NewWalker(h.key)
	if h.singlePage {
		w = scraper.NewWalker(h.key.String(), h.deps.MaxErrors, 1)
	}
	load := scraper.HTMLPages(h.deps.Fetcher, listingURL, h.pageURL, h.deps.WaitSelector, h.block)
	return scraper.Walk(ctx, w, h.deps.Log(h.key), load, func(s *goquery.Selection) (model.ScrapedItem, error) {
		return h.extract(listingURL, s)
	})
}

// fields 常见的字段提取参数。
type fields struct {
	link      string   // 商品链接元素
	name      string   // 名称元素，为空时使用链接文本
	image     string   // 图片元素
	imageBase string   // 相对图片地址的基准，为空时使用列表页
	price     string   // 价格元素
	lastPrice bool     // 取最后一个价格元素
	imgAttrs  []string // 图片属性优先级
}

// extractFields 按 fields 描述提取商品。链接与名称必需，图片与价格尽力而为。
func extractFields(f fields) blockExtractor {
	attrs := f.imgAttrs
	if len(attrs) == 0 {
		attrs = []string{"src", "data-src"}
	}
	return func(listingURL string, s *goquery.Selection) (model.ScrapedItem, error) {
		href, err := scraper.RequireAttr(s, f.link, "url", "href")
		if err != nil {
			return model.ScrapedItem{}, err
		}

		nameSel := f.name
		if nameSel == "" {
			nameSel = f.link
		}
		name, err := scraper.RequireText(s, nameSel, "name")
		if err != nil {
			return model.ScrapedItem{}, err
		}

		imageBase := f.imageBase
		if imageBase == "" {
			imageBase = listingURL
		}
		image := ""
		if f.image != "" {
			if src, err := scraper.RequireAttr(s, f.image, "image", attrs...); err == nil {
				image = scraper.Resolve(imageBase, src)
			}
		}

		var price int64
		if f.price != "" {
			sel := s.Find(f.price)
			if f.lastPrice {
				sel = sel.Last()
			} else {
				sel = sel.First()
			}
			price = scraper.ParsePrice(scraper.Text(sel))
		}

		return model.ScrapedItem{
			URL:      scraper.Resolve(listingURL, href),
			ImageURL: image,
			Name:     name,
			Price:    price,
		}, nil
	}
}
