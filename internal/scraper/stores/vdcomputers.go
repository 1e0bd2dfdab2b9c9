package stores

import (
	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

// NewVdComputers 按 /page/N/ 路径分页。
// 折扣商品有两个价格，取最后一个 screen-reader-text（当前价）。
func NewVdComputers(d scraper.Deps) scraper.Adapter {
	return &htmlStore{
		key:     model.StoreVdComputers,
		deps:    d,
		pageURL: scraper.PathPager("page/%d/", scraper.Cursor{Start: 1, Step: 1}, map[string]string{"per_page": "36"}),
		block:   "div.product-grid-item",
		extract: extractFields(fields{
			link:      "h3.wd-entities-title > a",
			image:     "img",
			price:     "span.screen-reader-text",
			lastPrice: true,
		}),
	}
}
