package stores

import (
	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

// NewAllCell 按 p 参数分页，越界页会重复最后一页。
func NewAllCell(d scraper.Deps) scraper.Adapter {
	return &htmlStore{
		key:     model.StoreAllCell,
		deps:    d,
		pageURL: scraper.QueryPager("p", scraper.Cursor{Start: 1, Step: 1}, nil),
		block:   "li.product-item",
		extract: extractFields(fields{
			link:  `a[class*="product-item-link"]`,
			image: "img",
			price: "span.price",
		}),
	}
}
