package stores

import (
	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

// NewZigzag 按 p 参数分页，越界页会重复最后一页，由重复 URL 终止。
func NewZigzag(d scraper.Deps) scraper.Adapter {
	return &htmlStore{
		key:     model.StoreZigzag,
		deps:    d,
		pageURL: scraper.QueryPager("p", scraper.Cursor{Start: 1, Step: 1}, nil),
		block:   "div.product_block",
		extract: extractFields(fields{
			link:  "a.product_name",
			image: "img",
			price: "span.price",
		}),
	}
}
