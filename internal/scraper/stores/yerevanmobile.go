package stores

import (
	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

// NewYerevanMobile 列表由前端渲染，需通过渲染服务获取（等待 .grid_list）。
func NewYerevanMobile(d scraper.Deps) scraper.Adapter {
	if d.WaitSelector == "" {
		d.WaitSelector = ".grid_list"
	}
	return &htmlStore{
		key:     model.StoreYerevanMobile,
		deps:    d,
		pageURL: scraper.QueryPager("p", scraper.Cursor{Start: 1, Step: 1}, nil),
		block:   "div.product-item-info",
		extract: extractFields(fields{
			link:  "a.product-item-link",
			image: "img.product-image-photo",
			price: "span.price",
		}),
	}
}
