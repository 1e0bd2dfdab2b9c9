package stores

import (
	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

// NewRedStore 按 per_page 偏移量分页，每页 12 个商品。
func NewRedStore(d scraper.Deps) scraper.Adapter {
	return &htmlStore{
		key:     model.StoreRedStore,
		deps:    d,
		pageURL: scraper.QueryPager("per_page", scraper.Cursor{Start: 0, Step: 12}, nil),
		block:   "li.globalFrameProduct",
		extract: extractFields(fields{
			link:      "a.frame-photo-title",
			name:      "span.title",
			image:     "img.lazy",
			imageBase: "https://redstore.am",
			price:     "span.priceCashVariant",
		}),
	}
}
