package stores

import (
	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

// NewMobileCentre 列表页一次返回全部商品，不分页。
func NewMobileCentre(d scraper.Deps) scraper.Adapter {
	return &htmlStore{
		key:        model.StoreMobileCentre,
		deps:       d,
		pageURL:    scraper.SinglePage,
		block:      "div.listitem",
		singlePage: true,
		extract: extractFields(fields{
			link:  "a.prod-item-img",
			name:  "div.item-body > h3",
			image: "a.prod-item-img img",
			price: "div.item-body span.regular",
		}),
	}
}
