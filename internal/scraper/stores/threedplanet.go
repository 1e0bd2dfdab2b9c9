package stores

import (
	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

// NewThreeDPlanet 按 page 参数分页。价格位于商品卡片的第一个链接内。
func NewThreeDPlanet(d scraper.Deps) scraper.Adapter {
	return &htmlStore{
		key:     model.StoreThreeDPlanet,
		deps:    d,
		pageURL: scraper.QueryPager("page", scraper.Cursor{Start: 1, Step: 1}, nil),
		block:   "div.product-card",
		extract: extractFields(fields{
			link:      "a",
			name:      "h3",
			image:     "img",
			imageBase: "https://3dplanet.am",
			price:     "a",
		}),
	}
}
