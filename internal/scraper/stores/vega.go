package stores

import (
	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

func NewVega(d scraper.Deps) scraper.Adapter {
	return &htmlStore{
		key:     model.StoreVega,
		deps:    d,
		pageURL: scraper.PathPager("page-%d", scraper.Cursor{Start: 1, Step: 1}, map[string]string{"limit": "100"}),
		block:   "div.product-grid > div.row > div",
		extract: extractFields(fields{
			link:  "div.name > a",
			image: "div.image img",
			price: "span.price-new",
		}),
	}
}
