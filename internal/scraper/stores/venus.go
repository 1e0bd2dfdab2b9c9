package stores

import (
	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

func NewVenus(d scraper.Deps) scraper.Adapter {
	return &htmlStore{
		key:     model.StoreVenus,
		deps:    d,
		pageURL: scraper.QueryPager("page", scraper.Cursor{Start: 1, Step: 1}, map[string]string{"limit": "100"}),
		block:   "div.product-block",
		extract: extractFields(fields{
			link:  "a",
			name:  "h4 a",
			image: "img.img-responsive",
			price: "p.price",
		}),
	}
}
