package stores

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

const (
	vlvProductURL = "https://vlv.am/Product/%s"
	vlvImageURL   = "https://vlv.am/public/%s"
	vlvPageSize   = 60
)

// flexString 兼容 JSON 字符串与数字。
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

type vlvBrand struct {
	Name string `json:"name"`
}

type vlvPricing struct {
	SellingPrice flexString `json:"selling_price"`
}

type vlvProduct struct {
	SellerID    flexString  `json:"seller_id"`
	ProductName string      `json:"product_name"`
	Thumbnail   string      `json:"thumbnail_image_source"`
	Brand       *vlvBrand   `json:"brand"`
	Pricing     *vlvPricing `json:"pricing"`
}

type vlvPage struct {
	Products []vlvProduct `json:"products"`
}

// vlv 通过 JSON 接口抓取：对列表地址 POST multipart 表单（p, page, slug）。
type vlv struct {
	deps scraper.Deps
}

func NewVLV(d scraper.Deps) scraper.Adapter { return &vlv{deps: d} }

func (v *vlv) Store() model.StoreKey { return model.StoreVLV }

func (v *vlv) Scrape(ctx context.Context, listingURL string) ([]model.ScrapedItem, error) {
	slug, err := vlvSlug(listingURL)
	if err != nil {
		return nil, err
	}
	cursor := scraper.Cursor{Start: 1, Step: 1}

	load := func(ctx context.Context, index int) ([]vlvProduct, error) {
		form := url.Values{}
		form.Set("p", strconv.Itoa(vlvPageSize))
		form.Set("page", strconv.Itoa(cursor.Page(index)))
		form.Set("slug", slug)

		resp, err := v.deps.Fetcher.Fetch(ctx, scraper.Request{
			Method: http.MethodPost,
			URL:    listingURL,
			Form:   form,
			Header: http.Header{"Accept": {"application/json"}},
		})
		if err != nil {
			return nil, err
		}
		var page vlvPage
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, fmt.Errorf("decode vlv page %d: %w", index+1, err)
		}
		return page.Products, nil
	}

	return scraper.Walk(ctx, v.deps.NewWalker(model.StoreVLV), v.deps.Log(model.StoreVLV), load, extractVLV)
}

func extractVLV(p vlvProduct) (model.ScrapedItem, error) {
	id := strings.TrimSpace(string(p.SellerID))
	if id == "" {
		return model.ScrapedItem{}, fmt.Errorf("%w: seller_id", scraper.ErrMissingField)
	}
	name := strings.TrimSpace(p.ProductName)
	if p.Brand != nil && strings.TrimSpace(p.Brand.Name) != "" {
		name = strings.TrimSpace(p.Brand.Name) + " " + name
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return model.ScrapedItem{}, fmt.Errorf("%w: product_name", scraper.ErrMissingField)
	}

	item := model.ScrapedItem{
		URL:  fmt.Sprintf(vlvProductURL, id),
		Name: name,
	}
	if p.Thumbnail != "" {
		item.ImageURL = fmt.Sprintf(vlvImageURL, strings.TrimLeft(p.Thumbnail, "/"))
	}
	if p.Pricing != nil {
		item.Price = scraper.ParsePrice(string(p.Pricing.SellingPrice))
	}
	return item, nil
}

// vlvSlug 取列表地址路径的最后一段。
func vlvSlug(listingURL string) (string, error) {
	u, err := url.Parse(listingURL)
	if err != nil {
		return "", fmt.Errorf("parse vlv url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	slug := parts[len(parts)-1]
	if slug == "" {
		return "", fmt.Errorf("vlv url %q has no category slug", listingURL)
	}
	return slug, nil
}
