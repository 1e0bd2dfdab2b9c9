package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eazyfind/internal/config"
	"eazyfind/internal/model"
	"eazyfind/internal/scraper"
)

// pageFetcher 按 URL 返回固定页面，未知 URL 返回 404。
type pageFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	requests []scraper.Request
}

func (p *pageFetcher) Fetch(_ context.Context, req scraper.Request) (*scraper.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	body, ok := p.pages[req.URL]
	if !ok {
		return nil, &scraper.StatusError{Code: http.StatusNotFound, URL: req.URL}
	}
	return &scraper.Response{StatusCode: http.StatusOK, URL: req.URL, Body: []byte(body)}, nil
}

func deps(f scraper.Fetcher) scraper.Deps {
	return scraper.Deps{Fetcher: f, MaxErrors: 2, MaxPages: 50}
}

func redStoreItem(i int) string {
	return fmt.Sprintf(`<li class="globalFrameProduct">
  <a class="frame-photo-title" href="https://redstore.am/p/%d"><img class="lazy" src="/img/%d.jpg"></a>
  <span class="title">  Laptop
     %d </span>
  <span class="priceCashVariant">%d,000 ֏</span>
</li>`, i, i, i, 100+i)
}

func TestRedStore_OffsetPagination(t *testing.T) {
	base := "https://redstore.am/laptops"
	page := func(from, to int) string {
		var b strings.Builder
		b.WriteString("<html><body><ul>")
		for i := from; i < to; i++ {
			b.WriteString(redStoreItem(i))
		}
		b.WriteString("</ul></body></html>")
		return b.String()
	}
	f := &pageFetcher{pages: map[string]string{
		base + "?per_page=0":  page(0, 12),
		base + "?per_page=12": page(12, 15),
		base + "?per_page=24": "<html><body><ul></ul></body></html>",
	}}

	items, err := NewRedStore(deps(f)).Scrape(context.Background(), base)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(items) != 15 {
		t.Fatalf("expected 15 items, got %d", len(items))
	}
	first := items[0]
	if first.URL != "https://redstore.am/p/0" || first.ImageURL != "https://redstore.am/img/0.jpg" {
		t.Fatalf("unexpected urls %+v", first)
	}
	if first.Name != "Laptop 0" || first.Price != 100000 {
		t.Fatalf("unexpected fields %+v", first)
	}
}

func zigzagPage(ids ...int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<div class="product_block"><img src="/i/%d.png"><a class="product_name" href="/product/%d">Phone %d</a><span class="price">%d ֏</span></div>`, id, id, id, id*1000)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestZigzag_RepeatedLastPageTerminates(t *testing.T) {
	base := "https://zigzag.am/smartphones"
	f := &pageFetcher{pages: map[string]string{
		base + "?p=1": zigzagPage(1, 2),
		base + "?p=2": zigzagPage(3),
		base + "?p=3": zigzagPage(3),
	}}

	items, err := NewZigzag(deps(f)).Scrape(context.Background(), base)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 unique items, got %d", len(items))
	}
	if items[2].URL != "https://zigzag.am/product/3" || items[2].ImageURL != "https://zigzag.am/i/3.png" {
		t.Fatalf("relative urls not resolved: %+v", items[2])
	}
	if len(f.requests) != 3 {
		t.Fatalf("expected 3 fetches, got %d", len(f.requests))
	}
}

func TestZigzag_SecondPageRepeatsFirstPageItem(t *testing.T) {
	base := "https://zigzag.am/tablets"
	f := &pageFetcher{pages: map[string]string{
		base + "?p=1": zigzagPage(1, 2),
		base + "?p=2": zigzagPage(3, 1, 4),
		base + "?p=3": zigzagPage(5),
	}}

	items, err := NewZigzag(deps(f)).Scrape(context.Background(), base)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	var urls []string
	for _, it := range items {
		urls = append(urls, it.URL)
	}
	want := "https://zigzag.am/product/1,https://zigzag.am/product/2,https://zigzag.am/product/3"
	if got := strings.Join(urls, ","); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	if len(f.requests) != 2 {
		t.Fatalf("expected 2 fetches, got %d", len(f.requests))
	}
}

func TestThreeDPlanet_EmptyPageEndsPagination(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(`<html><body><div class="product-card"><a href="/p/1">125,000 ֏</a><h3>Laptop One</h3><img src="/i/1.jpg"></div></body></html>`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fetcher, err := scraper.NewHTTPFetcher(5 * time.Second)
	if err != nil {
		t.Fatalf("fetcher: %v", err)
	}
	items, err := NewThreeDPlanet(deps(fetcher)).Scrape(context.Background(), srv.URL+"/notebooks")
	if err != nil {
		t.Fatalf("empty page should end pagination without error, got %v", err)
	}
	if len(items) != 1 || items[0].URL != srv.URL+"/p/1" || items[0].Price != 125000 {
		t.Fatalf("unexpected items %+v", items)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", hits.Load())
	}
}

func TestZigzag_ErrorBudget(t *testing.T) {
	base := "https://zigzag.am/tv"
	broken := `<div class="product_block"><span class="price">1</span></div>`
	f := &pageFetcher{pages: map[string]string{
		base + "?p=1": "<html><body>" + zigzagPage(1) + broken + broken + broken + "</body></html>",
	}}

	items, err := NewZigzag(deps(f)).Scrape(context.Background(), base)
	if !errors.Is(err, scraper.ErrErrorBudgetExceeded) {
		t.Fatalf("expected budget error, got %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected accumulated item, got %d", len(items))
	}
}

func TestMobileCentre_SinglePage(t *testing.T) {
	base := "https://mobilecentre.am/category/smartphones"
	f := &pageFetcher{pages: map[string]string{
		base: `<html><body>
<div class="listitem">
  <a class="prod-item-img" href="/product/a"><img data-src="/img/a.jpg"></a>
  <div class="item-body"><h3> Galaxy A55 </h3><span class="regular">199 900 ֏</span></div>
</div>
<div class="listitem">
  <a class="prod-item-img" href="/product/b"><img src="https://cdn.mobilecentre.am/b.jpg"></a>
  <div class="item-body"><h3>iPhone 15</h3></div>
</div>
</body></html>`,
	}}

	items, err := NewMobileCentre(deps(f)).Scrape(context.Background(), base)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(items) != 2 || len(f.requests) != 1 {
		t.Fatalf("expected 2 items from one fetch, got %d items, %d fetches", len(items), len(f.requests))
	}
	if items[0].ImageURL != "https://mobilecentre.am/img/a.jpg" || items[0].Price != 199900 || items[0].Name != "Galaxy A55" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].Price != 0 {
		t.Fatalf("missing price should be 0, got %d", items[1].Price)
	}
}

func TestVdComputers_UsesLastPrice(t *testing.T) {
	base := "https://vdcomputers.am/product-category/monitors/"
	block := `<div class="product-grid-item">
  <img src="https://vdcomputers.am/m.jpg">
  <h3 class="wd-entities-title"><a href="https://vdcomputers.am/product/m27/">Monitor 27"</a></h3>
  <span class="screen-reader-text">Original price was: 150,000֏.</span>
  <span class="screen-reader-text">Current price is: 129,000֏.</span>
</div>`
	f := &pageFetcher{pages: map[string]string{
		"https://vdcomputers.am/product-category/monitors/page/1/?per_page=36": "<html><body>" + block + "</body></html>",
		"https://vdcomputers.am/product-category/monitors/page/2/?per_page=36": "<html><body></body></html>",
	}}

	items, err := NewVdComputers(deps(f)).Scrape(context.Background(), base)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(items) != 1 || items[0].Price != 129000 {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestVenus_GoneAfterFirstPage(t *testing.T) {
	base := "https://venus.am/laptops"
	f := &pageFetcher{pages: map[string]string{
		base + "?limit=100&page=1": `<html><body><div class="product-block">
  <a href="https://venus.am/laptop-1"><img class="img-responsive" src="https://venus.am/1.jpg"></a>
  <h4><a href="https://venus.am/laptop-1">Laptop One</a></h4>
  <p class="price">350.000 դր.</p>
</div></body></html>`,
	}}

	items, err := NewVenus(deps(f)).Scrape(context.Background(), base)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(items) != 1 || items[0].Price != 350000 || items[0].Name != "Laptop One" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestVLV_JSONPages(t *testing.T) {
	base := "https://vlv.am/category/laptops"
	var mu sync.Mutex
	var forms []string

	fetch := scraper.FetcherFunc(func(_ context.Context, req scraper.Request) (*scraper.Response, error) {
		if req.Method != http.MethodPost || req.URL != base {
			t.Errorf("unexpected request %s %s", req.Method, req.URL)
		}
		mu.Lock()
		forms = append(forms, req.Form.Encode())
		mu.Unlock()

		var products []map[string]any
		if req.Form.Get("page") == "1" {
			products = []map[string]any{
				{"seller_id": 1001, "product_name": "ThinkPad X1", "thumbnail_image_source": "/uploads/x1.jpg",
					"brand": map[string]any{"name": "Lenovo"}, "pricing": map[string]any{"selling_price": "899000.00"}},
				{"seller_id": "1002", "product_name": "MacBook Air", "brand": map[string]any{"name": "Apple"},
					"pricing": map[string]any{"selling_price": 650000}},
				{"product_name": "no id"},
			}
		}
		body, _ := json.Marshal(map[string]any{"products": products})
		return &scraper.Response{StatusCode: http.StatusOK, URL: req.URL, Body: body}, nil
	})

	items, err := NewVLV(deps(fetch)).Scrape(context.Background(), base)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	want := model.ScrapedItem{
		URL:      "https://vlv.am/Product/1001",
		ImageURL: "https://vlv.am/public/uploads/x1.jpg",
		Name:     "Lenovo ThinkPad X1",
		Price:    899000,
	}
	if items[0] != want {
		t.Fatalf("got %+v, want %+v", items[0], want)
	}
	if items[1].URL != "https://vlv.am/Product/1002" || items[1].Price != 650000 {
		t.Fatalf("unexpected second item %+v", items[1])
	}
	if len(forms) != 2 || forms[0] != "p=60&page=1&slug=laptops" {
		t.Fatalf("unexpected forms %v", forms)
	}
}

func TestBuild(t *testing.T) {
	cfg := &config.Config{
		Scraper: config.ScraperConfig{
			MaxErrorCountToContinue: 3,
			MaxPages:                10,
			RateLimit:               5,
			RateBurst:               1,
			Stores: map[string]config.StoreOverride{
				"YerevanMobile": {Strategy: config.StrategyRender, WaitSelector: ".grid_list"},
				"Vega":          {Disabled: true},
			},
		},
	}
	set, err := Build(cfg, nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(set) != len(model.AllStores())-1 {
		t.Fatalf("expected %d adapters, got %d", len(model.AllStores())-1, len(set))
	}
	if _, err := set.Adapter(model.StoreVega); !errors.Is(err, scraper.ErrUnknownStore) {
		t.Fatalf("disabled store should not be built, got %v", err)
	}
	a, err := set.Adapter(model.StoreYerevanMobile)
	if err != nil || a.Store() != model.StoreYerevanMobile {
		t.Fatalf("unexpected adapter %v %v", a, err)
	}
}
