package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"eazyfind/internal/model"
)

type countingLimiter struct{ n atomic.Int32 }

func (c *countingLimiter) Acquire(context.Context) error {
	c.n.Add(1)
	return nil
}

func TestHTTPFetcher_GetAndLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "eazyfind-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(`<html><head><title>Laptops</title></head><body><div class="p">x</div></body></html>`))
	}))
	defer srv.Close()

	lim := &countingLimiter{}
	f, err := NewHTTPFetcher(5*time.Second, WithLimiter(lim), WithUserAgent("eazyfind-test"))
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if resp.StatusCode != http.StatusOK || len(resp.Body) == 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if lim.n.Load() != 1 {
		t.Fatalf("expected limiter to be used once, got %d", lim.n.Load())
	}
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	var se *StatusError
	if !errors.As(err, &se) || !se.Gone() {
		t.Fatalf("expected gone status error, got %v", err)
	}
}

func TestHTTPFetcher_MultipartForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("page") != "2" || r.FormValue("slug") != "laptops" {
			t.Errorf("unexpected form %v", r.MultipartForm.Value)
		}
		_, _ = w.Write([]byte(`{"products":[]}`))
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(5*time.Second, WithoutBlockDetection())
	form := url.Values{"page": {"2"}, "slug": {"laptops"}, "p": {"60"}}
	if _, err := f.Fetch(context.Background(), Request{URL: srv.URL, Form: form}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
}

func TestHTTPFetcher_BlockedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Just a moment...</title></head><body></body></html>`))
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
}

func TestHTTPFetcher_EmptyBodyIsNotBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(5 * time.Second)
	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(resp.Body) != 0 {
		t.Fatalf("expected empty body, got %q", resp.Body)
	}
}

func TestDetectBlockType(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"normal", `<html><head><title>Smartphones</title></head><body>ok</body></html>`, ""},
		{"blank", "  ", ""},
		{"title with attributes", `<html><head><title lang="en">
 Just a moment...</title></head></html>`, "cloudflare_challenge"},
		{"cloudflare", `<html><head><title>Attention Required!</title></head></html>`, "cloudflare_challenge"},
		{"forbidden", `<html><head><title>403 Forbidden</title></head></html>`, "403_forbidden"},
		{"captcha", `<html><body><div class="g-recaptcha"></div></body></html>`, "captcha"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectBlockType([]byte(tt.body)); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSession_Rotate(t *testing.T) {
	s := NewSession()
	first := s.Number()
	if first < sessionMin || first > sessionMax {
		t.Fatalf("session out of range: %d", first)
	}
	next := s.Rotate()
	if next == first || s.Number() != next {
		t.Fatalf("rotate did not change session: %d -> %d", first, next)
	}
}

type stubAdapter struct{ store model.StoreKey }

func (s stubAdapter) Store() model.StoreKey { return s.store }
func (s stubAdapter) Scrape(context.Context, string) ([]model.ScrapedItem, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(model.StoreVega, func(Deps) Adapter { return stubAdapter{store: model.StoreVega} })

	a, err := r.New(model.StoreVega, Deps{})
	if err != nil || a.Store() != model.StoreVega {
		t.Fatalf("unexpected adapter %v %v", a, err)
	}
	if _, err := r.New(model.StoreVLV, Deps{}); !errors.Is(err, ErrUnknownStore) {
		t.Fatalf("expected unknown store, got %v", err)
	}
	if got := r.Stores(); len(got) != 1 || got[0] != model.StoreVega {
		t.Fatalf("unexpected stores %v", got)
	}

	set := Set{model.StoreVega: a}
	if _, err := set.Adapter(model.StoreZigzag); !errors.Is(err, ErrUnknownStore) {
		t.Fatalf("expected unknown store from set, got %v", err)
	}
}
