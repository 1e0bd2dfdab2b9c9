package orchestrator

import (
	"context"
	"sync"
	"time"

	"eazyfind/internal/model"

	"golang.org/x/sync/singleflight"
)

// scrapeCache 以 (store, url) 为键缓存原始抓取结果。
//
// 同一个未分类的列表页可能支撑多个分类分区；缓存让这些分区在 ttl 内共享一次抓取，
// 并发请求同一键时只抓取一次。只缓存成功的结果。
type scrapeCache struct {
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	items   []model.ScrapedItem
	expires time.Time
}

func newScrapeCache(ttl time.Duration, now func() time.Time) *scrapeCache {
	return &scrapeCache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

func cacheKey(store model.StoreKey, url string) string {
	return string(store) + "|" + url
}

// get 返回缓存结果；未命中时调用 fetch。返回的切片由调用方独占。
func (c *scrapeCache) get(ctx context.Context, store model.StoreKey, url string, fetch func(context.Context) ([]model.ScrapedItem, error)) ([]model.ScrapedItem, bool, error) {
	key := cacheKey(store, url)
	if items, ok := c.lookup(key); ok {
		return items, true, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		items, err := fetch(ctx)
		if err != nil {
			return items, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{items: items, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return items, nil
	})
	items, _ := v.([]model.ScrapedItem)
	return clone(items), shared, err
}

func (c *scrapeCache) lookup(key string) ([]model.ScrapedItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return clone(e.items), true
}

func clone(items []model.ScrapedItem) []model.ScrapedItem {
	if items == nil {
		return nil
	}
	out := make([]model.ScrapedItem, len(items))
	copy(out, items)
	return out
}
