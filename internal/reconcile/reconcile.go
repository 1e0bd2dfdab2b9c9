// Package reconcile 将一次抓取结果与分区现有商品对账，得到新增、更新、删除三组变更。
//
// 对账是纯函数，不做任何 I/O。
package reconcile

import (
	"sort"
	"time"

	"eazyfind/internal/model"
)

// Reconcile 对账抓取结果与现有商品。
//
// scraped 应已按 URL 去重。existing 以 URL 为键，不会被修改；命中的行会复制后再更新，
// 调用方持有的 *model.Product 保持原值。
//
// 参数:
//
//	scraped: 本次抓取的商品
//	existing: 分区现有商品（含软删除的行）
//	partition: 当前分区，新商品以其 ID 作为 StoreCategoryID
//	now: 同步时间
//
// 返回值:
//
//	model.RunResult: 新增/更新/删除集合按 URL 两两不相交
func Reconcile(scraped []model.ScrapedItem, existing map[string]*model.Product, partition model.Partition, now time.Time) model.RunResult {
	var result model.RunResult

	remaining := make(map[string]*model.Product, len(existing))
	for url, p := range existing {
		remaining[url] = p
	}

	for _, item := range scraped {
		current, ok := remaining[item.URL]
		if !ok {
			result.New = append(result.New, newProduct(item, partition, now))
			continue
		}
		delete(remaining, item.URL)

		if current.StoreCategoryID != partition.ID {
			result.Anomalies = append(result.Anomalies, model.Anomaly{
				URL:               item.URL,
				RecordedPartition: current.StoreCategoryID,
				ScrapedPartition:  partition.ID,
			})
		}

		if !changed(current, item) {
			result.Unchanged++
			continue
		}
		updated := *current
		updated.Name = item.Name
		updated.Price = item.Price
		updated.ImageURL = item.ImageURL
		updated.IsDeleted = false
		updated.DeletionDate = nil
		updated.LastSyncedAt = now
		result.Updated = append(result.Updated, &updated)
	}

	for _, p := range remaining {
		if p.IsDeleted {
			continue
		}
		result.Deleted = append(result.Deleted, p)
	}
	sort.Slice(result.Deleted, func(i, j int) bool { return result.Deleted[i].URL < result.Deleted[j].URL })
	return result
}

// changed 比较名称、价格、图片；软删除的行重新出现也视为变化。
func changed(p *model.Product, item model.ScrapedItem) bool {
	return p.IsDeleted ||
		p.Name != item.Name ||
		p.Price != item.Price ||
		p.ImageURL != item.ImageURL
}

func newProduct(item model.ScrapedItem, partition model.Partition, now time.Time) *model.Product {
	return &model.Product{
		StoreCategoryID: partition.ID,
		Name:            item.Name,
		Price:           item.Price,
		URL:             item.URL,
		ImageURL:        item.ImageURL,
		LastSyncedAt:    now,
		CreatedAt:       now,
	}
}

// DedupByURL 按 URL 去重，保留首次出现的商品，顺序不变。
func DedupByURL(items []model.ScrapedItem) []model.ScrapedItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]model.ScrapedItem, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.URL]; ok {
			continue
		}
		seen[item.URL] = struct{}{}
		out = append(out, item)
	}
	return out
}
