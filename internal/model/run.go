package model

import "time"

// ScrapedItem 是适配器在单页解析中产生的临时商品记录。
type ScrapedItem struct {
	URL          string       `json:"url"`                     // 商品页规范链接（跨运行身份）
	ImageURL     string       `json:"image_url"`               // 图片链接
	Name         string       `json:"name"`                    // 商品名称
	Price        int64        `json:"price"`                   // 价格，无法解析时为 0
	CategoryHint CategoryType `json:"category_hint,omitempty"` // 可选，供分类推断使用
}

// Anomaly 记录对账时发现的跨分区异常：同一 URL 出现在与已记录分区不同的分区中。
type Anomaly struct {
	URL               string
	RecordedPartition uint
	ScrapedPartition  uint
}

// RunResult 是一次分区对账的输出。
type RunResult struct {
	New       []*Product
	Updated   []*Product
	Deleted   []*Product
	Unchanged int
	Anomalies []Anomaly
}

// Empty 判断是否没有任何需要持久化的变更。
func (r *RunResult) Empty() bool {
	return len(r.New) == 0 && len(r.Updated) == 0 && len(r.Deleted) == 0
}

// PartitionStatus 分区运行的终态。
type PartitionStatus string

const (
	PartitionDone     PartitionStatus = "done"
	PartitionFailed   PartitionStatus = "failed"
	PartitionCanceled PartitionStatus = "canceled"
)

// PartitionOutcome 单个分区在一次运行中的结果。
type PartitionOutcome struct {
	Store     StoreKey        `json:"store"`
	Category  CategoryType    `json:"category"`
	Status    PartitionStatus `json:"status"`
	Scraped   int             `json:"scraped"`
	New       int             `json:"new"`
	Updated   int             `json:"updated"`
	Deleted   int             `json:"deleted"`
	Unchanged int             `json:"unchanged"`
	Conflicts int             `json:"conflicts"`
	Anomalies int             `json:"anomalies"`
	Reason    string          `json:"reason,omitempty"` // 失败分类，见 scraper.Classify
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// RunReport 一次分类运行（所有商店）的汇总。
type RunReport struct {
	RunID      string             `json:"run_id"`
	Category   CategoryType       `json:"category"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Partitions []PartitionOutcome `json:"partitions"`
}

// Failed 返回失败的分区结果。
func (r *RunReport) Failed() []PartitionOutcome {
	var out []PartitionOutcome
	for _, p := range r.Partitions {
		if p.Status == PartitionFailed {
			out = append(out, p)
		}
	}
	return out
}
