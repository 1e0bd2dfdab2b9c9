package taskqueue

import (
	"time"

	"github.com/google/uuid"
)

// 消息来源
const (
	SourceCron   = "cron"
	SourceManual = "manual"
	SourceRetry  = "retry"
)

// RunMessage 运行队列中的一条消息：请求对某个分类执行一次完整抓取。
type RunMessage struct {
	RunID     string    `json:"run_id"`    // 运行 ID（重试时保持不变）
	Category  string    `json:"category"`  // 分类
	Source    string    `json:"source"`    // cron / manual
	Retry     int       `json:"retry"`     // 已重试次数
	Timestamp time.Time `json:"timestamp"` // 消息创建时间
}

// NewRunMessage 创建一条新的运行消息。
func NewRunMessage(category, source string) *RunMessage {
	return &RunMessage{
		RunID:     uuid.NewString(),
		Category:  category,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}
