package taskqueue

import (
	"context"
	"fmt"
	"log/slog"

	"eazyfind/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Producer 发布运行请求。
type Producer struct {
	queue  *TaskQueue
	logger *slog.Logger
}

// NewProducer 创建生产者。streamName 为空时使用 DefaultStream。
func NewProducer(rdb *redis.Client, log *slog.Logger, streamName string) *Producer {
	log = logger.OrDiscard(log)
	return &Producer{
		queue:  NewTaskQueue(rdb, log, streamName),
		logger: log,
	}
}

// SubmitRun 请求对 category 执行一次抓取。
//
// 参数:
//   - ctx: 上下文
//   - category: 分类名称
//   - source: 来源（cron / manual）
//
// 返回值:
//   - string: 运行 ID
//   - error: 发布失败时返回错误
func (p *Producer) SubmitRun(ctx context.Context, category string, source string) (string, error) {
	if category == "" {
		return "", fmt.Errorf("category is required")
	}
	if source == "" {
		source = SourceManual
	}

	msg := NewRunMessage(category, source)
	if err := p.queue.Publish(ctx, msg); err != nil {
		p.logger.Error("submit run failed",
			slog.String("category", category),
			slog.String("source", source),
			slog.String("error", err.Error()))
		return "", err
	}

	p.logger.Info("run submitted",
		slog.String("run_id", msg.RunID),
		slog.String("category", category),
		slog.String("source", source))
	return msg.RunID, nil
}

// QueueLength 返回 Stream 长度。
func (p *Producer) QueueLength(ctx context.Context) (int64, error) {
	return p.queue.Len(ctx)
}
