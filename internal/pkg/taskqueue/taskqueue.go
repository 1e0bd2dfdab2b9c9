// Package taskqueue 基于 Redis Streams 的运行消息队列。
//
// 定时触发与管理 API 通过 Producer 发布 RunMessage，抓取 worker 通过 Consumer 以消费者组方式读取。
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"eazyfind/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// DefaultStream 默认 Stream 名称。
const DefaultStream = "eazyfind:run:queue"

// stream 保留的最大消息数（近似裁剪）
const streamMaxLen = 10000

// TaskQueue 封装 Redis Streams 操作。
type TaskQueue struct {
	rdb        *redis.Client
	logger     *slog.Logger
	streamName string
}

// NewTaskQueue 创建队列实例。
func NewTaskQueue(rdb *redis.Client, log *slog.Logger, streamName string) *TaskQueue {
	if streamName == "" {
		streamName = DefaultStream
	}
	return &TaskQueue{
		rdb:        rdb,
		logger:     logger.OrDiscard(log),
		streamName: streamName,
	}
}

// Stream 返回 Stream 名称。
func (q *TaskQueue) Stream() string { return q.streamName }

// Publish 发布一条运行消息。
func (q *TaskQueue) Publish(ctx context.Context, msg *RunMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.publishRaw(ctx, q.streamName, map[string]interface{}{
		"data": string(data),
	})
}

func (q *TaskQueue) publishRaw(ctx context.Context, stream string, values map[string]interface{}) error {
	msgID, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	q.logger.Debug("run message published",
		slog.String("stream", stream),
		slog.String("msg_id", msgID))
	return nil
}

// CreateConsumerGroup 创建消费者组，已存在时忽略。
func (q *TaskQueue) CreateConsumerGroup(ctx context.Context, groupName string) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.streamName, groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Len 返回 Stream 中的消息数量。
func (q *TaskQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.XLen(ctx, q.streamName).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen failed: %w", err)
	}
	return n, nil
}

func parseMessage(data string) (*RunMessage, error) {
	var msg RunMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Category == "" {
		return nil, fmt.Errorf("message has no category")
	}
	return &msg, nil
}
