package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// Consumer 以消费者组方式读取运行消息。
type Consumer struct {
	queue            *TaskQueue
	logger           *slog.Logger
	groupName        string
	consumerID       string
	blockTime        time.Duration
	batchSize        int64
	pendingIdle      time.Duration
	pendingStart     string
	deadLetterStream string
	maxRetry         int
}

// FailureAction 失败消息的处理方式。
type FailureAction string

const (
	FailureActionNone  FailureAction = "none"
	FailureActionRetry FailureAction = "retry"
	FailureActionDLQ   FailureAction = "dlq"
)

// ConsumerOption 消费者配置选项。
type ConsumerOption func(*Consumer)

// WithBlockTime 设置 XREADGROUP 阻塞时间。
func WithBlockTime(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.blockTime = d }
}

// WithBatchSize 设置每次读取的消息数量。
func WithBatchSize(size int64) ConsumerOption {
	return func(c *Consumer) { c.batchSize = size }
}

// WithPendingIdle 设置认领他人 pending 消息所需的最小空闲时间。
// 应大于单次运行的最大时长，否则仍在执行的运行会被重复认领。
func WithPendingIdle(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.pendingIdle = d }
}

// WithMaxRetry 设置最大重试次数。
func WithMaxRetry(maxRetry int) ConsumerOption {
	return func(c *Consumer) { c.maxRetry = maxRetry }
}

// NewConsumer 创建消费者并确保消费者组存在。
//
// 参数:
//   - ctx: 上下文
//   - rdb: Redis 客户端
//   - log: 日志记录器
//   - streamName: Stream 名称（为空时使用 DefaultStream）
//   - groupName: 消费者组名称
//   - consumerID: 消费者标识（为空时自动生成）
//   - opts: 可选配置
func NewConsumer(ctx context.Context, rdb *redis.Client, log *slog.Logger, streamName, groupName, consumerID string, opts ...ConsumerOption) (*Consumer, error) {
	if groupName == "" {
		return nil, fmt.Errorf("group name is required")
	}
	if consumerID == "" {
		consumerID = fmt.Sprintf("scraper-%d", time.Now().UnixNano())
	}
	log = logger.OrDiscard(log)

	q := NewTaskQueue(rdb, log, streamName)
	c := &Consumer{
		queue:            q,
		logger:           log,
		groupName:        groupName,
		consumerID:       consumerID,
		blockTime:        2 * time.Second,
		batchSize:        1,
		pendingIdle:      3 * time.Hour,
		pendingStart:     "0-0",
		deadLetterStream: q.Stream() + ":dlq",
		maxRetry:         2,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := q.CreateConsumerGroup(ctx, groupName); err != nil {
		return nil, err
	}
	c.logger.Info("run consumer ready",
		slog.String("stream", q.Stream()),
		slog.String("group", groupName),
		slog.String("consumer_id", consumerID))
	return c, nil
}

// Delivery 读取到的消息及其 Stream ID。
type Delivery struct {
	ID      string
	Message *RunMessage
}

// Read 先认领空闲过久的 pending 消息，没有时再读取新消息。
func (c *Consumer) Read(ctx context.Context) ([]*Delivery, error) {
	pending, err := c.readPending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return pending, nil
	}
	return c.readNew(ctx)
}

func (c *Consumer) readPending(ctx context.Context) ([]*Delivery, error) {
	messages, nextStart, err := c.queue.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.queue.streamName,
		Group:    c.groupName,
		Consumer: c.consumerID,
		MinIdle:  c.pendingIdle,
		Start:    c.pendingStart,
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim failed: %w", err)
	}
	if nextStart != "" {
		c.pendingStart = nextStart
	}
	if len(messages) > 0 {
		metrics.TaskAutoClaimTotal.Add(float64(len(messages)))
	}
	return c.parseMessages(ctx, messages), nil
}

func (c *Consumer) readNew(ctx context.Context) ([]*Delivery, error) {
	streams, err := c.queue.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.groupName,
		Consumer: c.consumerID,
		Streams:  []string{c.queue.streamName, ">"},
		Count:    c.batchSize,
		Block:    c.blockTime,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup failed: %w", err)
	}

	var messages []redis.XMessage
	for _, stream := range streams {
		messages = append(messages, stream.Messages...)
	}
	return c.parseMessages(ctx, messages), nil
}

// parseMessages 解析消息；无法解析的消息直接进入死信队列并确认。
func (c *Consumer) parseMessages(ctx context.Context, messages []redis.XMessage) []*Delivery {
	if len(messages) == 0 {
		return nil
	}
	out := make([]*Delivery, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok || data == "" {
			c.handlePoisonMessage(ctx, msg.ID, fmt.Sprintf("%v", msg.Values["data"]), "invalid message format")
			continue
		}
		runMsg, err := parseMessage(data)
		if err != nil {
			c.handlePoisonMessage(ctx, msg.ID, data, err.Error())
			continue
		}
		out = append(out, &Delivery{ID: msg.ID, Message: runMsg})
	}
	return out
}

// Ack 确认消息已处理。
func (c *Consumer) Ack(ctx context.Context, msgID string) error {
	acked, err := c.queue.rdb.XAck(ctx, c.queue.streamName, c.groupName, msgID).Result()
	if err != nil {
		return fmt.Errorf("xack failed: %w", err)
	}
	if acked == 0 {
		c.logger.Warn("message not acked (may already be acked)", slog.String("msg_id", msgID))
	}
	return nil
}

// HandleFailure 未超过重试上限时以相同 RunID 重新发布，否则写入死信队列。原消息都会被确认。
func (c *Consumer) HandleFailure(ctx context.Context, d *Delivery, cause error) (FailureAction, error) {
	if d == nil || d.Message == nil {
		return FailureActionNone, fmt.Errorf("message is nil")
	}

	d.Message.Retry++
	if d.Message.Retry > c.maxRetry {
		if err := c.publishDeadLetter(ctx, d.ID, d.Message, cause); err != nil {
			return FailureActionDLQ, err
		}
		metrics.TaskDLQTotal.Inc()
		return FailureActionDLQ, c.Ack(ctx, d.ID)
	}

	d.Message.Source = SourceRetry
	d.Message.Timestamp = time.Now().UTC()
	if err := c.queue.Publish(ctx, d.Message); err != nil {
		return FailureActionRetry, err
	}
	return FailureActionRetry, c.Ack(ctx, d.ID)
}

func (c *Consumer) handlePoisonMessage(ctx context.Context, msgID, payload, reason string) {
	c.logger.Error("invalid run message", slog.String("msg_id", msgID), slog.String("reason", reason))
	if err := c.publishDeadLetter(ctx, msgID, payload, errors.New(reason)); err != nil {
		c.logger.Error("publish dead letter failed", slog.String("msg_id", msgID), slog.String("error", err.Error()))
	}
	metrics.TaskDLQTotal.Inc()
	if err := c.Ack(ctx, msgID); err != nil {
		c.logger.Error("ack poison message failed", slog.String("msg_id", msgID), slog.String("error", err.Error()))
	}
}

func (c *Consumer) publishDeadLetter(ctx context.Context, msgID string, payload interface{}, cause error) error {
	raw := payload
	if msg, ok := payload.(*RunMessage); ok {
		if data, err := json.Marshal(msg); err == nil {
			raw = string(data)
		}
	}
	return c.queue.publishRaw(ctx, c.deadLetterStream, map[string]interface{}{
		"original_id": msgID,
		"payload":     raw,
		"reason":      cause.Error(),
		"failed_at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// DeadLetterStream 返回死信 Stream 名称。
func (c *Consumer) DeadLetterStream() string { return c.deadLetterStream }

// Pending 返回已投递未确认的消息数量。
func (c *Consumer) Pending(ctx context.Context) (int64, error) {
	info, err := c.queue.rdb.XPending(ctx, c.queue.streamName, c.groupName).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending failed: %w", err)
	}
	return info.Count, nil
}
