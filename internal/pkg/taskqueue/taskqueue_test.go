package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"eazyfind/internal/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestSubmitAndRead(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	c, err := NewConsumer(ctx, rdb, logger.Discard(), "test:runs", "g1", "c1", WithBlockTime(10*time.Millisecond))
	require.NoError(t, err)

	p := NewProducer(rdb, logger.Discard(), "test:runs")
	runID, err := p.SubmitRun(ctx, "Laptops", SourceCron)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	n, err := p.QueueLength(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := c.Read(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Laptops", got[0].Message.Category)
	assert.Equal(t, runID, got[0].Message.RunID)
	assert.Equal(t, SourceCron, got[0].Message.Source)

	pending, err := c.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	require.NoError(t, c.Ack(ctx, got[0].ID))
	pending, err = c.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)
}

func TestSubmitRequiresCategory(t *testing.T) {
	p := NewProducer(newRedis(t), nil, "")
	_, err := p.SubmitRun(context.Background(), "", SourceManual)
	assert.Error(t, err)
}

func TestHandleFailureRetriesThenDeadLetters(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	c, err := NewConsumer(ctx, rdb, nil, "test:runs", "g1", "c1",
		WithBlockTime(10*time.Millisecond), WithMaxRetry(1))
	require.NoError(t, err)

	_, err = NewProducer(rdb, nil, "test:runs").SubmitRun(ctx, "Monitors", SourceManual)
	require.NoError(t, err)

	first, err := c.Read(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	runID := first[0].Message.RunID

	action, err := c.HandleFailure(ctx, first[0], errors.New("store failed"))
	require.NoError(t, err)
	assert.Equal(t, FailureActionRetry, action)

	second, err := c.Read(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, runID, second[0].Message.RunID)
	assert.Equal(t, 1, second[0].Message.Retry)
	assert.Equal(t, SourceRetry, second[0].Message.Source)

	action, err = c.HandleFailure(ctx, second[0], errors.New("store failed again"))
	require.NoError(t, err)
	assert.Equal(t, FailureActionDLQ, action)

	dlq, err := rdb.XRange(ctx, c.DeadLetterStream(), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, "store failed again", dlq[0].Values["reason"])

	pending, err := c.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)
}

func TestPoisonMessageGoesToDeadLetter(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	c, err := NewConsumer(ctx, rdb, nil, "test:runs", "g1", "c1", WithBlockTime(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: "test:runs",
		Values: map[string]interface{}{"data": "{not json"},
	}).Err())

	got, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := rdb.XLen(ctx, c.DeadLetterStream()).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
