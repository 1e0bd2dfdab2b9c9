package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"eazyfind/internal/pkg/logger"
)

func runJob(key string, fn func(ctx context.Context) error) Job {
	return Job{Key: key, Run: fn}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestQueue_RunsJobs(t *testing.T) {
	q := NewQueue(logger.Discard(), 3, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var completed atomic.Int32
	for _, key := range []string{"Laptops", "Smartphones", "Monitors"} {
		if err := q.Enqueue(runJob(key, func(ctx context.Context) error {
			completed.Add(1)
			return nil
		})); err != nil {
			t.Fatalf("enqueue %s: %v", key, err)
		}
	}

	if err := q.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if completed.Load() != 3 {
		t.Fatalf("expected 3 completed jobs, got %d", completed.Load())
	}
	if s := q.Stats(); s.Enqueued != 3 || s.Succeeded != 3 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestQueue_RejectsSameKeyWhileRunning(t *testing.T) {
	q := NewQueue(logger.Discard(), 2, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	block := make(chan struct{})
	started := make(chan struct{})
	if err := q.Enqueue(runJob("Laptops", func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-started

	err := q.Enqueue(runJob("Laptops", func(ctx context.Context) error { return nil }))
	if !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
	if p := q.Pending(); len(p) != 1 || p[0].Key != "Laptops" {
		t.Fatalf("unexpected pending: %+v", p)
	}

	close(block)
	waitFor(t, func() bool { return len(q.Pending()) == 0 })

	if err := q.Enqueue(runJob("Laptops", func(ctx context.Context) error { return nil })); err != nil {
		t.Fatalf("re-enqueue after completion: %v", err)
	}
	_ = q.ShutdownWithTimeout(time.Second)
}

func TestQueue_ErrorHandlerAndPanic(t *testing.T) {
	q := NewQueue(logger.Discard(), 1, 5)

	var failures atomic.Int32
	q.SetErrorHandler(func(job Job, err error) {
		failures.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	_ = q.Enqueue(runJob("a", func(ctx context.Context) error { return errors.New("boom") }))
	_ = q.Enqueue(runJob("b", func(ctx context.Context) error { panic("intentional panic") }))

	var executed atomic.Bool
	_ = q.Enqueue(runJob("c", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	}))

	if err := q.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	s := q.Stats()
	if s.Failed != 2 || s.Panics != 1 || s.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if failures.Load() != 2 {
		t.Fatalf("expected 2 error callbacks, got %d", failures.Load())
	}
	if !executed.Load() {
		t.Fatal("worker should survive a panicking job")
	}
}

func TestQueue_Full(t *testing.T) {
	q := NewQueue(logger.Discard(), 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	block := make(chan struct{})
	started := make(chan struct{})
	_ = q.Enqueue(runJob("running", func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started

	if err := q.Enqueue(runJob("waiting", func(ctx context.Context) error { return nil })); err != nil {
		t.Fatalf("enqueue into free slot: %v", err)
	}
	if err := q.Enqueue(runJob("dropped", func(ctx context.Context) error { return nil })); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer timeoutCancel()
	if err := q.EnqueueBlocking(timeoutCtx, runJob("blocked", func(ctx context.Context) error { return nil })); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(block)
	_ = q.ShutdownWithTimeout(time.Second)

	if q.Stats().Rejected != 1 {
		t.Fatalf("expected 1 rejected, got %d", q.Stats().Rejected)
	}
}

func TestQueue_ClosedRejects(t *testing.T) {
	q := NewQueue(logger.Discard(), 1, 1)
	q.Start(context.Background())
	if err := q.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := q.Enqueue(runJob("late", func(ctx context.Context) error { return nil })); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := q.ShutdownWithTimeout(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on second shutdown, got %v", err)
	}
}
