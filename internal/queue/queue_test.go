package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/elstore/backend-elstore/internal/queue"
	"github.com/elstore/backend-elstore/internal/store"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEnqueueDeduplicates(t *testing.T) {
	client := newRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "elstore"}
	ctx := context.Background()

	task := queue.Task{Kind: queue.KindReceiptCreated, Payload: []byte(`{"receiptId":"1"}`), IdempotencyKey: "r-1"}
	require.NoError(t, enq.Enqueue(ctx, task))
	require.NoError(t, enq.Enqueue(ctx, task))

	size, err := client.ZCard(ctx, "elstore:queue:receipt:created").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), size)
}

func TestEnqueueRejectsBadKind(t *testing.T) {
	enq := queue.Enqueuer{R: newRedis(t)}
	require.Error(t, enq.Enqueue(context.Background(), queue.Task{Kind: "receipt.created"}))
	require.Error(t, enq.Enqueue(context.Background(), queue.Task{}))
}

func TestWorkerProcessesTask(t *testing.T) {
	client := newRedis(t)
	enq := queue.Enqueuer{R: client}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan queue.Task, 1)
	worker := queue.Worker{
		R:    client,
		Kind: queue.KindReceiptCreated,
		Handler: func(_ context.Context, task queue.Task) error {
			received <- task
			return nil
		},
	}
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: queue.KindReceiptCreated, Payload: []byte(`{"receiptId":"9"}`)}))

	select {
	case task := <-received:
		require.JSONEq(t, `{"receiptId":"9"}`, string(task.Payload))
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not pick up the task")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestNotifierMapsTopicToKind(t *testing.T) {
	client := newRedis(t)
	notifier := queue.Notifier{Enqueuer: queue.Enqueuer{R: client}}

	event := store.DomainEvent{
		ID:      pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Topic:   "receipt.created",
		Payload: []byte(`{"total":1200}`),
	}
	require.NoError(t, notifier.Notify(context.Background(), event))

	size, err := client.ZCard(context.Background(), "queue:receipt:created").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), size)
}

func TestNotifierSkipsUnlistedTopics(t *testing.T) {
	client := newRedis(t)
	notifier := queue.Notifier{
		Enqueuer: queue.Enqueuer{R: client},
		Topics:   []string{"receipt.created"},
	}

	event := store.DomainEvent{
		ID:      pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Topic:   "deal.activated",
		Payload: []byte(`{}`),
	}
	require.NoError(t, notifier.Notify(context.Background(), event))

	size, err := client.ZCard(context.Background(), "queue:deal:activated").Result()
	require.NoError(t, err)
	require.Zero(t, size)
}
