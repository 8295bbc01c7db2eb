package queue

import (
	"context"
	"slices"
	"strings"

	"github.com/elstore/backend-elstore/internal/store"
)

// Notifier bridges domain events into queue tasks. The event topic maps to
// the task kind by swapping dots for colons, so "receipt.created" lands in
// the "receipt:created" queue. The event id doubles as the idempotency key.
type Notifier struct {
	Enqueuer Enqueuer
	// Topics restricts which events are enqueued. Empty means all.
	Topics []string
}

// Notify enqueues a task for the event.
func (n Notifier) Notify(ctx context.Context, event store.DomainEvent) error {
	if len(n.Topics) > 0 && !slices.Contains(n.Topics, event.Topic) {
		return nil
	}
	return n.Enqueuer.Enqueue(ctx, Task{
		Kind:           strings.ReplaceAll(event.Topic, ".", ":"),
		Payload:        event.Payload,
		IdempotencyKey: store.UUIDString(event.ID),
	})
}
