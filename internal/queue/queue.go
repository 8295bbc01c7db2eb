package queue

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task kinds processed by the worker binary.
const (
	KindReceiptCreated = "receipt:created"
)

const (
	defaultMaxAttempts = 10
	defaultDedupTTL    = 24 * time.Hour
	defaultVisibility  = 30 * time.Second
	defaultRetryBase   = 200 * time.Millisecond
	idlePoll           = 100 * time.Millisecond
)

// Task is one unit of asynchronous work.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Delay          time.Duration
}

// envelope is the wire form of a task inside the Redis sorted sets.
type envelope struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"maxAttempts"`
	AvailableAt int64  `json:"availableAt"`
}

func decodeEnvelope(raw string) (envelope, error) {
	var env envelope
	err := json.Unmarshal([]byte(raw), &env)
	return env, err
}

// keys derives the Redis key names for one queue namespace.
type keys struct {
	prefix string
}

func (k keys) scoped(parts ...string) string {
	out := k.prefix
	if out == "" {
		out = "queue"
	}
	for _, part := range parts {
		out += ":" + part
	}
	return out
}

func (k keys) queue(kind string) string {
	if k.prefix == "" {
		return "queue:" + kind
	}
	return k.prefix + ":queue:" + kind
}

func (k keys) processing(kind string) string { return k.scoped(kind, "processing") }

func (k keys) dlq(kind string) string { return k.scoped(kind, "dlq") }

func (k keys) dedup(kind, key string) string { return k.scoped("dedup", kind, key) }

func sanitizeKind(kind string) string {
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == ':':
		default:
			return ""
		}
	}
	return kind
}

// Enqueuer publishes tasks to Redis backed queues.
type Enqueuer struct {
	R        *redis.Client
	Prefix   string
	DedupTTL time.Duration
}

// Enqueue inserts the task into its queue. A task carrying an idempotency
// key is admitted at most once per deduplication window.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return errors.New("queue: task kind is required")
	}

	env := envelope{
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		MaxAttempts: t.MaxAttempts,
		AvailableAt: time.Now().Add(t.Delay).UnixNano(),
	}
	if env.MaxAttempts <= 0 {
		env.MaxAttempts = defaultMaxAttempts
	}

	names := keys{prefix: e.Prefix}
	if env.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = defaultDedupTTL
		}
		admitted, err := e.R.SetNX(ctx, names.dedup(kind, env.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !admitted {
			return nil
		}
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return e.R.ZAdd(ctx, names.queue(kind), redis.Z{Score: float64(env.AvailableAt), Member: raw}).Err()
}

// Worker consumes tasks of a single kind. In-flight tasks sit in a
// processing set scored by their visibility deadline, so a crashed worker's
// tasks are redelivered once the deadline passes.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	Handler           func(context.Context, Task) error
	RetryBase         time.Duration
	RetryJitter       float64
}

// Run processes tasks until ctx is cancelled.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	kind := sanitizeKind(w.Kind)
	if kind == "" {
		return errors.New("queue: worker kind is required")
	}

	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = defaultVisibility
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}

	names := keys{prefix: w.Prefix}
	queueKey := names.queue(kind)
	processingKey := names.processing(kind)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	redeliveryTicker := time.NewTicker(time.Second)
	defer redeliveryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-redeliveryTicker.C:
			if err := w.redeliverExpired(ctx, processingKey, queueKey); err != nil {
				return err
			}
		default:
		}

		env, raw, ok, err := w.claimNext(ctx, queueKey, processingKey, visibility)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if !ok {
			time.Sleep(idlePoll)
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(raw string, env envelope) {
			defer func() { <-sem }()
			defer wg.Done()
			jobCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			task := Task{Kind: env.Kind, Payload: env.Payload, IdempotencyKey: env.Key}
			if err := w.Handler(jobCtx, task); err != nil {
				w.retryOrBury(jobCtx, queueKey, processingKey, raw, env, retryBase)
				return
			}
			w.ack(jobCtx, processingKey, raw, env)
		}(raw, env)
	}
}

// claimNext pops the next due task, moving it into the processing set. ok is
// false when the queue is empty or the head is not due yet.
func (w Worker) claimNext(ctx context.Context, queueKey, processingKey string, visibility time.Duration) (envelope, string, bool, error) {
	res, err := w.R.ZPopMin(ctx, queueKey, 1).Result()
	if err != nil {
		if err == redis.Nil {
			return envelope{}, "", false, nil
		}
		return envelope{}, "", false, err
	}
	if len(res) == 0 {
		return envelope{}, "", false, nil
	}
	member, isString := res[0].Member.(string)
	if !isString {
		return envelope{}, "", false, nil
	}
	env, err := decodeEnvelope(member)
	if err != nil {
		// undecodable entries are dropped rather than looping forever
		return envelope{}, "", false, nil
	}

	now := time.Now().UnixNano()
	if env.AvailableAt > now {
		w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(env.AvailableAt), Member: member})
		sleep := time.Duration(env.AvailableAt - now)
		if sleep > time.Second {
			sleep = time.Second
		}
		time.Sleep(sleep)
		return envelope{}, "", false, nil
	}

	env.Attempt++
	raw, err := json.Marshal(env)
	if err != nil {
		return envelope{}, "", false, nil
	}
	deadline := time.Now().Add(visibility).UnixNano()
	if err := w.R.ZAdd(ctx, processingKey, redis.Z{Score: float64(deadline), Member: string(raw)}).Err(); err != nil {
		return envelope{}, "", false, err
	}
	return env, string(raw), true, nil
}

// retryOrBury reschedules a failed task with exponential backoff, or moves it
// to the dead letter queue when its attempts are spent.
func (w Worker) retryOrBury(ctx context.Context, queueKey, processingKey, raw string, env envelope, base time.Duration) {
	names := keys{prefix: w.Prefix}
	if raw != "" {
		_ = w.R.ZRem(ctx, processingKey, raw)
	}
	if env.MaxAttempts > 0 && env.Attempt >= env.MaxAttempts {
		buried, err := json.Marshal(env)
		if err != nil {
			return
		}
		_ = w.R.LPush(ctx, names.dlq(env.Kind), buried).Err()
		if env.Key != "" {
			_ = w.R.Del(ctx, names.dedup(env.Kind, env.Key)).Err()
		}
		return
	}
	env.AvailableAt = time.Now().Add(backoff(base, env.Attempt, w.RetryJitter)).UnixNano()
	rescheduled, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(env.AvailableAt), Member: string(rescheduled)}).Err()
}

func (w Worker) ack(ctx context.Context, processingKey, raw string, env envelope) {
	names := keys{prefix: w.Prefix}
	if raw != "" {
		_ = w.R.ZRem(ctx, processingKey, raw)
	}
	if env.Key != "" {
		_ = w.R.Del(ctx, names.dedup(env.Kind, env.Key)).Err()
	}
}

func (w Worker) redeliverExpired(ctx context.Context, processingKey, queueKey string) error {
	now := strconv.FormatFloat(float64(time.Now().UnixNano()), 'f', -1, 64)
	expired, err := w.R.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, raw := range expired {
		env, err := decodeEnvelope(raw)
		if err != nil {
			continue
		}
		_ = w.R.ZRem(ctx, processingKey, raw).Err()
		env.AvailableAt = time.Now().UnixNano()
		requeued, err := json.Marshal(env)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(env.AvailableAt), Member: requeued}).Err()
	}
	return nil
}

// backoff doubles per attempt from base, with optional symmetric jitter
// expressed as a fraction of the delay.
func backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}
