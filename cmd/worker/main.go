package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/elstore/backend-elstore/internal/config"
	"github.com/elstore/backend-elstore/internal/obs"
	"github.com/elstore/backend-elstore/internal/pricing"
	"github.com/elstore/backend-elstore/internal/queue"
	"github.com/elstore/backend-elstore/internal/store"
)

type receiptCreatedPayload struct {
	BasketID string        `json:"basketId"`
	Total    pricing.Money `json:"total"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	receipts := store.ReceiptStore{DB: pool}

	receiptWorker := queue.Worker{
		R:      redisClient,
		Prefix: cfg.QueuePrefix,
		Kind:   queue.KindReceiptCreated,
		Handler: func(jobCtx context.Context, task queue.Task) error {
			return handleReceiptCreated(jobCtx, receipts, logger, task)
		},
	}

	logger.Info().Msg("worker starting")
	if err := receiptWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func handleReceiptCreated(ctx context.Context, receipts store.ReceiptStore, logger zerolog.Logger, task queue.Task) error {
	var payload receiptCreatedPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		logger.Error().Err(err).Str("key", task.IdempotencyKey).Msg("decode receipt payload")
		// malformed payloads never succeed on retry
		return nil
	}

	event := logger.Info().
		Str("basketId", payload.BasketID).
		Str("total", pricing.FormatMoney(payload.Total))

	// The event id doubles as the receipt id, so look the receipt up for the
	// rendered detail text when it is available.
	if id, err := store.ToUUID(task.IdempotencyKey); err == nil {
		receipt, err := receipts.GetByID(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrNoRows) {
				return err
			}
		} else {
			event = event.Str("receiptId", store.UUIDString(receipt.ID)).
				Int("detailBytes", len(receipt.Details.String))
		}
	}

	event.Msg("receipt created")
	return nil
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
