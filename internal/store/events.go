package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// DomainEvent is an append-only record of something that happened.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}

// EventStore appends domain events.
type EventStore struct {
	DB DBTX
}

// Insert appends an event and returns the stored row.
func (s EventStore) Insert(ctx context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (DomainEvent, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, aggregate_id, payload, occurred_at`, topic, aggregateID, payload)
	var ev DomainEvent
	err := row.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}
