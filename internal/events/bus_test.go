package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/elstore/backend-elstore/internal/events"
	"github.com/elstore/backend-elstore/internal/store"
)

type stubStore struct {
	lastTopic   string
	lastPayload []byte
}

func (s *stubStore) Insert(_ context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (store.DomainEvent, error) {
	s.lastTopic = topic
	s.lastPayload = payload
	return store.DomainEvent{
		ID:          pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}, nil
}

type captureNotifier struct {
	events []store.DomainEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event store.DomainEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func toUUID(u uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: u, Valid: true}
}

func TestEmitPersistsEvent(t *testing.T) {
	st := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     st,
		Notifiers: []events.Notifier{notifier},
	}

	aggregate := uuid.New()
	payload := map[string]any{"receiptId": "123"}
	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicReceiptCreated, toUUID(aggregate), payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicReceiptCreated, st.lastTopic)
	require.JSONEq(t, `{"receiptId":"123"}`, string(st.lastPayload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["receiptId"])
}

func TestEmitRequiresTopicAndAggregate(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, "  ", toUUID(uuid.New()), nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicDealActivated, pgtype.UUID{}, nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierFailures(t *testing.T) {
	sentinel := errors.New("boom")
	failing := &captureNotifier{err: sentinel}
	ok := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{failing, ok}}

	event, err := bus.Emit(context.Background(), events.TopicDealRemoved, toUUID(uuid.New()), nil)
	require.ErrorIs(t, err, sentinel)
	require.True(t, event.ID.Valid)
	require.Len(t, ok.events, 1)
}
