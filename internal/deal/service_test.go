package deal_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/deal"
	"github.com/elstore/backend-elstore/internal/lock"
	"github.com/elstore/backend-elstore/internal/store"
)

type fakeQueries struct {
	deals     map[string]store.DiscountDeal
	created   []store.DiscountDeal
	setActive []pgtype.UUID
	listErr   error
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{deals: map[string]store.DiscountDeal{}}
}

func (f *fakeQueries) Create(_ context.Context, productID pgtype.UUID, description string, active bool) (store.DiscountDeal, error) {
	d := store.DiscountDeal{
		ID:          toUUID(uuid.New()),
		ProductID:   productID,
		Description: description,
		Active:      active,
		LastUpdated: pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	f.deals[store.UUIDString(d.ID)] = d
	f.created = append(f.created, d)
	return d, nil
}

func (f *fakeQueries) SetActive(_ context.Context, id pgtype.UUID, active bool) (store.DiscountDeal, error) {
	d, ok := f.deals[store.UUIDString(id)]
	if !ok {
		return store.DiscountDeal{}, store.ErrNoRows
	}
	d.Active = active
	f.deals[store.UUIDString(id)] = d
	f.setActive = append(f.setActive, id)
	return d, nil
}

func (f *fakeQueries) GetByID(_ context.Context, id pgtype.UUID) (store.DiscountDeal, error) {
	d, ok := f.deals[store.UUIDString(id)]
	if !ok {
		return store.DiscountDeal{}, store.ErrNoRows
	}
	return d, nil
}

func (f *fakeQueries) ListActiveByProduct(_ context.Context, productID pgtype.UUID) ([]store.DiscountDeal, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []store.DiscountDeal
	for _, d := range f.deals {
		if store.UUIDEqual(d.ProductID, productID) && d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeQueries) ListByProduct(_ context.Context, productID pgtype.UUID) ([]store.DiscountDeal, error) {
	var out []store.DiscountDeal
	for _, d := range f.deals {
		if store.UUIDEqual(d.ProductID, productID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeQueries) List(_ context.Context) ([]store.DiscountDeal, error) {
	var out []store.DiscountDeal
	for _, d := range f.deals {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeQueries) Delete(_ context.Context, id pgtype.UUID) (int64, error) {
	if _, ok := f.deals[store.UUIDString(id)]; !ok {
		return 0, nil
	}
	delete(f.deals, store.UUIDString(id))
	return 1, nil
}

type fakeProducts struct {
	known map[string]store.Product
}

func (f *fakeProducts) GetByID(_ context.Context, id pgtype.UUID) (store.Product, error) {
	p, ok := f.known[store.UUIDString(id)]
	if !ok {
		return store.Product{}, store.ErrNoRows
	}
	return p, nil
}

func toUUID(u uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: u, Valid: true}
}

func newService(t *testing.T, q *fakeQueries, products *fakeProducts) *deal.Service {
	t.Helper()
	svc, err := deal.NewService(deal.ServiceConfig{
		Queries:  q,
		Products: products,
		Locker:   lock.NewMutex(),
	})
	require.NoError(t, err)
	return svc
}

func seedProduct(q *fakeProducts) pgtype.UUID {
	id := toUUID(uuid.New())
	if q.known == nil {
		q.known = map[string]store.Product{}
	}
	q.known[store.UUIDString(id)] = store.Product{ID: id, Name: "Lamp", Price: 600}
	return id
}

func TestActivateCreatesUppercaseActiveDeal(t *testing.T) {
	queries := newFakeQueries()
	products := &fakeProducts{}
	productID := seedProduct(products)
	svc := newService(t, queries, products)

	created, err := svc.Activate(context.Background(), productID, "Buy 1 Get 1 Free", false)
	require.NoError(t, err)
	require.Equal(t, "BUY 1 GET 1 FREE", created.Description)
	require.True(t, created.Active, "fresh deals are always stored active")
	require.Len(t, queries.created, 1)
}

func TestActivateSameDescriptionUpdatesFlagOnly(t *testing.T) {
	queries := newFakeQueries()
	products := &fakeProducts{}
	productID := seedProduct(products)
	svc := newService(t, queries, products)

	created, err := svc.Activate(context.Background(), productID, "Buy 2 Get 1 Free", true)
	require.NoError(t, err)

	updated, err := svc.Activate(context.Background(), productID, "buy 2 get 1 free", false)
	require.NoError(t, err)
	require.True(t, store.UUIDEqual(created.ID, updated.ID), "matching description must reuse the stored deal")
	require.False(t, updated.Active)
	require.Len(t, queries.created, 1, "no second deal row")
}

func TestActivateReplacesDifferentDeal(t *testing.T) {
	queries := newFakeQueries()
	products := &fakeProducts{}
	productID := seedProduct(products)
	svc := newService(t, queries, products)

	old, err := svc.Activate(context.Background(), productID, "Buy 1 Get 1 Free", true)
	require.NoError(t, err)

	replacement, err := svc.Activate(context.Background(), productID, "Buy 2 Get 50% off on the next", true)
	require.NoError(t, err)
	require.False(t, store.UUIDEqual(old.ID, replacement.ID))
	require.Equal(t, "BUY 2 GET 50% OFF ON THE NEXT", replacement.Description)
	require.True(t, replacement.Active)

	previous, err := queries.GetByID(context.Background(), old.ID)
	require.NoError(t, err)
	require.False(t, previous.Active, "previous deal must be deactivated")

	active, err := queries.ListActiveByProduct(context.Background(), productID)
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestActivateUnknownProduct(t *testing.T) {
	queries := newFakeQueries()
	svc := newService(t, queries, &fakeProducts{})

	_, err := svc.Activate(context.Background(), toUUID(uuid.New()), "Buy 1 Get 1 Free", true)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestActivateReportsInvariantViolation(t *testing.T) {
	queries := newFakeQueries()
	products := &fakeProducts{}
	productID := seedProduct(products)
	// Two active rows for the same product simulate a corrupted store.
	for range 2 {
		_, err := queries.Create(context.Background(), productID, "BUY 1 GET 1 FREE", true)
		require.NoError(t, err)
	}
	svc := newService(t, queries, products)

	_, err := svc.Activate(context.Background(), productID, "Buy 1 Get 1 Free", true)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeInvariantViolation, appErr.Code)
}

func TestRemoveMissingDealIsPersistenceFailure(t *testing.T) {
	queries := newFakeQueries()
	svc := newService(t, queries, &fakeProducts{})

	err := svc.Remove(context.Background(), toUUID(uuid.New()))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodePersistenceFailure, appErr.Code)
}

func TestRemoveDeletesDeal(t *testing.T) {
	queries := newFakeQueries()
	products := &fakeProducts{}
	productID := seedProduct(products)
	svc := newService(t, queries, products)

	created, err := svc.Activate(context.Background(), productID, "Buy 3 Get 1 Free", true)
	require.NoError(t, err)
	require.NoError(t, svc.Remove(context.Background(), created.ID))

	_, err = svc.Get(context.Background(), created.ID)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestActiveForProduct(t *testing.T) {
	queries := newFakeQueries()
	products := &fakeProducts{}
	productID := seedProduct(products)
	svc := newService(t, queries, products)

	_, found, err := svc.ActiveForProduct(context.Background(), productID)
	require.NoError(t, err)
	require.False(t, found)

	created, err := svc.Activate(context.Background(), productID, "Buy 1 Get 10% off on the next", true)
	require.NoError(t, err)

	got, found, err := svc.ActiveForProduct(context.Background(), productID)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, store.UUIDEqual(created.ID, got.ID))
	require.True(t, strings.EqualFold("BUY 1 GET 10% OFF ON THE NEXT", got.Description))
}

func TestActivateLookupFailure(t *testing.T) {
	queries := newFakeQueries()
	queries.listErr = errors.New("connection reset")
	products := &fakeProducts{}
	productID := seedProduct(products)
	svc := newService(t, queries, products)

	_, err := svc.Activate(context.Background(), productID, "Buy 1 Get 1 Free", true)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodePersistenceFailure, appErr.Code)
}
