package basket_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/elstore/backend-elstore/internal/basket"
	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/store"
)

type fakeQueries struct {
	baskets    map[string]store.Basket
	items      map[string]store.BasketItem
	nextSeq    int64
	staleBumps bool
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{baskets: map[string]store.Basket{}, items: map[string]store.BasketItem{}}
}

func (f *fakeQueries) GetByID(_ context.Context, id pgtype.UUID) (store.Basket, error) {
	b, ok := f.baskets[store.UUIDString(id)]
	if !ok {
		return store.Basket{}, store.ErrNoRows
	}
	return b, nil
}

func (f *fakeQueries) FindByCustomer(_ context.Context, customerID pgtype.UUID) (store.Basket, error) {
	for _, b := range f.baskets {
		if store.UUIDEqual(b.CustomerID, customerID) {
			return b, nil
		}
	}
	return store.Basket{}, store.ErrNoRows
}

func (f *fakeQueries) Create(_ context.Context, customerID pgtype.UUID) (store.Basket, error) {
	b := store.Basket{ID: toUUID(uuid.New()), CustomerID: customerID}
	f.baskets[store.UUIDString(b.ID)] = b
	return b, nil
}

func (f *fakeQueries) BumpVersion(_ context.Context, id pgtype.UUID, expected int32) (int64, error) {
	if f.staleBumps {
		return 0, nil
	}
	b, ok := f.baskets[store.UUIDString(id)]
	if !ok || b.Version != expected {
		return 0, nil
	}
	b.Version++
	f.baskets[store.UUIDString(id)] = b
	return 1, nil
}

func (f *fakeQueries) InsertItem(_ context.Context, basketID, productID pgtype.UUID, qty int32) (store.BasketItem, error) {
	f.nextSeq++
	item := store.BasketItem{
		ID:        toUUID(uuid.New()),
		BasketID:  basketID,
		ProductID: productID,
		Qty:       qty,
		Seq:       f.nextSeq,
	}
	f.items[store.UUIDString(item.ID)] = item
	return item, nil
}

func (f *fakeQueries) ListItems(_ context.Context, basketID pgtype.UUID) ([]store.BasketItem, error) {
	var out []store.BasketItem
	for _, item := range f.items {
		if store.UUIDEqual(item.BasketID, basketID) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeQueries) DeleteItem(_ context.Context, itemID pgtype.UUID) (int64, error) {
	if _, ok := f.items[store.UUIDString(itemID)]; !ok {
		return 0, nil
	}
	delete(f.items, store.UUIDString(itemID))
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

func seedProduct(products *fakeProducts) pgtype.UUID {
	id := toUUID(uuid.New())
	if products.known == nil {
		products.known = map[string]store.Product{}
	}
	products.known[store.UUIDString(id)] = store.Product{ID: id, Name: "Lamp", Price: 600}
	return id
}

func newService(t *testing.T, q *fakeQueries, products *fakeProducts) *basket.Service {
	t.Helper()
	svc, err := basket.NewService(basket.ServiceConfig{Queries: q, Products: products})
	require.NoError(t, err)
	return svc
}

func TestAddItemOpensBasketOnFirstWrite(t *testing.T) {
	queries := newFakeQueries()
	products := &fakeProducts{}
	productID := seedProduct(products)
	svc := newService(t, queries, products)

	customerID := toUUID(uuid.New())
	item, err := svc.AddItem(context.Background(), customerID, productID, 3)
	require.NoError(t, err)
	require.Equal(t, int32(3), item.Qty)
	require.Len(t, queries.baskets, 1)

	// A second add reuses the basket.
	_, err = svc.AddItem(context.Background(), customerID, productID, 1)
	require.NoError(t, err)
	require.Len(t, queries.baskets, 1)

	contents, err := svc.ForCustomer(context.Background(), customerID)
	require.NoError(t, err)
	require.Len(t, contents.Items, 2)
	require.Equal(t, int32(2), contents.Basket.Version)
}

func TestAddItemRejectsBadInput(t *testing.T) {
	queries := newFakeQueries()
	products := &fakeProducts{}
	productID := seedProduct(products)
	svc := newService(t, queries, products)

	var appErr *common.AppError
	_, err := svc.AddItem(context.Background(), toUUID(uuid.New()), productID, 0)
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)

	_, err = svc.AddItem(context.Background(), toUUID(uuid.New()), toUUID(uuid.New()), 1)
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestAddItemLostRaceFails(t *testing.T) {
	queries := newFakeQueries()
	queries.staleBumps = true
	products := &fakeProducts{}
	productID := seedProduct(products)
	svc := newService(t, queries, products)

	_, err := svc.AddItem(context.Background(), toUUID(uuid.New()), productID, 1)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodePersistenceFailure, appErr.Code)
	require.Empty(t, queries.items, "no item may be stored after a lost race")
}

func TestRemoveItemMissingIsPersistenceFailure(t *testing.T) {
	queries := newFakeQueries()
	products := &fakeProducts{}
	productID := seedProduct(products)
	svc := newService(t, queries, products)

	customerID := toUUID(uuid.New())
	item, err := svc.AddItem(context.Background(), customerID, productID, 2)
	require.NoError(t, err)

	var appErr *common.AppError
	err = svc.RemoveItem(context.Background(), item.BasketID, toUUID(uuid.New()))
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodePersistenceFailure, appErr.Code)

	require.NoError(t, svc.RemoveItem(context.Background(), item.BasketID, item.ID))
	contents, err := svc.Get(context.Background(), item.BasketID)
	require.NoError(t, err)
	require.Empty(t, contents.Items)
}

func TestGetUnknownBasket(t *testing.T) {
	svc := newService(t, newFakeQueries(), &fakeProducts{})

	_, err := svc.Get(context.Background(), toUUID(uuid.New()))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}
