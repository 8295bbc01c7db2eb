package receipt_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/receipt"
	"github.com/elstore/backend-elstore/internal/store"
)

type fixture struct {
	baskets  *fakeBaskets
	products *fakeProducts
	deals    *fakeDeals
	receipts *fakeReceipts
	svc      *receipt.Service
}

type fakeBaskets struct {
	baskets map[string]store.Basket
	items   map[string][]store.BasketItem
}

func (f *fakeBaskets) GetByID(_ context.Context, id pgtype.UUID) (store.Basket, error) {
	b, ok := f.baskets[store.UUIDString(id)]
	if !ok {
		return store.Basket{}, store.ErrNoRows
	}
	return b, nil
}

func (f *fakeBaskets) ListItems(_ context.Context, basketID pgtype.UUID) ([]store.BasketItem, error) {
	return f.items[store.UUIDString(basketID)], nil
}

type fakeProducts struct {
	products map[string]store.Product
}

func (f *fakeProducts) GetByID(_ context.Context, id pgtype.UUID) (store.Product, error) {
	p, ok := f.products[store.UUIDString(id)]
	if !ok {
		return store.Product{}, store.ErrNoRows
	}
	return p, nil
}

type fakeDeals struct {
	active map[string][]store.DiscountDeal
}

func (f *fakeDeals) ListActiveByProduct(_ context.Context, productID pgtype.UUID) ([]store.DiscountDeal, error) {
	return f.active[store.UUIDString(productID)], nil
}

type fakeReceipts struct {
	stored  map[string]store.Receipt
	applied map[string][]pgtype.UUID
}

func (f *fakeReceipts) Create(_ context.Context, basketID pgtype.UUID, total int64) (store.Receipt, error) {
	r := store.Receipt{
		ID:        toUUID(uuid.New()),
		BasketID:  basketID,
		Total:     total,
		CreatedAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	f.stored[store.UUIDString(r.ID)] = r
	return r, nil
}

func (f *fakeReceipts) SetDetails(_ context.Context, id pgtype.UUID, details string) error {
	r, ok := f.stored[store.UUIDString(id)]
	if !ok {
		return store.ErrNoRows
	}
	r.Details = pgtype.Text{String: details, Valid: true}
	f.stored[store.UUIDString(id)] = r
	return nil
}

func (f *fakeReceipts) AddAppliedDeal(_ context.Context, receiptID, dealID pgtype.UUID) error {
	key := store.UUIDString(receiptID)
	for _, existing := range f.applied[key] {
		if store.UUIDEqual(existing, dealID) {
			return nil
		}
	}
	f.applied[key] = append(f.applied[key], dealID)
	return nil
}

func (f *fakeReceipts) GetByID(_ context.Context, id pgtype.UUID) (store.Receipt, error) {
	r, ok := f.stored[store.UUIDString(id)]
	if !ok {
		return store.Receipt{}, store.ErrNoRows
	}
	return r, nil
}

func (f *fakeReceipts) ListAppliedDeals(_ context.Context, receiptID pgtype.UUID) ([]pgtype.UUID, error) {
	return f.applied[store.UUIDString(receiptID)], nil
}

func (f *fakeReceipts) ListByBasket(_ context.Context, basketID pgtype.UUID) ([]store.Receipt, error) {
	var out []store.Receipt
	for _, r := range f.stored {
		if store.UUIDEqual(r.BasketID, basketID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func toUUID(u uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: u, Valid: true}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		baskets:  &fakeBaskets{baskets: map[string]store.Basket{}, items: map[string][]store.BasketItem{}},
		products: &fakeProducts{products: map[string]store.Product{}},
		deals:    &fakeDeals{active: map[string][]store.DiscountDeal{}},
		receipts: &fakeReceipts{stored: map[string]store.Receipt{}, applied: map[string][]pgtype.UUID{}},
	}
	svc, err := receipt.NewService(receipt.ServiceConfig{
		Baskets:  f.baskets,
		Products: f.products,
		Deals:    f.deals,
		Receipts: f.receipts,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) addProduct(name string, price int64) pgtype.UUID {
	id := toUUID(uuid.New())
	f.products.products[store.UUIDString(id)] = store.Product{ID: id, Name: name, Price: price}
	return id
}

func (f *fixture) addDeal(productID pgtype.UUID, description string) store.DiscountDeal {
	d := store.DiscountDeal{ID: toUUID(uuid.New()), ProductID: productID, Description: description, Active: true}
	key := store.UUIDString(productID)
	f.deals.active[key] = append(f.deals.active[key], d)
	return d
}

func (f *fixture) addBasket(items ...store.BasketItem) pgtype.UUID {
	id := toUUID(uuid.New())
	f.baskets.baskets[store.UUIDString(id)] = store.Basket{ID: id, CustomerID: toUUID(uuid.New())}
	for i := range items {
		items[i].BasketID = id
		items[i].Seq = int64(i + 1)
	}
	f.baskets.items[store.UUIDString(id)] = items
	return id
}

func TestCalculateBuyOneGetOneFree(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("Desk Lamp", 600)
	deal := f.addDeal(productID, "BUY 1 GET 1 FREE")
	basketID := f.addBasket(store.BasketItem{ID: toUUID(uuid.New()), ProductID: productID, Qty: 4})

	result, err := f.svc.Calculate(context.Background(), basketID)
	require.NoError(t, err)
	require.Equal(t, int64(1200), result.Receipt.Total)
	require.Len(t, result.AppliedDeals, 1)
	require.True(t, store.UUIDEqual(deal.ID, result.AppliedDeals[0].ID))
	require.Len(t, f.receipts.applied[store.UUIDString(result.Receipt.ID)], 1)
}

func TestCalculatePercentOffOnTheNext(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("Monitor", 10000)
	f.addDeal(productID, "BUY 2 GET 10% OFF ON THE NEXT")

	t.Run("above threshold", func(t *testing.T) {
		basketID := f.addBasket(store.BasketItem{ID: toUUID(uuid.New()), ProductID: productID, Qty: 5})
		result, err := f.svc.Calculate(context.Background(), basketID)
		require.NoError(t, err)
		require.Equal(t, int64(49000), result.Receipt.Total)
		require.Len(t, result.AppliedDeals, 1)
	})

	t.Run("at threshold", func(t *testing.T) {
		basketID := f.addBasket(store.BasketItem{ID: toUUID(uuid.New()), ProductID: productID, Qty: 2})
		result, err := f.svc.Calculate(context.Background(), basketID)
		require.NoError(t, err)
		require.Equal(t, int64(20000), result.Receipt.Total)
		require.Empty(t, result.AppliedDeals, "deal below threshold must not count as applied")
	})
}

func TestCalculateFreeDealAppliesBelowOneSet(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("Mug", 600)
	f.addDeal(productID, "BUY 1 GET 1 FREE")
	basketID := f.addBasket(store.BasketItem{ID: toUUID(uuid.New()), ProductID: productID, Qty: 1})

	result, err := f.svc.Calculate(context.Background(), basketID)
	require.NoError(t, err)
	require.Equal(t, int64(600), result.Receipt.Total)
	require.Len(t, result.AppliedDeals, 1, "free-unit deals count as applied even without a complete set")
}

func TestCalculateIgnoresUnrecognisedDescriptions(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("Chair", 5000)
	f.addDeal(productID, "HALF PRICE TUESDAYS")
	basketID := f.addBasket(store.BasketItem{ID: toUUID(uuid.New()), ProductID: productID, Qty: 2})

	result, err := f.svc.Calculate(context.Background(), basketID)
	require.NoError(t, err)
	require.Equal(t, int64(10000), result.Receipt.Total)
	require.Empty(t, result.AppliedDeals)
}

func TestCalculateUnknownBasket(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Calculate(context.Background(), toUUID(uuid.New()))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestCalculateUnknownProductInBasket(t *testing.T) {
	f := newFixture(t)
	basketID := f.addBasket(store.BasketItem{ID: toUUID(uuid.New()), ProductID: toUUID(uuid.New()), Qty: 1})

	_, err := f.svc.Calculate(context.Background(), basketID)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestCalculateTwoActiveDealsIsInvariantViolation(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("Desk", 10000)
	f.addDeal(productID, "BUY 1 GET 1 FREE")
	f.addDeal(productID, "BUY 2 GET 10% OFF ON THE NEXT")
	basketID := f.addBasket(store.BasketItem{ID: toUUID(uuid.New()), ProductID: productID, Qty: 1})

	_, err := f.svc.Calculate(context.Background(), basketID)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeInvariantViolation, appErr.Code)
}

func TestCalculateRendersDetailText(t *testing.T) {
	f := newFixture(t)
	lampID := f.addProduct("Desk Lamp", 600)
	f.addDeal(lampID, "BUY 1 GET 1 FREE")
	chairID := f.addProduct("Chair", 5000)
	basketID := f.addBasket(
		store.BasketItem{ID: toUUID(uuid.New()), ProductID: lampID, Qty: 4},
		store.BasketItem{ID: toUUID(uuid.New()), ProductID: chairID, Qty: 1},
	)

	result, err := f.svc.Calculate(context.Background(), basketID)
	require.NoError(t, err)

	want := fmt.Sprintf("Receipt ID: %s\n", store.UUIDString(result.Receipt.ID)) +
		"Items:\n" +
		" - Product: Desk Lamp, Quantity: 4\n" +
		"Applied Discounts:\n" +
		" - BUY 1 GET 1 FREE\n" +
		" - Product: Chair, Quantity: 1\n" +
		"Applied Discounts:\n" +
		"Total: 62.00\n"
	require.Equal(t, want, result.Receipt.Details.String)

	stored, dealIDs, err := f.svc.Get(context.Background(), result.Receipt.ID)
	require.NoError(t, err)
	require.Equal(t, want, stored.Details.String)
	require.Len(t, dealIDs, 1)
}

func TestCalculateDeduplicatesAppliedDeals(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("Pen", 100)
	f.addDeal(productID, "BUY 1 GET 1 FREE")
	basketID := f.addBasket(
		store.BasketItem{ID: toUUID(uuid.New()), ProductID: productID, Qty: 2},
		store.BasketItem{ID: toUUID(uuid.New()), ProductID: productID, Qty: 2},
	)

	result, err := f.svc.Calculate(context.Background(), basketID)
	require.NoError(t, err)
	require.Equal(t, int64(200), result.Receipt.Total)
	require.Len(t, result.AppliedDeals, 1)
}

func TestCalculateEmptyBasket(t *testing.T) {
	f := newFixture(t)
	basketID := f.addBasket()

	result, err := f.svc.Calculate(context.Background(), basketID)
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Receipt.Total)
	require.Empty(t, result.AppliedDeals)
	want := fmt.Sprintf("Receipt ID: %s\nItems:\nTotal: 0.00\n", store.UUIDString(result.Receipt.ID))
	require.Equal(t, want, result.Receipt.Details.String)
}
