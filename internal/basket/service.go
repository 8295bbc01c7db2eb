package basket

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/events"
	"github.com/elstore/backend-elstore/internal/obs"
	"github.com/elstore/backend-elstore/internal/store"
)

// Querier captures the database methods required by the basket service.
type Querier interface {
	GetByID(ctx context.Context, id pgtype.UUID) (store.Basket, error)
	FindByCustomer(ctx context.Context, customerID pgtype.UUID) (store.Basket, error)
	Create(ctx context.Context, customerID pgtype.UUID) (store.Basket, error)
	BumpVersion(ctx context.Context, id pgtype.UUID, expected int32) (int64, error)
	InsertItem(ctx context.Context, basketID, productID pgtype.UUID, qty int32) (store.BasketItem, error)
	ListItems(ctx context.Context, basketID pgtype.UUID) ([]store.BasketItem, error)
	DeleteItem(ctx context.Context, itemID pgtype.UUID) (int64, error)
}

// ProductGetter resolves products so basket writes can reject unknown ids.
type ProductGetter interface {
	GetByID(ctx context.Context, id pgtype.UUID) (store.Product, error)
}

// Contents pairs a basket with its item lines in insertion order.
type Contents struct {
	Basket store.Basket
	Items  []store.BasketItem
}

// ServiceConfig wires the collaborators of the basket service.
type ServiceConfig struct {
	Queries  Querier
	Products ProductGetter
	Bus      *events.Bus
	Logger   zerolog.Logger
}

// Service owns customer baskets. Writes advance the basket version with a
// compare-and-swap; a lost race surfaces as an error rather than a retry.
type Service struct {
	q        Querier
	products ProductGetter
	bus      *events.Bus
	log      zerolog.Logger
}

// NewService constructs a basket service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("basket: queries are required")
	}
	return &Service{q: cfg.Queries, products: cfg.Products, bus: cfg.Bus, log: cfg.Logger}, nil
}

// AddItem appends a product line to the customer's basket, opening a basket
// when the customer has none yet.
func (s *Service) AddItem(ctx context.Context, customerID, productID pgtype.UUID, qty int32) (store.BasketItem, error) {
	if !customerID.Valid {
		return store.BasketItem{}, common.ValidationError("customer id is required", nil)
	}
	if !productID.Valid {
		return store.BasketItem{}, common.ValidationError("product id is required", nil)
	}
	if qty <= 0 {
		return store.BasketItem{}, common.ValidationError("quantity must be positive", nil)
	}
	if s.products != nil {
		if _, err := s.products.GetByID(ctx, productID); err != nil {
			if errors.Is(err, store.ErrNoRows) {
				return store.BasketItem{}, common.NotFoundError("product not found", err)
			}
			return store.BasketItem{}, common.PersistenceError("look up product", err)
		}
	}
	basket, err := s.findOrCreate(ctx, customerID)
	if err != nil {
		return store.BasketItem{}, err
	}
	// The version bump is the write guard: when it loses the race no item
	// is inserted and the caller gets the failure.
	rows, err := s.q.BumpVersion(ctx, basket.ID, basket.Version)
	if err != nil {
		return store.BasketItem{}, common.PersistenceError("advance basket version", err)
	}
	if rows == 0 {
		return store.BasketItem{}, common.PersistenceError("basket was modified concurrently", nil)
	}
	item, err := s.q.InsertItem(ctx, basket.ID, productID, qty)
	if err != nil {
		return store.BasketItem{}, common.PersistenceError("store basket item", err)
	}
	if obs.BasketItemAddedTotal != nil {
		obs.BasketItemAddedTotal.Inc()
	}
	s.emit(ctx, events.TopicBasketItemAdded, basket.ID, map[string]any{
		"productId": store.UUIDString(productID),
		"qty":       qty,
	})
	return item, nil
}

// RemoveItem deletes a basket line. Removing an id that does not exist is a
// persistence failure, not a no-op.
func (s *Service) RemoveItem(ctx context.Context, basketID, itemID pgtype.UUID) error {
	if !basketID.Valid || !itemID.Valid {
		return common.ValidationError("basket and item ids are required", nil)
	}
	basket, err := s.q.GetByID(ctx, basketID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return common.NotFoundError("basket not found", err)
		}
		return common.PersistenceError("look up basket", err)
	}
	rows, err := s.q.BumpVersion(ctx, basket.ID, basket.Version)
	if err != nil {
		return common.PersistenceError("advance basket version", err)
	}
	if rows == 0 {
		return common.PersistenceError("basket was modified concurrently", nil)
	}
	deleted, err := s.q.DeleteItem(ctx, itemID)
	if err != nil {
		return common.PersistenceError("delete basket item", err)
	}
	if deleted == 0 {
		return common.PersistenceError("basket item does not exist", store.ErrNoRows)
	}
	return nil
}

// Get returns a basket and its items.
func (s *Service) Get(ctx context.Context, basketID pgtype.UUID) (Contents, error) {
	if !basketID.Valid {
		return Contents{}, common.ValidationError("basket id is required", nil)
	}
	basket, err := s.q.GetByID(ctx, basketID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return Contents{}, common.NotFoundError("basket not found", err)
		}
		return Contents{}, common.PersistenceError("look up basket", err)
	}
	items, err := s.q.ListItems(ctx, basket.ID)
	if err != nil {
		return Contents{}, common.PersistenceError("list basket items", err)
	}
	return Contents{Basket: basket, Items: items}, nil
}

// ForCustomer returns the customer's basket and its items, creating the
// basket when the customer has none.
func (s *Service) ForCustomer(ctx context.Context, customerID pgtype.UUID) (Contents, error) {
	if !customerID.Valid {
		return Contents{}, common.ValidationError("customer id is required", nil)
	}
	basket, err := s.findOrCreate(ctx, customerID)
	if err != nil {
		return Contents{}, err
	}
	items, err := s.q.ListItems(ctx, basket.ID)
	if err != nil {
		return Contents{}, common.PersistenceError("list basket items", err)
	}
	return Contents{Basket: basket, Items: items}, nil
}

func (s *Service) findOrCreate(ctx context.Context, customerID pgtype.UUID) (store.Basket, error) {
	basket, err := s.q.FindByCustomer(ctx, customerID)
	if err == nil {
		return basket, nil
	}
	if !errors.Is(err, store.ErrNoRows) {
		return store.Basket{}, common.PersistenceError("look up basket", err)
	}
	created, err := s.q.Create(ctx, customerID)
	if err != nil {
		return store.Basket{}, common.PersistenceError("open basket", err)
	}
	return created, nil
}

func (s *Service) emit(ctx context.Context, topic string, aggregateID pgtype.UUID, payload any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("emit domain event")
	}
}
