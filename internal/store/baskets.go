package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// Basket is a customer's open basket. Version backs optimistic concurrency
// on basket mutation; the services never retry a lost race.
type Basket struct {
	ID          pgtype.UUID
	CustomerID  pgtype.UUID
	Version     int32
	LastUpdated pgtype.Timestamptz
}

// BasketItem is one product line inside a basket. Seq preserves insertion
// order for receipt calculation.
type BasketItem struct {
	ID        pgtype.UUID
	BasketID  pgtype.UUID
	ProductID pgtype.UUID
	Qty       int32
	Seq       int64
}

// BasketStore persists baskets and their items.
type BasketStore struct {
	DB DBTX
}

const basketColumns = `id, customer_id, version, last_updated`

// GetByID returns a basket. pgx.ErrNoRows when absent.
func (s BasketStore) GetByID(ctx context.Context, id pgtype.UUID) (Basket, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+basketColumns+` FROM baskets WHERE id = $1`, id)
	return scanBasket(row)
}

// FindByCustomer returns the customer's basket. pgx.ErrNoRows when absent.
func (s BasketStore) FindByCustomer(ctx context.Context, customerID pgtype.UUID) (Basket, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT `+basketColumns+` FROM baskets
		WHERE customer_id = $1
		ORDER BY last_updated DESC
		LIMIT 1`, customerID)
	return scanBasket(row)
}

// Create opens a new basket for the customer.
func (s BasketStore) Create(ctx context.Context, customerID pgtype.UUID) (Basket, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO baskets (customer_id)
		VALUES ($1)
		RETURNING `+basketColumns, customerID)
	return scanBasket(row)
}

// BumpVersion advances the basket's optimistic concurrency token. It returns
// the number of rows updated; zero means the expected version was stale.
func (s BasketStore) BumpVersion(ctx context.Context, id pgtype.UUID, expected int32) (int64, error) {
	tag, err := s.DB.Exec(ctx, `
		UPDATE baskets
		SET version = version + 1, last_updated = now()
		WHERE id = $1 AND version = $2`, id, expected)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertItem appends a product line to the basket.
func (s BasketStore) InsertItem(ctx context.Context, basketID, productID pgtype.UUID, qty int32) (BasketItem, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO basket_items (basket_id, product_id, qty)
		VALUES ($1, $2, $3)
		RETURNING id, basket_id, product_id, qty, seq`, basketID, productID, qty)
	return scanBasketItem(row)
}

// ListItems returns the basket's items in insertion order.
func (s BasketStore) ListItems(ctx context.Context, basketID pgtype.UUID) ([]BasketItem, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, basket_id, product_id, qty, seq
		FROM basket_items
		WHERE basket_id = $1
		ORDER BY seq`, basketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BasketItem
	for rows.Next() {
		it, err := scanBasketItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// DeleteItem removes a basket item, returning the number of rows affected.
func (s BasketStore) DeleteItem(ctx context.Context, itemID pgtype.UUID) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM basket_items WHERE id = $1`, itemID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanBasket(row rowScanner) (Basket, error) {
	var b Basket
	err := row.Scan(&b.ID, &b.CustomerID, &b.Version, &b.LastUpdated)
	return b, err
}

func scanBasketItem(row rowScanner) (BasketItem, error) {
	var it BasketItem
	err := row.Scan(&it.ID, &it.BasketID, &it.ProductID, &it.Qty, &it.Seq)
	return it, err
}
