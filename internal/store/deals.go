package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// DiscountDeal couples a product with a free-text deal description. At most
// one deal per product may be active, enforced by a partial unique index as
// a backstop behind the activation service's exclusion region.
type DiscountDeal struct {
	ID          pgtype.UUID
	ProductID   pgtype.UUID
	Description string
	Active      bool
	LastUpdated pgtype.Timestamptz
}

// ActiveDealConstraint is the partial unique index guarding the
// one-active-deal-per-product invariant.
const ActiveDealConstraint = "discount_deals_one_active"

// DealStore persists discount deals.
type DealStore struct {
	DB DBTX
}

const dealColumns = `id, product_id, description, active, last_updated`

// Create inserts a deal and returns the stored row.
func (s DealStore) Create(ctx context.Context, productID pgtype.UUID, description string, active bool) (DiscountDeal, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO discount_deals (product_id, description, active)
		VALUES ($1, $2, $3)
		RETURNING `+dealColumns, productID, description, active)
	return scanDeal(row)
}

// SetActive flips the active flag of an existing deal.
func (s DealStore) SetActive(ctx context.Context, id pgtype.UUID, active bool) (DiscountDeal, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE discount_deals
		SET active = $2, last_updated = now()
		WHERE id = $1
		RETURNING `+dealColumns, id, active)
	return scanDeal(row)
}

// GetByID returns a single deal. pgx.ErrNoRows when absent.
func (s DealStore) GetByID(ctx context.Context, id pgtype.UUID) (DiscountDeal, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+dealColumns+` FROM discount_deals WHERE id = $1`, id)
	return scanDeal(row)
}

// ListActiveByProduct returns the deals currently active for the product.
// The invariant allows at most one; callers treat more as a violation.
func (s DealStore) ListActiveByProduct(ctx context.Context, productID pgtype.UUID) ([]DiscountDeal, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+dealColumns+` FROM discount_deals
		WHERE product_id = $1 AND active`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeals(rows)
}

// ListByProduct returns every deal recorded for the product, newest first.
func (s DealStore) ListByProduct(ctx context.Context, productID pgtype.UUID) ([]DiscountDeal, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+dealColumns+` FROM discount_deals
		WHERE product_id = $1
		ORDER BY last_updated DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeals(rows)
}

// List returns all deals ordered by last update.
func (s DealStore) List(ctx context.Context) ([]DiscountDeal, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+dealColumns+` FROM discount_deals ORDER BY last_updated DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeals(rows)
}

// Delete removes a deal, returning the number of rows affected.
func (s DealStore) Delete(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM discount_deals WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanDeal(row rowScanner) (DiscountDeal, error) {
	var d DiscountDeal
	err := row.Scan(&d.ID, &d.ProductID, &d.Description, &d.Active, &d.LastUpdated)
	return d, err
}

func collectDeals(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]DiscountDeal, error) {
	var out []DiscountDeal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
