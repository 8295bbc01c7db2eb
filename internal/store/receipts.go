package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// Receipt is an immutable record of one basket calculation. Details text is
// generated after the row exists because it embeds the assigned identifier.
type Receipt struct {
	ID        pgtype.UUID
	BasketID  pgtype.UUID
	Total     int64
	Details   pgtype.Text
	CreatedAt pgtype.Timestamptz
}

// ReceiptStore persists receipts and their applied-deal references.
type ReceiptStore struct {
	DB DBTX
}

// Create inserts a receipt row, assigning its identifier.
func (s ReceiptStore) Create(ctx context.Context, basketID pgtype.UUID, total int64) (Receipt, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO receipts (basket_id, total)
		VALUES ($1, $2)
		RETURNING id, basket_id, total, details, created_at`, basketID, total)
	var r Receipt
	err := row.Scan(&r.ID, &r.BasketID, &r.Total, &r.Details, &r.CreatedAt)
	return r, err
}

// GetByID returns a receipt. pgx.ErrNoRows when absent.
func (s ReceiptStore) GetByID(ctx context.Context, id pgtype.UUID) (Receipt, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, basket_id, total, details, created_at
		FROM receipts WHERE id = $1`, id)
	var r Receipt
	err := row.Scan(&r.ID, &r.BasketID, &r.Total, &r.Details, &r.CreatedAt)
	return r, err
}

// ListByBasket returns the receipts calculated for a basket, newest first.
func (s ReceiptStore) ListByBasket(ctx context.Context, basketID pgtype.UUID) ([]Receipt, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, basket_id, total, details, created_at
		FROM receipts
		WHERE basket_id = $1
		ORDER BY created_at DESC`, basketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		var r Receipt
		if err := rows.Scan(&r.ID, &r.BasketID, &r.Total, &r.Details, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetDetails stores the rendered detail text for a receipt.
func (s ReceiptStore) SetDetails(ctx context.Context, id pgtype.UUID, details string) error {
	_, err := s.DB.Exec(ctx, `UPDATE receipts SET details = $2 WHERE id = $1`, id, details)
	return err
}

// AddAppliedDeal records that a deal contributed to a receipt. Repeated
// inserts collapse, giving the applied set its set semantics.
func (s ReceiptStore) AddAppliedDeal(ctx context.Context, receiptID, dealID pgtype.UUID) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO receipt_deals (receipt_id, deal_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, receiptID, dealID)
	return err
}

// ListAppliedDeals returns the identifiers of deals applied on a receipt.
func (s ReceiptStore) ListAppliedDeals(ctx context.Context, receiptID pgtype.UUID) ([]pgtype.UUID, error) {
	rows, err := s.DB.Query(ctx, `SELECT deal_id FROM receipt_deals WHERE receipt_id = $1`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pgtype.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
