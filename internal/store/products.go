package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// Product is a catalog entry. Price is stored in minor currency units.
type Product struct {
	ID          pgtype.UUID
	Name        string
	Description pgtype.Text
	Price       int64
	LastUpdated pgtype.Timestamptz
}

// ProductStore persists catalog products.
type ProductStore struct {
	DB DBTX
}

const productColumns = `id, name, description, price, last_updated`

// Create inserts a product and returns the stored row.
func (s ProductStore) Create(ctx context.Context, name string, description pgtype.Text, price int64) (Product, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO products (name, description, price)
		VALUES ($1, $2, $3)
		RETURNING `+productColumns, name, description, price)
	return scanProduct(row)
}

// Update replaces the mutable fields of a product.
func (s ProductStore) Update(ctx context.Context, id pgtype.UUID, name string, description pgtype.Text, price int64) (Product, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, last_updated = now()
		WHERE id = $1
		RETURNING `+productColumns, id, name, description, price)
	return scanProduct(row)
}

// GetByID returns a single product. pgx.ErrNoRows when absent.
func (s ProductStore) GetByID(ctx context.Context, id pgtype.UUID) (Product, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// List returns a page of products ordered by name.
func (s ProductStore) List(ctx context.Context, limit, offset int) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the catalog size.
func (s ProductStore) Count(ctx context.Context) (int, error) {
	var total int
	err := s.DB.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&total)
	return total, err
}

// Delete removes a product, returning the number of rows affected.
func (s ProductStore) Delete(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.LastUpdated)
	return p, err
}
