package product

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/store"
)

// Querier captures the database methods required by the product service.
type Querier interface {
	Create(ctx context.Context, name string, description pgtype.Text, price int64) (store.Product, error)
	Update(ctx context.Context, id pgtype.UUID, name string, description pgtype.Text, price int64) (store.Product, error)
	GetByID(ctx context.Context, id pgtype.UUID) (store.Product, error)
	List(ctx context.Context, limit, offset int) ([]store.Product, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id pgtype.UUID) (int64, error)
}

// Input carries the writable fields of a product. Price is in minor
// currency units.
type Input struct {
	Name        string
	Description string
	Price       int64
}

// Service owns the product catalog.
type Service struct {
	q Querier
}

// NewService constructs a product service.
func NewService(q Querier) (*Service, error) {
	if q == nil {
		return nil, errors.New("product: queries are required")
	}
	return &Service{q: q}, nil
}

// Create stores a new product. Names are unique across the catalog.
func (s *Service) Create(ctx context.Context, in Input) (store.Product, error) {
	if err := validateInput(&in); err != nil {
		return store.Product{}, err
	}
	created, err := s.q.Create(ctx, in.Name, textOrNull(in.Description), in.Price)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return store.Product{}, common.NewAppError(common.CodeConflict, "product name already exists", http.StatusConflict, err)
		}
		return store.Product{}, common.PersistenceError("store product", err)
	}
	return created, nil
}

// Update rewrites an existing product.
func (s *Service) Update(ctx context.Context, id pgtype.UUID, in Input) (store.Product, error) {
	if !id.Valid {
		return store.Product{}, common.ValidationError("product id is required", nil)
	}
	if err := validateInput(&in); err != nil {
		return store.Product{}, err
	}
	updated, err := s.q.Update(ctx, id, in.Name, textOrNull(in.Description), in.Price)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return store.Product{}, common.NotFoundError("product not found", err)
		}
		if store.IsUniqueViolation(err) {
			return store.Product{}, common.NewAppError(common.CodeConflict, "product name already exists", http.StatusConflict, err)
		}
		return store.Product{}, common.PersistenceError("update product", err)
	}
	return updated, nil
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id pgtype.UUID) (store.Product, error) {
	if !id.Valid {
		return store.Product{}, common.ValidationError("product id is required", nil)
	}
	p, err := s.q.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return store.Product{}, common.NotFoundError("product not found", err)
		}
		return store.Product{}, common.PersistenceError("look up product", err)
	}
	return p, nil
}

// List returns one catalog page plus pagination metadata.
func (s *Service) List(ctx context.Context, page, perPage int) ([]store.Product, common.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	products, err := s.q.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, common.Pagination{}, common.PersistenceError("list products", err)
	}
	total, err := s.q.Count(ctx)
	if err != nil {
		return nil, common.Pagination{}, common.PersistenceError("count products", err)
	}
	return products, common.Pagination{Page: page, PerPage: perPage, TotalItems: total}, nil
}

// Delete removes a product. Deleting an unknown id is a persistence failure.
func (s *Service) Delete(ctx context.Context, id pgtype.UUID) error {
	if !id.Valid {
		return common.ValidationError("product id is required", nil)
	}
	rows, err := s.q.Delete(ctx, id)
	if err != nil {
		return common.PersistenceError("delete product", err)
	}
	if rows == 0 {
		return common.PersistenceError("product does not exist", store.ErrNoRows)
	}
	return nil
}

func validateInput(in *Input) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return common.ValidationError("product name is required", nil)
	}
	if in.Price < 0 {
		return common.ValidationError("product price must not be negative", nil)
	}
	return nil
}

func textOrNull(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}
