package deal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/discount"
	"github.com/elstore/backend-elstore/internal/events"
	"github.com/elstore/backend-elstore/internal/lock"
	"github.com/elstore/backend-elstore/internal/obs"
	"github.com/elstore/backend-elstore/internal/store"
)

// LockKey names the exclusion region shared by every deal mutation. All
// writers serialize on it regardless of product.
const LockKey = "deals"

const defaultLockTTL = 5 * time.Second

// Querier captures the database methods required by the deal service.
type Querier interface {
	Create(ctx context.Context, productID pgtype.UUID, description string, active bool) (store.DiscountDeal, error)
	SetActive(ctx context.Context, id pgtype.UUID, active bool) (store.DiscountDeal, error)
	GetByID(ctx context.Context, id pgtype.UUID) (store.DiscountDeal, error)
	ListActiveByProduct(ctx context.Context, productID pgtype.UUID) ([]store.DiscountDeal, error)
	ListByProduct(ctx context.Context, productID pgtype.UUID) ([]store.DiscountDeal, error)
	List(ctx context.Context) ([]store.DiscountDeal, error)
	Delete(ctx context.Context, id pgtype.UUID) (int64, error)
}

// ProductGetter resolves products so activation can reject unknown ids.
type ProductGetter interface {
	GetByID(ctx context.Context, id pgtype.UUID) (store.Product, error)
}

// ServiceConfig wires the collaborators of the deal service.
type ServiceConfig struct {
	Queries  Querier
	Products ProductGetter
	Locker   lock.Locker
	LockTTL  time.Duration
	Bus      *events.Bus
	Logger   zerolog.Logger
}

// Service owns the lifecycle of discount deals. Every mutation runs inside
// the shared exclusion region so that at most one deal per product is active.
type Service struct {
	q        Querier
	products ProductGetter
	locker   lock.Locker
	lockTTL  time.Duration
	bus      *events.Bus
	log      zerolog.Logger
}

// NewService constructs a deal service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("deal: queries are required")
	}
	if cfg.Locker == nil {
		return nil, errors.New("deal: locker is required")
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Service{
		q:        cfg.Queries,
		products: cfg.Products,
		locker:   cfg.Locker,
		lockTTL:  ttl,
		bus:      cfg.Bus,
		log:      cfg.Logger,
	}, nil
}

// Activate attaches a deal description to a product. When the product already
// has an active deal with the same description (compared case-insensitively),
// only its active flag is updated to the requested value. Any other active
// deal is deactivated first and a fresh deal is stored with the description
// canonicalized to uppercase and active forced to true.
func (s *Service) Activate(ctx context.Context, productID pgtype.UUID, description string, active bool) (store.DiscountDeal, error) {
	if !productID.Valid {
		return store.DiscountDeal{}, common.ValidationError("product id is required", nil)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return store.DiscountDeal{}, common.ValidationError("deal description is required", nil)
	}
	if s.products != nil {
		if _, err := s.products.GetByID(ctx, productID); err != nil {
			if errors.Is(err, store.ErrNoRows) {
				return store.DiscountDeal{}, common.NotFoundError("product not found", err)
			}
			return store.DiscountDeal{}, common.PersistenceError("look up product", err)
		}
	}
	if rule := discount.Parse(description); rule.Kind == discount.KindNone {
		s.log.Warn().Str("description", description).Msg("deal description matches no discount grammar")
	}

	var result store.DiscountDeal
	outcome := "created"
	err := s.locker.WithLock(ctx, LockKey, s.lockTTL, func(ctx context.Context) error {
		current, err := s.activeDeal(ctx, productID)
		if err != nil {
			return err
		}
		if current != nil {
			if strings.EqualFold(current.Description, description) {
				updated, err := s.q.SetActive(ctx, current.ID, active)
				if err != nil {
					return common.PersistenceError("update deal active flag", err)
				}
				result = updated
				outcome = "updated"
				return nil
			}
			if _, err := s.q.SetActive(ctx, current.ID, false); err != nil {
				return common.PersistenceError("deactivate previous deal", err)
			}
			outcome = "replaced"
		}
		created, err := s.q.Create(ctx, productID, strings.ToUpper(description), true)
		if err != nil {
			if store.IsUniqueViolation(err) && store.ViolatedConstraint(err) == store.ActiveDealConstraint {
				return common.InvariantError("product already has an active deal", err)
			}
			return common.PersistenceError("store deal", err)
		}
		result = created
		return nil
	})
	if err != nil {
		return store.DiscountDeal{}, err
	}
	if obs.DealActivationTotal != nil {
		obs.DealActivationTotal.WithLabelValues(outcome).Inc()
	}
	s.emit(ctx, events.TopicDealActivated, result.ID, map[string]any{
		"productId":   store.UUIDString(result.ProductID),
		"description": result.Description,
		"active":      result.Active,
	})
	return result, nil
}

// Remove deletes a deal by id. Removing an id that does not exist is a
// persistence failure, not a no-op.
func (s *Service) Remove(ctx context.Context, id pgtype.UUID) error {
	if !id.Valid {
		return common.ValidationError("deal id is required", nil)
	}
	err := s.locker.WithLock(ctx, LockKey, s.lockTTL, func(ctx context.Context) error {
		rows, err := s.q.Delete(ctx, id)
		if err != nil {
			return common.PersistenceError("delete deal", err)
		}
		if rows == 0 {
			return common.PersistenceError("deal does not exist", store.ErrNoRows)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if obs.DealRemovedTotal != nil {
		obs.DealRemovedTotal.Inc()
	}
	s.emit(ctx, events.TopicDealRemoved, id, nil)
	return nil
}

// Get returns a single deal.
func (s *Service) Get(ctx context.Context, id pgtype.UUID) (store.DiscountDeal, error) {
	if !id.Valid {
		return store.DiscountDeal{}, common.ValidationError("deal id is required", nil)
	}
	deal, err := s.q.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return store.DiscountDeal{}, common.NotFoundError("deal not found", err)
		}
		return store.DiscountDeal{}, common.PersistenceError("look up deal", err)
	}
	return deal, nil
}

// ActiveForProduct returns the deal currently active for the product, or
// found=false when the product has none.
func (s *Service) ActiveForProduct(ctx context.Context, productID pgtype.UUID) (store.DiscountDeal, bool, error) {
	if !productID.Valid {
		return store.DiscountDeal{}, false, common.ValidationError("product id is required", nil)
	}
	current, err := s.activeDeal(ctx, productID)
	if err != nil {
		return store.DiscountDeal{}, false, err
	}
	if current == nil {
		return store.DiscountDeal{}, false, nil
	}
	return *current, true, nil
}

// ListForProduct returns every deal recorded for the product.
func (s *Service) ListForProduct(ctx context.Context, productID pgtype.UUID) ([]store.DiscountDeal, error) {
	if !productID.Valid {
		return nil, common.ValidationError("product id is required", nil)
	}
	deals, err := s.q.ListByProduct(ctx, productID)
	if err != nil {
		return nil, common.PersistenceError("list deals", err)
	}
	return deals, nil
}

// List returns every deal in the store.
func (s *Service) List(ctx context.Context) ([]store.DiscountDeal, error) {
	deals, err := s.q.List(ctx)
	if err != nil {
		return nil, common.PersistenceError("list deals", err)
	}
	return deals, nil
}

// activeDeal resolves the single active deal for a product. Observing more
// than one is an invariant violation and surfaces as such.
func (s *Service) activeDeal(ctx context.Context, productID pgtype.UUID) (*store.DiscountDeal, error) {
	deals, err := s.q.ListActiveByProduct(ctx, productID)
	if err != nil {
		return nil, common.PersistenceError("look up active deal", err)
	}
	switch len(deals) {
	case 0:
		return nil, nil
	case 1:
		return &deals[0], nil
	default:
		return nil, common.InvariantError("multiple active deals for one product", nil)
	}
}

func (s *Service) emit(ctx context.Context, topic string, aggregateID pgtype.UUID, payload any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("emit domain event")
	}
}
