package receipt

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/discount"
	"github.com/elstore/backend-elstore/internal/events"
	"github.com/elstore/backend-elstore/internal/obs"
	"github.com/elstore/backend-elstore/internal/pricing"
	"github.com/elstore/backend-elstore/internal/store"
)

// BasketQuerier resolves the basket under calculation.
type BasketQuerier interface {
	GetByID(ctx context.Context, id pgtype.UUID) (store.Basket, error)
	ListItems(ctx context.Context, basketID pgtype.UUID) ([]store.BasketItem, error)
}

// ProductQuerier resolves product lines.
type ProductQuerier interface {
	GetByID(ctx context.Context, id pgtype.UUID) (store.Product, error)
}

// DealQuerier resolves the active deal per product.
type DealQuerier interface {
	ListActiveByProduct(ctx context.Context, productID pgtype.UUID) ([]store.DiscountDeal, error)
}

// ReceiptQuerier persists the calculation outcome.
type ReceiptQuerier interface {
	Create(ctx context.Context, basketID pgtype.UUID, total int64) (store.Receipt, error)
	SetDetails(ctx context.Context, id pgtype.UUID, details string) error
	AddAppliedDeal(ctx context.Context, receiptID, dealID pgtype.UUID) error
	GetByID(ctx context.Context, id pgtype.UUID) (store.Receipt, error)
	ListAppliedDeals(ctx context.Context, receiptID pgtype.UUID) ([]pgtype.UUID, error)
	ListByBasket(ctx context.Context, basketID pgtype.UUID) ([]store.Receipt, error)
}

// Line is one calculated basket line.
type Line struct {
	Product   store.Product
	Qty       int32
	LineTotal pricing.Money
	Deal      *store.DiscountDeal
	Applied   bool
}

// Result is the outcome of a basket calculation.
type Result struct {
	Receipt      store.Receipt
	Lines        []Line
	AppliedDeals []store.DiscountDeal
}

// ServiceConfig wires the collaborators of the receipt service.
type ServiceConfig struct {
	Baskets  BasketQuerier
	Products ProductQuerier
	Deals    DealQuerier
	Receipts ReceiptQuerier
	Bus      *events.Bus
	Logger   zerolog.Logger
}

// Service folds a basket into an immutable receipt: it prices every line
// under the product's active deal, persists the receipt, and renders the
// detail text around the assigned identifier.
type Service struct {
	baskets  BasketQuerier
	products ProductQuerier
	deals    DealQuerier
	receipts ReceiptQuerier
	bus      *events.Bus
	log      zerolog.Logger
}

// NewService constructs a receipt service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Baskets == nil || cfg.Products == nil || cfg.Deals == nil || cfg.Receipts == nil {
		return nil, errors.New("receipt: baskets, products, deals, and receipts queries are required")
	}
	return &Service{
		baskets:  cfg.Baskets,
		products: cfg.Products,
		deals:    cfg.Deals,
		receipts: cfg.Receipts,
		bus:      cfg.Bus,
		log:      cfg.Logger,
	}, nil
}

// Calculate prices the basket and stores the resulting receipt.
func (s *Service) Calculate(ctx context.Context, basketID pgtype.UUID) (Result, error) {
	result, err := s.calculate(ctx, basketID)
	if obs.ReceiptCalculatedTotal != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		obs.ReceiptCalculatedTotal.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		return Result{}, err
	}
	if obs.ReceiptAmount != nil {
		obs.ReceiptAmount.Observe(float64(result.Receipt.Total))
	}
	s.emit(ctx, result)
	return result, nil
}

func (s *Service) calculate(ctx context.Context, basketID pgtype.UUID) (Result, error) {
	if !basketID.Valid {
		return Result{}, common.ValidationError("basket id is required", nil)
	}
	basket, err := s.baskets.GetByID(ctx, basketID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return Result{}, common.NotFoundError("basket not found", err)
		}
		return Result{}, common.PersistenceError("look up basket", err)
	}
	items, err := s.baskets.ListItems(ctx, basket.ID)
	if err != nil {
		return Result{}, common.PersistenceError("list basket items", err)
	}

	var total pricing.Money
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		line, err := s.priceLine(ctx, item)
		if err != nil {
			return Result{}, err
		}
		total += line.LineTotal
		lines = append(lines, line)
	}

	stored, err := s.receipts.Create(ctx, basket.ID, total)
	if err != nil {
		return Result{}, common.PersistenceError("store receipt", err)
	}

	applied := appliedDeals(lines)
	for _, deal := range applied {
		if err := s.receipts.AddAppliedDeal(ctx, stored.ID, deal.ID); err != nil {
			return Result{}, common.PersistenceError("record applied deal", err)
		}
	}

	// The detail text embeds the identifier the store just assigned, so it
	// can only be rendered after the insert.
	details := renderDetails(stored.ID, lines, total)
	if err := s.receipts.SetDetails(ctx, stored.ID, details); err != nil {
		return Result{}, common.PersistenceError("store receipt details", err)
	}
	stored.Details = pgtype.Text{String: details, Valid: true}

	return Result{Receipt: stored, Lines: lines, AppliedDeals: applied}, nil
}

// Get returns a stored receipt together with its applied-deal ids.
func (s *Service) Get(ctx context.Context, id pgtype.UUID) (store.Receipt, []pgtype.UUID, error) {
	if !id.Valid {
		return store.Receipt{}, nil, common.ValidationError("receipt id is required", nil)
	}
	r, err := s.receipts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return store.Receipt{}, nil, common.NotFoundError("receipt not found", err)
		}
		return store.Receipt{}, nil, common.PersistenceError("look up receipt", err)
	}
	dealIDs, err := s.receipts.ListAppliedDeals(ctx, r.ID)
	if err != nil {
		return store.Receipt{}, nil, common.PersistenceError("list applied deals", err)
	}
	return r, dealIDs, nil
}

// ListForBasket returns every receipt calculated for the basket.
func (s *Service) ListForBasket(ctx context.Context, basketID pgtype.UUID) ([]store.Receipt, error) {
	if !basketID.Valid {
		return nil, common.ValidationError("basket id is required", nil)
	}
	receipts, err := s.receipts.ListByBasket(ctx, basketID)
	if err != nil {
		return nil, common.PersistenceError("list receipts", err)
	}
	return receipts, nil
}

func (s *Service) priceLine(ctx context.Context, item store.BasketItem) (Line, error) {
	product, err := s.products.GetByID(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return Line{}, common.NotFoundError("product not found", err)
		}
		return Line{}, common.PersistenceError("look up product", err)
	}
	line := Line{Product: product, Qty: item.Qty}

	deals, err := s.deals.ListActiveByProduct(ctx, product.ID)
	if err != nil {
		return Line{}, common.PersistenceError("look up active deal", err)
	}
	var rule discount.Rule
	switch len(deals) {
	case 0:
	case 1:
		line.Deal = &deals[0]
		rule = discount.Parse(deals[0].Description)
	default:
		return Line{}, common.InvariantError("multiple active deals for one product", nil)
	}

	applied, lineTotal := pricing.Apply(rule, product.Price, int(item.Qty))
	line.Applied = applied && line.Deal != nil
	line.LineTotal = lineTotal
	if line.Applied && obs.DiscountAppliedTotal != nil {
		obs.DiscountAppliedTotal.WithLabelValues(kindLabel(rule.Kind)).Inc()
	}
	return line, nil
}

// appliedDeals collects the distinct deals that applied, preserving line order.
func appliedDeals(lines []Line) []store.DiscountDeal {
	var out []store.DiscountDeal
	seen := map[string]struct{}{}
	for _, line := range lines {
		if !line.Applied || line.Deal == nil {
			continue
		}
		key := store.UUIDString(line.Deal.ID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, *line.Deal)
	}
	return out
}

func renderDetails(receiptID pgtype.UUID, lines []Line, total pricing.Money) string {
	var b strings.Builder
	b.WriteString("Receipt ID: ")
	b.WriteString(store.UUIDString(receiptID))
	b.WriteString("\nItems:\n")
	for _, line := range lines {
		b.WriteString(" - Product: ")
		b.WriteString(line.Product.Name)
		b.WriteString(", Quantity: ")
		b.WriteString(strconv.Itoa(int(line.Qty)))
		b.WriteString("\nApplied Discounts:\n")
		if line.Applied && line.Deal != nil {
			b.WriteString(" - ")
			b.WriteString(line.Deal.Description)
			b.WriteString("\n")
		}
	}
	b.WriteString("Total: ")
	b.WriteString(pricing.FormatMoney(total))
	b.WriteString("\n")
	return b.String()
}

func kindLabel(kind discount.Kind) string {
	switch kind {
	case discount.KindBuyNGetMFree:
		return "buy_n_get_m_free"
	case discount.KindBuyNGetPercentOff:
		return "percent_off_next"
	default:
		return "none"
	}
}

func (s *Service) emit(ctx context.Context, result Result) {
	if s.bus == nil {
		return
	}
	payload := map[string]any{
		"basketId": store.UUIDString(result.Receipt.BasketID),
		"total":    result.Receipt.Total,
	}
	if _, err := s.bus.Emit(ctx, events.TopicReceiptCreated, result.Receipt.ID, payload); err != nil {
		s.log.Warn().Err(err).Msg("emit receipt event")
	}
}
