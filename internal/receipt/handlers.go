package receipt

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/pricing"
	"github.com/elstore/backend-elstore/internal/store"
)

// LineView is one calculated basket line on the wire.
type LineView struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Qty         int32  `json:"qty"`
	LineTotal   int64  `json:"lineTotal"`
	Deal        string `json:"deal,omitempty"`
	DealApplied bool   `json:"dealApplied"`
}

// View is the wire representation of a receipt.
type View struct {
	ID           string     `json:"id"`
	BasketID     string     `json:"basketId"`
	Total        int64      `json:"total"`
	TotalDisplay string     `json:"totalDisplay"`
	Details      string     `json:"details,omitempty"`
	AppliedDeals []string   `json:"appliedDealIds,omitempty"`
	Lines        []LineView `json:"lines,omitempty"`
	CreatedAt    string     `json:"createdAt,omitempty"`
}

// Handler exposes the receipt endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Calculate handles POST /api/v1/baskets/{basketID}/receipt.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "receipt service not configured", nil)
		return
	}
	basketID, ok := h.pathUUID(w, r, "basketID")
	if !ok {
		return
	}
	result, err := h.service.Calculate(r.Context(), basketID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": resultView(result)})
}

// Get handles GET /api/v1/receipts/{receiptID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "receipt service not configured", nil)
		return
	}
	id, ok := h.pathUUID(w, r, "receiptID")
	if !ok {
		return
	}
	receipt, dealIDs, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := toView(receipt)
	for _, dealID := range dealIDs {
		view.AppliedDeals = append(view.AppliedDeals, store.UUIDString(dealID))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// ListForBasket handles GET /api/v1/baskets/{basketID}/receipts.
func (h *Handler) ListForBasket(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "receipt service not configured", nil)
		return
	}
	basketID, ok := h.pathUUID(w, r, "basketID")
	if !ok {
		return
	}
	receipts, err := h.service.ListForBasket(r.Context(), basketID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]View, 0, len(receipts))
	for _, receipt := range receipts {
		views = append(views, toView(receipt))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (pgtype.UUID, bool) {
	id, err := store.ToUUID(chi.URLParam(r, name))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid "+name, nil)
		return pgtype.UUID{}, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := appErr.Code
		if code == "" {
			code = "INTERNAL"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func toView(r store.Receipt) View {
	v := View{
		ID:           store.UUIDString(r.ID),
		BasketID:     store.UUIDString(r.BasketID),
		Total:        r.Total,
		TotalDisplay: pricing.FormatMoney(r.Total),
	}
	if r.Details.Valid {
		v.Details = r.Details.String
	}
	if r.CreatedAt.Valid {
		v.CreatedAt = r.CreatedAt.Time.UTC().Format(time.RFC3339)
	}
	return v
}

func resultView(result Result) View {
	v := toView(result.Receipt)
	for _, deal := range result.AppliedDeals {
		v.AppliedDeals = append(v.AppliedDeals, store.UUIDString(deal.ID))
	}
	v.Lines = make([]LineView, 0, len(result.Lines))
	for _, line := range result.Lines {
		lv := LineView{
			ProductID:   store.UUIDString(line.Product.ID),
			ProductName: line.Product.Name,
			Qty:         line.Qty,
			LineTotal:   line.LineTotal,
			DealApplied: line.Applied,
		}
		if line.Deal != nil {
			lv.Deal = line.Deal.Description
		}
		v.Lines = append(v.Lines, lv)
	}
	return v
}
