package deal

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/store"
)

// View is the wire representation of a discount deal.
type View struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// ActivateRequest is the payload for attaching a deal to a product.
type ActivateRequest struct {
	Description string `json:"description" validate:"required,min=1,max=255"`
	Active      bool   `json:"active"`
}

// Handler exposes the admin deal endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service  *Service
	Validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validate
	if v == nil {
		v = validator.New()
	}
	return &Handler{service: cfg.Service, validate: v}
}

// Activate handles POST /api/v1/admin/products/{productID}/deals.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "deal service not configured", nil)
		return
	}
	productID, ok := h.pathUUID(w, r, "productID")
	if !ok {
		return
	}
	var payload ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid deal payload", err.Error())
		return
	}
	deal, err := h.service.Activate(r.Context(), productID, payload.Description, payload.Active)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toView(deal)})
}

// Remove handles DELETE /api/v1/admin/deals/{dealID}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "deal service not configured", nil)
		return
	}
	id, ok := h.pathUUID(w, r, "dealID")
	if !ok {
		return
	}
	if err := h.service.Remove(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/v1/admin/deals/{dealID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "deal service not configured", nil)
		return
	}
	id, ok := h.pathUUID(w, r, "dealID")
	if !ok {
		return
	}
	deal, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(deal)})
}

// List handles GET /api/v1/admin/deals.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "deal service not configured", nil)
		return
	}
	deals, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toViews(deals)})
}

// ListForProduct handles GET /api/v1/admin/products/{productID}/deals.
func (h *Handler) ListForProduct(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "deal service not configured", nil)
		return
	}
	productID, ok := h.pathUUID(w, r, "productID")
	if !ok {
		return
	}
	deals, err := h.service.ListForProduct(r.Context(), productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toViews(deals)})
}

// ActiveForProduct handles GET /api/v1/products/{productID}/deal.
func (h *Handler) ActiveForProduct(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "deal service not configured", nil)
		return
	}
	productID, ok := h.pathUUID(w, r, "productID")
	if !ok {
		return
	}
	deal, found, err := h.service.ActiveForProduct(r.Context(), productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		common.JSON(w, http.StatusOK, map[string]any{"data": nil})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(deal)})
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

func toView(d store.DiscountDeal) View {
	v := View{
		ID:          store.UUIDString(d.ID),
		ProductID:   store.UUIDString(d.ProductID),
		Description: d.Description,
		Active:      d.Active,
	}
	if d.LastUpdated.Valid {
		v.LastUpdated = d.LastUpdated.Time.UTC().Format(time.RFC3339)
	}
	return v
}

func toViews(deals []store.DiscountDeal) []View {
	out := make([]View, 0, len(deals))
	for _, d := range deals {
		out = append(out, toView(d))
	}
	return out
}
