package product

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/pricing"
	"github.com/elstore/backend-elstore/internal/store"
)

// View is the wire representation of a product. Price carries the minor
// unit amount, priceDisplay the formatted decimal string.
type View struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Price        int64  `json:"price"`
	PriceDisplay string `json:"priceDisplay"`
	LastUpdated  string `json:"lastUpdated,omitempty"`
}

// WriteRequest is the payload for creating or updating a product.
type WriteRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=2000"`
	Price       int64  `json:"price" validate:"gte=0"`
}

// Handler exposes the product endpoints.
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

// Create handles POST /api/v1/admin/products.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "product service not configured", nil)
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), Input{Name: payload.Name, Description: payload.Description, Price: payload.Price})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toView(created)})
}

// Update handles PUT /api/v1/admin/products/{productID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "product service not configured", nil)
		return
	}
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Update(r.Context(), id, Input{Name: payload.Name, Description: payload.Description, Price: payload.Price})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(updated)})
}

// Get handles GET /api/v1/products/{productID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "product service not configured", nil)
		return
	}
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(p)})
}

// List handles GET /api/v1/products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "product service not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	products, meta, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]View, 0, len(products))
	for _, p := range products {
		views = append(views, toView(p))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views, "meta": meta})
}

// Delete handles DELETE /api/v1/admin/products/{productID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "product service not configured", nil)
		return
	}
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (WriteRequest, bool) {
	var payload WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return WriteRequest{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid product payload", err.Error())
		return WriteRequest{}, false
	}
	return payload, true
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request) (pgtype.UUID, bool) {
	id, err := store.ToUUID(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid productID", nil)
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

func toView(p store.Product) View {
	v := View{
		ID:           store.UUIDString(p.ID),
		Name:         p.Name,
		Price:        p.Price,
		PriceDisplay: pricing.FormatMoney(p.Price),
	}
	if p.Description.Valid {
		v.Description = p.Description.String
	}
	if p.LastUpdated.Valid {
		v.LastUpdated = p.LastUpdated.Time.UTC().Format(time.RFC3339)
	}
	return v
}
