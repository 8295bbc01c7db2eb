package basket

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/store"
)

// ItemView is the wire representation of a basket line.
type ItemView struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Qty       int32  `json:"qty"`
}

// View is the wire representation of a basket with its lines.
type View struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customerId"`
	Version    int32      `json:"version"`
	Items      []ItemView `json:"items"`
}

// AddItemRequest is the payload for adding a product line.
type AddItemRequest struct {
	CustomerID string `json:"customerId" validate:"required,uuid4"`
	ProductID  string `json:"productId" validate:"required,uuid4"`
	Qty        int32  `json:"qty" validate:"required,gt=0"`
}

// Handler exposes the basket endpoints.
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

// AddItem handles POST /api/v1/baskets/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "basket service not configured", nil)
		return
	}
	var payload AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid basket payload", err.Error())
		return
	}
	customerID, err := store.ToUUID(payload.CustomerID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid customerId", nil)
		return
	}
	productID, err := store.ToUUID(payload.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid productId", nil)
		return
	}
	item, err := h.service.AddItem(r.Context(), customerID, productID, payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toItemView(item)})
}

// RemoveItem handles DELETE /api/v1/baskets/{basketID}/items/{itemID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "basket service not configured", nil)
		return
	}
	basketID, ok := h.pathUUID(w, r, "basketID")
	if !ok {
		return
	}
	itemID, ok := h.pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	if err := h.service.RemoveItem(r.Context(), basketID, itemID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/v1/baskets/{basketID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "basket service not configured", nil)
		return
	}
	basketID, ok := h.pathUUID(w, r, "basketID")
	if !ok {
		return
	}
	contents, err := h.service.Get(r.Context(), basketID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(contents)})
}

// ForCustomer handles GET /api/v1/customers/{customerID}/basket.
func (h *Handler) ForCustomer(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "basket service not configured", nil)
		return
	}
	customerID, ok := h.pathUUID(w, r, "customerID")
	if !ok {
		return
	}
	contents, err := h.service.ForCustomer(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(contents)})
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

func toItemView(item store.BasketItem) ItemView {
	return ItemView{
		ID:        store.UUIDString(item.ID),
		ProductID: store.UUIDString(item.ProductID),
		Qty:       item.Qty,
	}
}

func toView(contents Contents) View {
	items := make([]ItemView, 0, len(contents.Items))
	for _, item := range contents.Items {
		items = append(items, toItemView(item))
	}
	return View{
		ID:         store.UUIDString(contents.Basket.ID),
		CustomerID: store.UUIDString(contents.Basket.CustomerID),
		Version:    contents.Basket.Version,
		Items:      items,
	}
}
