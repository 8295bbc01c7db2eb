package product_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/elstore/backend-elstore/internal/common"
	"github.com/elstore/backend-elstore/internal/product"
)

type productResponse struct {
	Data product.View `json:"data"`
}

type productListResponse struct {
	Data []product.View    `json:"data"`
	Meta common.Pagination `json:"meta"`
}

func newTestRouter(t *testing.T) (*chi.Mux, *fakeQueries) {
	t.Helper()
	queries := newFakeQueries()
	svc, err := product.NewService(queries)
	require.NoError(t, err)
	handler := product.NewHandler(product.HandlerConfig{Service: svc})

	r := chi.NewRouter()
	r.Get("/api/v1/products", handler.List)
	r.Get("/api/v1/products/{productID}", handler.Get)
	r.Post("/api/v1/admin/products", handler.Create)
	r.Put("/api/v1/admin/products/{productID}", handler.Update)
	r.Delete("/api/v1/admin/products/{productID}", handler.Delete)
	return r, queries
}

func TestProductHandlers(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("create and fetch", func(t *testing.T) {
		body := `{"name":"Desk Lamp","description":"warm light","price":600}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)

		var created productResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		require.Equal(t, "Desk Lamp", created.Data.Name)
		require.Equal(t, int64(600), created.Data.Price)
		require.Equal(t, "6.00", created.Data.PriceDisplay)

		getReq := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+created.Data.ID, nil)
		getRec := httptest.NewRecorder()
		router.ServeHTTP(getRec, getReq)
		require.Equal(t, http.StatusOK, getRec.Code)

		listReq := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		listRec := httptest.NewRecorder()
		router.ServeHTTP(listRec, listReq)
		require.Equal(t, http.StatusOK, listRec.Code)
		var list productListResponse
		require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &list))
		require.Len(t, list.Data, 1)
		require.Equal(t, 1, list.Meta.TotalItems)
	})

	t.Run("rejects invalid payload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", strings.NewReader(`{"name":"","price":-5}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		body := `{"name":"Desk Lamp","price":700}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("delete missing id fails", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/products/6e9cbe10-9aa1-4f64-9c5e-2f2b3f2b4a10", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
