package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRouterMountsHealthProbes(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouterNotFoundIsJSON(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "route_not_found" {
		t.Fatalf("error = %v", resp["error"])
	}
}

func TestRouterMountsPublicRoutesAtPrefix(t *testing.T) {
	catalog := &stubCatalogService{}
	router := NewRouter(
		WithPublicRoutes(NewCatalogHandlers(catalog).Routes),
	)

	req := httptest.NewRequest(http.MethodGet, "/v1/products", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(catalog.listFilters) != 1 {
		t.Fatalf("catalog list calls = %d, want 1", len(catalog.listFilters))
	}
}

func TestRouterMountsMeGroup(t *testing.T) {
	carts := &stubCartService{}
	router := NewRouter(
		WithMeRoutes(func(r chi.Router) {
			NewCartHandlers(nil, carts, &stubPricingService{}).Routes(r)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/v1/me/cart", nil)
	req.Header.Set("X-Session-Id", "sess_abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestRouterUnconfiguredGroupReturnsNotImplemented(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/products", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotImplemented)
	}
}
