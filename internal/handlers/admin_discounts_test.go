package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/services"
)

func newAdminDiscountRouter(discounts *stubDiscountService) chi.Router {
	r := chi.NewRouter()
	NewAdminDiscountHandlers(nil, discounts).Routes(r)
	return r
}

func TestCreateDiscount(t *testing.T) {
	discounts := &stubDiscountService{
		discount: domain.Discount{ID: "dsc_1", Code: "SAVE10", Kind: domain.DiscountKindPercentage, Value: 1000, Active: true},
	}
	router := newAdminDiscountRouter(discounts)

	body := `{"code":"SAVE10","kind":"percentage","value":1000,"min_order_cents":2000,"starts_at":"2025-06-01T00:00:00Z"}`
	req := authedRequest(http.MethodPost, "/discounts", body, "adm1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if len(discounts.upserts) != 1 {
		t.Fatalf("upsert calls = %d, want 1", len(discounts.upserts))
	}
	cmd := discounts.upserts[0]
	if cmd.Discount.Code != "SAVE10" || cmd.Discount.Kind != domain.DiscountKindPercentage {
		t.Fatalf("discount = %+v", cmd.Discount)
	}
	if cmd.Discount.StartsAt == nil || cmd.Discount.StartsAt.Month() != 6 {
		t.Fatalf("starts_at = %v", cmd.Discount.StartsAt)
	}
	if cmd.ActorID != "adm1" {
		t.Fatalf("actor = %q", cmd.ActorID)
	}
}

func TestCreateDiscountRejectsBadTimestamp(t *testing.T) {
	router := newAdminDiscountRouter(&stubDiscountService{})

	body := `{"code":"SAVE10","kind":"percentage","value":1000,"expires_at":"next week"}`
	req := authedRequest(http.MethodPost, "/discounts", body, "adm1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUpdateDiscountNotFound(t *testing.T) {
	router := newAdminDiscountRouter(&stubDiscountService{err: services.ErrDiscountNotFound})

	body := `{"code":"SAVE10","kind":"fixed","value":500}`
	req := authedRequest(http.MethodPut, "/discounts/dsc_missing", body, "adm1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeleteDiscount(t *testing.T) {
	discounts := &stubDiscountService{}
	router := newAdminDiscountRouter(discounts)

	req := authedRequest(http.MethodDelete, "/discounts/dsc_1", "", "adm1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(discounts.deleted) != 1 || discounts.deleted[0] != "dsc_1" {
		t.Fatalf("deleted = %v", discounts.deleted)
	}
}

func TestListDiscounts(t *testing.T) {
	discounts := &stubDiscountService{
		page: domain.CursorPage[domain.Discount]{
			Items: []domain.Discount{{ID: "dsc_1", Code: "SAVE10", Kind: domain.DiscountKindPercentage, Value: 1000, Active: true}},
		},
	}
	router := newAdminDiscountRouter(discounts)

	req := authedRequest(http.MethodGet, "/discounts?only_active=true", "", "adm1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Discounts []struct {
			Code string `json:"code"`
		} `json:"discounts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Discounts) != 1 || resp.Discounts[0].Code != "SAVE10" {
		t.Fatalf("discounts = %+v", resp.Discounts)
	}
}
