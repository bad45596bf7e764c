package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/services"
)

func newOrderRouter(orders *stubOrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(nil, orders).Routes(r)
	return r
}

func TestListOrdersScopesToUser(t *testing.T) {
	placedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	orders := &stubOrderService{
		page: domain.CursorPage[domain.Order]{
			Items: []domain.Order{
				{ID: "ord_1", OrderNumber: "FB-2506-000001", UserID: "u1", Status: domain.OrderStatusConfirmed, TotalCents: 3199, Currency: "usd", PlacedAt: placedAt},
			},
			NextCursor: "tok_2",
		},
	}
	router := newOrderRouter(orders)

	req := authedRequest(http.MethodGet, "/orders?status=confirmed,shipped&page_size=5", "", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(orders.listFilters) != 1 {
		t.Fatalf("list calls = %d, want 1", len(orders.listFilters))
	}
	filter := orders.listFilters[0]
	if filter.UserID != "u1" {
		t.Fatalf("filter user = %q, want u1", filter.UserID)
	}
	if len(filter.Status) != 2 || filter.Status[0] != "confirmed" {
		t.Fatalf("filter status = %v", filter.Status)
	}
	if filter.Pagination.PageSize != 5 {
		t.Fatalf("page size = %d, want 5", filter.Pagination.PageSize)
	}

	var resp struct {
		Orders []struct {
			OrderNumber string `json:"order_number"`
		} `json:"orders"`
		NextPageToken string `json:"next_page_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].OrderNumber != "FB-2506-000001" {
		t.Fatalf("orders = %+v", resp.Orders)
	}
	if resp.NextPageToken != "tok_2" {
		t.Fatalf("next_page_token = %q", resp.NextPageToken)
	}
}

func TestListOrdersRequiresAuthentication(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	router := newOrderRouter(&stubOrderService{orderErr: services.ErrOrderNotFound})

	req := authedRequest(http.MethodGet, "/orders/ord_missing", "", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetOrderPassesOwnerScope(t *testing.T) {
	orders := &stubOrderService{order: domain.Order{ID: "ord_1", UserID: "u1"}}
	router := newOrderRouter(orders)

	req := authedRequest(http.MethodGet, "/orders/ord_1", "", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(orders.getCmds) != 1 {
		t.Fatalf("get calls = %d, want 1", len(orders.getCmds))
	}
	if orders.getCmds[0].OrderID != "ord_1" || orders.getCmds[0].UserID != "u1" {
		t.Fatalf("get cmd = %+v", orders.getCmds[0])
	}
}

func TestCancelOrderInvalidTransition(t *testing.T) {
	router := newOrderRouter(&stubOrderService{orderErr: services.ErrOrderInvalidTransition})

	req := authedRequest(http.MethodPost, "/orders/ord_1/cancel", `{"reason":"changed my mind"}`, "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestCancelOrderWithoutBody(t *testing.T) {
	orders := &stubOrderService{order: domain.Order{ID: "ord_1", Status: domain.OrderStatusCancelled}}
	router := newOrderRouter(orders)

	req := authedRequest(http.MethodPost, "/orders/ord_1/cancel", "", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(orders.cancels) != 1 {
		t.Fatalf("cancel calls = %d, want 1", len(orders.cancels))
	}
	if orders.cancels[0].UserID != "u1" || orders.cancels[0].ActorID != "u1" {
		t.Fatalf("cancel cmd = %+v", orders.cancels[0])
	}
}
