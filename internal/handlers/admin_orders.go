package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/platform/auth"
	"github.com/freshbasket/api/internal/platform/httpx"
	"github.com/freshbasket/api/internal/services"
)

const maxAdminOrderBodySize = 16 * 1024

// AdminOrderHandlers exposes fulfillment and refund operations to staff.
type AdminOrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	reconcile services.ReconciliationService
}

// NewAdminOrderHandlers constructs admin order handlers.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, reconcile services.ReconciliationService) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:     authn,
		orders:    orders,
		reconcile: reconcile,
	}
}

// Routes registers admin order endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Route("/orders", func(rt chi.Router) {
		rt.Get("/", h.listOrders)
		rt.Get("/{orderID}", h.getOrder)
	})
	r.Post("/orders/{orderID}:transition", h.transitionOrder)
	r.Post("/orders/{orderID}:refund", h.refundOrder)
	r.Post("/orders/{orderID}/items/{itemID}:transition", h.transitionItem)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := services.OrderListFilter{
		UserID:  strings.TrimSpace(query.Get("user_id")),
		StoreID: strings.TrimSpace(query.Get("store_id")),
	}
	if status := strings.TrimSpace(query.Get("status")); status != "" {
		filter.Status = strings.Split(status, ",")
	}
	if from := strings.TrimSpace(query.Get("placed_after")); from != "" {
		parsed, err := parseRFC3339(from)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &parsed
	}
	if to := strings.TrimSpace(query.Get("placed_before")); to != "" {
		parsed, err := parseRFC3339(to)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &parsed
	}
	filter.Pagination = domain.Pagination{
		PageSize:  parsePageSize(r, defaultOrderPageSize, maxOrderPageSize),
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Orders:        items,
		NextPageToken: page.NextCursor,
	})
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type transitionOrderRequest struct {
	TargetStatus string `json:"target_status"`
	TrackingCode string `json:"tracking_code"`
	Reason       string `json:"reason"`
}

func (h *AdminOrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestUserID(r)

	var req transitionOrderRequest
	if err := decodeJSONBody(r, maxAdminOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionOrderStatusCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: domain.OrderStatus(strings.TrimSpace(req.TargetStatus)),
		TrackingCode: strings.TrimSpace(req.TrackingCode),
		ActorID:      actorID,
		Reason:       strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type transitionItemRequest struct {
	TargetStatus string `json:"target_status"`
}

func (h *AdminOrderHandlers) transitionItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestUserID(r)

	var req transitionItemRequest
	if err := decodeJSONBody(r, maxAdminOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.TransitionItemStatus(ctx, services.TransitionItemStatusCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		ItemID:       chi.URLParam(r, "itemID"),
		TargetStatus: domain.OrderItemStatus(strings.TrimSpace(req.TargetStatus)),
		ActorID:      actorID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type refundOrderRequest struct {
	AmountCents *int64 `json:"amount_cents"`
	Reason      string `json:"reason"`
}

func (h *AdminOrderHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestUserID(r)

	var req refundOrderRequest
	if err := decodeJSONBody(r, maxAdminOrderBodySize, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.reconcile.Refund(ctx, services.RefundOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Amount:  req.AmountCents,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: actorID,
	})
	if err != nil {
		writeRefundError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func writeRefundError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReconcileNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReconcileInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReconcileInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReconcileUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("refund_unavailable", "refund could not be issued", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("refund_error", "refund failed", http.StatusInternalServerError))
	}
}
