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

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxOrderCancelBodySize = 4 * 1024
)

// OrderHandlers exposes the customer-facing order history endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the order endpoints onto the /me group.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/cancel", h.cancelOrder)
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	filter := services.OrderListFilter{UserID: userID}
	filter.Pagination = domain.Pagination{
		PageSize:  parsePageSize(r, defaultOrderPageSize, maxOrderPageSize),
		PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filter.Status = strings.Split(status, ",")
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

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  userID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(r, maxOrderCancelBodySize, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeBodyError(ctx, w, err)
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  userID,
		ActorID: userID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_store_unavailable", "order storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderPayload struct {
	ID               string                `json:"id"`
	OrderNumber      string                `json:"order_number"`
	Status           string                `json:"status"`
	SubtotalCents    int64                 `json:"subtotal_cents"`
	DiscountCents    int64                 `json:"discount_cents"`
	DeliveryFeeCents int64                 `json:"delivery_fee_cents"`
	TaxCents         int64                 `json:"tax_cents"`
	TotalCents       int64                 `json:"total_cents"`
	Currency         string                `json:"currency"`
	DeliveryAddress  addressSnapshotPayload `json:"delivery_address"`
	ShippingMethod   string                `json:"shipping_method"`
	TrackingCode     string                `json:"tracking_code,omitempty"`
	PaymentFailed    bool                  `json:"payment_failed,omitempty"`
	Items            []orderItemPayload    `json:"items"`
	PlacedAt         string                `json:"placed_at"`
	ConfirmedAt      string                `json:"confirmed_at,omitempty"`
	ShippedAt        string                `json:"shipped_at,omitempty"`
	DeliveredAt      string                `json:"delivered_at,omitempty"`
	CancelledAt      string                `json:"cancelled_at,omitempty"`
	UpdatedAt        string                `json:"updated_at"`
}

type orderItemPayload struct {
	ID              string `json:"id"`
	ProductID       string `json:"product_id"`
	StoreID         string `json:"store_id"`
	ProductName     string `json:"product_name"`
	Quantity        int64  `json:"quantity"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	TotalPriceCents int64  `json:"total_price_cents"`
	Status          string `json:"status"`
}

type addressSnapshotPayload struct {
	Label        string `json:"label,omitempty"`
	Line1        string `json:"line1"`
	Line2        string `json:"line2,omitempty"`
	City         string `json:"city"`
	Region       string `json:"region,omitempty"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Instructions string `json:"instructions,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ID:              item.ID,
			ProductID:       item.ProductID,
			StoreID:         item.StoreID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			TotalPriceCents: item.TotalPriceCents,
			Status:          string(item.Status),
		})
	}
	return orderPayload{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		Status:           string(order.Status),
		SubtotalCents:    order.SubtotalCents,
		DiscountCents:    order.DiscountCents,
		DeliveryFeeCents: order.DeliveryFeeCents,
		TaxCents:         order.TaxCents,
		TotalCents:       order.TotalCents,
		Currency:         order.Currency,
		DeliveryAddress:  buildAddressSnapshotPayload(order.DeliveryAddress),
		ShippingMethod:   order.ShippingMethod,
		TrackingCode:     order.TrackingCode,
		PaymentFailed:    order.PaymentFailed,
		Items:            items,
		PlacedAt:         formatTime(order.PlacedAt),
		ConfirmedAt:      formatTimePtr(order.ConfirmedAt),
		ShippedAt:        formatTimePtr(order.ShippedAt),
		DeliveredAt:      formatTimePtr(order.DeliveredAt),
		CancelledAt:      formatTimePtr(order.CancelledAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}
}

func buildAddressSnapshotPayload(addr domain.AddressSnapshot) addressSnapshotPayload {
	return addressSnapshotPayload{
		Label:        addr.Label,
		Line1:        addr.Line1,
		Line2:        addr.Line2,
		City:         addr.City,
		Region:       addr.Region,
		PostalCode:   addr.PostalCode,
		Country:      addr.Country,
		Instructions: addr.Instructions,
	}
}
