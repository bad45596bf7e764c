package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/payments"
	"github.com/freshbasket/api/internal/platform/auth"
	"github.com/freshbasket/api/internal/platform/httpx"
	"github.com/freshbasket/api/internal/services"
)

const maxCheckoutBodySize = 32 * 1024

// CheckoutHandlers turns the current cart into an order.
type CheckoutHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, orders services.OrderService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the checkout endpoint onto the /me group.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/checkout", h.placeOrder)
}

type checkoutRequest struct {
	AddressID      *string                `json:"address_id"`
	Address        checkoutAddressRequest `json:"address"`
	ShippingMethod string                 `json:"shipping_method"`
	DiscountCode   *string                `json:"discount_code"`
	PaymentMethod  string                 `json:"payment_method"`
}

type checkoutAddressRequest struct {
	Label        string `json:"label"`
	Line1        string `json:"line1"`
	Line2        string `json:"line2"`
	City         string `json:"city"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Instructions string `json:"instructions"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req checkoutRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.PlaceOrderCommand{
		Identity: domain.Identity{UserID: userID},
		Address: services.AddressInput{
			Label:        req.Address.Label,
			Line1:        req.Address.Line1,
			Line2:        req.Address.Line2,
			City:         req.Address.City,
			Region:       req.Address.Region,
			PostalCode:   req.Address.PostalCode,
			Country:      req.Address.Country,
			Instructions: req.Address.Instructions,
		},
		ShippingMethod: strings.TrimSpace(req.ShippingMethod),
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
	}
	if req.AddressID != nil {
		cmd.AddressID = req.AddressID
	}
	if req.DiscountCode != nil {
		code := strings.TrimSpace(*req.DiscountCode)
		if code != "" {
			cmd.DiscountCode = &code
		}
	}

	placed, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		Order:         buildOrderPayload(placed.Order),
		TransactionID: placed.Transaction.ID,
		ClientSecret:  placed.ClientSecret,
	})
}

type checkoutResponse struct {
	Order         orderPayload `json:"order"`
	TransactionID string       `json:"transaction_id"`
	ClientSecret  string       `json:"client_secret,omitempty"`
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var stockErr *services.InsufficientStockError
	var payErr *payments.Error
	switch {
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{"product_id": stockErr.ProductID, "available": stockErr.Available}))
	case errors.As(err, &payErr):
		writePaymentError(ctx, w, payErr)
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderCreationFailed):
		// The cause stays in the server logs; callers only learn the attempt failed.
		httpx.WriteError(ctx, w, httpx.NewError("order_creation_failed", "order could not be created; please retry", http.StatusInternalServerError))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout failed", http.StatusInternalServerError))
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, payErr *payments.Error) {
	switch payErr.Kind {
	case payments.ErrorKindCard:
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", payErr.Message, http.StatusPaymentRequired))
	case payments.ErrorKindNetwork:
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_unavailable", "payment gateway is unavailable; please retry", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_configuration_error", "payment could not be initiated", http.StatusInternalServerError))
	}
}
