package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/freshbasket/api/internal/platform/auth"
	"github.com/freshbasket/api/internal/platform/httpx"
	"github.com/freshbasket/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the cart endpoints shared by authenticated users and
// anonymous sessions.
type CartHandlers struct {
	authn   *auth.Authenticator
	carts   services.CartService
	pricing services.PricingService
}

// NewCartHandlers constructs the cart handler group.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, pricing services.PricingService) *CartHandlers {
	return &CartHandlers{
		authn:   authn,
		carts:   carts,
		pricing: pricing,
	}
}

// Routes wires the cart endpoints onto the /me group. Authentication is
// optional; anonymous visitors address their cart through the session header.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Route("/cart", func(cr chi.Router) {
		cr.Get("/", h.getCart)
		cr.Delete("/", h.clearCart)
		cr.Get("/estimate", h.estimate)
		cr.Post("/items", h.addItem)
		cr.Patch("/items/{lineKey}", h.updateItem)
		cr.Delete("/items/{lineKey}", h.removeItem)
	})
	r.Post("/cart:merge", h.mergeCart)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestIdentity(r)
	if !ok {
		writeMissingIdentity(ctx, w)
		return
	}

	lines, err := h.carts.GetLineItems(ctx, identity)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Items: buildCartLines(lines)})
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestIdentity(r)
	if !ok {
		writeMissingIdentity(ctx, w)
		return
	}

	var req addCartItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	lines, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		Identity:  identity,
		ProductID: strings.TrimSpace(req.ProductID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Items: buildCartLines(lines)})
}

type updateCartItemRequest struct {
	Quantity int64 `json:"quantity"`
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestIdentity(r)
	if !ok {
		writeMissingIdentity(ctx, w)
		return
	}

	var req updateCartItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	lines, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		Identity: identity,
		LineKey:  chi.URLParam(r, "lineKey"),
		Quantity: req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Items: buildCartLines(lines)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestIdentity(r)
	if !ok {
		writeMissingIdentity(ctx, w)
		return
	}

	if err := h.carts.RemoveItem(ctx, identity, chi.URLParam(r, "lineKey")); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestIdentity(r)
	if !ok {
		writeMissingIdentity(ctx, w)
		return
	}

	if err := h.carts.Clear(ctx, identity); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mergeCartRequest struct {
	SessionID string `json:"session_id"`
}

// mergeCart folds a visitor session's cart into the authenticated user's
// cart after login.
func (h *CartHandlers) mergeCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req mergeCartRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "session_id is required", http.StatusBadRequest))
		return
	}

	if err := h.carts.MergeSessionIntoUser(ctx, sessionID, userID); err != nil {
		writeCartError(ctx, w, err)
		return
	}

	lines, err := h.carts.GetLineItems(ctx, services.Identity{UserID: userID})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Items: buildCartLines(lines)})
}

// estimate returns advisory totals for the current cart. The authoritative
// recomputation still happens at checkout.
func (h *CartHandlers) estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestIdentity(r)
	if !ok {
		writeMissingIdentity(ctx, w)
		return
	}

	lines, err := h.carts.GetLineItems(ctx, identity)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	cmd := services.ComputeTotalsCommand{Lines: lines, UserID: identity.UserID}
	if code := strings.TrimSpace(r.URL.Query().Get("discount_code")); code != "" {
		cmd.DiscountCode = &code
	}

	priced, err := h.pricing.ComputeTotals(ctx, cmd)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildEstimatePayload(priced))
}

func writeMissingIdentity(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("missing_identity", "authentication or a session header is required", http.StatusUnauthorized))
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var stockErr *services.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{"product_id": stockErr.ProductID, "available": stockErr.Available}))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartLineNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart line not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", "failed to compute totals", http.StatusInternalServerError))
	}
}

type cartResponse struct {
	Items []cartLinePayload `json:"items"`
}

type cartLinePayload struct {
	LineKey    string `json:"line_key"`
	ProductID  string `json:"product_id"`
	StoreID    string `json:"store_id"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	LineTotal  int64  `json:"line_total"`
	AddedAt    string `json:"added_at,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

func buildCartLines(lines []services.CartLineItem) []cartLinePayload {
	payload := make([]cartLinePayload, 0, len(lines))
	for _, line := range lines {
		payload = append(payload, cartLinePayload{
			LineKey:    line.LineKey,
			ProductID:  line.ProductID,
			StoreID:    line.StoreID,
			Name:       line.Name,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			LineTotal:  line.LineTotal(),
			AddedAt:    formatTime(line.AddedAt),
			CategoryID: line.CategoryID,
		})
	}
	return payload
}

type estimatePayload struct {
	Currency         string                   `json:"currency"`
	SubtotalCents    int64                    `json:"subtotal_cents"`
	DiscountCents    int64                    `json:"discount_cents"`
	DeliveryFeeCents int64                    `json:"delivery_fee_cents"`
	TaxCents         int64                    `json:"tax_cents"`
	TotalCents       int64                    `json:"total_cents"`
	Applied          []appliedDiscountPayload `json:"applied_discounts"`
	Skipped          []skippedDiscountPayload `json:"skipped_discounts,omitempty"`
}

type appliedDiscountPayload struct {
	Code   string `json:"code"`
	Kind   string `json:"kind"`
	Amount int64  `json:"amount"`
}

type skippedDiscountPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func buildEstimatePayload(priced services.PricingResult) estimatePayload {
	payload := estimatePayload{
		Currency:         priced.Currency,
		SubtotalCents:    priced.SubtotalCents,
		DiscountCents:    priced.DiscountCents,
		DeliveryFeeCents: priced.DeliveryFeeCents,
		TaxCents:         priced.TaxCents,
		TotalCents:       priced.TotalCents,
		Applied:          make([]appliedDiscountPayload, 0, len(priced.AppliedDiscounts)),
	}
	for _, applied := range priced.AppliedDiscounts {
		payload.Applied = append(payload.Applied, appliedDiscountPayload{
			Code:   applied.Code,
			Kind:   string(applied.Kind),
			Amount: applied.Amount,
		})
	}
	for _, skipped := range priced.AvailableDiscounts {
		payload.Skipped = append(payload.Skipped, skippedDiscountPayload{
			Code:   skipped.Code,
			Reason: skipped.Reason,
		})
	}
	return payload
}
