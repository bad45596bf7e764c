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
	"github.com/freshbasket/api/internal/repositories"
	"github.com/freshbasket/api/internal/services"
)

const maxAdminDiscountBodySize = 16 * 1024

// AdminDiscountHandlers exposes the discount lifecycle to staff.
type AdminDiscountHandlers struct {
	authn     *auth.Authenticator
	discounts services.DiscountService
}

// NewAdminDiscountHandlers constructs admin discount handlers.
func NewAdminDiscountHandlers(authn *auth.Authenticator, discounts services.DiscountService) *AdminDiscountHandlers {
	return &AdminDiscountHandlers{authn: authn, discounts: discounts}
}

// Routes registers admin discount endpoints.
func (h *AdminDiscountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Route("/discounts", func(rt chi.Router) {
		rt.Get("/", h.listDiscounts)
		rt.Post("/", h.createDiscount)
		rt.Put("/{discountID}", h.updateDiscount)
		rt.Delete("/{discountID}", h.deleteDiscount)
	})
}

type discountRequest struct {
	Code           string  `json:"code"`
	Kind           string  `json:"kind"`
	Value          int64   `json:"value"`
	MinOrderCents  int64   `json:"min_order_cents"`
	MaxUses        int64   `json:"max_uses"`
	MaxUsesPerUser int64   `json:"max_uses_per_user"`
	AutoApply      bool    `json:"auto_apply"`
	StartsAt       *string `json:"starts_at"`
	ExpiresAt      *string `json:"expires_at"`
	Active         *bool   `json:"active"`
}

func (h *AdminDiscountHandlers) listDiscounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	page, err := h.discounts.ListDiscounts(ctx, repositories.DiscountListFilter{
		OnlyActive: query.Get("only_active") == "true",
		Pagination: domain.Pagination{
			PageSize:  parsePageSize(r, defaultCatalogPageSize, maxCatalogPageSize),
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}

	items := make([]discountPayload, 0, len(page.Items))
	for _, discount := range page.Items {
		items = append(items, buildDiscountPayload(discount))
	}
	writeJSONResponse(w, http.StatusOK, discountListResponse{
		Discounts:     items,
		NextPageToken: page.NextCursor,
	})
}

func (h *AdminDiscountHandlers) createDiscount(w http.ResponseWriter, r *http.Request) {
	h.saveDiscount(w, r, "")
}

func (h *AdminDiscountHandlers) updateDiscount(w http.ResponseWriter, r *http.Request) {
	h.saveDiscount(w, r, chi.URLParam(r, "discountID"))
}

func (h *AdminDiscountHandlers) saveDiscount(w http.ResponseWriter, r *http.Request, discountID string) {
	ctx := r.Context()
	actorID := requestUserID(r)

	var req discountRequest
	if err := decodeJSONBody(r, maxAdminDiscountBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	discount, err := req.toDomain(discountID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.UpsertDiscountCommand{Discount: discount, ActorID: actorID}
	var saved domain.Discount
	if discountID == "" {
		saved, err = h.discounts.CreateDiscount(ctx, cmd)
	} else {
		saved, err = h.discounts.UpdateDiscount(ctx, cmd)
	}
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildDiscountPayload(saved))
}

func (h *AdminDiscountHandlers) deleteDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.discounts.DeleteDiscount(ctx, chi.URLParam(r, "discountID")); err != nil {
		writeDiscountError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r discountRequest) toDomain(discountID string) (domain.Discount, error) {
	discount := domain.Discount{
		ID:             discountID,
		Code:           strings.TrimSpace(r.Code),
		Kind:           domain.DiscountKind(strings.TrimSpace(r.Kind)),
		Value:          r.Value,
		MinOrderCents:  r.MinOrderCents,
		MaxUses:        r.MaxUses,
		MaxUsesPerUser: r.MaxUsesPerUser,
		AutoApply:      r.AutoApply,
		Active:         true,
	}
	if r.Active != nil {
		discount.Active = *r.Active
	}
	if r.StartsAt != nil && strings.TrimSpace(*r.StartsAt) != "" {
		parsed, err := parseRFC3339(*r.StartsAt)
		if err != nil {
			return domain.Discount{}, err
		}
		discount.StartsAt = &parsed
	}
	if r.ExpiresAt != nil && strings.TrimSpace(*r.ExpiresAt) != "" {
		parsed, err := parseRFC3339(*r.ExpiresAt)
		if err != nil {
			return domain.Discount{}, err
		}
		discount.ExpiresAt = &parsed
	}
	return discount, nil
}

func writeDiscountError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDiscountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("discount_not_found", "discount not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDiscountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDiscountUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("discount_store_unavailable", "discount storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("discount_error", "discount operation failed", http.StatusInternalServerError))
	}
}

type discountListResponse struct {
	Discounts     []discountPayload `json:"discounts"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type discountPayload struct {
	ID             string `json:"id"`
	Code           string `json:"code,omitempty"`
	Kind           string `json:"kind"`
	Value          int64  `json:"value"`
	MinOrderCents  int64  `json:"min_order_cents,omitempty"`
	MaxUses        int64  `json:"max_uses,omitempty"`
	MaxUsesPerUser int64  `json:"max_uses_per_user,omitempty"`
	AutoApply      bool   `json:"auto_apply"`
	StartsAt       string `json:"starts_at,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	Active         bool   `json:"active"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func buildDiscountPayload(discount domain.Discount) discountPayload {
	return discountPayload{
		ID:             discount.ID,
		Code:           discount.Code,
		Kind:           string(discount.Kind),
		Value:          discount.Value,
		MinOrderCents:  discount.MinOrderCents,
		MaxUses:        discount.MaxUses,
		MaxUsesPerUser: discount.MaxUsesPerUser,
		AutoApply:      discount.AutoApply,
		StartsAt:       formatTimePtr(discount.StartsAt),
		ExpiresAt:      formatTimePtr(discount.ExpiresAt),
		Active:         discount.Active,
		CreatedAt:      formatTime(discount.CreatedAt),
		UpdatedAt:      formatTime(discount.UpdatedAt),
	}
}
