package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/platform/auth"
	"github.com/freshbasket/api/internal/platform/httpx"
	"github.com/freshbasket/api/internal/services"
)

const maxAdminSettingsBodySize = 8 * 1024

// AdminSettingsHandlers exposes the singleton pricing configuration to staff.
type AdminSettingsHandlers struct {
	authn  *auth.Authenticator
	system services.SystemService
}

// NewAdminSettingsHandlers constructs admin settings handlers.
func NewAdminSettingsHandlers(authn *auth.Authenticator, system services.SystemService) *AdminSettingsHandlers {
	return &AdminSettingsHandlers{authn: authn, system: system}
}

// Routes registers admin settings endpoints.
func (h *AdminSettingsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.updateSettings)
}

type settingsRequest struct {
	DeliveryFeeCents   int64  `json:"delivery_fee_cents"`
	TaxRateBasisPoints int64  `json:"tax_rate_basis_points"`
	MaxLineQuantity    int64  `json:"max_line_quantity"`
	CurrencyCode       string `json:"currency_code"`
	PaymentTimeout     string `json:"payment_timeout"`
}

func (h *AdminSettingsHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := h.system.GetSettings(ctx)
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSettingsPayload(settings))
}

func (h *AdminSettingsHandlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestUserID(r)

	var req settingsRequest
	if err := decodeJSONBody(r, maxAdminSettingsBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	settings := domain.SystemSettings{
		DeliveryFeeCents:   req.DeliveryFeeCents,
		TaxRateBasisPoints: req.TaxRateBasisPoints,
		MaxLineQuantity:    req.MaxLineQuantity,
		CurrencyCode:       req.CurrencyCode,
	}
	if req.PaymentTimeout != "" {
		timeout, err := time.ParseDuration(req.PaymentTimeout)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid payment_timeout %q", req.PaymentTimeout), http.StatusBadRequest))
			return
		}
		settings.PaymentTimeout = timeout
	}

	saved, err := h.system.UpdateSettings(ctx, services.UpdateSettingsCommand{
		Settings: settings,
		ActorID:  actorID,
	})
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSettingsPayload(saved))
}

func writeSettingsError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSystemInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSystemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("settings_unavailable", "settings storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("settings_error", "settings operation failed", http.StatusInternalServerError))
	}
}

type settingsPayload struct {
	DeliveryFeeCents   int64  `json:"delivery_fee_cents"`
	TaxRateBasisPoints int64  `json:"tax_rate_basis_points"`
	MaxLineQuantity    int64  `json:"max_line_quantity"`
	CurrencyCode       string `json:"currency_code"`
	PaymentTimeout     string `json:"payment_timeout"`
	UpdatedAt          string `json:"updated_at,omitempty"`
}

func buildSettingsPayload(settings domain.SystemSettings) settingsPayload {
	return settingsPayload{
		DeliveryFeeCents:   settings.DeliveryFeeCents,
		TaxRateBasisPoints: settings.TaxRateBasisPoints,
		MaxLineQuantity:    settings.MaxLineQuantity,
		CurrencyCode:       settings.CurrencyCode,
		PaymentTimeout:     settings.PaymentTimeout.String(),
		UpdatedAt:          formatTime(settings.UpdatedAt),
	}
}
