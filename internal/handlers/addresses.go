package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/platform/auth"
	"github.com/freshbasket/api/internal/platform/httpx"
	"github.com/freshbasket/api/internal/services"
)

const maxAddressBodySize = 16 * 1024

// AddressHandlers manages the authenticated user's delivery address book.
type AddressHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
}

// NewAddressHandlers constructs address handlers guarded by Firebase authentication.
func NewAddressHandlers(authn *auth.Authenticator, addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{
		authn:     authn,
		addresses: addresses,
	}
}

// Routes wires the address book endpoints onto the /me group.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Route("/addresses", func(r chi.Router) {
		r.Get("/", h.listAddresses)
		r.Post("/", h.createAddress)
		r.Get("/{addressID}", h.getAddress)
		r.Put("/{addressID}", h.updateAddress)
		r.Delete("/{addressID}", h.deleteAddress)
	})
	r.Post("/addresses/{addressID}:default", h.setDefaultAddress)
}

type addressRequest struct {
	Label        string `json:"label"`
	Line1        string `json:"line1"`
	Line2        string `json:"line2"`
	City         string `json:"city"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Instructions string `json:"instructions"`
}

func (r addressRequest) toInput() services.AddressInput {
	return services.AddressInput{
		Label:        r.Label,
		Line1:        r.Line1,
		Line2:        r.Line2,
		City:         r.City,
		Region:       r.Region,
		PostalCode:   r.PostalCode,
		Country:      r.Country,
		Instructions: r.Instructions,
	}
}

func (h *AddressHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	addresses, err := h.addresses.ListAddresses(ctx, userID)
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}

	items := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		items = append(items, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, addressListResponse{Addresses: items})
}

func (h *AddressHandlers) getAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	addr, err := h.addresses.GetAddress(ctx, userID, chi.URLParam(r, "addressID"))
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAddressPayload(addr))
}

func (h *AddressHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req addressRequest
	if err := decodeJSONBody(r, maxAddressBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	addr, err := h.addresses.CreateAddress(ctx, services.SaveAddressCommand{
		UserID:  userID,
		Address: req.toInput(),
	})
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildAddressPayload(addr))
}

func (h *AddressHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req addressRequest
	if err := decodeJSONBody(r, maxAddressBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	addr, err := h.addresses.UpdateAddress(ctx, services.SaveAddressCommand{
		UserID:    userID,
		AddressID: chi.URLParam(r, "addressID"),
		Address:   req.toInput(),
	})
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAddressPayload(addr))
}

func (h *AddressHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if err := h.addresses.DeleteAddress(ctx, userID, chi.URLParam(r, "addressID")); err != nil {
		writeAddressError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AddressHandlers) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestUserID(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	addr, err := h.addresses.SetDefaultAddress(ctx, userID, chi.URLParam(r, "addressID"))
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAddressPayload(addr))
}

func writeAddressError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAddressInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAddressUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("address_store_unavailable", "address storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("address_error", "address operation failed", http.StatusInternalServerError))
	}
}

type addressListResponse struct {
	Addresses []addressPayload `json:"addresses"`
}

type addressPayload struct {
	ID           string `json:"id"`
	Label        string `json:"label,omitempty"`
	Line1        string `json:"line1"`
	Line2        string `json:"line2,omitempty"`
	City         string `json:"city"`
	Region       string `json:"region,omitempty"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Instructions string `json:"instructions,omitempty"`
	Default      bool   `json:"default"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		ID:           addr.ID,
		Label:        addr.Label,
		Line1:        addr.Line1,
		Line2:        addr.Line2,
		City:         addr.City,
		Region:       addr.Region,
		PostalCode:   addr.PostalCode,
		Country:      addr.Country,
		Instructions: addr.Instructions,
		Default:      addr.Default,
		CreatedAt:    formatTime(addr.CreatedAt),
		UpdatedAt:    formatTime(addr.UpdatedAt),
	}
}
