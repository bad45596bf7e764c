package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/platform/auth"
	"github.com/freshbasket/api/internal/platform/httpx"
	"github.com/freshbasket/api/internal/repositories"
	"github.com/freshbasket/api/internal/services"
)

const maxAdminProductBodySize = 64 * 1024

// AdminCatalogHandlers exposes the admin product management endpoints.
// Products are deactivated rather than deleted so order history keeps its
// references.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewAdminCatalogHandlers constructs admin catalog handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{authn: authn, catalog: catalog}
}

// Routes registers admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Route("/products", func(rt chi.Router) {
		rt.Get("/", h.listProducts)
		rt.Post("/", h.createProduct)
		rt.Put("/{productID}", h.updateProduct)
	})
}

type adminProductRequest struct {
	StoreID     string `json:"store_id"`
	CategoryID  string `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int64  `json:"stock"`
	ImagePath   string `json:"image_path"`
	Active      *bool  `json:"active"`
}

// listProducts is the admin view: inactive products are included.
func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	page, err := h.catalog.ListProducts(ctx, repositories.ProductListFilter{
		StoreID:    strings.TrimSpace(query.Get("store_id")),
		CategoryID: strings.TrimSpace(query.Get("category_id")),
		Pagination: domain.Pagination{
			PageSize:  parsePageSize(r, defaultCatalogPageSize, maxCatalogPageSize),
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	products := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		products = append(products, productPayload{
			ID:          product.ID,
			StoreID:     product.StoreID,
			CategoryID:  product.CategoryID,
			Name:        product.Name,
			Description: product.Description,
			PriceCents:  product.PriceCents,
			Stock:       product.Stock,
			Active:      product.Active,
			CreatedAt:   formatTime(product.CreatedAt),
			UpdatedAt:   formatTime(product.UpdatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Products:      products,
		NextPageToken: page.NextCursor,
	})
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, chi.URLParam(r, "productID"))
}

func (h *AdminCatalogHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req adminProductRequest
	if err := decodeJSONBody(r, maxAdminProductBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product := domain.Product{
		ID:          productID,
		StoreID:     strings.TrimSpace(req.StoreID),
		CategoryID:  strings.TrimSpace(req.CategoryID),
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
		ImagePath:   strings.TrimSpace(req.ImagePath),
		Active:      true,
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	saved, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{
		Product: product,
		ActorID: identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, h.buildAdminProductPayload(saved))
}

func (h *AdminCatalogHandlers) buildAdminProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		StoreID:     product.StoreID,
		CategoryID:  product.CategoryID,
		Name:        product.Name,
		Description: product.Description,
		PriceCents:  product.PriceCents,
		Stock:       product.Stock,
		Active:      product.Active,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}
