package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/platform/httpx"
	"github.com/freshbasket/api/internal/repositories"
	"github.com/freshbasket/api/internal/services"
)

const (
	defaultCatalogPageSize = 20
	maxCatalogPageSize     = 100
)

// CatalogHandlers serves the public product and store browsing endpoints.
// None of these routes require authentication.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs the public catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the catalog endpoints onto the public group.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products:search", h.searchProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/stores", h.listStores)
	r.Get("/stores/{storeID}", h.getStore)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := repositories.ProductListFilter{
		StoreID:    strings.TrimSpace(query.Get("store_id")),
		CategoryID: strings.TrimSpace(query.Get("category_id")),
		OnlyActive: true,
		Pagination: domain.Pagination{
			PageSize:  parsePageSize(r, defaultCatalogPageSize, maxCatalogPageSize),
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	h.writeProductPage(ctx, w, page)
}

func (h *CatalogHandlers) searchProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	page, err := h.catalog.SearchProducts(ctx, services.SearchProductsCommand{
		Query:   strings.TrimSpace(query.Get("q")),
		StoreID: strings.TrimSpace(query.Get("store_id")),
		Pagination: domain.Pagination{
			PageSize:  parsePageSize(r, defaultCatalogPageSize, maxCatalogPageSize),
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	h.writeProductPage(ctx, w, page)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildProductPayload(ctx, product))
}

func (h *CatalogHandlers) listStores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.catalog.ListStores(ctx, domain.Pagination{
		PageSize:  parsePageSize(r, defaultCatalogPageSize, maxCatalogPageSize),
		PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	stores := make([]storePayload, 0, len(page.Items))
	for _, store := range page.Items {
		stores = append(stores, buildStorePayload(store))
	}
	writeJSONResponse(w, http.StatusOK, storeListResponse{
		Stores:        stores,
		NextPageToken: page.NextCursor,
	})
}

func (h *CatalogHandlers) getStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store, err := h.catalog.GetStore(ctx, chi.URLParam(r, "storeID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStorePayload(store))
}

func (h *CatalogHandlers) writeProductPage(ctx context.Context, w http.ResponseWriter, page domain.CursorPage[domain.Product]) {
	products := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		products = append(products, h.buildProductPayload(ctx, product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Products:      products,
		NextPageToken: page.NextCursor,
	})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "catalog lookup failed", http.StatusInternalServerError))
	}
}

type productListResponse struct {
	Products      []productPayload `json:"products"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID          string `json:"id"`
	StoreID     string `json:"store_id"`
	CategoryID  string `json:"category_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int64  `json:"stock"`
	ImageURL    string `json:"image_url,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func (h *CatalogHandlers) buildProductPayload(ctx context.Context, product domain.Product) productPayload {
	// A signing failure degrades to an image-less listing instead of failing
	// the whole response.
	imageURL, err := h.catalog.ProductImageURL(ctx, product)
	if err != nil {
		imageURL = ""
	}
	return productPayload{
		ID:          product.ID,
		StoreID:     product.StoreID,
		CategoryID:  product.CategoryID,
		Name:        product.Name,
		Description: product.Description,
		PriceCents:  product.PriceCents,
		Stock:       product.Stock,
		ImageURL:    imageURL,
		Active:      product.Active,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

type storeListResponse struct {
	Stores        []storePayload `json:"stores"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type storePayload struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	DeliveryFeeCents int64  `json:"delivery_fee_cents"`
	Active           bool   `json:"active"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func buildStorePayload(store domain.Store) storePayload {
	return storePayload{
		ID:               store.ID,
		Name:             store.Name,
		Description:      store.Description,
		DeliveryFeeCents: store.DeliveryFeeCents,
		Active:           store.Active,
		CreatedAt:        formatTime(store.CreatedAt),
		UpdatedAt:        formatTime(store.UpdatedAt),
	}
}
