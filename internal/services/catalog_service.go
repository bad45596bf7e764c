package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/platform/textutil"
	"github.com/freshbasket/api/internal/repositories"
)

const productIDPrefix = "prd_"

// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog call.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the addressed product or store does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogUnavailable indicates a backend failure.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// ProductImageSigner resolves a stored image path to a time-limited URL.
type ProductImageSigner interface {
	SignedImageURL(ctx context.Context, object string) (string, error)
}

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
	Stores   repositories.StoreRepository
	Images   ProductImageSigner
	Clock    Clock
	IDGen    func() string
	Logger   func(context.Context, string, map[string]any)
}

type catalogService struct {
	products  repositories.ProductRepository
	stores    repositories.StoreRepository
	images    ProductImageSigner
	sanitizer *bluemonday.Policy
	now       Clock
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("catalog service: store repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products:  deps.Products,
		stores:    deps.Stores,
		images:    deps.Images,
		sanitizer: bluemonday.UGCPolicy(),
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// ListProducts returns one filtered catalog page. Storefront callers set
// OnlyActive; admin views leave it unset to include retired products.
func (s *catalogService) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.translate(err)
	}
	return page, nil
}

// GetProduct loads one product with its live price and stock.
func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translate(err)
	}
	return product, nil
}

// SearchProducts filters one catalog page by a diacritic-folded substring
// match on name and description. Firestore cannot express substring queries,
// so the page is filtered in memory after the indexed reads.
func (s *catalogService) SearchProducts(ctx context.Context, cmd SearchProductsCommand) (domain.CursorPage[Product], error) {
	needle := textutil.Fold(cmd.Query)
	if needle == "" {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: search query is required", ErrCatalogInvalidInput)
	}

	page, err := s.products.List(ctx, repositories.ProductListFilter{
		StoreID:    strings.TrimSpace(cmd.StoreID),
		OnlyActive: true,
		Pagination: cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, s.translate(err)
	}

	matched := make([]Product, 0, len(page.Items))
	for _, product := range page.Items {
		if strings.Contains(textutil.Fold(product.Name), needle) ||
			strings.Contains(textutil.Fold(product.Description), needle) {
			matched = append(matched, product)
		}
	}
	return domain.CursorPage[Product]{Items: matched, NextCursor: page.NextCursor}, nil
}

// ListStores pages the fulfillment origins.
func (s *catalogService) ListStores(ctx context.Context, pager Pagination) (domain.CursorPage[Store], error) {
	page, err := s.stores.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[Store]{}, s.translate(err)
	}
	return page, nil
}

// GetStore loads one store.
func (s *catalogService) GetStore(ctx context.Context, storeID string) (Store, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return Store{}, fmt.Errorf("%w: store id is required", ErrCatalogInvalidInput)
	}
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return Store{}, s.translate(err)
	}
	return store, nil
}

// UpsertProduct creates or replaces a catalog entry. Descriptions accept
// limited user-generated markup and are sanitized before storage.
func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product := cmd.Product
	product.ID = strings.TrimSpace(product.ID)
	product.Name = strings.TrimSpace(product.Name)
	product.StoreID = strings.TrimSpace(product.StoreID)
	product.CategoryID = strings.TrimSpace(product.CategoryID)
	product.ImagePath = strings.TrimSpace(product.ImagePath)
	product.Description = s.sanitizer.Sanitize(product.Description)

	if product.Name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if product.StoreID == "" {
		return Product{}, fmt.Errorf("%w: store id is required", ErrCatalogInvalidInput)
	}
	if product.PriceCents < 0 {
		return Product{}, fmt.Errorf("%w: price cannot be negative", ErrCatalogInvalidInput)
	}
	if product.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
	}

	if _, err := s.stores.FindByID(ctx, product.StoreID); err != nil {
		if isRepoNotFound(err) {
			return Product{}, fmt.Errorf("%w: store %s not found", ErrCatalogInvalidInput, product.StoreID)
		}
		return Product{}, s.translate(err)
	}

	now := s.now()
	if product.ID == "" {
		product.ID = productIDPrefix + s.newID()
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	saved, err := s.products.Upsert(ctx, product)
	if err != nil {
		return Product{}, s.translate(err)
	}
	s.logger(ctx, "catalog.product_upserted", map[string]any{
		"product_id": saved.ID,
		"actor_id":   cmd.ActorID,
	})
	return saved, nil
}

// ProductImageURL signs the product's stored image path. Products without an
// image resolve to an empty URL.
func (s *catalogService) ProductImageURL(ctx context.Context, product Product) (string, error) {
	if product.ImagePath == "" || s.images == nil {
		return "", nil
	}
	url, err := s.images.SignedImageURL(ctx, product.ImagePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return url, nil
}

func (s *catalogService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCatalogInvalidInput), errors.Is(err, ErrCatalogNotFound):
		return err
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
}

var _ CatalogService = (*catalogService)(nil)
