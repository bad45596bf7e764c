package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/freshbasket/api/internal/domain"
	pfirestore "github.com/freshbasket/api/internal/platform/firestore"
	"github.com/freshbasket/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository reads catalog rows and mutates stock in Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return domain.Product{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Product{}, pfirestore.WrapError("products.get", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Product{}, fmt.Errorf("decode product %s: %w", id, err)
		}
		return doc.toDomain(id), nil
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs loads multiple products keyed by ID. Missing products are simply
// absent from the result, which lets cart reads drop dead references.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	out := make(map[string]domain.Product, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, raw := range productIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		product, err := r.FindByID(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		out[id] = product
	}
	return out, nil
}

// List returns a filtered page of products ordered by name.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	query := client.Collection(productsCollection).Query
	if filter.OnlyActive {
		query = query.Where("active", "==", true)
	}
	if storeID := strings.TrimSpace(filter.StoreID); storeID != "" {
		query = query.Where("storeId", "==", storeID)
	}
	if categoryID := strings.TrimSpace(filter.CategoryID); categoryID != "" {
		query = query.Where("categoryId", "==", categoryID)
	}
	query = query.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)

	token, err := decodePageToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	if token != nil {
		query = query.StartAfter(token.Name, token.ID)
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	query = query.Limit(pageSize + 1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var items []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	page := domain.CursorPage[domain.Product]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		last := page.Items[len(page.Items)-1]
		encoded, err := encodePageToken(pageToken{Name: last.Name, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		page.NextCursor = encoded
	}
	return page, nil
}

// DecrementStocks re-reads every product inside the ambient transaction and
// subtracts the requested quantities, failing with a StockError when any
// live stock is short. All reads happen before the first write so the caller
// can keep issuing transactional writes afterwards. Calling it outside a
// unit of work is a programming error.
func (r *ProductRepository) DecrementStocks(ctx context.Context, quantities map[string]int64) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if len(quantities) == 0 {
		return nil
	}

	tx := pfirestore.TxFromContext(ctx)
	if tx == nil {
		return errors.New("product repository: stock decrement requires an active transaction")
	}

	ids := make([]string, 0, len(quantities))
	for id, qty := range quantities {
		id = strings.TrimSpace(id)
		if id == "" {
			return repositories.NewStockError(repositories.StockErrorUnknown, "", 0, "product id is required", nil)
		}
		if qty <= 0 {
			return repositories.NewStockError(repositories.StockErrorUnknown, id, 0, fmt.Sprintf("quantity must be positive, got %d", qty), nil)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	type pending struct {
		ref      *firestore.DocumentRef
		newStock int64
	}
	writes := make([]pending, 0, len(ids))
	for _, id := range ids {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return repositories.NewStockError(repositories.StockErrorProductNotFound, id, 0, fmt.Sprintf("product %s not found", id), err)
		}
		if err != nil {
			return pfirestore.WrapError("products.decrementStocks", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", id, err)
		}
		qty := quantities[id]
		if doc.Stock < qty {
			return repositories.NewStockError(repositories.StockErrorInsufficient, id, doc.Stock, fmt.Sprintf("product %s has %d in stock, requested %d", id, doc.Stock, qty), nil)
		}
		writes = append(writes, pending{ref: ref, newStock: doc.Stock - qty})
	}

	now := time.Now().UTC()
	for _, w := range writes {
		updates := []firestore.Update{
			{Path: "stock", Value: w.newStock},
			{Path: "updatedAt", Value: now},
		}
		if err := tx.Update(w.ref, updates); err != nil {
			return pfirestore.WrapError("products.decrementStocks", err)
		}
	}
	return nil
}

// Upsert writes the full product document using the product ID as identifier.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	now := time.Now().UTC()
	createdAt := product.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := productDocument{
		StoreID:     strings.TrimSpace(product.StoreID),
		CategoryID:  strings.TrimSpace(product.CategoryID),
		Name:        strings.TrimSpace(product.Name),
		Description: product.Description,
		PriceCents:  product.PriceCents,
		Stock:       product.Stock,
		ImagePath:   strings.TrimSpace(product.ImagePath),
		Active:      product.Active,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}

	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.Product{}, err
	}

	saved := doc.toDomain(id)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

type productDocument struct {
	StoreID     string    `firestore:"storeId"`
	CategoryID  string    `firestore:"categoryId,omitempty"`
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	PriceCents  int64     `firestore:"priceCents"`
	Stock       int64     `firestore:"stock"`
	ImagePath   string    `firestore:"imagePath,omitempty"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		StoreID:     d.StoreID,
		CategoryID:  d.CategoryID,
		Name:        d.Name,
		Description: d.Description,
		PriceCents:  d.PriceCents,
		Stock:       d.Stock,
		ImagePath:   d.ImagePath,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
