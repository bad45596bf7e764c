package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/freshbasket/api/internal/domain"
	pfirestore "github.com/freshbasket/api/internal/platform/firestore"
	"github.com/freshbasket/api/internal/repositories"
)

const storesCollection = "stores"

// StoreRepository reads fulfillment-origin rows from Firestore.
type StoreRepository struct {
	base     *pfirestore.BaseRepository[storeDocument]
	provider *pfirestore.Provider
}

// NewStoreRepository constructs a Firestore-backed store repository.
func NewStoreRepository(provider *pfirestore.Provider) (*StoreRepository, error) {
	if provider == nil {
		return nil, errors.New("store repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[storeDocument](provider, storesCollection, nil, nil)
	return &StoreRepository{base: base, provider: provider}, nil
}

// FindByID loads a single store.
func (r *StoreRepository) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	if r == nil || r.base == nil {
		return domain.Store{}, errors.New("store repository not initialised")
	}
	id := strings.TrimSpace(storeID)
	if id == "" {
		return domain.Store{}, errors.New("store repository: store id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs loads multiple stores keyed by ID; missing stores are skipped.
func (r *StoreRepository) FindByIDs(ctx context.Context, storeIDs []string) (map[string]domain.Store, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("store repository not initialised")
	}

	out := make(map[string]domain.Store, len(storeIDs))
	seen := make(map[string]struct{}, len(storeIDs))
	for _, raw := range storeIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		store, err := r.FindByID(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		out[id] = store
	}
	return out, nil
}

// List returns a page of stores ordered by name.
func (r *StoreRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Store], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Store]{}, errors.New("store repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Store]{}, err
	}

	query := client.Collection(storesCollection).
		OrderBy("name", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc)

	token, err := decodePageToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Store]{}, err
	}
	if token != nil {
		query = query.StartAfter(token.Name, token.ID)
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	query = query.Limit(pageSize + 1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var items []domain.Store
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Store]{}, pfirestore.WrapError("stores.list", err)
		}
		var doc storeDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Store]{}, fmt.Errorf("decode store %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	page := domain.CursorPage[domain.Store]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		last := page.Items[len(page.Items)-1]
		encoded, err := encodePageToken(pageToken{Name: last.Name, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Store]{}, err
		}
		page.NextCursor = encoded
	}
	return page, nil
}

type storeDocument struct {
	Name             string    `firestore:"name"`
	Description      string    `firestore:"description,omitempty"`
	DeliveryFeeCents int64     `firestore:"deliveryFeeCents"`
	Active           bool      `firestore:"active"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func (d storeDocument) toDomain(id string) domain.Store {
	return domain.Store{
		ID:               id,
		Name:             d.Name,
		Description:      d.Description,
		DeliveryFeeCents: d.DeliveryFeeCents,
		Active:           d.Active,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

var _ repositories.StoreRepository = (*StoreRepository)(nil)
