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

const cartItemsCollectionPattern = "carts/%s/items"

// CartRepository persists per-user cart rows in Firestore. Each product
// occupies one document keyed by product ID, which makes the merge-by-product
// rule a natural upsert.
type CartRepository struct {
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{provider: provider}, nil
}

// ListItems returns the user's cart rows ordered by time added.
func (r *CartRepository) ListItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	uid := strings.TrimSpace(userID)
	query := coll.OrderBy("addedAt", firestore.Asc)

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		snaps, err := tx.Documents(query).GetAll()
		if err != nil {
			return nil, pfirestore.WrapError("carts.listItems", err)
		}
		return decodeCartItems(uid, snaps)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var snaps []*firestore.DocumentSnapshot
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("carts.listItems", err)
		}
		snaps = append(snaps, snap)
	}
	return decodeCartItems(uid, snaps)
}

// UpsertItem inserts or replaces the row for (userID, productID). A non-nil
// expectedUpdate makes the write conditional on the stored update time so
// concurrent merges surface as conflicts instead of lost updates.
func (r *CartRepository) UpsertItem(ctx context.Context, item domain.CartItem, expectedUpdate *time.Time) (domain.CartItem, error) {
	coll, err := r.collection(ctx, item.UserID)
	if err != nil {
		return domain.CartItem{}, err
	}

	productID := strings.TrimSpace(item.ProductID)
	if productID == "" {
		return domain.CartItem{}, errors.New("cart repository: product id is required")
	}
	if item.Quantity < 1 {
		return domain.CartItem{}, fmt.Errorf("cart repository: quantity must be at least 1, got %d", item.Quantity)
	}

	now := time.Now().UTC()
	addedAt := item.AddedAt.UTC()
	if addedAt.IsZero() {
		addedAt = now
	}

	doc := cartItemDocument{
		ProductID: productID,
		Quantity:  item.Quantity,
		AddedAt:   addedAt,
		UpdatedAt: now,
	}

	ref := coll.Doc(productID)

	var updateTime time.Time
	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err := ref.Set(ctx, doc)
		if err != nil {
			return domain.CartItem{}, pfirestore.WrapError("carts.upsertItem", err)
		}
		updateTime = result.UpdateTime
	} else {
		updates := []firestore.Update{
			{Path: "quantity", Value: doc.Quantity},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}
		result, err := ref.Update(ctx, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
		if err != nil {
			return domain.CartItem{}, pfirestore.WrapError("carts.upsertItem", err)
		}
		updateTime = result.UpdateTime
	}

	saved := item
	saved.ID = productID
	saved.ProductID = productID
	saved.AddedAt = addedAt
	saved.UpdatedAt = updateTime
	return saved, nil
}

// DeleteItem removes the row for the given product, tolerating absence.
// Inside a unit of work the delete is a pure write, so it stays legal after
// other transactional writes have been issued.
func (r *CartRepository) DeleteItem(ctx context.Context, userID string, productID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("cart repository: product id is required")
	}
	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		if err := tx.Delete(coll.Doc(id)); err != nil {
			return pfirestore.WrapError("carts.deleteItem", err)
		}
		return nil
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.deleteItem", err)
	}
	return nil
}

// DeleteAll removes every row in the user's cart. Inside a unit of work the
// deletes join the ambient transaction so checkout clears the cart atomically
// with order creation.
func (r *CartRepository) DeleteAll(ctx context.Context, userID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		snaps, err := tx.Documents(coll.Query).GetAll()
		if err != nil {
			return pfirestore.WrapError("carts.deleteAll", err)
		}
		for _, snap := range snaps {
			if err := tx.Delete(snap.Ref); err != nil {
				return pfirestore.WrapError("carts.deleteAll", err)
			}
		}
		return nil
	}

	iter := coll.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return pfirestore.WrapError("carts.deleteAll", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return pfirestore.WrapError("carts.deleteAll", err)
		}
	}
	return nil
}

func (r *CartRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("cart repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(cartItemsCollectionPattern, uid)), nil
}

func decodeCartItems(userID string, snaps []*firestore.DocumentSnapshot) ([]domain.CartItem, error) {
	items := make([]domain.CartItem, 0, len(snaps))
	for _, snap := range snaps {
		var doc cartItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode cart item %s: %w", snap.Ref.ID, err)
		}
		items = append(items, domain.CartItem{
			ID:        snap.Ref.ID,
			UserID:    userID,
			ProductID: doc.ProductID,
			Quantity:  doc.Quantity,
			AddedAt:   doc.AddedAt,
			UpdatedAt: snap.UpdateTime,
		})
	}
	return items, nil
}

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Quantity  int64     `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
