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

const discountsCollection = "discounts"

// DiscountRepository maintains discount definitions in Firestore. Codes are
// stored uppercased so lookups are case-insensitive.
type DiscountRepository struct {
	base     *pfirestore.BaseRepository[discountDocument]
	provider *pfirestore.Provider
}

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[discountDocument](provider, discountsCollection, nil, nil)
	return &DiscountRepository{base: base, provider: provider}, nil
}

// Insert creates the discount document, failing on duplicates.
func (r *DiscountRepository) Insert(ctx context.Context, discount domain.Discount) error {
	if r == nil || r.base == nil {
		return errors.New("discount repository not initialised")
	}
	id := strings.TrimSpace(discount.ID)
	if id == "" {
		return errors.New("discount repository: discount id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeDiscount(discount)); err != nil {
		return pfirestore.WrapError("discounts.insert", err)
	}
	return nil
}

// Update rewrites the discount document.
func (r *DiscountRepository) Update(ctx context.Context, discount domain.Discount) error {
	if r == nil || r.base == nil {
		return errors.New("discount repository not initialised")
	}
	id := strings.TrimSpace(discount.ID)
	if id == "" {
		return errors.New("discount repository: discount id is required")
	}
	if _, err := r.base.Set(ctx, id, encodeDiscount(discount)); err != nil {
		return err
	}
	return nil
}

// Delete removes the discount document.
func (r *DiscountRepository) Delete(ctx context.Context, discountID string) error {
	if r == nil || r.provider == nil {
		return errors.New("discount repository not initialised")
	}
	id := strings.TrimSpace(discountID)
	if id == "" {
		return errors.New("discount repository: discount id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("discounts.delete", err)
	}
	return nil
}

// FindByCode resolves a discount by its redemption code.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (domain.Discount, error) {
	if r == nil || r.provider == nil {
		return domain.Discount{}, errors.New("discount repository not initialised")
	}
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return domain.Discount{}, errors.New("discount repository: code is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Discount{}, err
	}

	iter := client.Collection(discountsCollection).
		Where("code", "==", normalized).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Discount{}, pfirestore.NewNotFoundError("discounts.findByCode", fmt.Errorf("code %s not found", normalized))
	}
	if err != nil {
		return domain.Discount{}, pfirestore.WrapError("discounts.findByCode", err)
	}

	var doc discountDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Discount{}, fmt.Errorf("decode discount %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListAutoApply returns every always-on discount whose window covers now.
func (r *DiscountRepository) ListAutoApply(ctx context.Context, now time.Time) ([]domain.Discount, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("discount repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(discountsCollection).
		Where("autoApply", "==", true).
		Where("active", "==", true).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.Discount
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("discounts.listAutoApply", err)
		}
		var doc discountDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode discount %s: %w", snap.Ref.ID, err)
		}
		discount := doc.toDomain(snap.Ref.ID)
		// Window bounds are filtered here rather than in the query to keep
		// the composite index surface small.
		if !discount.ActiveAt(now.UTC()) {
			continue
		}
		out = append(out, discount)
	}
	return out, nil
}

// List returns a page of discounts ordered by code.
func (r *DiscountRepository) List(ctx context.Context, filter repositories.DiscountListFilter) (domain.CursorPage[domain.Discount], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Discount]{}, errors.New("discount repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Discount]{}, err
	}

	query := client.Collection(discountsCollection).Query
	if filter.OnlyActive {
		query = query.Where("active", "==", true)
	}
	query = query.OrderBy("code", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)

	token, err := decodePageToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Discount]{}, err
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

	var items []domain.Discount
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Discount]{}, pfirestore.WrapError("discounts.list", err)
		}
		var doc discountDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Discount]{}, fmt.Errorf("decode discount %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	page := domain.CursorPage[domain.Discount]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		last := page.Items[len(page.Items)-1]
		encoded, err := encodePageToken(pageToken{Name: last.Code, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Discount]{}, err
		}
		page.NextCursor = encoded
	}
	return page, nil
}

func encodeDiscount(discount domain.Discount) discountDocument {
	now := time.Now().UTC()
	createdAt := discount.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	return discountDocument{
		Code:           strings.ToUpper(strings.TrimSpace(discount.Code)),
		Kind:           string(discount.Kind),
		Value:          discount.Value,
		MinOrderCents:  discount.MinOrderCents,
		MaxUses:        discount.MaxUses,
		MaxUsesPerUser: discount.MaxUsesPerUser,
		AutoApply:      discount.AutoApply,
		StartsAt:       cloneTimePtr(discount.StartsAt),
		ExpiresAt:      cloneTimePtr(discount.ExpiresAt),
		Active:         discount.Active,
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}
}

type discountDocument struct {
	Code           string     `firestore:"code"`
	Kind           string     `firestore:"kind"`
	Value          int64      `firestore:"value"`
	MinOrderCents  int64      `firestore:"minOrderCents"`
	MaxUses        int64      `firestore:"maxUses"`
	MaxUsesPerUser int64      `firestore:"maxUsesPerUser"`
	AutoApply      bool       `firestore:"autoApply"`
	StartsAt       *time.Time `firestore:"startsAt,omitempty"`
	ExpiresAt      *time.Time `firestore:"expiresAt,omitempty"`
	Active         bool       `firestore:"active"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

func (d discountDocument) toDomain(id string) domain.Discount {
	return domain.Discount{
		ID:             id,
		Code:           d.Code,
		Kind:           domain.DiscountKind(d.Kind),
		Value:          d.Value,
		MinOrderCents:  d.MinOrderCents,
		MaxUses:        d.MaxUses,
		MaxUsesPerUser: d.MaxUsesPerUser,
		AutoApply:      d.AutoApply,
		StartsAt:       d.StartsAt,
		ExpiresAt:      d.ExpiresAt,
		Active:         d.Active,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

var _ repositories.DiscountRepository = (*DiscountRepository)(nil)
