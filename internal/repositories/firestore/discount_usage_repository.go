package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/api/iterator"

	domain "github.com/freshbasket/api/internal/domain"
	pfirestore "github.com/freshbasket/api/internal/platform/firestore"
	"github.com/freshbasket/api/internal/repositories"
)

const discountUsageCollection = "discount_usage"

// DiscountUsageRepository records redemptions so usage caps can be enforced.
type DiscountUsageRepository struct {
	provider *pfirestore.Provider
}

// NewDiscountUsageRepository constructs a Firestore-backed usage repository.
func NewDiscountUsageRepository(provider *pfirestore.Provider) (*DiscountUsageRepository, error) {
	if provider == nil {
		return nil, errors.New("discount usage repository requires firestore provider")
	}
	return &DiscountUsageRepository{provider: provider}, nil
}

// Insert records one redemption. Joins the ambient transaction when present
// so the record lands atomically with the order it belongs to.
func (r *DiscountUsageRepository) Insert(ctx context.Context, usage domain.DiscountUsage) error {
	if r == nil || r.provider == nil {
		return errors.New("discount usage repository not initialised")
	}
	id := strings.TrimSpace(usage.ID)
	if id == "" {
		return errors.New("discount usage repository: usage id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(discountUsageCollection).Doc(id)
	doc := encodeDiscountUsage(usage)

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("discountUsage.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("discountUsage.insert", err)
	}
	return nil
}

// CountByDiscount returns the total number of redemptions of a discount.
func (r *DiscountUsageRepository) CountByDiscount(ctx context.Context, discountID string) (int64, error) {
	return r.count(ctx, discountID, "")
}

// CountByDiscountAndUser returns how many times a user redeemed a discount.
func (r *DiscountUsageRepository) CountByDiscountAndUser(ctx context.Context, discountID string, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("discount usage repository: user id is required")
	}
	return r.count(ctx, discountID, userID)
}

func (r *DiscountUsageRepository) count(ctx context.Context, discountID, userID string) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("discount usage repository not initialised")
	}
	if strings.TrimSpace(discountID) == "" {
		return 0, errors.New("discount usage repository: discount id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	query := client.Collection(discountUsageCollection).
		Where("discountId", "==", discountID)
	if userID != "" {
		query = query.Where("userId", "==", userID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var total int64
	for {
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, pfirestore.WrapError("discountUsage.count", err)
		}
		total++
	}
	return total, nil
}

func encodeDiscountUsage(usage domain.DiscountUsage) discountUsageDocument {
	usedAt := usage.UsedAt.UTC()
	if usedAt.IsZero() {
		usedAt = time.Now().UTC()
	}
	return discountUsageDocument{
		DiscountID: usage.DiscountID,
		UserID:     usage.UserID,
		OrderID:    usage.OrderID,
		UsedAt:     usedAt,
	}
}

type discountUsageDocument struct {
	DiscountID string    `firestore:"discountId"`
	UserID     string    `firestore:"userId"`
	OrderID    string    `firestore:"orderId"`
	UsedAt     time.Time `firestore:"usedAt"`
}

var _ repositories.DiscountUsageRepository = (*DiscountUsageRepository)(nil)
