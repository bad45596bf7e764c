package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/repositories"
)

// ErrDiscountInvalidInput indicates a malformed discount definition or command.
var ErrDiscountInvalidInput = errors.New("discount service: invalid input")

// ErrDiscountNotFound indicates the addressed discount does not exist.
var ErrDiscountNotFound = errors.New("discount service: not found")

// ErrDiscountUnavailable indicates a backend failure.
var ErrDiscountUnavailable = errors.New("discount service: unavailable")

// Reasons reported for codes that were evaluated but not applied.
const (
	discountReasonUnknownCode   = "unknown code"
	discountReasonInactive      = "not currently active"
	discountReasonMinOrder      = "order total below minimum"
	discountReasonUsageExceeded = "usage limit reached"
	discountReasonUserExceeded  = "per-user limit reached"
)

// DiscountServiceDeps wires the repositories behind the resolver.
type DiscountServiceDeps struct {
	Discounts repositories.DiscountRepository
	Usage     repositories.DiscountUsageRepository
	Clock     Clock
	Logger    func(context.Context, string, map[string]any)
	IDGen     func() string
}

type discountService struct {
	discounts repositories.DiscountRepository
	usage     repositories.DiscountUsageRepository
	now       Clock
	logger    func(context.Context, string, map[string]any)
	newID     func() string
}

// NewDiscountService constructs the discount resolver and admin surface.
func NewDiscountService(deps DiscountServiceDeps) (DiscountService, error) {
	if deps.Discounts == nil {
		return nil, errors.New("discount service: discount repository is required")
	}
	if deps.Usage == nil {
		return nil, errors.New("discount service: usage repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &discountService{
		discounts: deps.Discounts,
		usage:     deps.Usage,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
		newID:     idGen,
	}, nil
}

// Resolve evaluates the optional code plus every always-on discount against
// the given lines. A code that cannot be applied is reported in Skipped with
// a reason; it is never an error.
func (s *discountService) Resolve(ctx context.Context, cmd ResolveDiscountsCommand) (DiscountResolution, error) {
	if cmd.SubtotalCents < 0 {
		return DiscountResolution{}, fmt.Errorf("%w: subtotal cannot be negative", ErrDiscountInvalidInput)
	}

	now := s.now()
	resolution := DiscountResolution{}
	seen := make(map[string]struct{})

	if cmd.Code != nil {
		code := strings.TrimSpace(*cmd.Code)
		if code != "" {
			discount, err := s.discounts.FindByCode(ctx, code)
			if err != nil {
				if !isRepoNotFound(err) {
					return DiscountResolution{}, fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
				}
				resolution.Skipped = append(resolution.Skipped, DiscountSummary{
					Code:   strings.ToUpper(code),
					Reason: discountReasonUnknownCode,
				})
			} else {
				s.evaluate(ctx, &resolution, discount, cmd, now, seen)
			}
		}
	}

	auto, err := s.discounts.ListAutoApply(ctx, now)
	if err != nil {
		return DiscountResolution{}, fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
	}
	for _, discount := range auto {
		s.evaluate(ctx, &resolution, discount, cmd, now, seen)
	}

	if resolution.DiscountCents > cmd.SubtotalCents {
		resolution.DiscountCents = cmd.SubtotalCents
	}
	return resolution, nil
}

func (s *discountService) evaluate(ctx context.Context, resolution *DiscountResolution, discount domain.Discount, cmd ResolveDiscountsCommand, now time.Time, seen map[string]struct{}) {
	if _, dup := seen[discount.ID]; dup {
		return
	}
	seen[discount.ID] = struct{}{}

	skip := func(reason string) {
		resolution.Skipped = append(resolution.Skipped, DiscountSummary{
			DiscountID: discount.ID,
			Code:       discount.Code,
			Reason:     reason,
		})
	}

	if !discount.ActiveAt(now) {
		skip(discountReasonInactive)
		return
	}
	if discount.MinOrderCents > 0 && cmd.SubtotalCents < discount.MinOrderCents {
		skip(discountReasonMinOrder)
		return
	}
	if discount.MaxUses > 0 {
		used, err := s.usage.CountByDiscount(ctx, discount.ID)
		if err != nil {
			s.logger(ctx, "discount.usage_count_failed", map[string]any{
				"discountId": discount.ID,
				"error":      err.Error(),
			})
			skip(discountReasonUsageExceeded)
			return
		}
		if used >= discount.MaxUses {
			skip(discountReasonUsageExceeded)
			return
		}
	}
	if discount.MaxUsesPerUser > 0 && cmd.UserID != "" {
		used, err := s.usage.CountByDiscountAndUser(ctx, discount.ID, cmd.UserID)
		if err != nil {
			s.logger(ctx, "discount.usage_count_failed", map[string]any{
				"discountId": discount.ID,
				"userId":     cmd.UserID,
				"error":      err.Error(),
			})
			skip(discountReasonUserExceeded)
			return
		}
		if used >= discount.MaxUsesPerUser {
			skip(discountReasonUserExceeded)
			return
		}
	}

	amount := discountAmount(discount, cmd.SubtotalCents)
	if amount <= 0 {
		return
	}
	resolution.DiscountCents += amount
	resolution.Applied = append(resolution.Applied, AppliedDiscount{
		DiscountID: discount.ID,
		Code:       discount.Code,
		Kind:       discount.Kind,
		Amount:     amount,
	})
}

// RecordUsage persists one redemption row per applied discount. Called by
// the order assembler inside its transaction so caps hold atomically.
func (s *discountService) RecordUsage(ctx context.Context, cmd RecordDiscountUsageCommand) error {
	if strings.TrimSpace(cmd.OrderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrDiscountInvalidInput)
	}
	for _, applied := range cmd.Applied {
		usage := domain.DiscountUsage{
			ID:         "use_" + s.newID(),
			DiscountID: applied.DiscountID,
			UserID:     cmd.UserID,
			OrderID:    cmd.OrderID,
			UsedAt:     s.now(),
		}
		if err := s.usage.Insert(ctx, usage); err != nil {
			return fmt.Errorf("%w: record usage: %v", ErrDiscountUnavailable, err)
		}
	}
	return nil
}

// ListDiscounts returns a page of discount definitions.
func (s *discountService) ListDiscounts(ctx context.Context, filter repositories.DiscountListFilter) (domain.CursorPage[Discount], error) {
	page, err := s.discounts.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Discount]{}, fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
	}
	return page, nil
}

// CreateDiscount validates and stores a new discount definition.
func (s *discountService) CreateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (Discount, error) {
	discount := cmd.Discount
	if err := validateDiscount(discount); err != nil {
		return Discount{}, err
	}
	discount.ID = "dsc_" + s.newID()
	discount.Code = strings.ToUpper(strings.TrimSpace(discount.Code))
	discount.CreatedAt = s.now()
	if err := s.discounts.Insert(ctx, discount); err != nil {
		if isRepoConflict(err) {
			return Discount{}, fmt.Errorf("%w: discount already exists", ErrDiscountInvalidInput)
		}
		return Discount{}, fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
	}
	return discount, nil
}

// UpdateDiscount rewrites an existing discount definition.
func (s *discountService) UpdateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (Discount, error) {
	discount := cmd.Discount
	if strings.TrimSpace(discount.ID) == "" {
		return Discount{}, fmt.Errorf("%w: discount id is required", ErrDiscountInvalidInput)
	}
	if err := validateDiscount(discount); err != nil {
		return Discount{}, err
	}
	discount.Code = strings.ToUpper(strings.TrimSpace(discount.Code))
	if err := s.discounts.Update(ctx, discount); err != nil {
		if isRepoNotFound(err) {
			return Discount{}, ErrDiscountNotFound
		}
		return Discount{}, fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
	}
	return discount, nil
}

// DeleteDiscount removes a discount definition.
func (s *discountService) DeleteDiscount(ctx context.Context, discountID string) error {
	if strings.TrimSpace(discountID) == "" {
		return fmt.Errorf("%w: discount id is required", ErrDiscountInvalidInput)
	}
	if err := s.discounts.Delete(ctx, discountID); err != nil {
		if isRepoNotFound(err) {
			return ErrDiscountNotFound
		}
		return fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
	}
	return nil
}

func validateDiscount(discount domain.Discount) error {
	if strings.TrimSpace(discount.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrDiscountInvalidInput)
	}
	switch discount.Kind {
	case domain.DiscountKindPercentage:
		if discount.Value <= 0 || discount.Value > 10000 {
			return fmt.Errorf("%w: percentage value must be between 1 and 10000 basis points", ErrDiscountInvalidInput)
		}
	case domain.DiscountKindFixed:
		if discount.Value <= 0 {
			return fmt.Errorf("%w: fixed value must be positive", ErrDiscountInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown discount kind %q", ErrDiscountInvalidInput, discount.Kind)
	}
	if discount.MinOrderCents < 0 || discount.MaxUses < 0 || discount.MaxUsesPerUser < 0 {
		return fmt.Errorf("%w: limits cannot be negative", ErrDiscountInvalidInput)
	}
	if discount.StartsAt != nil && discount.ExpiresAt != nil && !discount.StartsAt.Before(*discount.ExpiresAt) {
		return fmt.Errorf("%w: window start must precede expiry", ErrDiscountInvalidInput)
	}
	return nil
}

func discountAmount(discount domain.Discount, subtotal int64) int64 {
	switch discount.Kind {
	case domain.DiscountKindPercentage:
		return roundHalfUpBasisPoints(subtotal, discount.Value)
	case domain.DiscountKindFixed:
		if discount.Value > subtotal {
			return subtotal
		}
		return discount.Value
	default:
		return 0
	}
}
