package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/freshbasket/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals malformed cart lines such as non-positive
	// quantities or negative prices.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingUnavailable signals a backend failure while loading pricing inputs.
	ErrPricingUnavailable = errors.New("pricing: unavailable")
)

type discountResolver interface {
	Resolve(ctx context.Context, cmd ResolveDiscountsCommand) (DiscountResolution, error)
}

// PricingEngineDeps wires the inputs totals are computed from.
type PricingEngineDeps struct {
	Stores    repositories.StoreRepository
	Settings  repositories.SettingsRepository
	Discounts discountResolver
	Clock     Clock
	Logger    func(context.Context, string, map[string]any)
}

type pricingEngine struct {
	stores    repositories.StoreRepository
	settings  repositories.SettingsRepository
	discounts discountResolver
	now       Clock
	logger    func(context.Context, string, map[string]any)
}

// NewPricingEngine constructs the totals calculator.
func NewPricingEngine(deps PricingEngineDeps) (PricingService, error) {
	if deps.Stores == nil {
		return nil, errors.New("pricing engine: store repository is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("pricing engine: settings repository is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("pricing engine: discount resolver is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingEngine{
		stores:    deps.Stores,
		settings:  deps.Settings,
		discounts: deps.Discounts,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// ComputeTotals derives the full price breakdown for the given lines. The
// same routine backs cart estimates and the order assembler, so checkout can
// never charge a total the customer was not shown.
func (e *pricingEngine) ComputeTotals(ctx context.Context, cmd ComputeTotalsCommand) (PricingResult, error) {
	settings, err := e.settings.Get(ctx)
	if err != nil {
		return PricingResult{}, fmt.Errorf("%w: load settings: %v", ErrPricingUnavailable, err)
	}

	result := PricingResult{Currency: settings.CurrencyCode}
	if len(cmd.Lines) == 0 {
		return result, nil
	}

	var subtotal int64
	storeSet := make(map[string]struct{})
	priced := make([]PricedLine, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		if line.Quantity < 1 {
			return PricingResult{}, fmt.Errorf("%w: line %s quantity must be positive", ErrPricingInvalidInput, line.LineKey)
		}
		if line.UnitPrice < 0 {
			return PricingResult{}, fmt.Errorf("%w: line %s unit price cannot be negative", ErrPricingInvalidInput, line.LineKey)
		}
		if line.UnitPrice > 0 && line.Quantity > math.MaxInt64/line.UnitPrice {
			return PricingResult{}, fmt.Errorf("%w: line %s total overflow", ErrPricingInvalidInput, line.LineKey)
		}
		lineTotal := line.UnitPrice * line.Quantity
		if subtotal > math.MaxInt64-lineTotal {
			return PricingResult{}, fmt.Errorf("%w: subtotal overflow", ErrPricingInvalidInput)
		}
		subtotal += lineTotal
		storeSet[line.StoreID] = struct{}{}
		priced = append(priced, PricedLine{
			LineKey:    line.LineKey,
			ProductID:  line.ProductID,
			StoreID:    line.StoreID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			TotalCents: lineTotal,
		})
	}

	resolution, err := e.discounts.Resolve(ctx, ResolveDiscountsCommand{
		Lines:         cmd.Lines,
		SubtotalCents: subtotal,
		UserID:        cmd.UserID,
		Code:          cmd.DiscountCode,
	})
	if err != nil {
		return PricingResult{}, err
	}
	discount := resolution.DiscountCents
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		e.logger(ctx, "pricing.discount_clamped", map[string]any{
			"subtotal": subtotal,
			"discount": discount,
		})
		discount = subtotal
	}

	fee, err := e.deliveryFee(ctx, storeSet, settings.DeliveryFeeCents)
	if err != nil {
		return PricingResult{}, err
	}

	tax := roundHalfUpBasisPoints(subtotal-discount, settings.TaxRateBasisPoints)

	total := subtotal - discount + fee + tax
	if total < 0 {
		total = 0
	}

	result.SubtotalCents = subtotal
	result.DiscountCents = discount
	result.DeliveryFeeCents = fee
	result.TaxCents = tax
	result.TotalCents = total
	result.AppliedDiscounts = resolution.Applied
	result.AvailableDiscounts = resolution.Skipped
	result.Lines = priced
	return result, nil
}

// deliveryFee charges one flat fee per order. A single-store order uses the
// store's own fee when it has one; everything else uses the global fee.
func (e *pricingEngine) deliveryFee(ctx context.Context, storeSet map[string]struct{}, globalFee int64) (int64, error) {
	if len(storeSet) != 1 {
		return globalFee, nil
	}
	var storeID string
	for id := range storeSet {
		storeID = id
	}
	if storeID == "" {
		return globalFee, nil
	}
	store, err := e.stores.FindByID(ctx, storeID)
	if err != nil {
		if isRepoNotFound(err) {
			return globalFee, nil
		}
		return 0, fmt.Errorf("%w: load store %s: %v", ErrPricingUnavailable, storeID, err)
	}
	if store.DeliveryFeeCents > 0 {
		return store.DeliveryFeeCents, nil
	}
	return globalFee, nil
}

// roundHalfUpBasisPoints computes amount × rate with half-up rounding, where
// rate is expressed in basis points (800 = 8%).
func roundHalfUpBasisPoints(amount, rateBasisPoints int64) int64 {
	if amount <= 0 || rateBasisPoints <= 0 {
		return 0
	}
	return (amount*rateBasisPoints + 5000) / 10000
}
