package domain

// PricingResult captures the aggregated monetary outcome of pricing a cart.
// It is recomputed on every read and again authoritatively at checkout;
// client-submitted totals are never trusted.
type PricingResult struct {
	Currency           string
	SubtotalCents      int64
	DiscountCents      int64
	DeliveryFeeCents   int64
	TaxCents           int64
	TotalCents         int64
	AppliedDiscounts   []AppliedDiscount
	AvailableDiscounts []DiscountSummary
	Lines              []PricedLine
}

// Balanced reports whether the result satisfies the core identity
// total = subtotal - discount + fee + tax with a non-negative total.
func (r PricingResult) Balanced() bool {
	if r.TotalCents < 0 {
		return false
	}
	return r.TotalCents == r.SubtotalCents-r.DiscountCents+r.DeliveryFeeCents+r.TaxCents
}

// PricedLine stores the per-line pricing outputs after running the engine.
type PricedLine struct {
	LineKey    string
	ProductID  string
	StoreID    string
	Quantity   int64
	UnitPrice  int64
	TotalCents int64
}
