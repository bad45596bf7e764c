package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Identity pins a cart or order operation to exactly one owner: an
// authenticated user or an anonymous visitor session. Callers must set one
// of the two fields and leave the other empty.
type Identity struct {
	UserID    string
	SessionID string
}

// IsUser reports whether the identity belongs to an authenticated user.
func (i Identity) IsUser() bool { return i.UserID != "" }

// IsAnonymous reports whether the identity belongs to a visitor session.
func (i Identity) IsAnonymous() bool { return i.UserID == "" && i.SessionID != "" }

// Valid reports whether exactly one identity dimension is populated.
func (i Identity) Valid() bool {
	return (i.UserID != "") != (i.SessionID != "")
}

// Product is a sellable catalog entry. PriceCents and Stock are the live
// values every cart read and checkout re-reads; carts never cache them.
type Product struct {
	ID          string
	StoreID     string
	CategoryID  string
	Name        string
	Description string
	PriceCents  int64
	Stock       int64
	ImagePath   string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Sellable reports whether the product may appear on a cart line.
func (p Product) Sellable() bool { return p.Active }

// Store is a fulfillment origin. DeliveryFeeCents of zero means the store
// inherits the global fee from SystemSettings.
type Store struct {
	ID               string
	Name             string
	Description      string
	DeliveryFeeCents int64
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CartItem is a persisted cart row for an authenticated user. Quantity is the
// only mutable field; price is resolved live at read time.
type CartItem struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int64
	AddedAt   time.Time
	UpdatedAt time.Time
}

// AnonymousCartEntry is one line inside an anonymous cart blob.
type AnonymousCartEntry struct {
	ProductID string
	Quantity  int64
	AddedAt   time.Time
}

// AnonymousCart holds a visitor session's cart as a single document. It is
// created lazily on the first mutation and never expires on its own.
type AnonymousCart struct {
	SessionID string
	Entries   []AnonymousCartEntry
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLineItem is the unified, transient view of one cart line regardless of
// backend. LineKey is the stable handle update/remove operations accept.
type CartLineItem struct {
	LineKey    string
	ProductID  string
	StoreID    string
	CategoryID string
	Name       string
	Quantity   int64
	UnitPrice  int64
	AddedAt    time.Time
}

// LineTotal returns quantity times unit price.
func (l CartLineItem) LineTotal() int64 { return l.UnitPrice * l.Quantity }

// DiscountKind enumerates how a discount value is interpreted.
type DiscountKind string

const (
	// DiscountKindPercentage treats Value as basis points of the subtotal.
	DiscountKindPercentage DiscountKind = "percentage"
	// DiscountKindFixed treats Value as an absolute amount in cents.
	DiscountKindFixed DiscountKind = "fixed"
)

// Discount is a promotion rule. AutoApply discounts attach without a code;
// coded discounts require the customer to supply Code.
type Discount struct {
	ID             string
	Code           string
	Kind           DiscountKind
	Value          int64
	MinOrderCents  int64
	MaxUses        int64
	MaxUsesPerUser int64
	AutoApply      bool
	StartsAt       *time.Time
	ExpiresAt      *time.Time
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ActiveAt reports whether the discount window covers the given instant.
func (d Discount) ActiveAt(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.ExpiresAt != nil && !now.Before(*d.ExpiresAt) {
		return false
	}
	return true
}

// DiscountUsage records one redemption of a discount against an order.
type DiscountUsage struct {
	ID         string
	DiscountID string
	UserID     string
	OrderID    string
	UsedAt     time.Time
}

// AppliedDiscount is one discount that contributed to a pricing result.
type AppliedDiscount struct {
	DiscountID string
	Code       string
	Kind       DiscountKind
	Amount     int64
}

// DiscountSummary describes a discount that was evaluated but not applied,
// with the reason it did not attach.
type DiscountSummary struct {
	DiscountID string
	Code       string
	Reason     string
}

// OrderStatus is the coarse order lifecycle driven by payment events and
// fulfillment milestones.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// OrderItemStatus is the per-item fulfillment lifecycle. Items from different
// stores progress independently.
type OrderItemStatus string

const (
	OrderItemStatusPending   OrderItemStatus = "pending"
	OrderItemStatusReady     OrderItemStatus = "ready"
	OrderItemStatusCollected OrderItemStatus = "collected"
	OrderItemStatusPackaged  OrderItemStatus = "packaged"
	OrderItemStatusShipped   OrderItemStatus = "shipped"
	OrderItemStatusDelivered OrderItemStatus = "delivered"
)

// Order is the aggregate root produced by checkout. Monetary fields are
// captured at placement time and never recomputed from the catalog.
type Order struct {
	ID               string
	OrderNumber      string
	UserID           string
	PrimaryStoreID   string
	AddressID        string
	Status           OrderStatus
	SubtotalCents    int64
	DiscountCents    int64
	DeliveryFeeCents int64
	TaxCents         int64
	TotalCents       int64
	Currency         string
	DeliveryAddress  AddressSnapshot
	ShippingMethod   string
	TrackingCode     string
	PaymentFailed    bool
	Items            []OrderItem
	PlacedAt         time.Time
	ConfirmedAt      *time.Time
	ShippedAt        *time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
	UpdatedAt        time.Time
}

// OrderItem is one purchased line. StoreID on the item is authoritative for
// per-store fulfillment; the order's PrimaryStoreID is informational.
type OrderItem struct {
	ID              string
	OrderID         string
	ProductID       string
	StoreID         string
	ProductName     string
	Quantity        int64
	UnitPriceCents  int64
	TotalPriceCents int64
	Status          OrderItemStatus
}

// PaymentTransactionStatus enumerates gateway settlement states.
type PaymentTransactionStatus string

const (
	PaymentStatusPending   PaymentTransactionStatus = "pending"
	PaymentStatusCompleted PaymentTransactionStatus = "completed"
	PaymentStatusFailed    PaymentTransactionStatus = "failed"
	PaymentStatusRefunded  PaymentTransactionStatus = "refunded"
)

// PaymentTransaction tracks one gateway attempt for an order. An order may
// accumulate several over retries and refunds.
type PaymentTransaction struct {
	ID                string
	OrderID           string
	AmountCents       int64
	Currency          string
	Method            string
	GatewayID         string
	Status            PaymentTransactionStatus
	FailureReason     string
	TimeoutNotifiedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WebhookEvent is the dedup record for gateway-pushed events. The ID is the
// gateway's own event identifier so replays collide on write.
type WebhookEvent struct {
	ID             string
	Provider       string
	Kind           string
	TransactionRef string
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
}

// AddressSnapshot is the delivery address copied onto an order at placement.
type AddressSnapshot struct {
	Label        string
	Line1        string
	Line2        string
	City         string
	Region       string
	PostalCode   string
	Country      string
	Instructions string
}

// Address is a saved customer delivery address. Hash fingerprints the
// normalized fields so checkout can reuse an existing match.
type Address struct {
	ID           string
	UserID       string
	Label        string
	Line1        string
	Line2        string
	City         string
	Region       string
	PostalCode   string
	Country      string
	Instructions string
	Default      bool
	Hash         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Fingerprint derives the normalized hash used to deduplicate addresses.
// Label and instructions do not participate so relabeling a saved address
// never forks a duplicate record.
func (a Address) Fingerprint() string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(a.Line1)),
		strings.ToLower(strings.TrimSpace(a.Line2)),
		strings.ToLower(strings.TrimSpace(a.City)),
		strings.ToLower(strings.TrimSpace(a.Region)),
		strings.ToLower(strings.TrimSpace(a.PostalCode)),
		strings.ToLower(strings.TrimSpace(a.Country)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// SystemSettings is the singleton pricing configuration document.
// TaxRateBasisPoints of 800 means 8%.
type SystemSettings struct {
	DeliveryFeeCents   int64
	TaxRateBasisPoints int64
	MaxLineQuantity    int64
	CurrencyCode       string
	PaymentTimeout     time.Duration
	UpdatedAt          time.Time
}

// NotificationKind names the templates the dispatcher can address.
type NotificationKind string

const (
	NotificationOrderConfirmed NotificationKind = "order_confirmed"
	NotificationPaymentFailed  NotificationKind = "payment_failed"
	NotificationOrderRefunded  NotificationKind = "order_refunded"
	NotificationPaymentTimeout NotificationKind = "payment_timeout"
)

// CursorPage wraps a page of results together with the token for the next
// request, empty when exhausted.
type CursorPage[T any] struct {
	Items      []T
	NextCursor string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Pagination carries cursor-based paging inputs for list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery bounds a field between optional inclusive endpoints.
type RangeQuery[T any] struct {
	From *T
	To   *T
}
