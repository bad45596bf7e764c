package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/payments"
	"github.com/freshbasket/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Identity           = domain.Identity
	Product            = domain.Product
	Store              = domain.Store
	CartLineItem       = domain.CartLineItem
	PricingResult      = domain.PricingResult
	PricedLine         = domain.PricedLine
	Discount           = domain.Discount
	AppliedDiscount    = domain.AppliedDiscount
	DiscountSummary    = domain.DiscountSummary
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderItemStatus    = domain.OrderItemStatus
	PaymentTransaction = domain.PaymentTransaction
	Address            = domain.Address
	AddressSnapshot    = domain.AddressSnapshot
	SystemSettings     = domain.SystemSettings
	SystemHealthReport = domain.SystemHealthReport
	NotificationKind   = domain.NotificationKind
)

// CartService manages per-identity cart state with live catalog lookups.
type CartService interface {
	GetLineItems(ctx context.Context, identity Identity) ([]CartLineItem, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) ([]CartLineItem, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) ([]CartLineItem, error)
	RemoveItem(ctx context.Context, identity Identity, lineKey string) error
	Clear(ctx context.Context, identity Identity) error
	MergeSessionIntoUser(ctx context.Context, sessionID string, userID string) error
}

// PricingService produces the authoritative totals for a set of cart lines.
type PricingService interface {
	ComputeTotals(ctx context.Context, cmd ComputeTotalsCommand) (PricingResult, error)
}

// DiscountService evaluates discount codes and always-on promotions, and
// exposes the admin lifecycle.
type DiscountService interface {
	Resolve(ctx context.Context, cmd ResolveDiscountsCommand) (DiscountResolution, error)
	RecordUsage(ctx context.Context, cmd RecordDiscountUsageCommand) error
	ListDiscounts(ctx context.Context, filter repositories.DiscountListFilter) (domain.CursorPage[Discount], error)
	CreateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (Discount, error)
	UpdateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (Discount, error)
	DeleteDiscount(ctx context.Context, discountID string) error
}

// OrderService assembles orders from carts and drives their lifecycle.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd TransitionOrderStatusCommand) (Order, error)
	TransitionItemStatus(ctx context.Context, cmd TransitionItemStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// ReconciliationService applies verified gateway events to transactions and orders.
type ReconciliationService interface {
	HandleGatewayEvent(ctx context.Context, event payments.Event) error
	Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error)
	SweepPendingTimeouts(ctx context.Context) (int, error)
}

// NotificationDispatcher delivers fire-and-forget customer notifications.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, userID string, kind NotificationKind, payload map[string]any)
}

// CatalogService serves product and store reads plus the admin write surface.
type CatalogService interface {
	ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	SearchProducts(ctx context.Context, cmd SearchProductsCommand) (domain.CursorPage[Product], error)
	ListStores(ctx context.Context, pager Pagination) (domain.CursorPage[Store], error)
	GetStore(ctx context.Context, storeID string) (Store, error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	ProductImageURL(ctx context.Context, product Product) (string, error)
}

// AddressService manages the per-user delivery address book.
type AddressService interface {
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	GetAddress(ctx context.Context, userID string, addressID string) (Address, error)
	CreateAddress(ctx context.Context, cmd SaveAddressCommand) (Address, error)
	UpdateAddress(ctx context.Context, cmd SaveAddressCommand) (Address, error)
	DeleteAddress(ctx context.Context, userID string, addressID string) error
	SetDefaultAddress(ctx context.Context, userID string, addressID string) (Address, error)
}

// SystemService aggregates utility endpoints (health, settings).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	GetSettings(ctx context.Context) (SystemSettings, error)
	UpdateSettings(ctx context.Context, cmd UpdateSettingsCommand) (SystemSettings, error)
}

// Command and DTO definitions ------------------------------------------------

type AddCartItemCommand struct {
	Identity  Identity
	ProductID string
	Quantity  int64
}

type UpdateCartItemCommand struct {
	Identity Identity
	LineKey  string
	Quantity int64
}

type ComputeTotalsCommand struct {
	Lines        []CartLineItem
	UserID       string
	DiscountCode *string
}

type ResolveDiscountsCommand struct {
	Lines         []CartLineItem
	SubtotalCents int64
	UserID        string
	Code          *string
}

// DiscountResolution is the resolver verdict for one pricing pass.
type DiscountResolution struct {
	DiscountCents int64
	Applied       []AppliedDiscount
	Skipped       []DiscountSummary
}

type RecordDiscountUsageCommand struct {
	Applied []AppliedDiscount
	UserID  string
	OrderID string
}

type UpsertDiscountCommand struct {
	Discount Discount
	ActorID  string
}

// AddressInput is the raw delivery address supplied at checkout.
type AddressInput struct {
	Label        string
	Line1        string
	Line2        string
	City         string
	Region       string
	PostalCode   string
	Country      string
	Instructions string
}

// SaveAddressCommand creates or replaces one address book entry. AddressID is
// empty on create.
type SaveAddressCommand struct {
	UserID    string
	AddressID string
	Address   AddressInput
}

type PlaceOrderCommand struct {
	Identity       Identity
	Address        AddressInput
	AddressID      *string
	ShippingMethod string
	DiscountCode   *string
	PaymentMethod  string
}

// PlacedOrder is the assembler output: the committed order plus the gateway
// handle the client uses to collect payment.
type PlacedOrder struct {
	Order        Order
	Transaction  PaymentTransaction
	ClientSecret string
}

type GetOrderCommand struct {
	OrderID string
	// UserID scopes the read; empty means an admin caller.
	UserID string
}

type OrderListFilter = repositories.OrderListFilter

type TransitionOrderStatusCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	// TrackingCode is stamped onto the order when moving to shipped.
	TrackingCode string
	ActorID      string
	Reason       string
}

type TransitionItemStatusCommand struct {
	OrderID      string
	ItemID       string
	TargetStatus OrderItemStatus
	ActorID      string
}

type CancelOrderCommand struct {
	OrderID string
	ActorID string
	UserID  string
	Reason  string
}

type RefundOrderCommand struct {
	OrderID string
	Amount  *int64
	Reason  string
	ActorID string
}

type SearchProductsCommand struct {
	Query      string
	StoreID    string
	Pagination Pagination
}

type UpsertProductCommand struct {
	Product Product
	ActorID string
}

type UpdateSettingsCommand struct {
	Settings SystemSettings
	ActorID  string
}

// InsufficientStockError reports a line that exceeds live stock. Available is
// the quantity the customer could still order.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Clock is the injectable time source used across services.
type Clock func() time.Time
