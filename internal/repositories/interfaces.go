package repositories

import (
	"context"
	"time"

	domain "github.com/freshbasket/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Stores() StoreRepository
	Carts() CartRepository
	AnonymousCarts() AnonymousCartRepository
	Orders() OrderRepository
	PaymentTransactions() PaymentTransactionRepository
	WebhookEvents() WebhookEventRepository
	Discounts() DiscountRepository
	DiscountUsage() DiscountUsageRepository
	Addresses() AddressRepository
	Settings() SettingsRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository reads live catalog rows and adjusts stock. Stock writes
// only happen inside a transaction started through UnitOfWork so concurrent
// checkouts re-read availability instead of trusting a stale snapshot.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// DecrementStocks re-reads every product inside the ambient transaction
	// before writing any decrement, and fails with a StockError carrying the
	// available count when a quantity exceeds live stock. Reading the whole
	// batch first keeps the transaction's reads ahead of its writes.
	DecrementStocks(ctx context.Context, quantities map[string]int64) error
	Upsert(ctx context.Context, product domain.Product) (domain.Product, error)
}

// StoreRepository reads fulfillment-origin rows.
type StoreRepository interface {
	FindByID(ctx context.Context, storeID string) (domain.Store, error)
	FindByIDs(ctx context.Context, storeIDs []string) (map[string]domain.Store, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Store], error)
}

// CartRepository owns persisted cart rows for authenticated users with
// optimistic locking on mutation.
type CartRepository interface {
	ListItems(ctx context.Context, userID string) ([]domain.CartItem, error)
	// UpsertItem inserts or replaces the row for (userID, productID). When
	// expectedUpdate is non-nil the write carries a last-update precondition
	// and fails with a conflict if another writer got there first.
	UpsertItem(ctx context.Context, item domain.CartItem, expectedUpdate *time.Time) (domain.CartItem, error)
	DeleteItem(ctx context.Context, userID string, productID string) error
	DeleteAll(ctx context.Context, userID string) error
}

// AnonymousCartRepository stores one blob document per visitor session.
type AnonymousCartRepository interface {
	// Get returns the session's cart without creating one; absence is a
	// not-found RepositoryError.
	Get(ctx context.Context, sessionID string) (domain.AnonymousCart, error)
	// Save writes the whole blob. When expectedUpdate is non-nil the write is
	// preconditioned on the stored update time.
	Save(ctx context.Context, cart domain.AnonymousCart, expectedUpdate *time.Time) (domain.AnonymousCart, error)
	Clear(ctx context.Context, sessionID string) error
}

// OrderRepository persists order aggregates and provides query helpers for
// users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	UpdateItemStatus(ctx context.Context, orderID string, itemID string, status domain.OrderItemStatus, now time.Time) (domain.Order, error)
}

// PaymentTransactionRepository stores gateway attempts underneath an order.
type PaymentTransactionRepository interface {
	Insert(ctx context.Context, txn domain.PaymentTransaction) error
	Update(ctx context.Context, txn domain.PaymentTransaction) error
	FindByID(ctx context.Context, txnID string) (domain.PaymentTransaction, error)
	FindByGatewayID(ctx context.Context, gatewayID string) (domain.PaymentTransaction, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentTransaction, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentTransaction, error)
}

// WebhookEventRepository is the first-writer-wins dedup store for gateway
// events. InsertNew must fail with a conflict when the event ID exists.
type WebhookEventRepository interface {
	InsertNew(ctx context.Context, event domain.WebhookEvent) error
	MarkProcessed(ctx context.Context, eventID string, processedAt time.Time) error
	FindByID(ctx context.Context, eventID string) (domain.WebhookEvent, error)
}

// DiscountRepository maintains discount definitions.
type DiscountRepository interface {
	Insert(ctx context.Context, discount domain.Discount) error
	Update(ctx context.Context, discount domain.Discount) error
	Delete(ctx context.Context, discountID string) error
	FindByCode(ctx context.Context, code string) (domain.Discount, error)
	ListAutoApply(ctx context.Context, now time.Time) ([]domain.Discount, error)
	List(ctx context.Context, filter DiscountListFilter) (domain.CursorPage[domain.Discount], error)
}

// DiscountUsageRepository records redemptions to enforce usage caps.
type DiscountUsageRepository interface {
	Insert(ctx context.Context, usage domain.DiscountUsage) error
	CountByDiscount(ctx context.Context, discountID string) (int64, error)
	CountByDiscountAndUser(ctx context.Context, discountID string, userID string) (int64, error)
}

// AddressRepository stores delivery addresses per user.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error)
	// Insert creates a new address joining the ambient transaction when one
	// is present. It never sweeps default flags; callers set Default only
	// when the user has no addresses yet.
	Insert(ctx context.Context, userID string, addr domain.Address) (domain.Address, error)
	Delete(ctx context.Context, userID string, addressID string) error
	FindByHash(ctx context.Context, userID string, hash string) (domain.Address, bool, error)
	HasAny(ctx context.Context, userID string) (bool, error)
	SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error)
}

// SettingsRepository reads and writes the singleton pricing configuration.
type SettingsRepository interface {
	Get(ctx context.Context) (domain.SystemSettings, error)
	Save(ctx context.Context, settings domain.SystemSettings) (domain.SystemSettings, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type ProductListFilter struct {
	StoreID    string
	CategoryID string
	Search     string
	OnlyActive bool
	Pagination domain.Pagination
}

type OrderListFilter struct {
	UserID     string
	StoreID    string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type DiscountListFilter struct {
	OnlyActive bool
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
