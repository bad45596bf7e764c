package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/freshbasket/api/internal/platform/firestore"
	"github.com/freshbasket/api/internal/repositories"
)

// Registry bundles every Firestore-backed repository behind the
// repositories.Registry interface and provides the transactional boundary
// used by the order assembler.
type Registry struct {
	provider *pfirestore.Provider

	products     *ProductRepository
	stores       *StoreRepository
	carts        *CartRepository
	anonCarts    *AnonymousCartRepository
	orders       *OrderRepository
	transactions *PaymentTransactionRepository
	webhooks     *WebhookEventRepository
	discounts    *DiscountRepository
	usage        *DiscountUsageRepository
	addresses    *AddressRepository
	settings     *SettingsRepository
	counters     *CounterRepository
	health       repositories.HealthRepository
}

// NewRegistry builds the full repository set on top of a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	stores, err := NewStoreRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	anonCarts, err := NewAnonymousCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	transactions, err := NewPaymentTransactionRepository(provider)
	if err != nil {
		return nil, err
	}
	webhooks, err := NewWebhookEventRepository(provider)
	if err != nil {
		return nil, err
	}
	discounts, err := NewDiscountRepository(provider)
	if err != nil {
		return nil, err
	}
	usage, err := NewDiscountUsageRepository(provider)
	if err != nil {
		return nil, err
	}
	addresses, err := NewAddressRepository(provider)
	if err != nil {
		return nil, err
	}
	settings, err := NewSettingsRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:     provider,
		products:     products,
		stores:       stores,
		carts:        carts,
		anonCarts:    anonCarts,
		orders:       orders,
		transactions: transactions,
		webhooks:     webhooks,
		discounts:    discounts,
		usage:        usage,
		addresses:    addresses,
		settings:     settings,
		counters:     counters,
		health:       health,
	}, nil
}

func (r *Registry) Products() repositories.ProductRepository       { return r.products }
func (r *Registry) Stores() repositories.StoreRepository           { return r.stores }
func (r *Registry) Carts() repositories.CartRepository             { return r.carts }
func (r *Registry) AnonymousCarts() repositories.AnonymousCartRepository {
	return r.anonCarts
}
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) PaymentTransactions() repositories.PaymentTransactionRepository {
	return r.transactions
}
func (r *Registry) WebhookEvents() repositories.WebhookEventRepository { return r.webhooks }
func (r *Registry) Discounts() repositories.DiscountRepository         { return r.discounts }
func (r *Registry) DiscountUsage() repositories.DiscountUsageRepository {
	return r.usage
}
func (r *Registry) Addresses() repositories.AddressRepository { return r.addresses }
func (r *Registry) Settings() repositories.SettingsRepository { return r.settings }
func (r *Registry) Counters() repositories.CounterRepository  { return r.counters }
func (r *Registry) Health() repositories.HealthRepository     { return r.health }

// RunInTx executes fn inside a single Firestore transaction. Repository
// methods invoked with the returned context join the transaction, so all
// reads must happen before the first write.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if pfirestore.TxFromContext(ctx) != nil {
		// Already transactional, do not nest.
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.ContextWithTx(ctx, tx))
	})
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
