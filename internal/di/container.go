package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freshbasket/api/internal/payments"
	"github.com/freshbasket/api/internal/platform/config"
	"github.com/freshbasket/api/internal/repositories"
	"github.com/freshbasket/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog        services.CatalogService
	Cart           services.CartService
	Pricing        services.PricingService
	Discounts      services.DiscountService
	Addresses      services.AddressService
	Orders         services.OrderService
	Reconciliation services.ReconciliationService
	Notifications  services.NotificationDispatcher
	System         services.SystemService
}

// Deps carries the infrastructure the container wires services from.
type Deps struct {
	Config        config.Config
	Registry      repositories.Registry
	Payments      *payments.Manager
	ProductImages services.ProductImageSigner
	Notifications services.NotificationPublisher
	Build         services.BuildInfo
	Clock         func() time.Time
	Logger        func(context.Context, string, map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore registry and Pub/Sub publisher, while tests can supply in-memory fakes.
func NewContainer(ctx context.Context, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment manager is required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("notification publisher is required")
	}

	svc, err := buildServices(ctx, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, deps Deps) (Services, error) {
	reg := deps.Registry
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger

	var svc Services

	discounts, err := services.NewDiscountService(services.DiscountServiceDeps{
		Discounts: reg.Discounts(),
		Usage:     reg.DiscountUsage(),
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build discount service: %w", err)
	}
	svc.Discounts = discounts

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Stores:    reg.Stores(),
		Settings:  reg.Settings(),
		Discounts: discounts,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	cart, err := services.NewCartService(services.CartServiceDeps{
		Registry: reg,
		Clock:    clock,
		Logger:   logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	notifications, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
		Publisher: deps.Notifications,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification dispatcher: %w", err)
	}
	svc.Notifications = notifications

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Registry:  reg,
		Cart:      cart,
		Pricing:   pricing,
		Discounts: discounts,
		Payments:  deps.Payments,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	reconciliation, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Registry:      reg,
		Payments:      deps.Payments,
		Notifications: notifications,
		Clock:         clock,
		Logger:        logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build reconciliation service: %w", err)
	}
	svc.Reconciliation = reconciliation

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Stores:   reg.Stores(),
		Images:   deps.ProductImages,
		Clock:    clock,
		Logger:   logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	addresses, err := services.NewAddressService(services.AddressServiceDeps{
		Addresses: reg.Addresses(),
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build address service: %w", err)
	}
	svc.Addresses = addresses

	system, err := services.NewSystemService(services.SystemServiceDeps{
		Settings: reg.Settings(),
		Health:   reg.Health(),
		Clock:    clock,
		Build:    deps.Build,
		Logger:   logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return svc, nil
}
