package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/piiderlab/api/internal/platform/config"
	pstorage "github.com/piiderlab/api/internal/platform/storage"
	"github.com/piiderlab/api/internal/repositories"
	"github.com/piiderlab/api/internal/services"
)

// Repositories bundles the persistence interfaces the services consume.
type Repositories struct {
	Users   repositories.UserRepository
	Orders  repositories.OrderRepository
	Catalog repositories.CatalogRepository
	Health  repositories.HealthRepository
}

// Infrastructure carries the optional side-effect collaborators. A nil
// Publisher disables event emission; a nil ReportSigner disables signed
// report URLs. Both degrade gracefully inside the order service.
type Infrastructure struct {
	Publisher    services.OrderEventPublisher
	ReportSigner *pstorage.Client
}

// Services is the assembled service layer handed to the HTTP handlers.
type Services struct {
	Cart     services.CartService
	Checkout services.CheckoutService
	Orders   services.OrderService
	Users    services.UserService
	Catalog  services.CatalogService
	System   services.SystemService
}

// Container owns the wired application graph.
type Container struct {
	Config   config.Config
	Services Services
}

type containerOptions struct {
	logger *zap.Logger
	clock  func() time.Time
	build  services.BuildInfo
}

// Option customises container assembly.
type Option func(*containerOptions)

// WithLogger attaches a zap logger; services receive named children.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithClock overrides the time source used by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// WithBuildInfo feeds version metadata into the system service.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// NewContainer wires repositories and infrastructure into the service layer.
// The health repository is optional; everything else is required.
func NewContainer(ctx context.Context, cfg config.Config, repos Repositories, infra Infrastructure, opts ...Option) (*Container, error) {
	if repos.Users == nil {
		return nil, errors.New("di: user repository is required")
	}
	if repos.Orders == nil {
		return nil, errors.New("di: order repository is required")
	}
	if repos.Catalog == nil {
		return nil, errors.New("di: catalog repository is required")
	}

	options := containerOptions{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	svcs, err := buildServices(cfg, repos, infra, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Services: svcs,
	}, nil
}

func buildServices(cfg config.Config, repos Repositories, infra Infrastructure, options containerOptions) (Services, error) {
	var svcs Services

	catalogService, err := services.NewCatalogService(repos.Catalog)
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svcs.Catalog = catalogService

	// The catalog prices every cart add so client-sent amounts never reach
	// an order.
	cartService, err := services.NewCartService(services.CartServiceDeps{
		Pricer: catalogService,
		Clock:  options.clock,
		Logger: zapEventLogger(options.logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svcs.Cart = cartService

	userService, err := services.NewUserService(services.UserServiceDeps{
		Repository: repos.Users,
		Clock:      options.clock,
		Logger:     zapEventLogger(options.logger.Named("users")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svcs.Users = userService

	orderDeps := services.OrderServiceDeps{
		Repository:    repos.Orders,
		Publisher:     infra.Publisher,
		ReportsBucket: cfg.Storage.ReportsBucket,
		ReportURLTTL:  cfg.Storage.ReportURLTTL,
		Clock:         options.clock,
		Logger:        zapEventLogger(options.logger.Named("orders")),
	}
	if infra.ReportSigner != nil {
		orderDeps.Signer = infra.ReportSigner
	}
	orderService, err := services.NewOrderService(orderDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svcs.Orders = orderService

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Cart:       cartService,
		Orders:     orderService,
		Profiles:   userService,
		Clock:      options.clock,
		SessionTTL: cfg.Checkout.SessionTTL,
		Logger:     zapEventLogger(options.logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svcs.Checkout = checkoutService

	if repos.Health != nil {
		systemService, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: repos.Health,
			Clock:            options.clock,
			Build:            options.build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svcs.System = systemService
	}

	return svcs, nil
}

// zapEventLogger adapts a zap logger to the event callback the services use.
func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	if logger == nil {
		return nil
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
