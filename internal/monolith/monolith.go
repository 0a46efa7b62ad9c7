// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/quote-router/internal/asset"
	"github.com/fd1az/quote-router/internal/config"
	"github.com/fd1az/quote-router/internal/di"
	"github.com/fd1az/quote-router/internal/logger"
)

// Service names of the shared infrastructure registered in every container.
const (
	ConfigService        = "config"
	LoggerService        = "logger"
	AssetRegistryService = "assetRegistry"
	MeterProviderService = "meterProvider"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	AssetRegistry() *asset.Registry
	Services() di.ServiceRegistry
	// OnShutdown registers a hook run by Close in reverse order.
	OnShutdown(fn func(context.Context) error)
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// Option customizes the container.
type Option func(*App)

// WithMeterProvider registers the meter provider modules record metrics on.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *App) {
		a.meterProvider = mp
	}
}

// WithAssetRegistry replaces the default token registry.
func WithAssetRegistry(r *asset.Registry) Option {
	return func(a *App) {
		a.assetRegistry = r
	}
}

// App implements the Monolith interface.
type App struct {
	config        *config.Config
	logger        logger.LoggerInterface
	assetRegistry *asset.Registry
	meterProvider metric.MeterProvider
	container     di.Container
	shutdown      []func(context.Context) error
}

// New creates a new Monolith instance.
func New(cfg *config.Config, log logger.LoggerInterface, opts ...Option) *App {
	a := &App{
		config:        cfg,
		logger:        log,
		assetRegistry: asset.DefaultRegistry(),
		meterProvider: otel.GetMeterProvider(),
		container:     di.NewContainer(),
	}
	for _, opt := range opts {
		opt(a)
	}

	// Register global services
	a.container.Register(ConfigService, cfg)
	a.container.Register(LoggerService, log)
	a.container.Register(AssetRegistryService, a.assetRegistry)
	a.container.Register(MeterProviderService, a.meterProvider)

	return a
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *App) AssetRegistry() *asset.Registry {
	return a.assetRegistry
}

func (a *App) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *App) Container() di.Container {
	return a.container
}

func (a *App) OnShutdown(fn func(context.Context) error) {
	a.shutdown = append(a.shutdown, fn)
}

// RegisterModules registers all provided modules.
func (a *App) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *App) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close runs the shutdown hooks, last registered first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.shutdown = nil
	return errors.Join(errs...)
}
