// Package quoting implements the quoting bounded context: provider adapters,
// their resilience guards and the best-quote router.
package quoting

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/quote-router/business/quoting/app"
	quotingDI "github.com/fd1az/quote-router/business/quoting/di"
	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/business/quoting/infra/lifi"
	"github.com/fd1az/quote-router/business/quoting/infra/oneinch"
	"github.com/fd1az/quote-router/business/quoting/infra/paraswap"
	"github.com/fd1az/quote-router/business/quoting/infra/quotecache"
	"github.com/fd1az/quote-router/business/quoting/infra/uniswap"
	"github.com/fd1az/quote-router/business/quoting/infra/zerox"
	"github.com/fd1az/quote-router/internal/asset"
	"github.com/fd1az/quote-router/internal/circuitbreaker"
	"github.com/fd1az/quote-router/internal/config"
	"github.com/fd1az/quote-router/internal/di"
	"github.com/fd1az/quote-router/internal/httpclient"
	"github.com/fd1az/quote-router/internal/logger"
	"github.com/fd1az/quote-router/internal/monolith"
	"github.com/fd1az/quote-router/internal/ratelimit"
	"github.com/fd1az/quote-router/internal/retry"
)

const redisDialTimeout = 5 * time.Second

// Module implements the quoting bounded context.
type Module struct{}

// RegisterServices registers all quoting services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Limiter (private) - one window per provider
	di.RegisterToken(c, quotingDI.Limiter, func(sr di.ServiceRegistry) *ratelimit.Limiter {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)

		perProvider := make(map[string]ratelimit.Limits, len(cfg.RateLimit))
		for name, rl := range cfg.RateLimit {
			if name == config.DefaultKey {
				continue
			}
			perProvider[name] = ratelimit.Limits{PerMinute: rl.PerMinute, PerSecond: rl.PerSecond}
		}

		opts := []ratelimit.Option{}
		if def, ok := cfg.RateLimit[config.DefaultKey]; ok {
			opts = append(opts, ratelimit.WithDefaults(ratelimit.Limits{PerMinute: def.PerMinute, PerSecond: def.PerSecond}))
		}
		return ratelimit.New(perProvider, opts...)
	})

	// Register Breakers (private) - transitions are logged and counted
	di.RegisterToken(c, quotingDI.Breakers, func(sr di.ServiceRegistry) *circuitbreaker.Registry[*domain.Quote] {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		mp := sr.Get(monolith.MeterProviderService).(metric.MeterProvider)

		observer := app.NewBreakerObserver(log, mp)
		return circuitbreaker.NewRegistry[*domain.Quote](func(name string) circuitbreaker.Config {
			b := cfg.BreakerFor(name)
			return circuitbreaker.Config{
				Name:          name,
				Threshold:     b.Threshold,
				OpenDuration:  b.OpenDuration,
				OnStateChange: observer,
			}
		})
	})

	// Register RetryPolicy (private) - shared schedule, exhausted calls are dead-lettered to the log
	di.RegisterToken(c, quotingDI.RetryPolicy, func(sr di.ServiceRegistry) *retry.Policy {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)

		return retry.New(retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Multiplier:  cfg.Retry.GrowthFactor,
			Jitter:      cfg.Retry.Jitter,
		},
			retry.WithLogger(log),
			retry.WithDeadLetter(func(ctx context.Context, err error, attempts int) error {
				log.Error(ctx, "provider call exhausted retries", "attempts", attempts, "error", err)
				return nil
			}),
		)
	})

	// Register Providers (private) - enabled adapters only
	di.RegisterToken(c, quotingDI.Providers, func(sr di.ServiceRegistry) []app.QuoteProvider {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		registry := sr.Get(monolith.AssetRegistryService).(*asset.Registry)
		mp := sr.Get(monolith.MeterProviderService).(metric.MeterProvider)

		providers, err := newProviders(cfg, registry, log, httpclient.WithMeterProvider(mp))
		if err != nil {
			panic("failed to create quote providers: " + err.Error())
		}
		return providers
	})

	// Register QuoteCache (private) - redis when configured, memory otherwise
	di.RegisterToken(c, quotingDI.QuoteCache, func(sr di.ServiceRegistry) app.QuoteCache {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)

		if cfg.Cache.Backend == "redis" {
			ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
			defer cancel()

			rc, err := quotecache.DialRedis(ctx, cfg.Cache.RedisURL, log)
			if err == nil {
				return rc
			}
			log.Warn(ctx, "redis quote cache unavailable, using memory", "error", err)
		}
		return quotecache.NewMemory(cfg.Cache.TTL)
	})

	// Register Router (public - exposed to other modules)
	di.RegisterToken(c, quotingDI.Router, func(sr di.ServiceRegistry) *app.Router {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		mp := sr.Get(monolith.MeterProviderService).(metric.MeterProvider)

		limiter := quotingDI.GetLimiter(sr)
		breakers := quotingDI.GetBreakers(sr)
		policy := quotingDI.GetRetryPolicy(sr)

		var guarded []*app.GuardedProvider
		for _, p := range quotingDI.GetProviders(sr) {
			guarded = append(guarded, app.NewGuardedProvider(p, limiter, breakers.Get(p.Name()), policy,
				app.WithAdapterTimeout(cfg.Router.AdapterTimeout),
			))
		}

		router, err := app.NewRouter(guarded, limiter, log,
			app.WithBatchDeadline(cfg.Router.BatchDeadline),
			app.WithPriority(cfg.Router.Priority),
			app.WithCache(quotingDI.GetQuoteCache(sr), cfg.Cache.TTL),
			app.WithMeterProvider(mp),
		)
		if err != nil {
			panic("failed to create router: " + err.Error())
		}
		return router
	})

	return nil
}

// Startup resolves the router and starts background cache maintenance.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	router := quotingDI.GetRouter(mono.Services())

	qc := quotingDI.GetQuoteCache(mono.Services())
	if sweeper, ok := qc.(interface {
		RunSweeper(context.Context, time.Duration)
	}); ok {
		sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		go sweeper.RunSweeper(sweepCtx, cfg.Cache.SweepInterval)
		mono.OnShutdown(func(context.Context) error {
			cancel()
			return nil
		})
	}
	if closer, ok := qc.(interface{ Close() error }); ok {
		mono.OnShutdown(func(context.Context) error {
			return closer.Close()
		})
	}

	log.Info(ctx, "quoting module started",
		"providers", router.Providers(),
		"cache_backend", fmt.Sprintf("%T", qc),
		"batch_deadline", cfg.Router.BatchDeadline.String())
	return nil
}

// newProviders builds the adapters enabled in cfg. Unknown names are a
// configuration error.
func newProviders(cfg *config.Config, registry *asset.Registry, log logger.LoggerInterface, opts ...httpclient.ClientOption) ([]app.QuoteProvider, error) {
	var providers []app.QuoteProvider
	for _, name := range cfg.EnabledProviders() {
		pc := cfg.Providers[name]

		var (
			p   app.QuoteProvider
			err error
		)
		switch name {
		case zerox.Name:
			p, err = zerox.NewProvider(zerox.Config{BaseURL: pc.BaseURL, APIKey: pc.APIKey, Chains: pc.Chains}, log, opts...)
		case oneinch.Name:
			p, err = oneinch.NewProvider(oneinch.Config{BaseURL: pc.BaseURL, APIKey: pc.APIKey, Chains: pc.Chains}, log, opts...)
		case paraswap.Name:
			p, err = paraswap.NewProvider(paraswap.Config{BaseURL: pc.BaseURL, Partner: cfg.App.Name, Chains: pc.Chains}, registry, log, opts...)
		case lifi.Name:
			p, err = lifi.NewProvider(lifi.Config{
				BaseURL:    pc.BaseURL,
				APIKey:     pc.APIKey,
				Integrator: cfg.App.Name,
				Sender:     pc.Sender,
				Chains:     pc.Chains,
			}, log, opts...)
		case uniswap.Name:
			// Dial over HTTP is lazy; the first eth_call opens the connection.
			client, dialErr := ethclient.Dial(pc.BaseURL)
			if dialErr != nil {
				return nil, fmt.Errorf("%s: failed to dial rpc: %w", name, dialErr)
			}
			p, err = uniswap.NewProvider(client, uniswap.Config{Quoter: pc.Contract, Chains: pc.Chains}, registry, log)
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}
