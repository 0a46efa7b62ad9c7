// Package main is the entry point for the DEX quote router.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/quote-router/business/quoting"
	"github.com/fd1az/quote-router/business/quoting/app"
	quotingDI "github.com/fd1az/quote-router/business/quoting/di"
	"github.com/fd1az/quote-router/internal/apm"
	"github.com/fd1az/quote-router/internal/config"
	"github.com/fd1az/quote-router/internal/health"
	"github.com/fd1az/quote-router/internal/logger"
	"github.com/fd1az/quote-router/internal/metrics"
	"github.com/fd1az/quote-router/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	qf := registerQuoteFlags(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("quote-router %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	serve := flag.Arg(0) == "serve"
	if err := run(ctx, *configPath, serve, qf); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  router [-config file] serve
  router [-config file] -sell WETH -buy USDC -sell-amount 1000000000000000000 [-chain 1]

flags:
`)
	flag.PrintDefaults()
}

func run(ctx context.Context, configPath string, serve bool, qf *quoteFlags) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Logs always go to stderr; stdout carries the quote in one-shot mode.
	log := logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, apm.TraceIDFromContext)
	log.Info(ctx, "starting quote router",
		"version", version,
		"environment", cfg.App.Environment,
		"serve", serve,
	)

	traceProvider := apm.NewEmptyTraceProvider()
	if cfg.Telemetry.Enabled {
		tp, err := apm.NewTraceProvider(log,
			apm.WithProvider(apm.ParseProvider(cfg.Telemetry.Exporter), cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.OTLPHeaders, log),
			apm.WithServiceName(cfg.Telemetry.ServiceName),
			apm.WithSampleRatio(cfg.Telemetry.SampleRatio),
		)
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		traceProvider = tp
		log.Info(ctx, "tracing initialized", "exporter", cfg.Telemetry.Exporter, "endpoint", cfg.Telemetry.OTLPEndpoint)
	}
	defer traceProvider.Stop()

	meterProvider, err := newMeterProvider(cfg, serve)
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer meterProvider.Shutdown(context.WithoutCancel(ctx))

	mono := monolith.New(cfg, log, monolith.WithMeterProvider(meterProvider))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := mono.Close(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "shutdown hooks failed", "error", err)
		}
	}()

	modules := []monolith.Module{
		&quoting.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	router := quotingDI.GetRouter(mono.Services())

	if serve {
		return runServer(ctx, cfg, router, log)
	}
	return runQuote(ctx, os.Stdout, mono.AssetRegistry(), router, qf)
}

// newMeterProvider always installs a provider so instruments are real; the
// Prometheus reader is added in serve mode, the OTLP reader when telemetry is
// enabled.
func newMeterProvider(cfg *config.Config, serve bool) (metrics.MetricProvider, error) {
	opts := []metrics.OptionFn{metrics.WithServiceName(cfg.Telemetry.ServiceName)}
	if serve {
		opts = append(opts, metrics.WithProviderConfig(metrics.NewPrometheusConfig()))
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.OTLPEndpoint != "" {
		opts = append(opts, metrics.WithProviderConfig(
			metrics.NewOtelCollectorConfig(cfg.Telemetry.OTLPEndpoint, nil, metrics.InsecureOtel),
		))
	}
	return metrics.NewMetricProvider(opts...)
}

func runServer(ctx context.Context, cfg *config.Config, router *app.Router, log logger.LoggerInterface) error {
	srv := newHealthServer(cfg.Health.Port, router, log)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}

	log.Info(ctx, "quote router ready", "providers", router.Providers(), "port", cfg.Health.Port)
	<-ctx.Done()
	log.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to stop health server: %w", err)
	}
	return nil
}

// newHealthServer exposes /health, /ready, /live, /stats and /metrics. The
// router is healthy while at least one provider breaker admits calls.
func newHealthServer(port int, router *app.Router, log logger.LoggerInterface) *health.Server {
	srv := health.NewServer(port, version, log)

	srv.RegisterCheck("providers", func(ctx context.Context) (bool, string) {
		stats := router.Stats()
		open := 0
		for _, s := range stats {
			if s.Breaker.State == gobreaker.StateOpen.String() {
				open++
			}
		}
		if open == len(stats) {
			return false, fmt.Sprintf("all %d provider circuits open", open)
		}
		return true, fmt.Sprintf("%d/%d provider circuits admitting calls", len(stats)-open, len(stats))
	})
	srv.RegisterStats("providers", func(ctx context.Context) any {
		return router.Stats()
	})
	srv.Handle("/metrics", metrics.Handler())

	return srv
}
