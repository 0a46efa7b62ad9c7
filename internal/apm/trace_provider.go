package apm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fd1az/quote-router/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
)

type Provider string

const (
	ZipkinProvider   Provider = "zipkin"
	OTLPGRPCProvider Provider = "otlp-grpc"
	OTLPHTTPProvider Provider = "otlp-http"
	ConsoleProvider  Provider = "console"
	EmptyProvider    Provider = "empty"
)

// ParseProvider maps a config string to a Provider. Unknown values map to
// EmptyProvider.
func ParseProvider(s string) Provider {
	switch p := Provider(strings.ToLower(s)); p {
	case ZipkinProvider, OTLPGRPCProvider, OTLPHTTPProvider, ConsoleProvider:
		return p
	default:
		return EmptyProvider
	}
}

type TraceProvider interface {
	Stop() error
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type TracerOptions struct {
	exporter           sdktrace.SpanExporter
	tracerProviderName string
	serviceName        string
	sampleRatio        float64
	useEmpty           bool
	err                error
}

type TracerOption func(*TracerOptions)

// WithProvider selects the span exporter. endpoint is the collector URL for
// zipkin and OTLP exporters; headers are "k=v,k2=v2".
func WithProvider(provider Provider, endpoint, headers string, log logger.LoggerInterface) TracerOption {
	switch provider {
	case ZipkinProvider:
		return useZipkin(endpoint)
	case OTLPGRPCProvider:
		return useOTLPGRPC(endpoint, parseHeaders(headers))
	case OTLPHTTPProvider:
		return useOTLPHTTP(endpoint, parseHeaders(headers))
	case ConsoleProvider:
		return useConsole()
	}

	log.Warn(context.Background(), "trace provider not configured, tracing disabled", "provider", string(provider))
	return useEmpty()
}

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) TracerOption {
	return func(option *TracerOptions) {
		option.serviceName = name
	}
}

// WithSampleRatio sets a parent-based ratio sampler. 1 samples everything.
func WithSampleRatio(ratio float64) TracerOption {
	return func(option *TracerOptions) {
		option.sampleRatio = ratio
	}
}

func useEmpty() TracerOption {
	return func(option *TracerOptions) {
		option.useEmpty = true
		option.tracerProviderName = string(EmptyProvider)
	}
}

func useZipkin(endpoint string) TracerOption {
	return func(option *TracerOptions) {
		exp, err := zipkin.New(endpoint)
		if err != nil {
			option.err = fmt.Errorf("zipkin exporter: %w", err)
			return
		}
		option.exporter = exp
		option.tracerProviderName = string(ZipkinProvider)
	}
}

func useOTLPGRPC(endpoint string, headers map[string]string) TracerOption {
	return func(option *TracerOptions) {
		exp, err := otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpointURL(endpoint),
			otlptracegrpc.WithHeaders(headers),
		)
		if err != nil {
			option.err = fmt.Errorf("otlp grpc exporter: %w", err)
			return
		}
		option.exporter = exp
		option.tracerProviderName = string(OTLPGRPCProvider)
	}
}

func useOTLPHTTP(endpoint string, headers map[string]string) TracerOption {
	return func(option *TracerOptions) {
		exp, err := otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpointURL(endpoint),
			otlptracehttp.WithHeaders(headers),
		)
		if err != nil {
			option.err = fmt.Errorf("otlp http exporter: %w", err)
			return
		}
		option.exporter = exp
		option.tracerProviderName = string(OTLPHTTPProvider)
	}
}

// parseHeaders parses "k=v,k2=v2". Malformed pairs are skipped.
func parseHeaders(s string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		headers[k] = v
	}
	return headers
}

// NewTraceProvider builds the SDK tracer provider and installs it with the
// W3C propagators.
func NewTraceProvider(log logger.LoggerInterface, options ...TracerOption) (TraceProvider, error) {
	opts := &TracerOptions{sampleRatio: 1}
	for _, opt := range options {
		opt(opts)
	}

	if opts.err != nil {
		return nil, opts.err
	}
	if opts.useEmpty || opts.exporter == nil {
		return NewEmptyTraceProvider(), nil
	}

	rsrc, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(opts.serviceName),
			attribute.String("otel.provider", opts.tracerProviderName),
		))
	if err != nil {
		log.Warn(context.Background(), "trace resource merge failed, using default", "error", err.Error())
		rsrc = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.sampleRatio))),
		sdktrace.WithBatcher(opts.exporter),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	log.Info(context.Background(), "tracing enabled", "provider", opts.tracerProviderName)

	return &traceProvider{tp}, nil
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return o.tp.Shutdown(ctx)
}

// TraceIDFromContext returns the active trace id, or "" when the context
// carries no sampled span.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
