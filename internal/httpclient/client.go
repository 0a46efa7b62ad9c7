package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Connection pool settings. Aggregator APIs are few hosts with bursty
	// fan-out, so keep a small warm pool per host.
	defaultDialKeepAlive         = 30 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultRequestTimeout        = 10 * time.Second
	defaultMaxIdleConnsPerHost   = 4
	defaultMaxConnsPerHost       = 8
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 3 * time.Second
	defaultExpectContinueTimeout = 100 * time.Millisecond

	metricRequestCounter  = "http_client_requests_total"
	metricRequestDuration = "http_client_request_duration_ms"
)

// Client is the interface adapters use to reach a provider.
type Client interface {
	// NewRequest creates a new request with default options.
	NewRequest() Request
	// NewRequestWithOptions creates a new request with custom options.
	NewRequestWithOptions(opts ...RequestOption) Request
	// ProviderName returns the provider this client talks to.
	ProviderName() string
}

// InstrumentedClient wraps http.Client with OTEL instrumentation.
type InstrumentedClient struct {
	client          *http.Client
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
	providerName    string
	tracer          trace.Tracer
	bodies          BodyTrace
	baseURL         string
	defaultHeaders  map[string]string
	secrets         map[string]bool
}

// NewInstrumentedClient creates a new instrumented HTTP client.
func NewInstrumentedClient(opts ...ClientOption) (*InstrumentedClient, error) {
	cfg := newClientConfig(opts...)

	timeout := cfg.timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:       defaultMaxConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
		ForceAttemptHTTP2:     true,
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(
			transport,
			otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
				return otelhttptrace.NewClientTrace(ctx)
			}),
		),
	}

	providerName := cfg.providerName
	if providerName == "" {
		providerName = "default"
	}

	meterProvider := cfg.meterProvider
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}

	meter := meterProvider.Meter(
		"quote_provider_http_client",
		metric.WithInstrumentationAttributes(attribute.String("provider", providerName)),
	)

	requestCounter, err := meter.Int64Counter(
		metricRequestCounter,
		metric.WithDescription("Total number of provider HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		metricRequestDuration,
		metric.WithDescription("Provider HTTP request latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	tracer := cfg.tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer("quote_provider_http_client")
	}

	return &InstrumentedClient{
		client:          httpClient,
		requestCounter:  requestCounter,
		requestDuration: requestDuration,
		providerName:    providerName,
		tracer:          tracer,
		bodies:          cfg.bodies,
		baseURL:         cfg.baseURL,
		defaultHeaders:  cfg.headers,
		secrets:         cfg.secrets,
	}, nil
}

// ProviderName returns the provider this client talks to.
func (c *InstrumentedClient) ProviderName() string {
	return c.providerName
}

// NewRequest creates a new request builder with default options.
func (c *InstrumentedClient) NewRequest() Request {
	return c.NewRequestWithOptions()
}

// NewRequestWithOptions creates a new request builder with custom options.
func (c *InstrumentedClient) NewRequestWithOptions(opts ...RequestOption) Request {
	rc := &requestConfig{}
	for _, o := range opts {
		o(rc)
	}

	errorHandler := rc.errorHandler
	if errorHandler == nil {
		provider := c.providerName
		errorHandler = func(statusCode int, body []byte) error {
			return StatusError(provider, statusCode, body)
		}
	}

	var secrets map[string]bool
	if rc.logHeaders {
		secrets = c.secrets
	}

	return &requestBuilder{
		client:          c.client,
		requestCounter:  c.requestCounter,
		requestDuration: c.requestDuration,
		providerName:    c.providerName,
		tracer:          c.tracer,
		baseURL:         c.baseURL,
		headers:         copyHeaders(c.defaultHeaders),
		errorHandler:    errorHandler,
		endpoint:        rc.endpoint,
		logHeaders:      rc.logHeaders,
		secrets:         secrets,
		bodies:          c.bodies,
	}
}

func copyHeaders(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
