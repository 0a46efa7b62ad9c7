// Package httpclient provides an instrumented HTTP client for quote provider
// APIs, with OTEL tracing, request metrics and provider-aware error mapping.
package httpclient

import (
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// BodyTrace selects which payloads are recorded as span events.
type BodyTrace uint8

const (
	TraceRequestBody BodyTrace = 1 << iota
	TraceResponseBody
)

type clientConfig struct {
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	bodies        BodyTrace
	providerName  string
	baseURL       string
	timeout       time.Duration
	headers       map[string]string
	secrets       map[string]bool
}

// ClientOption configures an InstrumentedClient.
type ClientOption func(*clientConfig)

func newClientConfig(opts ...ClientOption) *clientConfig {
	cfg := &clientConfig{
		headers: make(map[string]string),
		secrets: make(map[string]bool),
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// WithMeterProvider sets the OTEL meter provider.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(c *clientConfig) {
		c.meterProvider = mp
	}
}

// WithProviderName sets the provider name used in metrics, spans and errors.
func WithProviderName(name string) ClientOption {
	return func(c *clientConfig) {
		c.providerName = name
	}
}

func WithBaseURL(url string) ClientOption {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithRequestTimeout sets the transport-level timeout. The per-call adapter
// timeout arrives through the request context and is usually shorter.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithHeader adds a default header. Empty values are ignored.
func WithHeader(key, value string) ClientOption {
	return func(c *clientConfig) {
		if value != "" {
			c.headers[key] = value
		}
	}
}

// WithAPIKey adds a credential header that is masked whenever headers are
// recorded on spans. An empty key sends nothing.
func WithAPIKey(header, key string) ClientOption {
	return func(c *clientConfig) {
		c.secrets[strings.ToLower(header)] = true
		if key != "" {
			c.headers[header] = key
		}
	}
}

// WithBearerToken is WithAPIKey for the Authorization header.
func WithBearerToken(token string) ClientOption {
	return func(c *clientConfig) {
		c.secrets["authorization"] = true
		if token != "" {
			c.headers["Authorization"] = "Bearer " + token
		}
	}
}

// WithTracer sets the tracer for request spans and the payloads to record.
func WithTracer(tracer trace.Tracer, bodies BodyTrace) ClientOption {
	return func(c *clientConfig) {
		c.tracer = tracer
		c.bodies = bodies
	}
}

// ResponseErrorHandler turns a completed response into an error, or nil.
type ResponseErrorHandler func(statusCode int, body []byte) error

type requestConfig struct {
	errorHandler ResponseErrorHandler
	endpoint     string
	logHeaders   bool
}

// RequestOption configures a single request.
type RequestOption func(*requestConfig)

// WithResponseErrorHandler overrides the default status classification.
func WithResponseErrorHandler(handler ResponseErrorHandler) RequestOption {
	return func(r *requestConfig) {
		r.errorHandler = handler
	}
}

// WithEndpoint labels the request metrics with a logical endpoint name.
func WithEndpoint(name string) RequestOption {
	return func(r *requestConfig) {
		r.endpoint = name
	}
}

// WithHeaderLogging records the request headers on the span. Credentials set
// through WithAPIKey or WithBearerToken are masked.
func WithHeaderLogging() RequestOption {
	return func(r *requestConfig) {
		r.logHeaders = true
	}
}
