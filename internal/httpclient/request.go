package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// maxResponseBody caps how much of a provider response is read.
const maxResponseBody = 4 << 20

// Request builds and executes one provider call.
type Request interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string) (*Response, error)

	SetBody(body any) Request
	SetHeader(key, value string) Request
	SetHeaders(headers map[string]string) Request
	SetQueryParam(key, value string) Request
	SetQueryParams(params map[string]string) Request
	SetResult(result any) Request
}

// Response wraps http.Response with the already-read body.
type Response struct {
	*http.Response
	body    []byte
	latency time.Duration
}

// Body returns the response body.
func (r *Response) Body() []byte {
	return r.body
}

// String returns the response body as string.
func (r *Response) String() string {
	return string(r.body)
}

// Latency returns the round-trip time of the call.
func (r *Response) Latency() time.Duration {
	return r.latency
}

// IsSuccess returns true if the status code indicates success (< 400).
func (r *Response) IsSuccess() bool {
	return r.StatusCode < 400
}

type requestBuilder struct {
	client          *http.Client
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
	providerName    string
	tracer          trace.Tracer
	baseURL         string
	headers         map[string]string
	query           url.Values
	body            any
	result          any
	errorHandler    ResponseErrorHandler
	endpoint        string
	logHeaders      bool
	secrets         map[string]bool
	bodies          BodyTrace
}

// Get executes a GET request.
func (r *requestBuilder) Get(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodGet, path)
}

// Post executes a POST request.
func (r *requestBuilder) Post(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodPost, path)
}

// SetBody sets the request body (JSON encoded unless []byte, string or
// io.Reader).
func (r *requestBuilder) SetBody(body any) Request {
	r.body = body
	return r
}

// SetHeader sets a single header.
func (r *requestBuilder) SetHeader(key, value string) Request {
	r.headers[key] = value
	return r
}

// SetHeaders sets multiple headers.
func (r *requestBuilder) SetHeaders(headers map[string]string) Request {
	for k, v := range headers {
		r.SetHeader(k, v)
	}
	return r
}

// SetQueryParam sets a single query parameter. Empty values are skipped.
func (r *requestBuilder) SetQueryParam(key, value string) Request {
	if value == "" {
		return r
	}
	if r.query == nil {
		r.query = url.Values{}
	}
	r.query.Set(key, value)
	return r
}

// SetQueryParams sets multiple query parameters.
func (r *requestBuilder) SetQueryParams(params map[string]string) Request {
	for k, v := range params {
		r.SetQueryParam(k, v)
	}
	return r
}

// SetResult sets the destination for JSON decoding of a successful body.
func (r *requestBuilder) SetResult(result any) Request {
	r.result = result
	return r
}

func (r *requestBuilder) buildURL(path string) (string, error) {
	full := path
	if r.baseURL != "" && !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		full = strings.TrimSuffix(r.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", err
	}
	if len(r.query) > 0 {
		q := u.Query()
		for k, vs := range r.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (r *requestBuilder) bodyReader(span trace.Span) (io.Reader, error) {
	if r.body == nil {
		return nil, nil
	}

	var raw []byte
	switch b := r.body.(type) {
	case []byte:
		raw = b
	case string:
		raw = []byte(b)
	case io.Reader:
		return b, nil
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		raw = encoded
		if _, ok := r.headers["Content-Type"]; !ok {
			r.headers["Content-Type"] = "application/json"
		}
	}

	if r.bodies&TraceRequestBody != 0 {
		span.AddEvent("request.body", trace.WithAttributes(
			attribute.String("http.request_body", string(raw)),
		))
	}
	return bytes.NewReader(raw), nil
}

// execute performs the request. Every failure it returns is an
// *apperror.AppError attributed to the provider.
func (r *requestBuilder) execute(ctx context.Context, method, path string) (*Response, error) {
	ctx, span := r.tracer.Start(ctx, "provider.http",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("provider", r.providerName),
		),
	)
	defer span.End()

	fullURL, err := r.buildURL(path)
	if err != nil {
		return nil, r.fail(ctx, span, 0, DecodeError(r.providerName, fmt.Errorf("invalid url: %w", err)))
	}
	span.SetAttributes(attribute.String("http.url", fullURL))

	body, err := r.bodyReader(span)
	if err != nil {
		return nil, r.fail(ctx, span, 0, DecodeError(r.providerName, err))
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, r.fail(ctx, span, 0, DecodeError(r.providerName, err))
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if r.logHeaders {
		r.recordHeaders(span, req.Header)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		r.annotateTransportError(span, err)
		return nil, r.fail(ctx, span, time.Since(start), TransportError(r.providerName, err))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	resp.Body.Close()
	latency := time.Since(start)
	if err != nil {
		return nil, r.fail(ctx, span, latency, TransportError(r.providerName, err))
	}

	if r.bodies&TraceResponseBody != 0 {
		span.AddEvent("response.body", trace.WithAttributes(
			attribute.String("http.response_body", string(raw)),
		))
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	response := &Response{
		Response: resp,
		body:     raw,
		latency:  latency,
	}

	if handlerErr := r.errorHandler(resp.StatusCode, raw); handlerErr != nil {
		return response, r.fail(ctx, span, latency, handlerErr)
	}

	if r.result != nil {
		if err := json.Unmarshal(raw, r.result); err != nil {
			return response, r.fail(ctx, span, latency, DecodeError(r.providerName, err))
		}
	}

	r.recordMetrics(ctx, latency, true)
	return response, nil
}

func (r *requestBuilder) fail(ctx context.Context, span trace.Span, latency time.Duration, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.recordMetrics(ctx, latency, false)
	return err
}

func (r *requestBuilder) annotateTransportError(span trace.Span, err error) {
	var netErr net.Error
	if errors.Is(err, context.Canceled) {
		span.SetAttributes(attribute.Bool("context.cancelled", true))
	}
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		span.SetAttributes(attribute.Bool("request.timeout", true))
	}
}

func (r *requestBuilder) recordMetrics(ctx context.Context, latency time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", r.providerName),
		attribute.Bool("success", success),
	}
	if r.endpoint != "" {
		attrs = append(attrs, attribute.String("endpoint", r.endpoint))
	}

	r.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if latency > 0 {
		r.requestDuration.Record(ctx, float64(latency.Microseconds())/1000, metric.WithAttributes(attrs...))
	}
}

// recordHeaders adds request headers to the span with credentials masked.
func (r *requestBuilder) recordHeaders(span trace.Span, headers http.Header) {
	attrs := make([]attribute.KeyValue, 0, len(headers))
	for k, values := range headers {
		key := strings.ToLower(k)
		val := ""
		if len(values) > 0 {
			val = values[0]
		}
		if r.secrets[key] {
			val = "*****"
		}
		attrs = append(attrs, attribute.String("http.request.header."+key, val))
	}

	if len(attrs) > 0 {
		span.AddEvent("request.headers", trace.WithAttributes(attrs...))
	}
}
