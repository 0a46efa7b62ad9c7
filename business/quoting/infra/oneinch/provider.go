// Package oneinch implements the 1inch Swap API v6 quote provider.
package oneinch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/quote-router/business/quoting/app"
	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/apperror"
	"github.com/fd1az/quote-router/internal/httpclient"
	"github.com/fd1az/quote-router/internal/logger"
)

const (
	Name = "1inch"

	DefaultBaseURL = "https://api.1inch.dev"

	httpTimeout = 10 * time.Second
	tracerName  = "quoting.oneinch"
)

// Config holds the 1inch endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Chains  []uint64
	Timeout time.Duration
}

// Provider queries the 1inch classic swap quote endpoint.
type Provider struct {
	client httpclient.Client
	chains []uint64
	logger logger.LoggerInterface
	tracer trace.Tracer
}

var _ app.QuoteProvider = (*Provider)(nil)

// NewProvider creates a 1inch provider.
func NewProvider(cfg Config, log logger.LoggerInterface, opts ...httpclient.ClientOption) (*Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpTimeout
	}

	tracer := otel.Tracer(tracerName)
	client, err := httpclient.NewInstrumentedClient(append([]httpclient.ClientOption{
		httpclient.WithProviderName(Name),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTracer(tracer, httpclient.TraceResponseBody),
		httpclient.WithBearerToken(cfg.APIKey),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Provider{
		client: client,
		chains: cfg.Chains,
		logger: log,
		tracer: tracer,
	}, nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Capabilities() app.Capabilities {
	return app.Capabilities{Chains: p.chains}
}

type quoteResponse struct {
	DstAmount string `json:"dstAmount"`
	Gas       uint64 `json:"gas"`
}

// apiError is the 1inch error body.
type apiError struct {
	Error       string `json:"error"`
	Description string `json:"description"`
	StatusCode  int    `json:"statusCode"`
}

// Quote asks 1inch for a sell-amount quote.
func (p *Provider) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	if req.Mode() != domain.ModeExactIn || req.CrossChain {
		return nil, apperror.Provider(apperror.CodeUnsupportedRequest, Name, nil)
	}

	path := fmt.Sprintf("/swap/v6.0/%d/quote", req.ChainID)

	ctx, span := p.tracer.Start(ctx, "oneinch.quote",
		trace.WithAttributes(attribute.Int64("chain.id", int64(req.ChainID))),
	)
	defer span.End()

	var result quoteResponse
	resp, err := p.client.NewRequestWithOptions(
		httpclient.WithEndpoint("quote"),
		httpclient.WithResponseErrorHandler(errorHandler),
	).
		SetQueryParam("src", req.SellToken).
		SetQueryParam("dst", req.BuyToken).
		SetQueryParam("amount", req.SellAmount).
		SetQueryParam("includeGas", "true").
		SetResult(&result).
		Get(ctx, path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if result.DstAmount == "" {
		return nil, httpclient.MissingField(Name, "dstAmount")
	}

	q := &domain.Quote{
		Provider:   Name,
		SellToken:  req.SellToken,
		BuyToken:   req.BuyToken,
		SellAmount: req.SellAmount,
		BuyAmount:  result.DstAmount,
		Payload:    resp.Body(),
		ReceivedAt: time.Now(),
	}
	if result.Gas > 0 {
		gas := result.Gas
		q.EstimatedGas = &gas
	}

	p.logger.Debug(ctx, "1inch quote received",
		"buy_amount", q.BuyAmount,
		"latency_ms", resp.Latency().Milliseconds())

	return q, nil
}

// errorHandler keeps the status classification and adds the API's own
// description to the cause.
func errorHandler(statusCode int, body []byte) error {
	err := httpclient.StatusError(Name, statusCode, body)
	if err == nil {
		return nil
	}
	var apiErr apiError
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Description != "" {
		return apperror.Provider(apperror.GetCode(err), Name,
			fmt.Errorf("status %d: %s: %s", statusCode, apiErr.Error, apiErr.Description))
	}
	return err
}
