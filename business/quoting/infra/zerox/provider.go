// Package zerox implements the 0x Swap API v2 quote provider.
package zerox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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
	Name = "0x"

	DefaultBaseURL = "https://api.0x.org"

	// The price endpoint is indicative and needs no taker; the quote
	// endpoint returns a firm, executable quote for a taker.
	priceEndpoint = "/swap/allowance-holder/price"
	quoteEndpoint = "/swap/allowance-holder/quote"

	apiVersion  = "v2"
	httpTimeout = 10 * time.Second
	tracerName  = "quoting.zerox"
)

// Config holds the 0x endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Chains  []uint64
	Timeout time.Duration
}

// Provider queries the 0x Swap API.
type Provider struct {
	client httpclient.Client
	chains []uint64
	logger logger.LoggerInterface
	tracer trace.Tracer
}

var _ app.QuoteProvider = (*Provider)(nil)

// NewProvider creates a 0x provider. Extra client options are appended to
// the defaults (tests pass a meter provider or transport).
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
		httpclient.WithHeader("0x-version", apiVersion),
		httpclient.WithAPIKey("0x-api-key", cfg.APIKey),
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

// Capabilities: same-chain, sell-amount only.
func (p *Provider) Capabilities() app.Capabilities {
	return app.Capabilities{Chains: p.chains}
}

// quoteResponse covers both the price and quote endpoints.
type quoteResponse struct {
	LiquidityAvailable *bool  `json:"liquidityAvailable"`
	BuyAmount          string `json:"buyAmount"`
	SellAmount         string `json:"sellAmount"`
	BuyToken           string `json:"buyToken"`
	SellToken          string `json:"sellToken"`
	Gas                string `json:"gas"`
	Transaction        *struct {
		Gas string `json:"gas"`
	} `json:"transaction"`
}

// Quote asks 0x for a sell-amount quote.
func (p *Provider) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	if req.Mode() != domain.ModeExactIn || req.CrossChain {
		return nil, apperror.Provider(apperror.CodeUnsupportedRequest, Name, nil)
	}

	endpoint := priceEndpoint
	if req.TakerAddress != "" {
		endpoint = quoteEndpoint
	}

	ctx, span := p.tracer.Start(ctx, "zerox.quote",
		trace.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.Int64("chain.id", int64(req.ChainID)),
		),
	)
	defer span.End()

	var result quoteResponse
	resp, err := p.client.NewRequestWithOptions(
		httpclient.WithEndpoint(endpoint),
		httpclient.WithHeaderLogging(),
	).
		SetQueryParam("chainId", strconv.FormatUint(req.ChainID, 10)).
		SetQueryParam("sellToken", req.SellToken).
		SetQueryParam("buyToken", req.BuyToken).
		SetQueryParam("sellAmount", req.SellAmount).
		SetQueryParam("taker", req.TakerAddress).
		SetQueryParam("slippageBps", slippageBps(req)).
		SetResult(&result).
		Get(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if result.LiquidityAvailable != nil && !*result.LiquidityAvailable {
		return nil, apperror.Provider(apperror.CodeProviderClientError, Name, errors.New("no liquidity"))
	}
	if result.BuyAmount == "" {
		return nil, httpclient.MissingField(Name, "buyAmount")
	}

	sellAmount := result.SellAmount
	if sellAmount == "" {
		sellAmount = req.SellAmount
	}

	q := &domain.Quote{
		Provider:     Name,
		SellToken:    req.SellToken,
		BuyToken:     req.BuyToken,
		SellAmount:   sellAmount,
		BuyAmount:    result.BuyAmount,
		EstimatedGas: result.gas(),
		Payload:      resp.Body(),
		ReceivedAt:   time.Now(),
	}

	p.logger.Debug(ctx, "0x quote received",
		"buy_amount", q.BuyAmount,
		"latency_ms", resp.Latency().Milliseconds())

	return q, nil
}

func (r *quoteResponse) gas() *uint64 {
	raw := r.Gas
	if raw == "" && r.Transaction != nil {
		raw = r.Transaction.Gas
	}
	if raw == "" {
		return nil
	}
	g, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &g
}

// slippageBps converts a percent to basis points (0.5% -> 50).
func slippageBps(req domain.QuoteRequest) string {
	return req.SlippagePercent.Shift(2).Round(0).String()
}
