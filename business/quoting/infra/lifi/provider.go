// Package lifi implements the LI.FI quote provider, the only cross-chain
// capable aggregator.
package lifi

import (
	"context"
	"encoding/json"
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
	Name = "lifi"

	DefaultBaseURL = "https://li.quest"

	// DefaultSender is used as fromAddress for indicative quotes. LI.FI
	// requires one even when nothing will be executed.
	DefaultSender = "0x0000000000000000000000000000000000000001"

	quoteEndpoint         = "/v1/quote"
	quoteToAmountEndpoint = "/v1/quote/toAmount"

	httpTimeout = 15 * time.Second
	tracerName  = "quoting.lifi"
)

// Config holds the LI.FI endpoint settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Integrator string
	Sender     string
	Chains     []uint64
	Timeout    time.Duration
}

// Provider queries the LI.FI quote endpoints.
type Provider struct {
	client     httpclient.Client
	chains     []uint64
	sender     string
	integrator string
	logger     logger.LoggerInterface
	tracer     trace.Tracer
}

var _ app.QuoteProvider = (*Provider)(nil)

// NewProvider creates a LI.FI provider.
func NewProvider(cfg Config, log logger.LoggerInterface, opts ...httpclient.ClientOption) (*Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpTimeout
	}
	sender := cfg.Sender
	if sender == "" {
		sender = DefaultSender
	}

	tracer := otel.Tracer(tracerName)
	client, err := httpclient.NewInstrumentedClient(append([]httpclient.ClientOption{
		httpclient.WithProviderName(Name),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTracer(tracer, httpclient.TraceResponseBody),
		httpclient.WithAPIKey("x-lifi-api-key", cfg.APIKey),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Provider{
		client:     client,
		chains:     cfg.Chains,
		sender:     sender,
		integrator: cfg.Integrator,
		logger:     log,
		tracer:     tracer,
	}, nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Capabilities() app.Capabilities {
	return app.Capabilities{Chains: p.chains, CrossChain: true, ExactOut: true}
}

type quoteResponse struct {
	Tool     string `json:"tool"`
	Estimate *struct {
		FromAmount    string `json:"fromAmount"`
		ToAmount      string `json:"toAmount"`
		FromAmountUSD string `json:"fromAmountUSD"`
		ToAmountUSD   string `json:"toAmountUSD"`
		GasCosts      []struct {
			Estimate string `json:"estimate"`
		} `json:"gasCosts"`
	} `json:"estimate"`
}

// Quote asks LI.FI for a same-chain or bridged quote.
func (p *Provider) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	endpoint, amountParam := quoteEndpoint, "fromAmount"
	if req.Mode() == domain.ModeExactOut {
		endpoint, amountParam = quoteToAmountEndpoint, "toAmount"
	}

	from := req.TakerAddress
	if from == "" {
		from = p.sender
	}

	ctx, span := p.tracer.Start(ctx, "lifi.quote",
		trace.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.Int64("chain.from", int64(req.ChainID)),
			attribute.Int64("chain.to", int64(req.DestinationChain())),
		),
	)
	defer span.End()

	var result quoteResponse
	resp, err := p.client.NewRequestWithOptions(
		httpclient.WithEndpoint(endpoint),
		httpclient.WithResponseErrorHandler(errorHandler),
		httpclient.WithHeaderLogging(),
	).
		SetQueryParam("fromChain", strconv.FormatUint(req.ChainID, 10)).
		SetQueryParam("toChain", strconv.FormatUint(req.DestinationChain(), 10)).
		SetQueryParam("fromToken", req.SellToken).
		SetQueryParam("toToken", req.BuyToken).
		SetQueryParam(amountParam, req.Amount()).
		SetQueryParam("fromAddress", from).
		SetQueryParam("slippage", req.SlippageFraction().String()).
		SetQueryParam("integrator", p.integrator).
		SetResult(&result).
		Get(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	est := result.Estimate
	if est == nil {
		return nil, httpclient.MissingField(Name, "estimate")
	}
	if est.ToAmount == "" || est.FromAmount == "" {
		return nil, httpclient.MissingField(Name, "estimate amounts")
	}

	q := &domain.Quote{
		Provider:     Name,
		SellToken:    req.SellToken,
		BuyToken:     req.BuyToken,
		SellAmount:   est.FromAmount,
		BuyAmount:    est.ToAmount,
		EstimatedGas: result.gas(),
		PriceImpact:  domain.PriceImpactFromUSD(est.FromAmountUSD, est.ToAmountUSD),
		Payload:      resp.Body(),
		ReceivedAt:   time.Now(),
	}

	p.logger.Debug(ctx, "lifi quote received",
		"tool", result.Tool,
		"cross_chain", req.CrossChain,
		"to_amount", q.BuyAmount,
		"latency_ms", resp.Latency().Milliseconds())

	return q, nil
}

// gas sums every step's estimate; a bridged route reports one per step.
func (r *quoteResponse) gas() *uint64 {
	var total uint64
	for _, c := range r.Estimate.GasCosts {
		g, err := strconv.ParseUint(c.Estimate, 10, 64)
		if err != nil {
			continue
		}
		total += g
	}
	if total == 0 {
		return nil
	}
	return &total
}

// errorHandler keeps LI.FI's message and numeric code in the cause.
func errorHandler(statusCode int, body []byte) error {
	err := httpclient.StatusError(Name, statusCode, body)
	if err == nil {
		return nil
	}
	var apiErr struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		return apperror.Provider(apperror.GetCode(err), Name,
			fmt.Errorf("status %d: code %d: %s", statusCode, apiErr.Code, apiErr.Message))
	}
	return err
}
