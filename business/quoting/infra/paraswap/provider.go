// Package paraswap implements the ParaSwap (Velora) market API quote provider.
package paraswap

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/quote-router/business/quoting/app"
	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/apperror"
	"github.com/fd1az/quote-router/internal/asset"
	"github.com/fd1az/quote-router/internal/httpclient"
	"github.com/fd1az/quote-router/internal/logger"
)

const (
	Name = "paraswap"

	DefaultBaseURL = "https://apiv5.paraswap.io"

	pricesEndpoint = "/prices"
	apiVersion     = "6.2"

	sideSell = "SELL"
	sideBuy  = "BUY"

	httpTimeout = 10 * time.Second
	tracerName  = "quoting.paraswap"
)

// Config holds the ParaSwap endpoint settings. Partner is sent for
// attribution when set.
type Config struct {
	BaseURL string
	Partner string
	Chains  []uint64
	Timeout time.Duration
}

// Provider queries the ParaSwap price route endpoint. Token decimals come
// from the asset registry; unknown tokens are sent without them and left to
// ParaSwap's own token list.
type Provider struct {
	client   httpclient.Client
	chains   []uint64
	partner  string
	registry *asset.Registry
	logger   logger.LoggerInterface
	tracer   trace.Tracer
}

var _ app.QuoteProvider = (*Provider)(nil)

// NewProvider creates a ParaSwap provider.
func NewProvider(cfg Config, registry *asset.Registry, log logger.LoggerInterface, opts ...httpclient.ClientOption) (*Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpTimeout
	}
	if registry == nil {
		registry = asset.DefaultRegistry()
	}

	tracer := otel.Tracer(tracerName)
	client, err := httpclient.NewInstrumentedClient(append([]httpclient.ClientOption{
		httpclient.WithProviderName(Name),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTracer(tracer, httpclient.TraceResponseBody),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Provider{
		client:   client,
		chains:   cfg.Chains,
		partner:  cfg.Partner,
		registry: registry,
		logger:   log,
		tracer:   tracer,
	}, nil
}

func (p *Provider) Name() string {
	return Name
}

// Capabilities: same-chain, both sides.
func (p *Provider) Capabilities() app.Capabilities {
	return app.Capabilities{Chains: p.chains, ExactOut: true}
}

type pricesResponse struct {
	PriceRoute *struct {
		SrcAmount  string `json:"srcAmount"`
		DestAmount string `json:"destAmount"`
		GasCost    string `json:"gasCost"`
		SrcUSD     string `json:"srcUSD"`
		DestUSD    string `json:"destUSD"`
	} `json:"priceRoute"`
}

// Quote asks ParaSwap for the best price route.
func (p *Provider) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	if req.CrossChain {
		return nil, apperror.Provider(apperror.CodeUnsupportedRequest, Name, nil)
	}

	side := sideSell
	if req.Mode() == domain.ModeExactOut {
		side = sideBuy
	}

	ctx, span := p.tracer.Start(ctx, "paraswap.prices",
		trace.WithAttributes(
			attribute.String("side", side),
			attribute.Int64("chain.id", int64(req.ChainID)),
		),
	)
	defer span.End()

	var result pricesResponse
	resp, err := p.client.NewRequestWithOptions(
		httpclient.WithEndpoint("prices"),
		httpclient.WithResponseErrorHandler(errorHandler),
	).
		SetQueryParam("srcToken", req.SellToken).
		SetQueryParam("destToken", req.BuyToken).
		SetQueryParam("srcDecimals", p.decimals(req.ChainID, req.SellToken)).
		SetQueryParam("destDecimals", p.decimals(req.ChainID, req.BuyToken)).
		SetQueryParam("amount", req.Amount()).
		SetQueryParam("side", side).
		SetQueryParam("network", strconv.FormatUint(req.ChainID, 10)).
		SetQueryParam("userAddress", req.TakerAddress).
		SetQueryParam("partner", p.partner).
		SetQueryParam("version", apiVersion).
		SetResult(&result).
		Get(ctx, pricesEndpoint)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	route := result.PriceRoute
	if route == nil {
		return nil, httpclient.MissingField(Name, "priceRoute")
	}
	if route.DestAmount == "" || route.SrcAmount == "" {
		return nil, httpclient.MissingField(Name, "priceRoute amounts")
	}

	q := &domain.Quote{
		Provider:    Name,
		SellToken:   req.SellToken,
		BuyToken:    req.BuyToken,
		SellAmount:  route.SrcAmount,
		BuyAmount:   route.DestAmount,
		PriceImpact: domain.PriceImpactFromUSD(route.SrcUSD, route.DestUSD),
		Payload:     resp.Body(),
		ReceivedAt:  time.Now(),
	}
	if gas, err := strconv.ParseUint(route.GasCost, 10, 64); err == nil {
		q.EstimatedGas = &gas
	}

	p.logger.Debug(ctx, "paraswap route received",
		"side", side,
		"src_amount", q.SellAmount,
		"dest_amount", q.BuyAmount,
		"latency_ms", resp.Latency().Milliseconds())

	return q, nil
}

func (p *Provider) decimals(chainID uint64, token string) string {
	a, ok := p.registry.Lookup(chainID, common.HexToAddress(token))
	if !ok {
		return ""
	}
	return strconv.Itoa(int(a.Decimals()))
}

// errorHandler classifies by status and keeps ParaSwap's message. Some
// "no route" answers come back as 200 with only an error field; those are
// caught by the missing priceRoute check.
func errorHandler(statusCode int, body []byte) error {
	err := httpclient.StatusError(Name, statusCode, body)
	if err == nil {
		return nil
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return apperror.Provider(apperror.GetCode(err), Name,
			fmt.Errorf("status %d: %s", statusCode, apiErr.Error))
	}
	return err
}
