// Package uniswap implements an on-chain quote provider backed by the Uniswap
// V3 QuoterV2 contract. Every fee tier is quoted and the best pool wins.
package uniswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/quote-router/business/quoting/app"
	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/apperror"
	"github.com/fd1az/quote-router/internal/asset"
	"github.com/fd1az/quote-router/internal/httpclient"
	"github.com/fd1az/quote-router/internal/logger"
)

const (
	Name = "uniswap"

	tracerName = "quoting.uniswap"
)

// Ensure Provider implements QuoteProvider.
var _ app.QuoteProvider = (*Provider)(nil)

// Config holds the quoter settings. The RPC endpoint is owned by the caller.
type Config struct {
	Quoter   string
	Chains   []uint64
	FeeTiers []int
}

// Provider quotes single-pool swaps through QuoterV2 eth_calls.
type Provider struct {
	caller    ethereum.ContractCaller
	quoter    common.Address
	quoterABI abi.ABI
	feeTiers  []int
	chains    []uint64

	registry *asset.Registry
	logger   logger.LoggerInterface
	tracer   trace.Tracer
}

// NewProvider creates a Uniswap V3 provider over caller (an *ethclient.Client
// in production).
func NewProvider(caller ethereum.ContractCaller, cfg Config, registry *asset.Registry, log logger.LoggerInterface) (*Provider, error) {
	parsedABI, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}

	quoter := cfg.Quoter
	if quoter == "" {
		quoter = DefaultQuoter
	}
	if !common.IsHexAddress(quoter) {
		return nil, fmt.Errorf("invalid quoter address %q", quoter)
	}

	tiers := cfg.FeeTiers
	if len(tiers) == 0 {
		tiers = []int{FeeTier001, FeeTier005, FeeTier030, FeeTier100}
	}
	chains := cfg.Chains
	if len(chains) == 0 {
		chains = []uint64{asset.ChainIDEthereum}
	}
	if registry == nil {
		registry = asset.DefaultRegistry()
	}

	return &Provider{
		caller:    caller,
		quoter:    common.HexToAddress(quoter),
		quoterABI: parsedABI,
		feeTiers:  tiers,
		chains:    chains,
		registry:  registry,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

func (p *Provider) Name() string {
	return Name
}

// Capabilities: the chain the RPC endpoint serves, both sides.
func (p *Provider) Capabilities() app.Capabilities {
	return app.Capabilities{Chains: p.chains, ExactOut: true}
}

// Quote asks QuoterV2 for every fee tier concurrently and keeps the best
// pool: most output for exact-in, least input for exact-out.
func (p *Provider) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	if req.CrossChain {
		return nil, apperror.Provider(apperror.CodeUnsupportedRequest, Name, nil)
	}
	amount, ok := domain.ParseAmount(req.Amount())
	if !ok {
		return nil, apperror.Provider(apperror.CodeUnsupportedRequest, Name, fmt.Errorf("amount %q", req.Amount()))
	}

	tokenIn := p.poolToken(req.ChainID, req.SellToken)
	tokenOut := p.poolToken(req.ChainID, req.BuyToken)
	exactOut := req.Mode() == domain.ModeExactOut

	ctx, span := p.tracer.Start(ctx, "uniswap.quote",
		trace.WithAttributes(
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("token_out", tokenOut.Hex()),
			attribute.String("amount", amount.String()),
			attribute.Bool("exact_out", exactOut),
		),
	)
	defer span.End()

	results := make([]*QuoteResult, len(p.feeTiers))
	errs := make([]error, len(p.feeTiers))

	var g errgroup.Group
	for i, tier := range p.feeTiers {
		g.Go(func() error {
			results[i], errs[i] = p.quoteTier(ctx, tokenIn, tokenOut, amount, tier, exactOut)
			return nil
		})
	}
	_ = g.Wait()

	var best *QuoteResult
	for i, r := range results {
		if errs[i] != nil {
			span.AddEvent("fee_tier_failed", trace.WithAttributes(
				attribute.Int("fee_tier", p.feeTiers[i]),
				attribute.String("error", errs[i].Error()),
			))
			continue
		}
		if r.Amount.Sign() <= 0 {
			continue
		}
		if best == nil || better(r, best, exactOut) {
			best = r
		}
	}

	if best == nil {
		err := p.classify(ctx, errors.Join(errs...), errs)
		span.SetStatus(codes.Error, "no pool quoted")
		span.RecordError(err)
		return nil, err
	}

	q := &domain.Quote{
		Provider:   Name,
		SellToken:  req.SellToken,
		BuyToken:   req.BuyToken,
		SellAmount: amount.String(),
		BuyAmount:  best.Amount.String(),
		ReceivedAt: time.Now(),
	}
	if exactOut {
		q.SellAmount, q.BuyAmount = best.Amount.String(), amount.String()
	}
	if best.GasEstimate != nil && best.GasEstimate.IsUint64() {
		gas := best.GasEstimate.Uint64()
		q.EstimatedGas = &gas
	}

	span.SetAttributes(
		attribute.Int("fee_tier", best.FeeTier),
		attribute.String("quoted_amount", best.Amount.String()),
	)
	span.SetStatus(codes.Ok, "quote received")

	p.logger.Debug(ctx, "uniswap quote",
		"token_in", tokenIn.Hex(),
		"token_out", tokenOut.Hex(),
		"sell_amount", q.SellAmount,
		"buy_amount", q.BuyAmount,
		"fee_tier", best.FeeTier,
	)

	return q, nil
}

func better(a, b *QuoteResult, exactOut bool) bool {
	c := a.Amount.Cmp(b.Amount)
	if exactOut {
		return c < 0
	}
	return c > 0
}

// quoteTier runs one eth_call against the quoter for a fee tier.
func (p *Provider) quoteTier(ctx context.Context, tokenIn, tokenOut common.Address, amount *big.Int, feeTier int, exactOut bool) (*QuoteResult, error) {
	method := methodExactInput
	var params any = QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amount,
		Fee:               big.NewInt(int64(feeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	}
	if exactOut {
		method = methodExactOutput
		params = QuoteExactOutputSingleParams{
			TokenIn:           tokenIn,
			TokenOut:          tokenOut,
			Amount:            amount,
			Fee:               big.NewInt(int64(feeTier)),
			SqrtPriceLimitX96: big.NewInt(0),
		}
	}

	callData, err := p.quoterABI.Pack(method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}

	result, err := p.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &p.quoter,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, err
	}

	outputs, err := p.quoterABI.Unpack(method, result)
	if err != nil {
		return nil, httpclient.DecodeError(Name, err)
	}
	if len(outputs) < 4 {
		return nil, httpclient.DecodeError(Name, fmt.Errorf("unexpected output length: %d", len(outputs)))
	}

	quoted, ok1 := outputs[0].(*big.Int)
	sqrtPrice, ok2 := outputs[1].(*big.Int)
	ticks, ok3 := outputs[2].(uint32)
	gas, ok4 := outputs[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, httpclient.DecodeError(Name, errors.New("unexpected output types"))
	}

	return &QuoteResult{
		FeeTier:                 feeTier,
		Amount:                  quoted,
		SqrtPriceX96After:       sqrtPrice,
		InitializedTicksCrossed: ticks,
		GasEstimate:             gas,
	}, nil
}

// classify maps the failure of every tier to a provider code. Reverts mean no
// usable pool and are permanent; anything else is a node problem.
func (p *Provider) classify(ctx context.Context, joined error, errs []error) error {
	if ctx.Err() != nil {
		return httpclient.TransportError(Name, ctx.Err())
	}
	if joined == nil {
		return apperror.Provider(apperror.CodeProviderClientError, Name, errors.New("every pool quoted zero"))
	}

	reverted := 0
	for _, err := range errs {
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) || apperror.GetCode(err) == apperror.CodeInvalidProviderResponse {
			reverted++
		}
	}
	if reverted == len(errs) {
		return apperror.Provider(apperror.CodeProviderClientError, Name,
			fmt.Errorf("no pool for pair: %w", joined))
	}
	return httpclient.TransportError(Name, joined)
}

// poolToken maps the native-coin placeholder to the chain's wrapped token,
// since pools only hold ERC20s.
func (p *Provider) poolToken(chainID uint64, token string) common.Address {
	addr := common.HexToAddress(token)
	if addr != asset.NativeAddress {
		return addr
	}
	if weth, ok := p.registry.GetBySymbolAndChain("WETH", chainID); ok {
		return weth.Address()
	}
	return addr
}
