package uniswap

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/apperror"
	"github.com/fd1az/quote-router/internal/asset"
	"github.com/fd1az/quote-router/internal/logger"
)

// revertError looks like a geth execution revert.
type revertError struct{}

func (revertError) Error() string          { return "execution reverted" }
func (revertError) ErrorData() interface{} { return "0x" }

type answer struct {
	out []byte
	err error
}

// fakeCaller answers eth_calls by calldata.
type fakeCaller struct {
	mu      sync.Mutex
	answers map[string]answer
	calls   int
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	a, ok := f.answers[string(msg.Data)]
	if !ok {
		return nil, revertError{}
	}
	return a.out, a.err
}

type fixture struct {
	abi    abi.ABI
	caller *fakeCaller
	p      *Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	caller := &fakeCaller{answers: map[string]answer{}}
	p, err := NewProvider(caller, Config{}, asset.DefaultRegistry(), logger.NewDiscard())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return &fixture{abi: parsed, caller: caller, p: p}
}

// quotes registers the answer for one fee tier.
func (f *fixture) quotes(t *testing.T, exactOut bool, in, out common.Address, amount string, tier int, quoted, gas int64) {
	t.Helper()
	amt, _ := new(big.Int).SetString(amount, 10)

	method := methodExactInput
	var params any = QuoteExactInputSingleParams{TokenIn: in, TokenOut: out, AmountIn: amt, Fee: big.NewInt(int64(tier)), SqrtPriceLimitX96: big.NewInt(0)}
	if exactOut {
		method = methodExactOutput
		params = QuoteExactOutputSingleParams{TokenIn: in, TokenOut: out, Amount: amt, Fee: big.NewInt(int64(tier)), SqrtPriceLimitX96: big.NewInt(0)}
	}

	data, err := f.abi.Pack(method, params)
	if err != nil {
		t.Fatalf("pack call: %v", err)
	}
	ret, err := f.abi.Methods[method].Outputs.Pack(big.NewInt(quoted), big.NewInt(1), uint32(2), big.NewInt(gas))
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	f.caller.answers[string(data)] = answer{out: ret}
}

func request(sellAmount string) domain.QuoteRequest {
	return domain.QuoteRequest{
		SellToken:       asset.WETH.Address().Hex(),
		BuyToken:        asset.USDC.Address().Hex(),
		SellAmount:      sellAmount,
		ChainID:         asset.ChainIDEthereum,
		SlippagePercent: decimal.NewFromFloat(0.5),
	}
}

func TestProvider_BestFeeTierWins(t *testing.T) {
	f := newFixture(t)
	weth, usdc := asset.WETH.Address(), asset.USDC.Address()
	f.quotes(t, false, weth, usdc, "1000000000000000000", FeeTier005, 3_101_000_000, 110000)
	f.quotes(t, false, weth, usdc, "1000000000000000000", FeeTier030, 3_095_000_000, 120000)

	q, err := f.p.Quote(context.Background(), request("1000000000000000000"))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.BuyAmount != "3101000000" || q.SellAmount != "1000000000000000000" {
		t.Errorf("expected the 0.05%% pool, got %+v", q)
	}
	if q.EstimatedGas == nil || *q.EstimatedGas != 110000 {
		t.Errorf("unexpected gas %v", q.EstimatedGas)
	}
	if f.caller.calls != 4 {
		t.Errorf("expected one call per fee tier, got %d", f.caller.calls)
	}
}

func TestProvider_ExactOutPicksCheapestInput(t *testing.T) {
	f := newFixture(t)
	weth, usdc := asset.WETH.Address(), asset.USDC.Address()
	f.quotes(t, true, weth, usdc, "3000000000", FeeTier005, 968_000_000_000_000_000, 110000)
	f.quotes(t, true, weth, usdc, "3000000000", FeeTier030, 970_000_000_000_000_000, 120000)

	req := request("")
	req.BuyAmount = "3000000000"
	q, err := f.p.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.SellAmount != "968000000000000000" || q.BuyAmount != "3000000000" {
		t.Errorf("unexpected quote %+v", q)
	}
}

func TestProvider_NativeCoinUsesWrappedPool(t *testing.T) {
	f := newFixture(t)
	f.quotes(t, false, asset.WETH.Address(), asset.USDC.Address(), "5", FeeTier030, 15, 100000)

	req := request("5")
	req.SellToken = asset.NativeAddress.Hex()
	q, err := f.p.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.SellToken != asset.NativeAddress.Hex() || q.BuyAmount != "15" {
		t.Errorf("unexpected quote %+v", q)
	}
}

func TestProvider_Failures(t *testing.T) {
	t.Run("no_pool_is_permanent", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.p.Quote(context.Background(), request("1"))
		if apperror.GetCode(err) != apperror.CodeProviderClientError {
			t.Errorf("expected PROVIDER_CLIENT_ERROR, got %v", err)
		}
	})

	t.Run("node_failure_is_transient", func(t *testing.T) {
		p, _ := NewProvider(callerFunc(func() error { return errors.New("connection refused") }), Config{}, nil, logger.NewDiscard())
		_, err := p.Quote(context.Background(), request("1"))
		if apperror.GetCode(err) != apperror.CodeProviderError {
			t.Errorf("expected PROVIDER_ERROR, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p, _ := NewProvider(callerFunc(func() error { return context.Canceled }), Config{}, nil, logger.NewDiscard())
		_, err := p.Quote(ctx, request("1"))
		if apperror.GetCode(err) == apperror.CodeProviderClientError {
			t.Errorf("cancellation must not look like a missing pool: %v", err)
		}
	})

	t.Run("cross_chain_unsupported", func(t *testing.T) {
		f := newFixture(t)
		req := request("1")
		req.CrossChain, req.ToChainID = true, asset.ChainIDArbitrum
		_, err := f.p.Quote(context.Background(), req)
		if apperror.GetCode(err) != apperror.CodeUnsupportedRequest {
			t.Errorf("expected UNSUPPORTED_REQUEST, got %v", err)
		}
	})
}

type callerFunc func() error

func (fn callerFunc) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, fn()
}

func TestNewProvider_RejectsBadQuoter(t *testing.T) {
	if _, err := NewProvider(&fakeCaller{}, Config{Quoter: "nope"}, nil, logger.NewDiscard()); err == nil {
		t.Error("expected an error for a malformed quoter address")
	}
}
