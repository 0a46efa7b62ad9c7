package asset_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fd1az/quote-router/internal/asset"
	"github.com/shopspring/decimal"
)

func TestAmount_ParseRaw(t *testing.T) {
	// 1 ETH = 1e18 wei
	oneETH, err := asset.ParseRaw(asset.ETH, "1000000000000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !oneETH.ToDecimal().Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1, got %s", oneETH.ToDecimal().String())
	}
	if oneETH.String() != "1 ETH" {
		t.Errorf("expected '1 ETH', got '%s'", oneETH.String())
	}
}

func TestAmount_ParseRawRejectsGarbage(t *testing.T) {
	tests := []string{"", "1.5", "abc", "0x10", "-5"}

	for _, s := range tests {
		if _, err := asset.ParseRaw(asset.USDC, s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestAmount_ParseRawBeyondUint64(t *testing.T) {
	huge := "340282366920938463463374607431768211455" // 2^128 - 1
	a, err := asset.ParseRaw(asset.WETH, huge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.RawString() != huge {
		t.Errorf("expected round trip of large amount, got %s", a.RawString())
	}
}

func TestAmount_ParseString(t *testing.T) {
	tests := []struct {
		name    string
		asset   *asset.Asset
		input   string
		wantRaw string
		wantErr error
	}{
		{"usdc_whole", asset.USDC, "1000", "1000000000", nil},
		{"usdc_cents", asset.USDC, "12.34", "12340000", nil},
		{"eth_fraction", asset.ETH, "1.5", "1500000000000000000", nil},
		{"too_precise", asset.USDC, "0.0000001", "", asset.ErrTooManyDecimals},
		{"negative", asset.USDC, "-1", "", asset.ErrNegativeAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := asset.ParseString(tt.asset, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.RawString() != tt.wantRaw {
				t.Errorf("expected raw %s, got %s", tt.wantRaw, got.RawString())
			}
		})
	}
}

func TestAmount_CmpDifferentAssets(t *testing.T) {
	oneETH, _ := asset.NewAmount(asset.ETH, big.NewInt(1e18))
	oneUSDC, _ := asset.NewAmount(asset.USDC, big.NewInt(1e6))

	if _, err := oneETH.Cmp(oneUSDC); !errors.Is(err, asset.ErrAssetMismatch) {
		t.Errorf("expected asset mismatch, got %v", err)
	}
}

func TestExecutionPrice(t *testing.T) {
	sold, _ := asset.ParseString(asset.WETH, "2")
	bought, _ := asset.ParseString(asset.USDC, "6200")

	p, err := asset.ExecutionPrice(sold, bought)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Rate().Equal(decimal.NewFromInt(3100)) {
		t.Errorf("expected 3100, got %s", p.Rate())
	}
	if p.Pair() != "WETH/USDC" {
		t.Errorf("unexpected pair %s", p.Pair())
	}
	if p.String() != "1 WETH = 3100 USDC" {
		t.Errorf("unexpected string %q", p.String())
	}

	inv, err := p.Invert()
	if err != nil {
		t.Fatalf("invert: %v", err)
	}
	if inv.Pair() != "USDC/WETH" {
		t.Errorf("unexpected inverted pair %s", inv.Pair())
	}

	zero, _ := asset.ParseString(asset.WETH, "0")
	if _, err := asset.ExecutionPrice(zero, bought); !errors.Is(err, asset.ErrZeroAmount) {
		t.Errorf("expected zero amount error, got %v", err)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := asset.DefaultRegistry()

	addr, a, err := r.Resolve(asset.ChainIDEthereum, "usdc")
	if err != nil {
		t.Fatalf("resolve symbol: %v", err)
	}
	if addr != asset.USDC.Address() || a != asset.USDC {
		t.Errorf("expected mainnet USDC, got %s", addr.Hex())
	}

	addr, a, err = r.Resolve(asset.ChainIDBase, "USDC")
	if err != nil || a == nil || a.ChainID() != asset.ChainIDBase {
		t.Fatalf("expected Base USDC, got %v %v", a, err)
	}
	if addr == asset.USDC.Address() {
		t.Error("expected chain-specific address")
	}

	raw := "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"
	addr, a, err = r.Resolve(asset.ChainIDEthereum, raw)
	if err != nil || a != nil || addr != common.HexToAddress(raw) {
		t.Errorf("expected unknown address passthrough, got %v %v %v", addr, a, err)
	}

	if _, _, err := r.Resolve(asset.ChainIDEthereum, "NOPE"); err == nil {
		t.Error("expected unknown symbol error")
	}

	native, _, err := r.Resolve(asset.ChainIDArbitrum, "eth")
	if err != nil || native != asset.NativeAddress {
		t.Errorf("expected native placeholder, got %s %v", native.Hex(), err)
	}
}
