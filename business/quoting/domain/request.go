// Package domain contains the core domain types for the quoting context.
package domain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/quote-router/internal/apperror"
)

// MaxSlippagePercent is the largest slippage tolerance a request may carry.
var MaxSlippagePercent = decimal.NewFromInt(50)

// DefaultSlippagePercent is applied by callers that do not choose one.
var DefaultSlippagePercent = decimal.NewFromFloat(0.5)

// Mode says which side of the swap the caller fixed.
type Mode int

const (
	// ModeExactIn fixes the sell amount; the best quote buys the most.
	ModeExactIn Mode = iota
	// ModeExactOut fixes the buy amount; the best quote sells the least.
	ModeExactOut
)

func (m Mode) String() string {
	switch m {
	case ModeExactIn:
		return "exact_in"
	case ModeExactOut:
		return "exact_out"
	default:
		return "unknown"
	}
}

// QuoteRequest is a desired swap. Exactly one of SellAmount and BuyAmount is
// set, as a base-10 integer in the token's smallest unit.
type QuoteRequest struct {
	SellToken       string
	BuyToken        string
	SellAmount      string
	BuyAmount       string
	ChainID         uint64
	SlippagePercent decimal.Decimal
	TakerAddress    string

	CrossChain bool
	ToChainID  uint64
}

// Mode reports whether the sell or the buy amount is fixed.
func (r QuoteRequest) Mode() Mode {
	if r.BuyAmount != "" && r.SellAmount == "" {
		return ModeExactOut
	}
	return ModeExactIn
}

// Amount returns the fixed amount.
func (r QuoteRequest) Amount() string {
	if r.Mode() == ModeExactOut {
		return r.BuyAmount
	}
	return r.SellAmount
}

// DestinationChain is the chain the bought token lives on.
func (r QuoteRequest) DestinationChain() uint64 {
	if r.CrossChain && r.ToChainID != 0 {
		return r.ToChainID
	}
	return r.ChainID
}

// SlippageFraction returns the slippage as a fraction (0.5% -> 0.005).
func (r QuoteRequest) SlippageFraction() decimal.Decimal {
	return r.SlippagePercent.Shift(-2)
}

// Validate returns an INVALID_INPUT error describing the first problem found.
func (r QuoteRequest) Validate() error {
	if !common.IsHexAddress(r.SellToken) {
		return invalid("sell token %q is not an address", r.SellToken)
	}
	if !common.IsHexAddress(r.BuyToken) {
		return invalid("buy token %q is not an address", r.BuyToken)
	}
	if !r.CrossChain && strings.EqualFold(r.SellToken, r.BuyToken) {
		return invalid("sell and buy token are the same")
	}

	switch {
	case r.SellAmount == "" && r.BuyAmount == "":
		return invalid("one of sell amount or buy amount is required")
	case r.SellAmount != "" && r.BuyAmount != "":
		return invalid("only one of sell amount or buy amount may be set")
	}
	if n, ok := ParseAmount(r.Amount()); !ok || n.Sign() == 0 {
		return invalid("amount %q is not a positive integer", r.Amount())
	}

	if r.ChainID == 0 {
		return invalid("chain id is required")
	}
	if r.SlippagePercent.IsNegative() || r.SlippagePercent.GreaterThan(MaxSlippagePercent) {
		return invalid("slippage %s%% out of range [0, %s]", r.SlippagePercent, MaxSlippagePercent)
	}
	if r.TakerAddress != "" && !common.IsHexAddress(r.TakerAddress) {
		return invalid("taker %q is not an address", r.TakerAddress)
	}

	if r.CrossChain {
		if r.ToChainID == 0 {
			return invalid("cross-chain request needs a destination chain")
		}
		if r.ToChainID == r.ChainID {
			return invalid("cross-chain request must target a different chain")
		}
	} else if r.ToChainID != 0 && r.ToChainID != r.ChainID {
		return invalid("destination chain set on a same-chain request")
	}

	return nil
}

// ParseAmount parses a non-negative base-10 integer.
func ParseAmount(s string) (*big.Int, bool) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

func invalid(format string, args ...any) error {
	return apperror.Validation(apperror.CodeInvalidInput, format, args...)
}
