package asset

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrZeroAmount is returned when a price would divide by zero.
var ErrZeroAmount = errors.New("asset: zero amount")

// priceScale is the number of decimal places kept when dividing.
const priceScale = 18

// Price is the execution rate of a swap: how many quote units one base unit
// buys, in human units.
type Price struct {
	base  *Asset
	quote *Asset
	rate  decimal.Decimal
}

// ExecutionPrice derives the price implied by selling sold for bought.
func ExecutionPrice(sold, bought Amount) (Price, error) {
	if sold.asset == nil || bought.asset == nil {
		return Price{}, ErrNilAsset
	}
	if !sold.IsPositive() {
		return Price{}, ErrZeroAmount
	}

	rate := bought.ToDecimal().DivRound(sold.ToDecimal(), priceScale)
	return Price{base: sold.asset, quote: bought.asset, rate: rate}, nil
}

// Rate returns quote units per base unit.
func (p Price) Rate() decimal.Decimal {
	return p.rate
}

// Invert returns base units per quote unit.
func (p Price) Invert() (Price, error) {
	if p.rate.IsZero() {
		return Price{}, ErrZeroAmount
	}
	return Price{
		base:  p.quote,
		quote: p.base,
		rate:  decimal.NewFromInt(1).DivRound(p.rate, priceScale),
	}, nil
}

// Pair returns e.g. "WETH/USDC".
func (p Price) Pair() string {
	if p.base == nil || p.quote == nil {
		return "?/?"
	}
	return p.base.Symbol() + "/" + p.quote.Symbol()
}

// String returns e.g. "1 WETH = 3100.5 USDC".
func (p Price) String() string {
	if p.base == nil || p.quote == nil {
		return "invalid price"
	}
	return fmt.Sprintf("1 %s = %s %s", p.base.Symbol(), p.rate.Round(8).String(), p.quote.Symbol())
}
