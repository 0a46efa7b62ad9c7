package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/quote-router/internal/apperror"
)

// Quote is one provider's normalized answer. Amounts are base-10 integers in
// the smallest unit of their token. Payload carries the provider's raw
// response for callers that build the transaction themselves.
type Quote struct {
	Provider     string           `json:"provider"`
	SellToken    string           `json:"sell_token"`
	BuyToken     string           `json:"buy_token"`
	SellAmount   string           `json:"sell_amount"`
	BuyAmount    string           `json:"buy_amount"`
	EstimatedGas *uint64          `json:"estimated_gas,omitempty"`
	PriceImpact  *decimal.Decimal `json:"price_impact,omitempty"`
	Payload      json.RawMessage  `json:"payload,omitempty"`
	ReceivedAt   time.Time        `json:"received_at"`
}

// Amounts parses the sell and buy amounts. A quote whose amounts do not parse
// as non-negative integers is invalid.
func (q *Quote) Amounts() (sell, buy *big.Int, err error) {
	sell, ok := ParseAmount(q.SellAmount)
	if !ok {
		return nil, nil, invalidQuote(q.Provider, "sell amount %q", q.SellAmount)
	}
	buy, ok = ParseAmount(q.BuyAmount)
	if !ok {
		return nil, nil, invalidQuote(q.Provider, "buy amount %q", q.BuyAmount)
	}
	return sell, buy, nil
}

// Validate checks the quote can take part in selection.
func (q *Quote) Validate() error {
	if q == nil {
		return apperror.New(apperror.CodeInvalidQuote, apperror.WithContext("nil quote"))
	}
	if q.Provider == "" {
		return apperror.New(apperror.CodeInvalidQuote, apperror.WithContext("missing provider"))
	}
	_, _, err := q.Amounts()
	return err
}

func invalidQuote(provider, format string, args ...any) error {
	err := apperror.New(apperror.CodeInvalidQuote, apperror.WithContext(fmt.Sprintf(format, args...)))
	err.Provider = provider
	return err
}

// PriceImpactFromUSD derives the value lost across the swap as a fraction,
// from the USD values some providers report. Nil when either value is
// missing or the input value is zero.
func PriceImpactFromUSD(fromUSD, toUSD string) *decimal.Decimal {
	if fromUSD == "" || toUSD == "" {
		return nil
	}
	from, err := decimal.NewFromString(fromUSD)
	if err != nil || !from.IsPositive() {
		return nil
	}
	to, err := decimal.NewFromString(toUSD)
	if err != nil {
		return nil
	}
	impact := decimal.NewFromInt(1).Sub(to.DivRound(from, 8))
	return &impact
}
