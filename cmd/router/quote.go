package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/fd1az/quote-router/business/quoting/app"
	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/asset"
)

// quoteFlags are the one-shot mode inputs. Tokens are symbols known to the
// asset registry or hex addresses.
type quoteFlags struct {
	sell       string
	buy        string
	sellAmount string
	buyAmount  string
	chain      uint64
	toChain    uint64
	slippage   string
	taker      string
	units      bool
}

func registerQuoteFlags(fs *flag.FlagSet) *quoteFlags {
	qf := &quoteFlags{}
	fs.StringVar(&qf.sell, "sell", "", "Token to sell (symbol or address)")
	fs.StringVar(&qf.buy, "buy", "", "Token to buy (symbol or address)")
	fs.StringVar(&qf.sellAmount, "sell-amount", "", "Exact amount to sell")
	fs.StringVar(&qf.buyAmount, "buy-amount", "", "Exact amount to buy")
	fs.Uint64Var(&qf.chain, "chain", asset.ChainIDEthereum, "Source chain ID")
	fs.Uint64Var(&qf.toChain, "to-chain", 0, "Destination chain ID for a cross-chain quote")
	fs.StringVar(&qf.slippage, "slippage", "0.5", "Slippage tolerance in percent")
	fs.StringVar(&qf.taker, "taker", "", "Taker address for a firm quote")
	fs.BoolVar(&qf.units, "units", false, "Amounts are in token units (1.5) instead of base units")
	return qf
}

// quoteInput is a resolved request plus the assets it refers to, when known.
type quoteInput struct {
	req       domain.QuoteRequest
	sellAsset *asset.Asset
	buyAsset  *asset.Asset
}

func buildRequest(registry *asset.Registry, qf *quoteFlags) (quoteInput, error) {
	if qf.sell == "" || qf.buy == "" {
		return quoteInput{}, errors.New("-sell and -buy are required")
	}

	destChain := qf.chain
	crossChain := qf.toChain != 0 && qf.toChain != qf.chain
	if crossChain {
		destChain = qf.toChain
	}

	sellAddr, sellAsset, err := registry.Resolve(qf.chain, qf.sell)
	if err != nil {
		return quoteInput{}, err
	}
	buyAddr, buyAsset, err := registry.Resolve(destChain, qf.buy)
	if err != nil {
		return quoteInput{}, err
	}

	slippage, err := decimal.NewFromString(qf.slippage)
	if err != nil {
		return quoteInput{}, fmt.Errorf("invalid -slippage %q: %w", qf.slippage, err)
	}

	sellAmount, buyAmount := qf.sellAmount, qf.buyAmount
	if qf.units {
		if sellAmount, err = toBaseUnits(sellAsset, sellAmount); err != nil {
			return quoteInput{}, fmt.Errorf("-sell-amount: %w", err)
		}
		if buyAmount, err = toBaseUnits(buyAsset, buyAmount); err != nil {
			return quoteInput{}, fmt.Errorf("-buy-amount: %w", err)
		}
	}

	req := domain.QuoteRequest{
		SellToken:       sellAddr.Hex(),
		BuyToken:        buyAddr.Hex(),
		SellAmount:      sellAmount,
		BuyAmount:       buyAmount,
		ChainID:         qf.chain,
		SlippagePercent: slippage,
		TakerAddress:    qf.taker,
		CrossChain:      crossChain,
	}
	if crossChain {
		req.ToChainID = qf.toChain
	}

	return quoteInput{req: req, sellAsset: sellAsset, buyAsset: buyAsset}, nil
}

func toBaseUnits(a *asset.Asset, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if a == nil {
		return "", errors.New("token units need a token known to the registry")
	}
	amt, err := asset.ParseString(a, s)
	if err != nil {
		return "", err
	}
	return amt.RawString(), nil
}

// quoteOutput is the JSON document printed in one-shot mode. The display
// fields are set only for registry-known tokens.
type quoteOutput struct {
	*domain.BestQuote
	Provider string `json:"provider"`
	Sell     string `json:"sell,omitempty"`
	Buy      string `json:"buy,omitempty"`
	Price    string `json:"price,omitempty"`
}

func runQuote(ctx context.Context, w io.Writer, registry *asset.Registry, router *app.Router, qf *quoteFlags) error {
	in, err := buildRequest(registry, qf)
	if err != nil {
		return err
	}

	best, err := router.GetBestQuote(ctx, in.req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(describe(best, in))
}

func describe(best *domain.BestQuote, in quoteInput) quoteOutput {
	out := quoteOutput{BestQuote: best, Provider: best.Provider()}
	if in.sellAsset == nil || in.buyAsset == nil {
		return out
	}

	sold, err := asset.ParseRaw(in.sellAsset, best.Quote.SellAmount)
	if err != nil {
		return out
	}
	bought, err := asset.ParseRaw(in.buyAsset, best.Quote.BuyAmount)
	if err != nil {
		return out
	}
	out.Sell = sold.String()
	out.Buy = bought.String()
	if price, err := asset.ExecutionPrice(sold, bought); err == nil {
		out.Price = price.String()
	}
	return out
}
