package asset

import "github.com/ethereum/go-ethereum/common"

// Chain IDs
const (
	ChainIDEthereum = 1
	ChainIDOptimism = 10
	ChainIDBSC      = 56
	ChainIDPolygon  = 137
	ChainIDBase     = 8453
	ChainIDArbitrum = 42161
)

// Well-known assets on Ethereum mainnet.
var (
	ETH  = NewNative(ChainIDEthereum, "ETH", "Ether", 18)
	USDC = NewToken(ChainIDEthereum, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), "USDC", "USD Coin", 6)
	USDT = NewToken(ChainIDEthereum, common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), "USDT", "Tether USD", 6)
	DAI  = NewToken(ChainIDEthereum, common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), "DAI", "Dai Stablecoin", 18)
	WETH = NewToken(ChainIDEthereum, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), "WETH", "Wrapped Ether", 18)
	WBTC = NewToken(ChainIDEthereum, common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"), "WBTC", "Wrapped Bitcoin", 8)
)

// l2WETH is the predeployed WETH address on OP-stack chains.
var l2WETH = common.HexToAddress("0x4200000000000000000000000000000000000006")

// DefaultRegistry returns a registry pre-populated with the main tokens of
// every chain the providers are configured for by default.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// Ethereum
	r.Register(ETH)
	r.Register(USDC)
	r.Register(USDT)
	r.Register(DAI)
	r.Register(WETH)
	r.Register(WBTC)

	// Optimism
	r.Register(NewNative(ChainIDOptimism, "ETH", "Ether", 18))
	r.Register(NewToken(ChainIDOptimism, l2WETH, "WETH", "Wrapped Ether", 18))
	r.Register(NewToken(ChainIDOptimism, common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"), "USDC", "USD Coin", 6))

	// BNB Chain
	r.Register(NewNative(ChainIDBSC, "BNB", "BNB", 18))
	r.Register(NewToken(ChainIDBSC, common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), "WBNB", "Wrapped BNB", 18))
	r.Register(NewToken(ChainIDBSC, common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"), "USDT", "Tether USD", 18))

	// Polygon
	r.Register(NewNative(ChainIDPolygon, "POL", "Polygon Ecosystem Token", 18))
	r.Register(NewToken(ChainIDPolygon, common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"), "WETH", "Wrapped Ether", 18))
	r.Register(NewToken(ChainIDPolygon, common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"), "USDC", "USD Coin", 6))

	// Base
	r.Register(NewNative(ChainIDBase, "ETH", "Ether", 18))
	r.Register(NewToken(ChainIDBase, l2WETH, "WETH", "Wrapped Ether", 18))
	r.Register(NewToken(ChainIDBase, common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), "USDC", "USD Coin", 6))

	// Arbitrum
	r.Register(NewNative(ChainIDArbitrum, "ETH", "Ether", 18))
	r.Register(NewToken(ChainIDArbitrum, common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), "WETH", "Wrapped Ether", 18))
	r.Register(NewToken(ChainIDArbitrum, common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), "USDC", "USD Coin", 6))

	return r
}
