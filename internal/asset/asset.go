package asset

import "github.com/ethereum/go-ethereum/common"

// Asset is token metadata. Identity is the AssetID; the symbol is for
// display and lookup only.
type Asset struct {
	id       AssetID
	symbol   string
	name     string
	decimals uint8
}

// NewAsset creates a new Asset.
func NewAsset(id AssetID, symbol, name string, decimals uint8) *Asset {
	if symbol == "" {
		panic("asset: empty symbol")
	}
	if decimals > 36 {
		panic("asset: suspicious decimals (>36)")
	}
	return &Asset{
		id:       id,
		symbol:   symbol,
		name:     name,
		decimals: decimals,
	}
}

// NewToken creates an ERC20 token asset.
func NewToken(chainID uint64, address common.Address, symbol, name string, decimals uint8) *Asset {
	return NewAsset(NewTokenAssetID(chainID, address), symbol, name, decimals)
}

// NewNative creates a native coin asset.
func NewNative(chainID uint64, symbol, name string, decimals uint8) *Asset {
	return NewAsset(NewNativeAssetID(chainID), symbol, name, decimals)
}

func (a *Asset) ID() AssetID { return a.id }
func (a *Asset) Symbol() string { return a.symbol }
func (a *Asset) Decimals() uint8 { return a.decimals }
func (a *Asset) ChainID() uint64 { return a.id.ChainID() }
func (a *Asset) Address() common.Address { return a.id.Address() }
func (a *Asset) IsNative() bool { return a.id.IsNative() }
func (a *Asset) String() string { return a.symbol }

// Name returns the human-readable name, or the symbol when unset.
func (a *Asset) Name() string {
	if a.name == "" {
		return a.symbol
	}
	return a.name
}
