// Package asset models the tokens a quote can be requested for: identity by
// (chain, contract address), metadata for display, and exact amounts in the
// token's smallest unit. decimal.Decimal appears only at the boundary
// (parsing user input, formatting output).
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAddress is the placeholder aggregators use for a chain's native coin.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// AssetID uniquely identifies a token by chain and contract address. Native
// coins use NativeAddress.
type AssetID struct {
	chainID uint64
	address common.Address
}

// NewNativeAssetID creates an AssetID for a chain's native coin.
func NewNativeAssetID(chainID uint64) AssetID {
	return AssetID{chainID: chainID, address: NativeAddress}
}

// NewTokenAssetID creates an AssetID for an ERC20 token.
func NewTokenAssetID(chainID uint64, addr common.Address) AssetID {
	if addr == (common.Address{}) {
		panic("asset: zero token address, use NewNativeAssetID for native coins")
	}
	return AssetID{chainID: chainID, address: addr}
}

// ChainID returns the chain ID.
func (id AssetID) ChainID() uint64 {
	return id.chainID
}

// Address returns the token contract address.
func (id AssetID) Address() common.Address {
	return id.address
}

// IsNative reports whether the id refers to the chain's native coin.
func (id AssetID) IsNative() bool {
	return id.address == NativeAddress
}

func (id AssetID) String() string {
	if id.IsNative() {
		return fmt.Sprintf("chain:%d/native", id.chainID)
	}
	return fmt.Sprintf("chain:%d/%s", id.chainID, id.address.Hex())
}

// Equals compares two AssetIDs for equality.
func (id AssetID) Equals(other AssetID) bool {
	return id.chainID == other.chainID && id.address == other.address
}
