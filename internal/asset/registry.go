package asset

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is a thread-safe registry of known tokens.
type Registry struct {
	mu       sync.RWMutex
	byID     map[AssetID]*Asset
	bySymbol map[string][]*Asset // upper-cased symbol -> one asset per chain
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[AssetID]*Asset),
		bySymbol: make(map[string][]*Asset),
	}
}

// Register adds an asset. Panics if the ID is already registered.
func (r *Registry) Register(a *Asset) {
	if a == nil {
		panic("asset: cannot register nil asset")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if _, exists := r.byID[id]; exists {
		panic(fmt.Sprintf("asset: %s already registered", id))
	}

	r.byID[id] = a
	sym := strings.ToUpper(a.Symbol())
	r.bySymbol[sym] = append(r.bySymbol[sym], a)
}

// Get retrieves an asset by its ID.
func (r *Registry) Get(id AssetID) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	return a, ok
}

// GetBySymbolAndChain retrieves an asset by symbol (case-insensitive) and
// chain.
func (r *Registry) GetBySymbolAndChain(symbol string, chainID uint64) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.bySymbol[strings.ToUpper(symbol)] {
		if a.ChainID() == chainID {
			return a, true
		}
	}
	return nil, false
}

// Lookup finds the asset for an address on a chain.
func (r *Registry) Lookup(chainID uint64, address common.Address) (*Asset, bool) {
	return r.Get(AssetID{chainID: chainID, address: address})
}

// Resolve turns a symbol or hex address into a token address on chainID.
// Unknown addresses are accepted as-is with a nil asset; unknown symbols are
// an error.
func (r *Registry) Resolve(chainID uint64, symbolOrAddress string) (common.Address, *Asset, error) {
	s := strings.TrimSpace(symbolOrAddress)
	if common.IsHexAddress(s) {
		addr := common.HexToAddress(s)
		a, _ := r.Lookup(chainID, addr)
		return addr, a, nil
	}

	a, ok := r.GetBySymbolAndChain(s, chainID)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("asset: unknown token %q on chain %d", s, chainID)
	}
	return a.Address(), a, nil
}

// Count returns the number of registered assets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
