// Package asset holds the static asset -> chain -> network registry used to resolve
// routing chain ids and token addresses, plus unit and address helpers.
package asset

import (
	"errors"
	"fmt"
	"sort"
)

// NativeAssetAddress is the token address the routing service uses for a chain's native asset.
const NativeAssetAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

var (
	// ErrUnknownAsset is returned for symbols that are not registered.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrUnsupportedNetwork is returned when an asset's chain has no chain id on the network.
	ErrUnsupportedNetwork = errors.New("chain not available on network")
)

// Network selects the chain id mapping context.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Chain identifies a blockchain family member.
type Chain string

const (
	ChainBitcoin   Chain = "bitcoin"
	ChainEthereum  Chain = "ethereum"
	ChainPolygon   Chain = "polygon"
	ChainBSC       Chain = "bsc"
	ChainArbitrum  Chain = "arbitrum"
	ChainOptimism  Chain = "optimism"
	ChainAvalanche Chain = "avalanche"
)

// Asset describes a registered asset.
type Asset struct {
	Symbol          string
	Name            string
	Chain           Chain
	Decimals        int32
	ContractAddress string
}

// IsNative reports whether the asset is its chain's native currency.
func (a Asset) IsNative() bool {
	return a.ContractAddress == ""
}

// TokenAddress returns the contract address, or NativeAssetAddress for native assets.
func (a Asset) TokenAddress() string {
	if a.IsNative() {
		return NativeAssetAddress
	}
	return a.ContractAddress
}

// Registry is an immutable asset and chain id table.
type Registry struct {
	assets   map[string]Asset
	chainIDs map[Chain]map[Network]int64
}

// NewRegistry builds a registry from the given assets and chain ids.
// Chains absent from chainIDs (e.g. non-EVM chains) cannot be routed.
func NewRegistry(assets []Asset, chainIDs map[Chain]map[Network]int64) *Registry {
	r := &Registry{
		assets:   make(map[string]Asset, len(assets)),
		chainIDs: make(map[Chain]map[Network]int64, len(chainIDs)),
	}
	for _, a := range assets {
		r.assets[a.Symbol] = a
	}
	for chain, nets := range chainIDs {
		m := make(map[Network]int64, len(nets))
		for n, id := range nets {
			m[n] = id
		}
		r.chainIDs[chain] = m
	}
	return r
}

// Asset returns the asset registered under symbol.
func (r *Registry) Asset(symbol string) (Asset, error) {
	a, ok := r.assets[symbol]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return a, nil
}

// ChainID resolves the routing chain id for symbol on network.
func (r *Registry) ChainID(symbol string, network Network) (int64, error) {
	a, err := r.Asset(symbol)
	if err != nil {
		return 0, err
	}
	id, ok := r.chainIDs[a.Chain][network]
	if !ok {
		return 0, fmt.Errorf("%w: %s on %s", ErrUnsupportedNetwork, a.Chain, network)
	}
	return id, nil
}

// Assets returns all registered assets ordered by symbol.
func (r *Registry) Assets() []Asset {
	out := make([]Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

var defaultChainIDs = map[Chain]map[Network]int64{
	ChainEthereum:  {Mainnet: 1, Testnet: 11155111},
	ChainPolygon:   {Mainnet: 137, Testnet: 80002},
	ChainBSC:       {Mainnet: 56, Testnet: 97},
	ChainArbitrum:  {Mainnet: 42161, Testnet: 421614},
	ChainOptimism:  {Mainnet: 10, Testnet: 11155420},
	ChainAvalanche: {Mainnet: 43114, Testnet: 43113},
}

var defaultAssets = []Asset{
	{Symbol: "BTC", Name: "Bitcoin", Chain: ChainBitcoin, Decimals: 8},
	{Symbol: "ETH", Name: "Ether", Chain: ChainEthereum, Decimals: 18},
	{Symbol: "USDC", Name: "USD Coin", Chain: ChainEthereum, Decimals: 6, ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
	{Symbol: "USDT", Name: "Tether USD", Chain: ChainEthereum, Decimals: 6, ContractAddress: "0xdAC17F958D2ee523a2206206994597C13D831ec7"},
	{Symbol: "DAI", Name: "Dai Stablecoin", Chain: ChainEthereum, Decimals: 18, ContractAddress: "0x6B175474E89094C44Da98b954EedeAC495271d0F"},
	{Symbol: "WBTC", Name: "Wrapped Bitcoin", Chain: ChainEthereum, Decimals: 8, ContractAddress: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"},
	{Symbol: "MATIC", Name: "Polygon", Chain: ChainPolygon, Decimals: 18},
	{Symbol: "PUSDC", Name: "USD Coin (Polygon)", Chain: ChainPolygon, Decimals: 6, ContractAddress: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"},
	{Symbol: "BNB", Name: "Binance Coin", Chain: ChainBSC, Decimals: 18},
	{Symbol: "ARBETH", Name: "Arbitrum Ether", Chain: ChainArbitrum, Decimals: 18},
	{Symbol: "OPTETH", Name: "Optimism Ether", Chain: ChainOptimism, Decimals: 18},
	{Symbol: "AVAX", Name: "Avalanche", Chain: ChainAvalanche, Decimals: 18},
}

// DefaultRegistry returns the built-in registry.
func DefaultRegistry() *Registry {
	return NewRegistry(defaultAssets, defaultChainIDs)
}
