package money

import (
	"fmt"
	"sync"
)

// Network identifies a Solana cluster. The stablecoin mint registry is keyed
// per network because a mint address on mainnet is meaningless on devnet.
type Network string

const (
	NetworkMainnet  Network = "mainnet"
	NetworkDevnet   Network = "devnet"
	NetworkTestnet  Network = "testnet"
	NetworkLocalnet Network = "localnet"
)

// Asset describes an SPL token: its decimals (for atomic-unit conversion)
// and display code. Unlike the teacher's asset model, there is no fiat/SPL
// AssetType distinction here — every asset this toolkit handles is on-chain.
type Asset struct {
	Code     string
	Decimals uint8
}

var (
	assetRegistryMu sync.RWMutex
	assetRegistry   = map[string]Asset{}

	// mintRegistry maps network -> mint address (base58) -> Asset.
	mintRegistryMu sync.RWMutex
	mintRegistry   = map[Network]map[string]Asset{}
)

// RegisterAsset adds or replaces an asset definition in the code registry.
func RegisterAsset(asset Asset) error {
	if asset.Code == "" {
		return fmt.Errorf("money: asset code required")
	}
	if asset.Decimals > 18 {
		return fmt.Errorf("money: decimals must be <= 18")
	}
	assetRegistryMu.Lock()
	assetRegistry[asset.Code] = asset
	assetRegistryMu.Unlock()
	return nil
}

// GetAsset looks up an asset by its display code.
func GetAsset(code string) (Asset, error) {
	assetRegistryMu.RLock()
	asset, ok := assetRegistry[code]
	assetRegistryMu.RUnlock()
	if !ok {
		return Asset{}, fmt.Errorf("money: unknown asset: %s", code)
	}
	return asset, nil
}

// MustGetAsset looks up an asset by code, panicking if unregistered. Intended
// for package-init-time lookups of known assets, never for request-path code.
func MustGetAsset(code string) Asset {
	asset, err := GetAsset(code)
	if err != nil {
		panic(err)
	}
	return asset
}

// ListAssets returns all registered assets, in no particular order.
func ListAssets() []Asset {
	assetRegistryMu.RLock()
	defer assetRegistryMu.RUnlock()
	out := make([]Asset, 0, len(assetRegistry))
	for _, asset := range assetRegistry {
		out = append(out, asset)
	}
	return out
}

// RegisterStablecoinMint associates a base58 mint address with an asset on a
// given network, so the transfer matcher can resolve a parsed mint address to
// an Asset and apply strictMintCheck.
func RegisterStablecoinMint(network Network, mint string, asset Asset) {
	mintRegistryMu.Lock()
	defer mintRegistryMu.Unlock()
	if mintRegistry[network] == nil {
		mintRegistry[network] = map[string]Asset{}
	}
	mintRegistry[network][mint] = asset
}

// LookupMint resolves a base58 mint address to its Asset on the given
// network. Returns false if the mint is not a known stablecoin on that
// network — callers treat this as ErrCodeWrongToken territory.
func LookupMint(network Network, mint string) (Asset, bool) {
	mintRegistryMu.RLock()
	defer mintRegistryMu.RUnlock()
	byMint, ok := mintRegistry[network]
	if !ok {
		return Asset{}, false
	}
	asset, ok := byMint[mint]
	return asset, ok
}

// MintForAsset returns the mint address for an asset on a network, the
// inverse of LookupMint, used when building payment requirements (4.G) that
// must quote a specific mint.
func MintForAsset(network Network, code string) (string, bool) {
	mintRegistryMu.RLock()
	defer mintRegistryMu.RUnlock()
	byMint, ok := mintRegistry[network]
	if !ok {
		return "", false
	}
	for mint, asset := range byMint {
		if asset.Code == code {
			return mint, true
		}
	}
	return "", false
}

func init() {
	usdc := Asset{Code: "USDC", Decimals: 6}
	usdt := Asset{Code: "USDT", Decimals: 6}
	sol := Asset{Code: "SOL", Decimals: 9}
	_ = RegisterAsset(usdc)
	_ = RegisterAsset(usdt)
	_ = RegisterAsset(sol)

	// Canonical SPL mint addresses, the same constants the teacher's
	// stablecoins.go carries for mainnet/devnet.
	RegisterStablecoinMint(NetworkMainnet, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", usdc)
	RegisterStablecoinMint(NetworkMainnet, "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", usdt)
	RegisterStablecoinMint(NetworkDevnet, "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", usdc)
}
