package solana

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	base58 "github.com/mr-tron/base58"

	"github.com/CedrosPay/x402-solanatoolkit/internal/money"
)

// base58Alphabet rejects 0, O, I, l and any non-alphanumeric character before
// attempting a full decode, the same early character-class reject the spec
// calls for on signatures.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func isBase58(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}

// ValidateAddress decodes a base58 string and requires a 32-byte result, the
// size of a Solana public key.
func ValidateAddress(address string) error {
	if !isBase58(address) {
		return fmt.Errorf("x402 solana: address %q contains non-base58 characters", address)
	}
	decoded, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("x402 solana: invalid base58 address: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("x402 solana: address decodes to %d bytes, want 32", len(decoded))
	}
	return nil
}

// ValidateSignature decodes a base58 string and requires a 64-byte result,
// the size of an Ed25519 signature. Canonical signatures are 87-88 base58
// characters; the character-class check rejects most garbage early.
func ValidateSignature(signature string) error {
	if len(signature) < 64 || len(signature) > 96 {
		return fmt.Errorf("x402 solana: signature %q has implausible length %d", signature, len(signature))
	}
	if !isBase58(signature) {
		return fmt.Errorf("x402 solana: signature %q contains non-base58 characters", signature)
	}
	decoded, err := base58.Decode(signature)
	if err != nil {
		return fmt.Errorf("x402 solana: invalid base58 signature: %w", err)
	}
	if len(decoded) != 64 {
		return fmt.Errorf("x402 solana: signature decodes to %d bytes, want 64", len(decoded))
	}
	return nil
}

// NormalizeNetwork maps free-form network spellings into the canonical set
// {mainnet, devnet, testnet, localnet}.
func NormalizeNetwork(raw string) (money.Network, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mainnet", "mainnet-beta":
		return money.NetworkMainnet, nil
	case "devnet":
		return money.NetworkDevnet, nil
	case "testnet":
		return money.NetworkTestnet, nil
	case "localnet", "localhost", "local":
		return money.NetworkLocalnet, nil
	default:
		return "", fmt.Errorf("x402 solana: unrecognized network %q", raw)
	}
}

// WireNetwork converts a canonical network into the wire form used by the
// protocol's `network` field, e.g. "solana-devnet".
func WireNetwork(network money.Network) string {
	return "solana-" + string(network)
}

// ParseWireNetwork is the inverse of WireNetwork: it strips the chain-family
// prefix and normalizes what remains.
func ParseWireNetwork(wire string) (money.Network, error) {
	const prefix = "solana-"
	if !strings.HasPrefix(wire, prefix) {
		return "", fmt.Errorf("x402 solana: network %q missing %q prefix", wire, prefix)
	}
	return NormalizeNetwork(strings.TrimPrefix(wire, prefix))
}

// DeriveAssociatedTokenAccount derives the deterministic per-owner token
// sub-account for a given mint — the invariant from §3: payments land here,
// never on the owner wallet itself.
func DeriveAssociatedTokenAccount(owner, mint string) (string, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return "", fmt.Errorf("x402 solana: invalid owner address: %w", err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("x402 solana: invalid mint address: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, mintKey)
	if err != nil {
		return "", fmt.Errorf("x402 solana: derive associated token account: %w", err)
	}
	return ata.String(), nil
}
