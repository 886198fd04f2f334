package solana

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// CommitmentFromString converts a string to rpc.CommitmentType, defaulting to
// finalized for empty or unrecognized input.
func CommitmentFromString(value string) rpc.CommitmentType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "processed":
		return rpc.CommitmentProcessed
	case "confirmed":
		return rpc.CommitmentConfirmed
	case "finalized", "finalised", "":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentFinalized
	}
}

// maxSupportedTransactionVersion is passed to GetTransaction so the RPC node
// returns versioned transactions (address-table lookups) instead of
// rejecting them outright.
var maxSupportedTransactionVersion = uint64(0)

// FetchTransaction retrieves a confirmed transaction by its base58 signature.
// A nil result with a nil error means the transaction has not landed yet —
// callers treat this as tx_not_found. Since no error is returned, the retry
// engine does not poll again for it.
func FetchTransaction(ctx context.Context, client *rpc.Client, signature string, commitment rpc.CommitmentType) (*rpc.GetTransactionResult, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("x402 solana: invalid signature: %w", err)
	}
	result, err := client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                    commitment,
		MaxSupportedTransactionVersion: &maxSupportedTransactionVersion,
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}
