package solana

import (
	"fmt"

	apierrors "github.com/CedrosPay/x402-solanatoolkit/internal/apierrors"
)

// MatchOptions controls how strictly the matcher treats mint and amount.
type MatchOptions struct {
	StrictMintCheck  bool
	AllowOverpayment bool
	ExpectedMint     string
}

// MatchError carries the verdict code and debug detail for a rejected match,
// mirroring the orchestrator's verdict taxonomy (§7).
type MatchError struct {
	Code  apierrors.ErrorCode
	Debug map[string]any
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("x402 solana: %s", e.Code)
}

// MatchTransfer selects the first parsed transfer that satisfies the
// recipient, mint, and amount constraints, in list order.
func MatchTransfer(transfers []Transfer, expectedRecipient string, requiredSmallestUnit uint64, opts MatchOptions) (Transfer, error) {
	if len(transfers) == 0 {
		return Transfer{}, &MatchError{Code: apierrors.ErrCodeNoUsdcTransfer}
	}

	var candidates []Transfer
	for _, t := range transfers {
		if t.Destination == expectedRecipient {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return Transfer{}, &MatchError{Code: apierrors.ErrCodeTransferMismatch}
	}

	observed := make([]uint64, 0, len(candidates))
	for _, t := range candidates {
		if opts.StrictMintCheck {
			if t.Mint != UnknownMint && t.Mint != opts.ExpectedMint {
				continue
			}
		}

		if opts.AllowOverpayment {
			if t.Amount >= requiredSmallestUnit {
				return t, nil
			}
		} else if t.Amount == requiredSmallestUnit {
			return t, nil
		}
		observed = append(observed, t.Amount)
	}

	return Transfer{}, &MatchError{
		Code: apierrors.ErrCodeInsufficientAmount,
		Debug: map[string]any{
			"expectedAmount": requiredSmallestUnit,
			"observedAmounts": observed,
		},
	}
}
