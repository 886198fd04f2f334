package x402

import "time"

// Timing reference values. No code in this module reads them: CheckTiming
// uses the orchestrator's maxAgeMs, and the retry engine uses its own Policy.
const (
	// BlockhashValidityWindow is a conservative window for Solana blockhash
	// validity. Blockhashes are valid for ~150 slots (~60 seconds on
	// mainnet); 90 seconds gives headroom for clock skew between the RPC
	// node and this process.
	BlockhashValidityWindow = 90 * time.Second

	// RPCPollInterval is a polling period for a not-yet-landed transaction.
	// The retry engine does not use it.
	RPCPollInterval = 2 * time.Second

	// DefaultConfirmationTimeout is an overall bound for waiting on a
	// transaction to land. FetchTx is not bounded by it.
	DefaultConfirmationTimeout = 2 * time.Minute
)

// AmountTolerance is an epsilon for comparing cryptocurrency amounts
// expressed as float64 USD. The matcher compares integer smallest-unit
// amounts and does not use it.
const AmountTolerance = 1e-9
