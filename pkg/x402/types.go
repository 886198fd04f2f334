// Package x402 implements the wire data model, header codec, and
// requirements generator for the x402 HTTP micropayment protocol over
// Solana. The verification state machine itself lives in
// internal/verify, which composes this package with the transaction
// parser and matcher in pkg/x402/solana.
package x402

import (
	"time"

	"github.com/CedrosPay/x402-solanatoolkit/internal/apierrors"
)

// Descriptor is one element of a PaymentRequirements.Accepts list — one
// acceptable way to pay. maxAmountRequired is a decimal integer string in
// the asset's smallest unit, never a float, so a client can't lose
// precision re-parsing it.
type Descriptor struct {
	Scheme            string      `json:"scheme"`
	Network           string      `json:"network"`
	MaxAmountRequired string      `json:"maxAmountRequired"`
	Resource          string      `json:"resource,omitempty"`
	Description       string      `json:"description,omitempty"`
	PayTo             PayToTarget `json:"payTo"`
	Timeout           int         `json:"timeout"`
}

// PayToTarget names the recipient's token sub-account, never the wallet
// itself — the invariant from §3.
type PayToTarget struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
}

// PaymentRequirements is the 402 response body.
type PaymentRequirements struct {
	X402Version int          `json:"x402Version"`
	Accepts     []Descriptor `json:"accepts"`
	Error       string       `json:"error"`
}

// PaymentProof is the decoded X-PAYMENT header. Exactly one of Signature or
// SerializedTransaction is present and non-empty.
type PaymentProof struct {
	X402Version           int    `json:"x402Version"`
	Scheme                string `json:"scheme"`
	Network               string `json:"network"`
	Signature             string `json:"signature,omitempty"`
	SerializedTransaction string `json:"serializedTransaction,omitempty"`
}

// Receipt is the decoded X-PAYMENT-RESPONSE header.
type Receipt struct {
	Signature string `json:"signature"`
	Network   string `json:"network"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"` // "verified" | "pending" | "failed"
	BlockTime *int64 `json:"blockTime,omitempty"`
	Slot      *uint64 `json:"slot,omitempty"`
}

const (
	ReceiptStatusVerified = "verified"
	ReceiptStatusPending  = "pending"
	ReceiptStatusFailed   = "failed"
)

// Transfer is the verification-level view of a matched on-chain transfer.
type Transfer struct {
	Source      string
	Destination string
	Authority   string
	Amount      uint64
	Mint        string
}

// Verdict is a tagged union: exactly one of Valid or Invalid is populated,
// discriminated by IsValid.
type Verdict struct {
	IsValid bool

	// Valid fields
	Signature string
	Transfer  Transfer
	BlockTime *int64
	Slot      *uint64

	// Invalid fields
	Code    apierrors.ErrorCode
	Message string
	Debug   map[string]any
}

// QuoteOptions parameterize a single requirements-generation call (4.G).
type QuoteOptions struct {
	Resource       string
	Description    string
	TimeoutSeconds int
	ErrorMessage   string
}

// DefaultTimeoutSeconds is used when QuoteOptions.TimeoutSeconds is zero.
const DefaultTimeoutSeconds = 300

// DefaultMaxAgeMs bounds how old a transaction's block time may be and
// still be accepted — corresponds to §6's maxPaymentAgeMs default.
const DefaultMaxAgeMs = int64(300000)

// clockNow is overridable in tests.
var clockNow = time.Now
