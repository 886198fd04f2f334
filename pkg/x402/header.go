package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/CedrosPay/x402-solanatoolkit/internal/apierrors"
)

// CurrentVersion is the only x402Version this implementation accepts.
const CurrentVersion = 1

// EncodePaymentProof JSON-serializes and base64-encodes a PaymentProof for
// the X-PAYMENT request header.
func EncodePaymentProof(proof PaymentProof) (string, error) {
	raw, err := json.Marshal(proof)
	if err != nil {
		return "", fmt.Errorf("x402: encode payment proof: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePaymentProof is the inverse of EncodePaymentProof. It also validates
// the structural invariants from §3: version must be CurrentVersion, scheme
// and network must be non-empty, and exactly one of Signature or
// SerializedTransaction must be present.
func DecodePaymentProof(header string) (PaymentProof, error) {
	var proof PaymentProof
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return PaymentProof{}, NewVerificationError(apierrors.ErrCodeInvalidHeader,
			fmt.Errorf("invalid base64 in X-PAYMENT header: %w", err))
	}
	if err := json.Unmarshal(raw, &proof); err != nil {
		return PaymentProof{}, NewVerificationError(apierrors.ErrCodeInvalidHeader,
			fmt.Errorf("invalid JSON in X-PAYMENT header: %w", err))
	}
	if err := validatePaymentProof(proof); err != nil {
		return PaymentProof{}, err
	}
	return proof, nil
}

func validatePaymentProof(proof PaymentProof) error {
	if proof.X402Version != CurrentVersion {
		return NewVerificationError(apierrors.ErrCodeInvalidHeader,
			fmt.Errorf("unsupported x402Version %d, want %d", proof.X402Version, CurrentVersion))
	}
	if proof.Scheme == "" {
		return NewVerificationError(apierrors.ErrCodeInvalidHeader, fmt.Errorf("missing scheme"))
	}
	if proof.Network == "" {
		return NewVerificationError(apierrors.ErrCodeInvalidHeader, fmt.Errorf("missing network"))
	}
	hasSig := proof.Signature != ""
	hasTx := proof.SerializedTransaction != ""
	if hasSig == hasTx {
		return NewVerificationError(apierrors.ErrCodeInvalidHeader,
			fmt.Errorf("exactly one of signature or serializedTransaction must be present"))
	}
	return nil
}

// NewSignatureProof builds a PaymentProof for the common case: the client
// already submitted its own transaction and supplies only the signature.
func NewSignatureProof(scheme, network, signature string) PaymentProof {
	return PaymentProof{
		X402Version: CurrentVersion,
		Scheme:      scheme,
		Network:     network,
		Signature:   signature,
	}
}

// NewSerializedTransactionProof builds a PaymentProof carrying a base64
// serialized, unsigned (or partially signed) transaction for facilitator-side
// submission. This shape is unused by the verification pipeline in this
// module (facilitator-side submission is out of scope) but is part of the
// wire format every x402 client must be able to construct.
func NewSerializedTransactionProof(scheme, network, serializedTx string) PaymentProof {
	return PaymentProof{
		X402Version:           CurrentVersion,
		Scheme:                scheme,
		Network:               network,
		SerializedTransaction: serializedTx,
	}
}

// EncodeReceipt JSON-serializes and base64-encodes a Receipt for the
// X-PAYMENT-RESPONSE response header.
func EncodeReceipt(receipt Receipt) (string, error) {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("x402: encode receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeReceipt is the inverse of EncodeReceipt.
func DecodeReceipt(header string) (Receipt, error) {
	var receipt Receipt
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return Receipt{}, fmt.Errorf("x402: invalid base64 in X-PAYMENT-RESPONSE header: %w", err)
	}
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return Receipt{}, fmt.Errorf("x402: invalid JSON in X-PAYMENT-RESPONSE header: %w", err)
	}
	if receipt.Signature == "" {
		return Receipt{}, fmt.Errorf("x402: receipt missing signature")
	}
	return receipt, nil
}
