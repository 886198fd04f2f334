// Package apierrors defines the machine-readable error codes shared by the
// verification pipeline and the HTTP adapters that sit on top of it.
package apierrors

// ErrorCode is a machine-readable identifier for a verification or infra
// failure. Clients use it to decide whether to retry, top up, or give up.
type ErrorCode string

// Verification verdict codes, per the x402-solana verification state machine.
const (
	ErrCodeInvalidHeader      ErrorCode = "invalid_header"
	ErrCodeReplayAttack       ErrorCode = "replay_attack"
	ErrCodeTxNotFound         ErrorCode = "tx_not_found"
	ErrCodeTxFailed           ErrorCode = "tx_failed"
	ErrCodeNoUsdcTransfer     ErrorCode = "no_usdc_transfer"
	ErrCodeTransferMismatch   ErrorCode = "transfer_mismatch"
	ErrCodeInsufficientAmount ErrorCode = "insufficient_amount"
	ErrCodeWrongToken         ErrorCode = "wrong_token"
	ErrCodeTxExpired          ErrorCode = "tx_expired"
	ErrCodeVerificationError  ErrorCode = "verification_error"
)

// Infrastructure and configuration codes outside the verification verdict
// taxonomy proper, used by the ambient stack (RPC transport, storage, config).
const (
	ErrCodeRPCError      ErrorCode = "rpc_error"
	ErrCodeNetworkError  ErrorCode = "network_error"
	ErrCodeStorageError  ErrorCode = "storage_error"
	ErrCodeConfigError   ErrorCode = "config_error"
	ErrCodeInternalError ErrorCode = "internal_error"
)

// IsRetryable reports whether a client encountering this code should be
// expected to retry the same request verbatim (true), pay again (false), or
// fix the request (false).
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeTxNotFound, ErrCodeRPCError, ErrCodeNetworkError,
		ErrCodeStorageError, ErrCodeVerificationError:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the status code an HTTP adapter should use when
// surfacing this error to a client.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeInvalidHeader:
		return 400
	case ErrCodeReplayAttack, ErrCodeTxNotFound, ErrCodeTxFailed,
		ErrCodeNoUsdcTransfer, ErrCodeTransferMismatch, ErrCodeInsufficientAmount,
		ErrCodeWrongToken, ErrCodeTxExpired:
		return 402
	case ErrCodeConfigError:
		return 500
	case ErrCodeRPCError, ErrCodeNetworkError:
		return 502
	default:
		return 500
	}
}

// UserMessage converts a code into a message suitable for the `error` field
// of a 402 response body. Debug detail never appears here.
func UserMessage(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidHeader:
		return "Payment header is missing or malformed. Fix the request and try again."
	case ErrCodeReplayAttack:
		return "This payment has already been used. Submit a new payment."
	case ErrCodeTxNotFound:
		return "Transaction not found yet. Wait for confirmation and retry."
	case ErrCodeTxFailed:
		return "The on-chain transaction failed. Submit a new payment."
	case ErrCodeNoUsdcTransfer:
		return "No qualifying transfer was found in the transaction. Submit a new payment."
	case ErrCodeTransferMismatch:
		return "No transfer to the expected recipient was found. Submit a new payment."
	case ErrCodeInsufficientAmount:
		return "The transferred amount is below what was required. Top up or submit a new payment."
	case ErrCodeWrongToken:
		return "The transferred asset does not match what was required. Submit a new payment."
	case ErrCodeTxExpired:
		return "The transaction is too old to accept. Submit a new payment."
	case ErrCodeVerificationError:
		return "Verification could not complete. Retry the request."
	default:
		return "Payment verification failed."
	}
}
