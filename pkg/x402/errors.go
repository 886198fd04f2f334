package x402

import (
	"fmt"

	"github.com/CedrosPay/x402-solanatoolkit/internal/apierrors"
)

// VerificationError is the error type returned by the verification pipeline
// to callers that need Go error semantics (as opposed to a Verdict value) —
// the header codec and requirements generator in this package use it for
// malformed-input failures that occur before a Verdict can even be
// constructed.
type VerificationError struct {
	Code    apierrors.ErrorCode
	Message string
	Err     error
}

func (e VerificationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e VerificationError) Unwrap() error {
	return e.Err
}

// NewVerificationError wraps err with the user-facing message registered for
// code in apierrors.UserMessage.
func NewVerificationError(code apierrors.ErrorCode, err error) VerificationError {
	return VerificationError{
		Code:    code,
		Message: apierrors.UserMessage(code),
		Err:     err,
	}
}

// VerdictFromError converts a VerificationError into an invalid Verdict,
// attaching the underlying error text as debug detail.
func VerdictFromError(verr VerificationError) Verdict {
	debug := map[string]any{}
	if verr.Err != nil {
		debug["error"] = verr.Err.Error()
	}
	return Verdict{
		IsValid: false,
		Code:    verr.Code,
		Message: verr.Message,
		Debug:   debug,
	}
}
