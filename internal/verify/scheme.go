package verify

import (
	"context"
	"fmt"

	"github.com/CedrosPay/x402-solanatoolkit/internal/apierrors"
	"github.com/CedrosPay/x402-solanatoolkit/pkg/x402"
)

// OnChainScheme is the only scheme this orchestrator fully implements: a
// direct SPL token transfer confirmed on-chain.
const OnChainScheme = x402.Scheme

// ChannelScheme names the off-chain payment-channel scheme referenced
// alongside the on-chain scheme. Its account layout is not fully specified,
// so it is an open extension point: a channel Scheme implementation can be
// registered against the same (verdict in, verdict out) contract without
// this package encoding the unimplemented state-fetch itself.
const ChannelScheme = "channel"

// Scheme verifies one PaymentProof against one expected payment and returns
// a Verdict, the same contract VerifySignature/VerifyHeader honor for the
// on-chain scheme.
type Scheme interface {
	Verify(ctx context.Context, proof x402.PaymentProof, expectedRecipient string, expectedAmountUSD float64, opts Options) x402.Verdict
}

// Router dispatches a decoded proof to the Scheme registered for its
// proof.Scheme value.
type Router struct {
	schemes map[string]Scheme
}

// NewRouter builds a Router with the on-chain scheme always registered
// against this Orchestrator, plus any additional schemes the caller supplies
// (e.g. an integrator's own channel Scheme implementation, registered under
// ChannelScheme).
func NewRouter(onChain *Orchestrator, extra map[string]Scheme) *Router {
	schemes := map[string]Scheme{
		OnChainScheme: onChainAdapter{onChain},
	}
	for name, s := range extra {
		schemes[name] = s
	}
	return &Router{schemes: schemes}
}

// Verify dispatches proof to its registered scheme. An unregistered scheme
// (including the unimplemented channel scheme, unless the integrator
// supplied one) fails with VerificationError.
func (r *Router) Verify(ctx context.Context, proof x402.PaymentProof, expectedRecipient string, expectedAmountUSD float64, opts Options) x402.Verdict {
	s, ok := r.schemes[proof.Scheme]
	if !ok {
		return invalid(apierrors.ErrCodeVerificationError,
			fmt.Errorf("scheme %q is not implemented by this integrator", proof.Scheme), nil)
	}
	return s.Verify(ctx, proof, expectedRecipient, expectedAmountUSD, opts)
}

type onChainAdapter struct {
	o *Orchestrator
}

func (a onChainAdapter) Verify(ctx context.Context, proof x402.PaymentProof, expectedRecipient string, expectedAmountUSD float64, opts Options) x402.Verdict {
	signature, err := signatureFromProof(proof)
	if err != nil {
		return invalid(apierrors.ErrCodeInvalidHeader, err, nil)
	}
	return a.o.VerifySignature(ctx, signature, expectedRecipient, expectedAmountUSD, opts)
}
