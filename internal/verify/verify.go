// Package verify implements the x402-over-Solana verification state machine:
// ParseHeader, CheckReplay, FetchTx, CheckTxError, CheckTiming, ParseTransfers,
// MatchTransfer, ConsumeReplay, Emit. Any state may short-circuit to an
// Invalid verdict; the replay cache is written only after every other check
// succeeds.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"github.com/CedrosPay/x402-solanatoolkit/internal/apierrors"
	"github.com/CedrosPay/x402-solanatoolkit/internal/circuitbreaker"
	"github.com/CedrosPay/x402-solanatoolkit/internal/logger"
	"github.com/CedrosPay/x402-solanatoolkit/internal/metrics"
	"github.com/CedrosPay/x402-solanatoolkit/internal/money"
	"github.com/CedrosPay/x402-solanatoolkit/internal/replaycache"
	"github.com/CedrosPay/x402-solanatoolkit/internal/retry"
	"github.com/CedrosPay/x402-solanatoolkit/pkg/x402"
	xsol "github.com/CedrosPay/x402-solanatoolkit/pkg/x402/solana"
)

// Config configures an Orchestrator for a fixed network and asset. A process
// verifying several assets constructs one Orchestrator per asset.
type Config struct {
	RPCClient   *rpc.Client
	Cache       replaycache.Cache
	Breaker     *circuitbreaker.Manager // optional; nil disables circuit breaking
	Metrics     *metrics.Metrics        // optional; nil disables instrumentation
	Network     string                  // free-form; normalized via xsol.NormalizeNetwork
	AssetCode   string                  // e.g. "USDC"
	Commitment  string                  // processed | confirmed | finalized
	MaxAgeMs    int64                   // default x402.DefaultMaxAgeMs
	RetryPolicy retry.Policy            // default retry.DefaultPolicy()
	// BatchRPS caps VerifyBatch's rate of fetchTx calls per second against
	// the configured RPC endpoint. Zero disables pacing (unlimited).
	BatchRPS int
}

// Orchestrator runs the verification state machine against one configured
// (network, asset) pair.
type Orchestrator struct {
	rpcClient   *rpc.Client
	cache       replaycache.Cache
	breaker     *circuitbreaker.Manager
	metrics     *metrics.Metrics
	cacheBackend string
	network     money.Network
	asset       money.Asset
	expectedMint string
	commitment  rpc.CommitmentType
	maxAgeMs    int64
	retryPolicy retry.Policy
	clock       func() time.Time
	batchLimiter ratelimit.Limiter

	// fetchTx is overridden in tests to avoid a live RPC dependency; in
	// production it calls xsol.FetchTransaction against rpcClient.
	fetchTx func(ctx context.Context, signature string) (*rpc.GetTransactionResult, error)

	// parseTransfers is overridden in tests that want to supply canned
	// transfers without constructing serialized transaction bytes; in
	// production it is xsol.ParseTransfers.
	parseTransfers func(tx *rpc.GetTransactionResult) ([]xsol.Transfer, error)
}

// Options parameterizes a single verification call.
type Options struct {
	StrictMintCheck  bool
	AllowOverpayment bool
}

// New builds an Orchestrator. It resolves the configured asset's mint on the
// configured network up front so a misconfiguration fails fast rather than on
// the first request.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.RPCClient == nil {
		return nil, fmt.Errorf("verify: rpc client required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("verify: replay cache required")
	}
	network, err := xsol.NormalizeNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}
	asset, err := money.GetAsset(cfg.AssetCode)
	if err != nil {
		return nil, err
	}
	mint, ok := money.MintForAsset(network, cfg.AssetCode)
	if !ok {
		return nil, fmt.Errorf("verify: no known mint for asset %s on network %s", cfg.AssetCode, network)
	}
	maxAgeMs := cfg.MaxAgeMs
	if maxAgeMs <= 0 {
		maxAgeMs = x402.DefaultMaxAgeMs
	}
	policy := cfg.RetryPolicy
	if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
		policy = retry.DefaultPolicy()
	}
	o := &Orchestrator{
		rpcClient:    cfg.RPCClient,
		cache:        cfg.Cache,
		breaker:      cfg.Breaker,
		metrics:      cfg.Metrics,
		cacheBackend: cacheBackendName(cfg.Cache),
		network:      network,
		asset:        asset,
		expectedMint: mint,
		commitment:   xsol.CommitmentFromString(cfg.Commitment),
		maxAgeMs:     maxAgeMs,
		retryPolicy:  policy,
		clock:        time.Now,
	}
	if cfg.BatchRPS > 0 {
		o.batchLimiter = ratelimit.New(cfg.BatchRPS)
	} else {
		o.batchLimiter = ratelimit.NewUnlimited()
	}
	o.fetchTx = func(ctx context.Context, signature string) (*rpc.GetTransactionResult, error) {
		return xsol.FetchTransaction(ctx, o.rpcClient, signature, o.commitment)
	}
	o.parseTransfers = xsol.ParseTransfers
	return o, nil
}

// VerifySignature runs the state machine starting from FetchTx: the caller
// has already produced a bare signature (the low-level entry point named in
// the orchestrator contract).
func (o *Orchestrator) VerifySignature(ctx context.Context, signature, expectedRecipient string, expectedAmountUSD float64, opts Options) x402.Verdict {
	if err := xsol.ValidateSignature(signature); err != nil {
		return invalid(apierrors.ErrCodeInvalidHeader, err, nil)
	}
	if err := xsol.ValidateAddress(expectedRecipient); err != nil {
		return invalid(apierrors.ErrCodeInvalidHeader, err, nil)
	}

	return o.run(ctx, signature, expectedRecipient, expectedAmountUSD, opts)
}

// VerifyHeader decodes an X-PAYMENT header value (4.H) and runs the state
// machine from ParseHeader. This is the protocol-level entry point.
func (o *Orchestrator) VerifyHeader(ctx context.Context, headerValue, expectedRecipient string, expectedAmountUSD float64, opts Options) x402.Verdict {
	proof, err := x402.DecodePaymentProof(headerValue)
	if err != nil {
		return invalid(apierrors.ErrCodeInvalidHeader, err, nil)
	}

	signature, err := signatureFromProof(proof)
	if err != nil {
		return invalid(apierrors.ErrCodeInvalidHeader, err, nil)
	}

	return o.VerifySignature(ctx, signature, expectedRecipient, expectedAmountUSD, opts)
}

// BatchRequest is one independent verification to run inside VerifyBatch.
type BatchRequest struct {
	Signature         string
	ExpectedRecipient string
	ExpectedAmountUSD float64
	Options           Options
}

// VerifyBatch fans out N independent verifications concurrently, paced by
// the orchestrator's BatchRPS limiter so a large batch doesn't burst the RPC
// endpoint all at once. Each verification uses its own cache check; no state
// is shared between requests.
func (o *Orchestrator) VerifyBatch(ctx context.Context, requests []BatchRequest) []x402.Verdict {
	results := make([]x402.Verdict, len(requests))
	done := make(chan struct{}, len(requests))
	for i, req := range requests {
		go func(i int, req BatchRequest) {
			defer func() { done <- struct{}{} }()
			o.batchLimiter.Take()
			results[i] = o.VerifySignature(ctx, req.Signature, req.ExpectedRecipient, req.ExpectedAmountUSD, req.Options)
		}(i, req)
	}
	for range requests {
		<-done
	}
	return results
}

// signatureFromProof resolves the payment's signature per 4.F's ParseHeader
// state: use the signature directly if present, otherwise deserialize the
// serialized transaction (the library's decoder handles both versioned and
// legacy message formats transparently) and take its first signature.
func signatureFromProof(proof x402.PaymentProof) (string, error) {
	if proof.Signature != "" {
		return proof.Signature, nil
	}
	tx, err := solana.TransactionFromBase64(proof.SerializedTransaction)
	if err != nil {
		return "", fmt.Errorf("decode serialized transaction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return "", fmt.Errorf("serialized transaction carries no signatures")
	}
	return tx.Signatures[0].String(), nil
}

func (o *Orchestrator) run(ctx context.Context, signature, expectedRecipient string, expectedAmountUSD float64, opts Options) x402.Verdict {
	log := logger.FromContext(ctx)
	start := o.clock()
	verdict := o.runChecks(ctx, log, signature, expectedRecipient, expectedAmountUSD, opts)
	if o.metrics != nil {
		code := string(verdict.Code)
		if verdict.IsValid {
			code = "valid"
		}
		o.metrics.ObserveVerification(string(o.network), o.asset.Code, code, o.clock().Sub(start))
	}
	return verdict
}

func (o *Orchestrator) runChecks(ctx context.Context, log zerolog.Logger, signature, expectedRecipient string, expectedAmountUSD float64, opts Options) x402.Verdict {
	// CheckReplay
	used, err := o.cache.IsUsed(ctx, signature)
	if err != nil {
		return invalid(apierrors.ErrCodeVerificationError, err, nil)
	}
	if o.metrics != nil {
		o.metrics.ObserveReplayCache(o.cacheBackend, used)
	}
	if used {
		return invalid(apierrors.ErrCodeReplayAttack, nil, nil)
	}

	// FetchTx, wrapped in the retry engine (and circuit breaker, if configured).
	tx, err := o.fetchTransaction(ctx, signature)
	if err != nil {
		log.Warn().Err(err).Str("signature", signature).Msg("verify.fetch_tx_failed")
		return invalid(apierrors.ErrCodeVerificationError, err, nil)
	}
	if tx == nil {
		return invalid(apierrors.ErrCodeTxNotFound, nil, nil)
	}

	// CheckTxError
	if tx.Meta != nil && tx.Meta.Err != nil {
		return invalid(apierrors.ErrCodeTxFailed, nil, map[string]any{"txError": fmt.Sprintf("%v", tx.Meta.Err)})
	}

	// CheckTiming
	if tx.BlockTime == nil {
		return invalid(apierrors.ErrCodeVerificationError, fmt.Errorf("transaction missing block time"), nil)
	}
	blockTimeMs := int64(*tx.BlockTime) * 1000
	nowMs := o.clock().UnixMilli()
	age := nowMs - blockTimeMs
	if age > o.maxAgeMs {
		return invalid(apierrors.ErrCodeTxExpired, nil, map[string]any{
			"transactionAge": age,
			"maxAge":         o.maxAgeMs,
		})
	}

	// ParseTransfers
	transfers, err := o.parseTransfers(tx)
	if err != nil {
		return invalid(apierrors.ErrCodeVerificationError, err, nil)
	}
	if len(transfers) == 0 {
		return invalid(apierrors.ErrCodeNoUsdcTransfer, nil, nil)
	}

	// MatchTransfer
	requiredSmallest, err := money.USDToSmallestUnit(expectedAmountUSD, o.asset)
	if err != nil {
		return invalid(apierrors.ErrCodeVerificationError, err, nil)
	}
	matched, err := xsol.MatchTransfer(transfers, expectedRecipient, uint64(requiredSmallest), xsol.MatchOptions{
		StrictMintCheck:  opts.StrictMintCheck,
		AllowOverpayment: opts.AllowOverpayment,
		ExpectedMint:     o.expectedMint,
	})
	if err != nil {
		if matchErr, ok := err.(*xsol.MatchError); ok {
			return invalid(matchErr.Code, nil, matchErr.Debug)
		}
		return invalid(apierrors.ErrCodeVerificationError, err, nil)
	}

	// ConsumeReplay — only after every other check has succeeded.
	consumeErr := o.cache.MarkUsed(ctx, signature, replaycache.Meta{
		Recipient:    expectedRecipient,
		Amount:       matched.Amount,
		Payer:        matched.Authority,
		ConsumedAtMs: nowMs,
	}, replaycache.DefaultTTL)
	if consumeErr != nil {
		log.Error().Err(consumeErr).Str("signature", signature).Msg("verify.mark_used_failed")
		return invalid(apierrors.ErrCodeVerificationError, consumeErr, nil)
	}

	// Emit(Valid)
	blockTime := int64(*tx.BlockTime)
	slot := tx.Slot
	return x402.Verdict{
		IsValid:   true,
		Signature: signature,
		Transfer: x402.Transfer{
			Source:      matched.Source,
			Destination: matched.Destination,
			Authority:   matched.Authority,
			Amount:      matched.Amount,
			Mint:        matched.Mint,
		},
		BlockTime: &blockTime,
		Slot:      &slot,
	}
}

func (o *Orchestrator) fetchTransaction(ctx context.Context, signature string) (*rpc.GetTransactionResult, error) {
	fetch := func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		start := o.clock()
		tx, err := o.fetchTx(ctx, signature)
		if o.metrics != nil {
			o.metrics.ObserveRPCCall("getTransaction", string(o.network), o.clock().Sub(start), err)
		}
		return tx, err
	}

	if o.breaker == nil {
		return retry.Do(ctx, o.retryPolicy, fetch)
	}
	return retry.Do(ctx, o.retryPolicy, func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		return circuitbreaker.ExecuteContext(ctx, o.breaker, circuitbreaker.ServiceSolanaRPC, fetch)
	})
}

// cacheBackendName labels replay cache metrics by backing implementation
// without widening the replaycache.Cache interface.
func cacheBackendName(cache replaycache.Cache) string {
	switch cache.(type) {
	case *replaycache.MemoryCache:
		return "memory"
	case *replaycache.RedisCache:
		return "redis"
	case *replaycache.PostgresCache:
		return "postgres"
	case *replaycache.MongoCache:
		return "mongo"
	default:
		return "custom"
	}
}

func invalid(code apierrors.ErrorCode, err error, debug map[string]any) x402.Verdict {
	if debug == nil {
		debug = map[string]any{}
	}
	if err != nil {
		debug["error"] = err.Error()
	}
	return x402.Verdict{
		IsValid: false,
		Code:    code,
		Message: apierrors.UserMessage(code),
		Debug:   debug,
	}
}
