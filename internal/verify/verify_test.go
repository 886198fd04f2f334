package verify

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	base58 "github.com/mr-tron/base58"

	"github.com/CedrosPay/x402-solanatoolkit/internal/apierrors"
	"github.com/CedrosPay/x402-solanatoolkit/internal/replaycache"
	xsol "github.com/CedrosPay/x402-solanatoolkit/pkg/x402/solana"
)

var testSignature = fakeSignature(1)

func fakeSignature(seed byte) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = seed
	}
	return base58.Encode(b)
}

func testRecipient() string {
	return solana.NewWallet().PublicKey().String()
}

func newTestOrchestrator(t *testing.T, fetchErr error, tx *rpc.GetTransactionResult, transfers []xsol.Transfer) (*Orchestrator, *replaycache.MemoryCache) {
	t.Helper()
	cache := replaycache.NewMemoryCache(time.Hour)
	t.Cleanup(func() { _ = cache.Close() })

	o, err := New(Config{
		RPCClient: rpc.New("http://localhost:1"),
		Cache:     cache,
		Network:   "devnet",
		AssetCode: "USDC",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	o.fetchTx = func(ctx context.Context, signature string) (*rpc.GetTransactionResult, error) {
		return tx, fetchErr
	}
	o.parseTransfers = func(*rpc.GetTransactionResult) ([]xsol.Transfer, error) {
		return transfers, nil
	}
	return o, cache
}

func blockTimePtr(t time.Time) *solana.UnixTimeSeconds {
	u := solana.UnixTimeSeconds(t.Unix())
	return &u
}

func TestVerifySignature_Valid(t *testing.T) {
	recipient := testRecipient()
	tx := &rpc.GetTransactionResult{
		Slot:      42,
		Meta:      &rpc.TransactionMeta{},
		BlockTime: blockTimePtr(time.Now().Add(-10 * time.Second)),
	}
	transfers := []xsol.Transfer{
		{Source: "payer-ata", Destination: recipient, Authority: "payer", Amount: 1000, Mint: "mint"},
	}
	o, cache := newTestOrchestrator(t, nil, tx, transfers)

	verdict := o.VerifySignature(context.Background(), testSignature, recipient, 0.001, Options{})
	if !verdict.IsValid {
		t.Fatalf("expected valid verdict, got code=%s debug=%v", verdict.Code, verdict.Debug)
	}
	if verdict.Transfer.Amount != 1000 {
		t.Errorf("Transfer.Amount = %d, want 1000", verdict.Transfer.Amount)
	}

	used, err := cache.IsUsed(context.Background(), testSignature)
	if err != nil || !used {
		t.Errorf("expected signature marked used, IsUsed=%v err=%v", used, err)
	}
}

func TestVerifySignature_Replay(t *testing.T) {
	recipient := testRecipient()
	tx := &rpc.GetTransactionResult{
		Slot:      1,
		Meta:      &rpc.TransactionMeta{},
		BlockTime: blockTimePtr(time.Now()),
	}
	transfers := []xsol.Transfer{{Destination: recipient, Amount: 1000, Mint: "mint"}}
	o, _ := newTestOrchestrator(t, nil, tx, transfers)

	first := o.VerifySignature(context.Background(), testSignature, recipient, 0.001, Options{})
	if !first.IsValid {
		t.Fatalf("expected first verification to succeed, got code=%s", first.Code)
	}

	second := o.VerifySignature(context.Background(), testSignature, recipient, 0.001, Options{})
	if second.IsValid || second.Code != apierrors.ErrCodeReplayAttack {
		t.Errorf("expected ReplayAttack, got valid=%v code=%s", second.IsValid, second.Code)
	}
}

func TestVerifySignature_TxNotFound(t *testing.T) {
	recipient := testRecipient()
	o, _ := newTestOrchestrator(t, nil, nil, nil)

	verdict := o.VerifySignature(context.Background(), testSignature, recipient, 0.001, Options{})
	if verdict.IsValid || verdict.Code != apierrors.ErrCodeTxNotFound {
		t.Errorf("expected TxNotFound, got valid=%v code=%s", verdict.IsValid, verdict.Code)
	}
}

func TestVerifySignature_TxFailed(t *testing.T) {
	recipient := testRecipient()
	tx := &rpc.GetTransactionResult{
		Meta:      &rpc.TransactionMeta{Err: map[string]any{"InstructionError": []any{0, "Custom"}}},
		BlockTime: blockTimePtr(time.Now()),
	}
	o, _ := newTestOrchestrator(t, nil, tx, nil)

	verdict := o.VerifySignature(context.Background(), testSignature, recipient, 0.001, Options{})
	if verdict.IsValid || verdict.Code != apierrors.ErrCodeTxFailed {
		t.Errorf("expected TxFailed, got valid=%v code=%s", verdict.IsValid, verdict.Code)
	}
}

func TestVerifySignature_TxExpired(t *testing.T) {
	recipient := testRecipient()
	tx := &rpc.GetTransactionResult{
		Meta:      &rpc.TransactionMeta{},
		BlockTime: blockTimePtr(time.Now().Add(-600 * time.Second)),
	}
	transfers := []xsol.Transfer{{Destination: recipient, Amount: 1000, Mint: "mint"}}
	o, _ := newTestOrchestrator(t, nil, tx, transfers)
	o.maxAgeMs = 300000

	verdict := o.VerifySignature(context.Background(), testSignature, recipient, 0.001, Options{})
	if verdict.IsValid || verdict.Code != apierrors.ErrCodeTxExpired {
		t.Errorf("expected TxExpired, got valid=%v code=%s", verdict.IsValid, verdict.Code)
	}
	if _, ok := verdict.Debug["transactionAge"]; !ok {
		t.Error("expected transactionAge in debug")
	}
}

func TestVerifySignature_NoTransfer(t *testing.T) {
	recipient := testRecipient()
	tx := &rpc.GetTransactionResult{
		Meta:      &rpc.TransactionMeta{},
		BlockTime: blockTimePtr(time.Now()),
	}
	o, _ := newTestOrchestrator(t, nil, tx, nil)

	verdict := o.VerifySignature(context.Background(), testSignature, recipient, 0.001, Options{})
	if verdict.IsValid || verdict.Code != apierrors.ErrCodeNoUsdcTransfer {
		t.Errorf("expected NoUsdcTransfer, got valid=%v code=%s", verdict.IsValid, verdict.Code)
	}
}

func TestVerifySignature_Underpayment(t *testing.T) {
	recipient := testRecipient()
	tx := &rpc.GetTransactionResult{
		Meta:      &rpc.TransactionMeta{},
		BlockTime: blockTimePtr(time.Now()),
	}
	transfers := []xsol.Transfer{{Destination: recipient, Amount: 500, Mint: "mint"}}
	o, _ := newTestOrchestrator(t, nil, tx, transfers)

	verdict := o.VerifySignature(context.Background(), testSignature, recipient, 0.001, Options{})
	if verdict.IsValid || verdict.Code != apierrors.ErrCodeInsufficientAmount {
		t.Errorf("expected InsufficientAmount, got valid=%v code=%s", verdict.IsValid, verdict.Code)
	}
	if verdict.Debug["expectedAmount"] != uint64(1000) {
		t.Errorf("expectedAmount = %v, want 1000", verdict.Debug["expectedAmount"])
	}
}

func TestVerifySignature_WrongRecipient(t *testing.T) {
	recipient := testRecipient()
	other := testRecipient()
	tx := &rpc.GetTransactionResult{
		Meta:      &rpc.TransactionMeta{},
		BlockTime: blockTimePtr(time.Now()),
	}
	transfers := []xsol.Transfer{{Destination: other, Amount: 1000, Mint: "mint"}}
	o, _ := newTestOrchestrator(t, nil, tx, transfers)

	verdict := o.VerifySignature(context.Background(), testSignature, recipient, 0.001, Options{})
	if verdict.IsValid || verdict.Code != apierrors.ErrCodeTransferMismatch {
		t.Errorf("expected TransferMismatch, got valid=%v code=%s", verdict.IsValid, verdict.Code)
	}
}

func TestVerifySignature_InvalidRecipientAddress(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, nil, nil)
	verdict := o.VerifySignature(context.Background(), testSignature, "not-an-address", 0.001, Options{})
	if verdict.IsValid || verdict.Code != apierrors.ErrCodeInvalidHeader {
		t.Errorf("expected InvalidHeader, got valid=%v code=%s", verdict.IsValid, verdict.Code)
	}
}

func TestVerifyBatch_IndependentResults(t *testing.T) {
	recipient := testRecipient()
	tx := &rpc.GetTransactionResult{
		Meta:      &rpc.TransactionMeta{},
		BlockTime: blockTimePtr(time.Now()),
	}
	transfers := []xsol.Transfer{{Destination: recipient, Amount: 1000, Mint: "mint"}}
	o, _ := newTestOrchestrator(t, nil, tx, transfers)

	sigA := fakeSignature(2)
	sigB := fakeSignature(3)
	requests := []BatchRequest{
		{Signature: sigA, ExpectedRecipient: recipient, ExpectedAmountUSD: 0.001},
		{Signature: sigB, ExpectedRecipient: recipient, ExpectedAmountUSD: 0.001},
	}
	results := o.VerifyBatch(context.Background(), requests)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for i, r := range results {
		if !r.IsValid {
			t.Errorf("results[%d] expected valid, got code=%s", i, r.Code)
		}
	}
}
