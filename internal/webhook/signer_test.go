package webhook

import "testing"

func TestSignVerify_RoundTrip(t *testing.T) {
	body := []byte(`{"event":"payment.confirmed"}`)
	sig := Sign("secret", body)
	if sig[:7] != "sha256=" {
		t.Fatalf("signature %q missing sha256= prefix", sig)
	}
	if !Verify("secret", body, sig) {
		t.Fatal("expected signature to verify")
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	body := []byte(`{"event":"payment.confirmed"}`)
	sig := Sign("secret", body)
	if Verify("other-secret", body, sig) {
		t.Fatal("expected signature to fail verification with wrong secret")
	}
}

func TestVerify_RejectsTamperedBody(t *testing.T) {
	sig := Sign("secret", []byte(`{"event":"payment.confirmed"}`))
	if Verify("secret", []byte(`{"event":"payment.failed"}`), sig) {
		t.Fatal("expected signature to fail verification against a different body")
	}
}

func TestCanonicalPayload_Deterministic(t *testing.T) {
	p := Payload{Event: EventPaymentConfirmed, TimestampMs: 1000, Payment: PaymentInfo{Signature: "sig", Recipient: "r"}}
	a, err := CanonicalPayload(p)
	if err != nil {
		t.Fatalf("CanonicalPayload() error = %v", err)
	}
	b, err := CanonicalPayload(p)
	if err != nil {
		t.Fatalf("CanonicalPayload() error = %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("CanonicalPayload not deterministic: %s vs %s", a, b)
	}
}
