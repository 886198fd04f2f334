package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
)

// SignatureHeader and TimestampHeader are the headers the sender sets on
// every delivery and the subscriber checks on receipt.
const (
	SignatureHeader = "X-Webhook-Signature"
	TimestampHeader = "X-Webhook-Timestamp"
)

// CanonicalPayload serializes a payload for signing. Go's encoding/json
// marshals struct fields in declaration order, which is stable across calls,
// so the struct's field order stands in for the canonical key order the
// signature is computed over.
func CanonicalPayload(payload Payload) ([]byte, error) {
	return json.Marshal(payload)
}

// Sign computes the keyed MAC over body and returns it in the
// "sha256=<hex>" form set in X-Webhook-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the MAC of body under secret,
// comparing in constant time.
func Verify(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
