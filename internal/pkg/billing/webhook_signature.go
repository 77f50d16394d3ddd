package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DefaultWebhookTolerance bounds the age of a signed delivery.
const DefaultWebhookTolerance = 5 * time.Minute

// SignatureHeader is the header Stripe signs deliveries with.
const SignatureHeader = "Stripe-Signature"

// VerifyWebhookSignature checks a Stripe-style signature header
// ("t=<unix>,v1=<hex>[,v1=<hex>...]") against the shared webhook secret. The
// signed message is "<t>.<payload>" hashed with HMAC-SHA256. Deliveries whose
// timestamp is further than tolerance from now are rejected; tolerance <= 0
// disables that check.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration, now time.Time) bool {
	header := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if header == "" || secret == "" {
		return false
	}

	timestamp, signatures := parseSignatureHeader(header)
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > tolerance {
			return false
		}
	}

	expected := computeSignature(payload, timestamp, []byte(secret))
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(strings.ToLower(sig))
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return true
		}
	}
	return false
}

// SignPayload builds a signature header for payload; used by tests and by
// local tooling that replays deliveries.
func SignPayload(payload []byte, secret string, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	sig := computeSignature(payload, timestamp, []byte(secret))
	return "t=" + timestamp + ",v1=" + hex.EncodeToString(sig)
}

func computeSignature(payload []byte, timestamp string, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (string, []string) {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			if v := strings.TrimSpace(kv[1]); v != "" {
				signatures = append(signatures, v)
			}
		}
	}
	return timestamp, signatures
}

// WebhookVerifier binds the shared secret and clock used to authenticate deliveries.
type WebhookVerifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

// Verify returns ErrInvalidSignature unless the payload is authentic.
func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) error {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	if !VerifyWebhookSignature(payload, signatureHeader, v.Secret, v.Tolerance, now) {
		return ErrInvalidSignature
	}
	return nil
}
