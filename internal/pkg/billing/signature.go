package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// SecretPrefix marks signing secrets as distributed by the DodoPayments
// dashboard. It is not part of the key material.
const SecretPrefix = "whsec_"

var (
	// ErrMissingHeaders means at least one of the webhook id, timestamp or
	// signature headers was absent. Callers must respond 400.
	ErrMissingHeaders = errors.New("missing webhook headers")
	// ErrMissingSecret means no signing secret is configured. This is a
	// deployment error, not a bad request. Callers must respond 500.
	ErrMissingSecret = errors.New("webhook secret not configured")
	// ErrInvalidSignature means the signature did not match the signed
	// content under any accepted secret interpretation. Callers must
	// respond 401.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// VerifyWebhookSignature checks that a webhook delivery was signed by the
// payments provider. The signed content is "{id}.{timestamp}.{body}" where
// body is the exact raw request bytes; re-serialized JSON will not verify.
//
// The secret may have been provisioned either as raw bytes or as base64 of
// those bytes, so both interpretations are tried and a match against either
// is accepted.
func VerifyWebhookSignature(payload []byte, webhookID, timestamp, signatureHeader, webhookSecret string) error {
	id := strings.TrimSpace(webhookID)
	ts := strings.TrimSpace(timestamp)
	sigHeader := strings.TrimSpace(signatureHeader)
	if id == "" || ts == "" || sigHeader == "" {
		return ErrMissingHeaders
	}

	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return ErrMissingSecret
	}
	secret = strings.TrimPrefix(secret, SecretPrefix)

	received := extractV1Signature(sigHeader)
	if received == "" {
		return ErrInvalidSignature
	}

	signed := make([]byte, 0, len(id)+len(ts)+len(payload)+2)
	signed = append(signed, id...)
	signed = append(signed, '.')
	signed = append(signed, ts...)
	signed = append(signed, '.')
	signed = append(signed, payload...)

	if matchesHMAC(signed, received, []byte(secret)) {
		return nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil {
		if matchesHMAC(signed, received, decoded) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func matchesHMAC(signed []byte, receivedB64 string, secret []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(signed)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	// hmac.Equal keeps the comparison constant-time.
	return hmac.Equal([]byte(expected), []byte(receivedB64))
}

// extractV1Signature pulls the v1 signature out of a header that may look
// like "v1,<sig>", "v1=<sig>", a space-separated list of versioned tokens,
// or a bare signature with no version prefix.
func extractV1Signature(header string) string {
	fields := strings.Fields(header)
	for _, f := range fields {
		if sig, ok := strings.CutPrefix(f, "v1,"); ok {
			return sig
		}
		if sig, ok := strings.CutPrefix(f, "v1="); ok {
			return sig
		}
	}
	if len(fields) == 1 && !strings.Contains(fields[0], ",") {
		return fields[0]
	}
	return ""
}
