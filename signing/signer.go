// Package signing computes and verifies webhook payload signatures and builds
// the outbound header set for a delivery attempt.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const SignaturePrefix = "sha256="

// Sign returns "sha256=" followed by the hex HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time. The "sha256=" prefix
// is optional on the received value.
func Verify(body []byte, secret string, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || secret == "" {
		return false
	}
	if !strings.HasPrefix(signature, SignaturePrefix) {
		signature = SignaturePrefix + signature
	}
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
