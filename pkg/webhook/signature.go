// Package webhook authenticates inbound transaction notifications from
// ledger indexers. Payloads are signed with a shared secret; verification
// must pass before a payload reaches the decoder.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrBadSignature is returned for any signature that fails verification,
// including malformed encodings. Callers get one error for all failure
// shapes so responses do not leak why verification failed.
var ErrBadSignature = errors.New("webhook signature verification failed")

// Sign computes the hex-encoded HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a presented signature against the body. Common provider
// prefixes ("sha256=", "v1=") are stripped before comparison, and the
// comparison is constant time.
func Verify(secret, body []byte, presented string) error {
	presented = strings.TrimPrefix(presented, "sha256=")
	presented = strings.TrimPrefix(presented, "v1=")

	got, err := hex.DecodeString(presented)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	want := mac.Sum(nil)

	if len(got) != len(want) || subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrBadSignature
	}
	return nil
}
