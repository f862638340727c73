package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify_RoundTrip(t *testing.T) {
	secret := []byte("shared-secret")
	body := []byte(`{"signature":"abc","slot":123}`)

	sig := Sign(secret, body)
	assert.NoError(t, Verify(secret, body, sig))
}

func TestVerify_ProviderPrefixes(t *testing.T) {
	secret := []byte("shared-secret")
	body := []byte("payload")
	sig := Sign(secret, body)

	assert.NoError(t, Verify(secret, body, "sha256="+sig))
	assert.NoError(t, Verify(secret, body, "v1="+sig))
}

func TestVerify_Failures(t *testing.T) {
	secret := []byte("shared-secret")
	body := []byte("payload")
	sig := Sign(secret, body)

	// Wrong secret.
	assert.ErrorIs(t, Verify([]byte("other-secret"), body, sig), ErrBadSignature)
	// Tampered body.
	assert.ErrorIs(t, Verify(secret, []byte("payload2"), sig), ErrBadSignature)
	// Malformed encodings all collapse into the same error.
	assert.ErrorIs(t, Verify(secret, body, "not-hex!"), ErrBadSignature)
	assert.ErrorIs(t, Verify(secret, body, sig[:10]), ErrBadSignature)
	assert.ErrorIs(t, Verify(secret, body, ""), ErrBadSignature)
}
