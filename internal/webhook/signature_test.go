package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	secret := []byte("platform-secret")
	body := []byte(`{"event":"deposit.completed","transaction_id":"ext-1","amount":"100.00"}`)

	sig := Sign(secret, body)
	assert.True(t, VerifySignature(secret, body, sig))
}

func TestVerifyRejectsTampering(t *testing.T) {
	secret := []byte("platform-secret")
	body := []byte(`{"amount":"100.00"}`)
	sig := Sign(secret, body)

	assert.False(t, VerifySignature(secret, []byte(`{"amount":"999.00"}`), sig))
	assert.False(t, VerifySignature([]byte("other-secret"), body, sig))
	assert.False(t, VerifySignature(secret, body, "not-hex!"))
	assert.False(t, VerifySignature(secret, body, ""))
}
