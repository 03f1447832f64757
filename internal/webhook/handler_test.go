package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/ledger"
	"tradeflow/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// These cases exercise the intake checks that run before any storage access;
// the handler is constructed without backing services on purpose.
func newTestHandler() *Handler {
	return NewHandler(nil, nil, nil, nil, "test-secret")
}

func postEvent(t *testing.T, h *Handler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/platform", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", signature)
	rec := httptest.NewRecorder()
	h.Platform(rec, req)
	return rec
}

func TestPlatformRejectsBadSignature(t *testing.T) {
	h := newTestHandler()
	body := []byte(`{"event":"deposit.completed"}`)

	rec := postEvent(t, h, body, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postEvent(t, h, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Signature over a different body.
	rec = postEvent(t, h, body, Sign([]byte("test-secret"), []byte(`{"event":"x"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlatformRejectsMalformedPayload(t *testing.T) {
	h := newTestHandler()
	body := []byte(`not json`)

	rec := postEvent(t, h, body, Sign([]byte("test-secret"), body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlatformIgnoresUnknownEvent(t *testing.T) {
	h := newTestHandler()
	body := []byte(`{"event":"bonus.granted"}`)

	rec := postEvent(t, h, body, Sign([]byte("test-secret"), body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp.Status)
}

func TestPlatformValidatesFundMovement(t *testing.T) {
	h := newTestHandler()
	tests := []struct {
		name string
		body string
	}{
		{"missing amount", `{"event":"deposit.completed","transaction_id":"ext-1","email":"a@b.c"}`},
		{"zero amount", `{"event":"deposit.completed","transaction_id":"ext-1","email":"a@b.c","amount":"0"}`},
		{"negative amount", `{"event":"withdrawal.completed","transaction_id":"ext-1","email":"a@b.c","amount":"-5"}`},
		{"missing email", `{"event":"deposit.completed","transaction_id":"ext-1","amount":"100"}`},
		{"missing transaction id", `{"event":"deposit.completed","email":"a@b.c","amount":"100"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := []byte(tt.body)
			rec := postEvent(t, h, body, Sign([]byte("test-secret"), body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestWithdrawalRejectionOutcome(t *testing.T) {
	// Real balance 50, total balance far higher: a 60 withdrawal must be
	// refused on the real fund alone and leave the account untouched.
	acc := &ledger.Account{ID: "acc-1", RealBalance: dec("50"), DemoBalance: dec("5000")}
	attempted := dec("60")

	_, err := acc.Apply(types.FundTypeReal, attempted.Neg(), true)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.True(t, acc.RealBalance.Equal(dec("50")))
	assert.True(t, acc.Balance().Equal(dec("5050")))

	details := rejectionDetails(platformEvent{TransactionID: "ext-9"}, attempted, acc.RealBalance)
	assert.Equal(t, "rejected", details["status"])
	assert.Equal(t, "60", details["attempted_amount"])
	assert.Equal(t, "50", details["real_balance"])
	assert.Equal(t, "ext-9", details["external_id"])
	assert.Equal(t, "withdrawal.completed", details["event"])
}

func TestPlatformValidatesKYC(t *testing.T) {
	h := newTestHandler()
	body := []byte(`{"event":"kyc.updated","email":"a@b.c"}`)
	rec := postEvent(t, h, body, Sign([]byte("test-secret"), body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
