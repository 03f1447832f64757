package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradeflow/internal/auth"
	"tradeflow/internal/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withIdentity(r *http.Request, ident auth.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), identityKey, ident))
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	svc := auth.NewService(nil, "tradeflow-test", []byte("secret"), time.Hour)
	mw := WithAuth(svc)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireCapability(t *testing.T) {
	mw := RequireCapability(auth.CapPositionModify)(okHandler())

	// No identity on the request at all.
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Authenticated but not allowed.
	agent := auth.Identity{
		UserID:       "staff-1",
		Role:         types.InitiatorAgent,
		Capabilities: auth.CapabilitiesFor(types.InitiatorAgent),
	}
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), agent))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Allowed.
	admin := auth.Identity{
		UserID:       "staff-2",
		Role:         types.InitiatorAdmin,
		Capabilities: auth.CapabilitiesFor(types.InitiatorAdmin),
	}
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), admin))
	assert.Equal(t, http.StatusOK, rec.Code)
}
