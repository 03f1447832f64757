package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/types"
)

func testService(ttl time.Duration) *Service {
	return NewService(nil, "tradeflow-test", []byte("test-secret"), ttl)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := testService(time.Hour)

	token, err := svc.signToken("staff-1", string(types.InitiatorCRMManager))
	require.NoError(t, err)

	ident, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", ident.UserID)
	assert.Equal(t, types.InitiatorCRMManager, ident.Role)
	assert.True(t, ident.Capabilities.Has(CapPositionModify))
	assert.True(t, ident.Capabilities.Has(CapAuditRead))
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := testService(time.Hour).signToken("staff-1", string(types.InitiatorAdmin))
	require.NoError(t, err)

	other := NewService(nil, "tradeflow-test", []byte("other-secret"), time.Hour)
	_, err = other.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	token, err := testService(time.Hour).signToken("staff-1", string(types.InitiatorAdmin))
	require.NoError(t, err)

	other := NewService(nil, "someone-else", []byte("test-secret"), time.Hour)
	_, err = other.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := testService(-time.Minute).signToken("staff-1", string(types.InitiatorAdmin))
	require.NoError(t, err)

	_, err = testService(time.Hour).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsClientRole(t *testing.T) {
	svc := testService(time.Hour)

	token, err := svc.signToken("staff-1", string(types.InitiatorClient))
	require.NoError(t, err)
	_, err = svc.ParseToken(token)
	assert.Error(t, err, "clients never hold staff tokens")

	token, err = svc.signToken("staff-1", "superuser")
	require.NoError(t, err)
	_, err = svc.ParseToken(token)
	assert.Error(t, err)
}

func TestCapabilitiesFor(t *testing.T) {
	tests := []struct {
		role types.InitiatorType
		has  []Capability
		not  []Capability
	}{
		{
			role: types.InitiatorAgent,
			has:  []Capability{CapTransferExecute},
			not:  []Capability{CapBalanceAdjust, CapPositionModify, CapAuditRead},
		},
		{
			role: types.InitiatorTeamLeader,
			has:  []Capability{CapTransferExecute, CapBalanceAdjust},
			not:  []Capability{CapPositionModify, CapAuditRead},
		},
		{
			role: types.InitiatorCRMManager,
			has:  []Capability{CapTransferExecute, CapBalanceAdjust, CapPositionModify, CapAuditRead},
		},
		{
			role: types.InitiatorAdmin,
			has:  []Capability{CapTransferExecute, CapBalanceAdjust, CapPositionModify, CapAuditRead},
		},
		{
			role: types.InitiatorClient,
			not:  []Capability{CapTransferExecute, CapBalanceAdjust, CapPositionModify, CapAuditRead},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			caps := CapabilitiesFor(tt.role)
			for _, c := range tt.has {
				assert.True(t, caps.Has(c), "%s should have %s", tt.role, c)
			}
			for _, c := range tt.not {
				assert.False(t, caps.Has(c), "%s should not have %s", tt.role, c)
			}
		})
	}
}
