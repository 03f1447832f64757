package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidFundType(t *testing.T) {
	assert.True(t, ValidFundType(FundTypeReal))
	assert.True(t, ValidFundType(FundTypeDemo))
	assert.True(t, ValidFundType(FundTypeBonus))
	assert.False(t, ValidFundType(FundType("credit")))
	assert.False(t, ValidFundType(FundType("")))
}

func TestValidInitiatorType(t *testing.T) {
	for _, it := range []InitiatorType{InitiatorClient, InitiatorAgent, InitiatorTeamLeader, InitiatorCRMManager, InitiatorAdmin} {
		assert.True(t, ValidInitiatorType(it))
	}
	assert.False(t, ValidInitiatorType(InitiatorType("superuser")))
	assert.False(t, ValidInitiatorType(InitiatorType("")))
}

// Every lifecycle step gets its own action kind so trail queries can tell
// them apart; in particular a fill is not a placement.
func TestAuditActionsDistinct(t *testing.T) {
	actions := []AuditAction{
		AuditActionFundChange,
		AuditActionTransferComplete,
		AuditActionTransferRejected,
		AuditActionTransferFailed,
		AuditActionOrderPlaced,
		AuditActionOrderFilled,
		AuditActionOrderCancelled,
		AuditActionPositionClosed,
		AuditActionPositionModified,
		AuditActionWebhookEvent,
		AuditActionFTDMarked,
	}
	seen := make(map[AuditAction]struct{}, len(actions))
	for _, a := range actions {
		assert.NotEmpty(t, string(a))
		_, dup := seen[a]
		assert.False(t, dup, "duplicate action %q", a)
		seen[a] = struct{}{}
	}
	assert.NotEqual(t, AuditActionOrderPlaced, AuditActionOrderFilled)
}
