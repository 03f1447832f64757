package auth

import "tradeflow/internal/types"

type Capability string

const (
	CapBalanceAdjust   Capability = "balance:adjust"
	CapTransferExecute Capability = "transfer:execute"
	CapPositionModify  Capability = "position:modify"
	CapAuditRead       Capability = "audit:read"
)

type CapabilitySet map[Capability]struct{}

func (cs CapabilitySet) Has(c Capability) bool {
	_, ok := cs[c]
	return ok
}

func newSet(caps ...Capability) CapabilitySet {
	cs := make(CapabilitySet, len(caps))
	for _, c := range caps {
		cs[c] = struct{}{}
	}
	return cs
}

// CapabilitiesFor maps a staff role onto what it may do. Agents can work the
// book but not rewrite history; position modification and raw audit access
// stay with managers and admins.
func CapabilitiesFor(role types.InitiatorType) CapabilitySet {
	switch role {
	case types.InitiatorAgent:
		return newSet(CapTransferExecute)
	case types.InitiatorTeamLeader:
		return newSet(CapTransferExecute, CapBalanceAdjust)
	case types.InitiatorCRMManager:
		return newSet(CapTransferExecute, CapBalanceAdjust, CapPositionModify, CapAuditRead)
	case types.InitiatorAdmin:
		return newSet(CapTransferExecute, CapBalanceAdjust, CapPositionModify, CapAuditRead)
	default:
		return newSet()
	}
}
