package types

type FundType string

type TransferStatus string

type OrderSide string

type OrderType string

type OrderStatus string

type PositionStatus string

type TransactionType string

type TransactionStatus string

type InitiatorType string

type AuditAction string

const (
	FundTypeReal  FundType = "real"
	FundTypeDemo  FundType = "demo"
	FundTypeBonus FundType = "bonus"
)

// ValidFundType reports whether ft is one of the three fund classes.
func ValidFundType(ft FundType) bool {
	switch ft {
	case FundTypeReal, FundTypeDemo, FundTypeBonus:
		return true
	}
	return false
}

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusRejected  TransferStatus = "rejected"
)

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTrade      TransactionType = "trade"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRejected  TransactionStatus = "rejected"
)

const (
	InitiatorClient     InitiatorType = "client"
	InitiatorAgent      InitiatorType = "agent"
	InitiatorTeamLeader InitiatorType = "team_leader"
	InitiatorCRMManager InitiatorType = "crm_manager"
	InitiatorAdmin      InitiatorType = "admin"
)

func ValidInitiatorType(it InitiatorType) bool {
	switch it {
	case InitiatorClient, InitiatorAgent, InitiatorTeamLeader, InitiatorCRMManager, InitiatorAdmin:
		return true
	}
	return false
}

const (
	AuditActionFundChange       AuditAction = "fund_change"
	AuditActionTransferComplete AuditAction = "transfer_completed"
	AuditActionTransferRejected AuditAction = "transfer_rejected"
	AuditActionTransferFailed   AuditAction = "transfer_failed"
	AuditActionOrderPlaced      AuditAction = "order_placed"
	AuditActionOrderFilled      AuditAction = "order_filled"
	AuditActionOrderCancelled   AuditAction = "order_cancelled"
	AuditActionPositionClosed   AuditAction = "position_closed"
	AuditActionPositionModified AuditAction = "position_modified"
	AuditActionWebhookEvent     AuditAction = "webhook_event"
	AuditActionFTDMarked        AuditAction = "ftd_marked"
)
