package transfer

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/ledger"
	"tradeflow/internal/types"
)

var (
	ErrNotFound        = errors.New("transfer not found")
	ErrAlreadyExecuted = errors.New("transfer already executed")
	ErrInvalidAmount   = errors.New("transfer amount must be positive")
	ErrSameSubaccount  = errors.New("source and destination subaccounts must differ")
	ErrCrossAccount    = errors.New("subaccounts belong to different accounts")
)

// InternalTransfer moves an amount between two subaccounts of one account.
// The only state transition is pending -> completed|rejected; it is terminal.
type InternalTransfer struct {
	ID                 string               `json:"id"`
	AccountID          string               `json:"account_id"`
	SourceSubaccountID string               `json:"source_subaccount_id"`
	DestSubaccountID   string               `json:"dest_subaccount_id"`
	Amount             decimal.Decimal      `json:"amount"`
	Status             types.TransferStatus `json:"status"`
	InitiatedBy        string               `json:"initiated_by"`
	Notes              string               `json:"notes,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
}

// Executable is the at-most-once gate: a transfer can be executed only while
// pending. Completed and rejected are terminal, so a re-run is refused rather
// than applied twice.
func (t *InternalTransfer) Executable() error {
	if t.Status != types.TransferStatusPending {
		return ErrAlreadyExecuted
	}
	return nil
}

// NormalizeAmount validates and fixes a requested amount to 2 decimal places.
func NormalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	fixed := amount.Round(2)
	if !fixed.GreaterThan(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}
	return fixed, nil
}

// Outcome is the result of evaluating a transfer against the source balance.
type Outcome struct {
	Status       types.TransferStatus
	SourceBefore decimal.Decimal
	SourceAfter  decimal.Decimal
	DestBefore   decimal.Decimal
	DestAfter    decimal.Decimal
}

// Settle evaluates and, when the source balance suffices, applies a transfer
// to the two subaccounts in memory. A rejected transfer leaves both balances
// untouched; completed transfers conserve the combined balance.
func Settle(src, dst *ledger.Subaccount, amount decimal.Decimal) Outcome {
	out := Outcome{
		SourceBefore: src.Balance,
		SourceAfter:  src.Balance,
		DestBefore:   dst.Balance,
		DestAfter:    dst.Balance,
	}
	if src.Balance.LessThan(amount) {
		out.Status = types.TransferStatusRejected
		return out
	}
	src.Balance = src.Balance.Sub(amount)
	dst.Balance = dst.Balance.Add(amount)
	out.Status = types.TransferStatusCompleted
	out.SourceAfter = src.Balance
	out.DestAfter = dst.Balance
	return out
}
