package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/types"
)

// Account is the per-client balance record. Balance is always derived from
// the three fund-type balances; it is never stored or written directly.
type Account struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	RealBalance  decimal.Decimal `json:"real_balance"`
	DemoBalance  decimal.Decimal `json:"demo_balance"`
	BonusBalance decimal.Decimal `json:"bonus_balance"`
	Leverage     int             `json:"leverage"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (a *Account) Balance() decimal.Decimal {
	return a.RealBalance.Add(a.DemoBalance).Add(a.BonusBalance)
}

func (a *Account) fund(ft types.FundType) *decimal.Decimal {
	switch ft {
	case types.FundTypeReal:
		return &a.RealBalance
	case types.FundTypeDemo:
		return &a.DemoBalance
	case types.FundTypeBonus:
		return &a.BonusBalance
	}
	return nil
}

func (a *Account) FundBalance(ft types.FundType) (decimal.Decimal, error) {
	f := a.fund(ft)
	if f == nil {
		return decimal.Zero, ErrInvalidFundType
	}
	return *f, nil
}

// FundChange is the before/after snapshot of a single fund mutation. Every
// caller is required to hand it to the audit trail.
type FundChange struct {
	AccountID     string          `json:"account_id"`
	FundType      types.FundType  `json:"fund_type"`
	Delta         decimal.Decimal `json:"delta"`
	FundBefore    decimal.Decimal `json:"fund_before"`
	FundAfter     decimal.Decimal `json:"fund_after"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

// Apply mutates one fund-type balance in place. When requireNonNegative is
// set (withdrawal-class operations) a negative resulting fund balance fails
// with ErrInsufficientFunds and leaves the account untouched.
func (a *Account) Apply(ft types.FundType, delta decimal.Decimal, requireNonNegative bool) (FundChange, error) {
	f := a.fund(ft)
	if f == nil {
		return FundChange{}, ErrInvalidFundType
	}
	before := *f
	balanceBefore := a.Balance()
	after := before.Add(delta)
	if requireNonNegative && after.IsNegative() {
		return FundChange{}, ErrInsufficientFunds
	}
	*f = after
	return FundChange{
		AccountID:     a.ID,
		FundType:      ft,
		Delta:         delta,
		FundBefore:    before,
		FundAfter:     after,
		BalanceBefore: balanceBefore,
		BalanceAfter:  a.Balance(),
	}, nil
}

// Subaccount is an internal segmentation bucket. It is not fund-typed; its
// single balance is what internal transfers move.
type Subaccount struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	IsMain    bool            `json:"is_main"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Transaction struct {
	ID         string                  `json:"id"`
	AccountID  string                  `json:"account_id"`
	Type       types.TransactionType   `json:"type"`
	FundType   types.FundType          `json:"fund_type"`
	Amount     decimal.Decimal         `json:"amount"`
	Status     types.TransactionStatus `json:"status"`
	ExternalID string                  `json:"external_id,omitempty"`
	Notes      string                  `json:"notes,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// Metrics are the derived account figures. MarginLevel is nil when no margin
// is held; it is never a division by zero.
type Metrics struct {
	Balance     decimal.Decimal  `json:"balance"`
	Equity      decimal.Decimal  `json:"equity"`
	Margin      decimal.Decimal  `json:"margin"`
	FreeMargin  decimal.Decimal  `json:"free_margin"`
	MarginLevel *decimal.Decimal `json:"margin_level"`
}

func ComputeMetrics(balance, unrealizedPnL, margin decimal.Decimal) Metrics {
	equity := balance.Add(unrealizedPnL)
	m := Metrics{
		Balance:    balance,
		Equity:     equity,
		Margin:     margin,
		FreeMargin: equity.Sub(margin),
	}
	if margin.GreaterThan(decimal.Zero) {
		level := equity.Div(margin).Mul(decimal.NewFromInt(100))
		m.MarginLevel = &level
	}
	return m
}

const (
	MinLeverage = 1
	MaxLeverage = 500
)

func ValidLeverage(v int) bool {
	return v >= MinLeverage && v <= MaxLeverage
}
