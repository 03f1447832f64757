package positions

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/ledger"
	"tradeflow/internal/types"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state for this operation")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrNoMarketPrice      = errors.New("no market price available")
	ErrInsufficientMargin = errors.New("insufficient free margin")
)

type Order struct {
	ID            string              `json:"id"`
	AccountID     string              `json:"account_id"`
	SubaccountID  string              `json:"subaccount_id,omitempty"`
	Symbol        string              `json:"symbol"`
	Side          types.OrderSide     `json:"side"`
	Type          types.OrderType     `json:"type"`
	Status        types.OrderStatus   `json:"status"`
	Quantity      decimal.Decimal     `json:"quantity"`
	Price         *decimal.Decimal    `json:"price,omitempty"`
	FundType      types.FundType      `json:"fund_type"`
	InitiatorType types.InitiatorType `json:"initiator_type"`
	InitiatedBy   string              `json:"initiated_by"`
	PositionID    *string             `json:"position_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	FilledAt      *time.Time          `json:"filled_at,omitempty"`
}

type Position struct {
	ID            string               `json:"id"`
	AccountID     string               `json:"account_id"`
	SubaccountID  string               `json:"subaccount_id,omitempty"`
	OrderID       string               `json:"order_id"`
	Symbol        string               `json:"symbol"`
	Side          types.OrderSide      `json:"side"`
	Status        types.PositionStatus `json:"status"`
	Quantity      decimal.Decimal      `json:"quantity"`
	OpenPrice     decimal.Decimal      `json:"open_price"`
	CurrentPrice  decimal.Decimal      `json:"current_price"`
	ClosePrice    *decimal.Decimal     `json:"close_price,omitempty"`
	UnrealizedPnL decimal.Decimal      `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal      `json:"realized_pnl"`
	Fees          decimal.Decimal      `json:"fees"`
	Margin        decimal.Decimal      `json:"margin"`
	FundType      types.FundType       `json:"fund_type"`
	OpenedAt      time.Time            `json:"opened_at"`
	ClosedAt      *time.Time           `json:"closed_at,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func sideSign(side types.OrderSide) decimal.Decimal {
	if side == types.OrderSideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// PnL computes (current - open) x quantity x side sign.
func PnL(side types.OrderSide, openPrice, currentPrice, quantity decimal.Decimal) decimal.Decimal {
	return currentPrice.Sub(openPrice).Mul(quantity).Mul(sideSign(side))
}

// closePrice picks the side a position exits on: longs close at the bid,
// shorts at the ask.
func closePrice(side types.OrderSide, bid, ask float64) decimal.Decimal {
	if side == types.OrderSideSell {
		return decimal.NewFromFloat(ask)
	}
	return decimal.NewFromFloat(bid)
}

// MarkToMarket updates CurrentPrice and UnrealizedPnL from a quote. The
// position row is not persisted unless the caller asks for it.
func (p *Position) MarkToMarket(bid, ask float64) {
	price := closePrice(p.Side, bid, ask)
	if !price.GreaterThan(decimal.Zero) {
		return
	}
	p.CurrentPrice = price
	p.UnrealizedPnL = PnL(p.Side, p.OpenPrice, price, p.Quantity)
}

// MarginRequirement is notional divided by account leverage.
func MarginRequirement(price, quantity decimal.Decimal, leverage int) decimal.Decimal {
	if leverage < 1 {
		leverage = 1
	}
	return price.Mul(quantity).Div(decimal.NewFromInt(int64(leverage)))
}

// checkMargin gates order placement on the account's free margin. The metrics
// must come from the same transaction that holds the account row lock, or two
// concurrent orders could both pass.
func checkMargin(required decimal.Decimal, m ledger.Metrics) error {
	if required.GreaterThan(m.FreeMargin) {
		return ErrInsufficientMargin
	}
	return nil
}

// CloseResult is the settlement of a full or partial close. NetProceeds
// (realized P&L minus fees) is what the ledger credits or debits.
type CloseResult struct {
	QuantityClosed decimal.Decimal `json:"quantity_closed"`
	ClosePrice     decimal.Decimal `json:"close_price"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	Fee            decimal.Decimal `json:"fee"`
	NetProceeds    decimal.Decimal `json:"net_proceeds"`
	FullClose      bool            `json:"full_close"`
}

// Close settles quantity units at price, converting their unrealized P&L to
// realized and deducting fee. A partial close leaves the position open with
// the remaining quantity and proportionally reduced unrealized P&L; a full
// close zeroes unrealized P&L and transitions to closed.
func (p *Position) Close(quantity, price, fee decimal.Decimal, now time.Time) (CloseResult, error) {
	if p.Status != types.PositionStatusOpen {
		return CloseResult{}, ErrInvalidState
	}
	if !quantity.GreaterThan(decimal.Zero) || quantity.GreaterThan(p.Quantity) {
		return CloseResult{}, ErrInvalidQuantity
	}
	if !price.GreaterThan(decimal.Zero) {
		return CloseResult{}, ErrNoMarketPrice
	}

	realized := PnL(p.Side, p.OpenPrice, price, quantity)
	p.Quantity = p.Quantity.Sub(quantity)
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	p.Fees = p.Fees.Add(fee)
	p.CurrentPrice = price

	full := p.Quantity.IsZero()
	if full {
		p.Status = types.PositionStatusClosed
		p.ClosePrice = &price
		p.UnrealizedPnL = decimal.Zero
		p.Margin = decimal.Zero
		p.ClosedAt = &now
	} else {
		p.UnrealizedPnL = PnL(p.Side, p.OpenPrice, price, p.Quantity)
		// Margin releases proportionally with the closed quantity.
		remaining := p.Quantity.Add(quantity)
		if remaining.GreaterThan(decimal.Zero) {
			p.Margin = p.Margin.Mul(p.Quantity).Div(remaining)
		}
	}
	p.UpdatedAt = now

	return CloseResult{
		QuantityClosed: quantity,
		ClosePrice:     price,
		RealizedPnL:    realized,
		Fee:            fee,
		NetProceeds:    realized.Sub(fee),
		FullClose:      full,
	}, nil
}

// Snapshot is the flat field map used for audit before/after payloads.
func (p *Position) Snapshot() map[string]any {
	m := map[string]any{
		"status":         string(p.Status),
		"side":           string(p.Side),
		"quantity":       p.Quantity.String(),
		"open_price":     p.OpenPrice.String(),
		"current_price":  p.CurrentPrice.String(),
		"unrealized_pnl": p.UnrealizedPnL.String(),
		"realized_pnl":   p.RealizedPnL.String(),
		"fees":           p.Fees.String(),
		"margin":         p.Margin.String(),
		"opened_at":      p.OpenedAt,
	}
	if p.ClosePrice != nil {
		m["close_price"] = p.ClosePrice.String()
	}
	if p.ClosedAt != nil {
		m["closed_at"] = *p.ClosedAt
	}
	return m
}
