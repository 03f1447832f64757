package positions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradeflow/internal/audit"
	"tradeflow/internal/ledger"
	"tradeflow/internal/metrics"
	"tradeflow/internal/pricefeed"
	"tradeflow/internal/types"
)

type Service struct {
	pool           *pgxpool.Pool
	ledger         *ledger.Service
	audit          *audit.Service
	feed           pricefeed.Source
	commissionRate decimal.Decimal
}

func NewService(pool *pgxpool.Pool, ledgerSvc *ledger.Service, auditSvc *audit.Service, feed pricefeed.Source, commissionRate decimal.Decimal) *Service {
	return &Service{
		pool:           pool,
		ledger:         ledgerSvc,
		audit:          auditSvc,
		feed:           feed,
		commissionRate: commissionRate,
	}
}

type PlaceOrderRequest struct {
	AccountID     string
	SubaccountID  string
	Symbol        string
	Side          types.OrderSide
	Type          types.OrderType
	Quantity      decimal.Decimal
	Price         *decimal.Decimal
	FundType      types.FundType
	InitiatorType types.InitiatorType
	InitiatedBy   string
}

type PlaceOrderResult struct {
	Order    Order     `json:"order"`
	Position *Position `json:"position,omitempty"`
}

// PlaceOrder validates the request and fills market orders immediately at
// the live quote (simulated fill). Limit orders stay pending until filled or
// cancelled. Who placed the order is recorded: staff-placed trades on behalf
// of a client carry different audit semantics than self-directed ones.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error) {
	if req.AccountID == "" || req.Symbol == "" {
		return PlaceOrderResult{}, errors.New("account and symbol are required")
	}
	if req.Side != types.OrderSideBuy && req.Side != types.OrderSideSell {
		return PlaceOrderResult{}, errors.New("invalid side")
	}
	if req.Type != types.OrderTypeMarket && req.Type != types.OrderTypeLimit {
		return PlaceOrderResult{}, errors.New("invalid order type")
	}
	if !req.Quantity.GreaterThan(decimal.Zero) {
		return PlaceOrderResult{}, ErrInvalidQuantity
	}
	if req.FundType == "" {
		req.FundType = types.FundTypeReal
	}
	if !types.ValidFundType(req.FundType) {
		return PlaceOrderResult{}, ledger.ErrInvalidFundType
	}
	if !types.ValidInitiatorType(req.InitiatorType) {
		return PlaceOrderResult{}, errors.New("invalid initiator type")
	}
	if req.Type == types.OrderTypeLimit && (req.Price == nil || !req.Price.GreaterThan(decimal.Zero)) {
		return PlaceOrderResult{}, errors.New("price required for limit order")
	}
	if req.Type == types.OrderTypeMarket && req.Price != nil {
		return PlaceOrderResult{}, errors.New("price not allowed for market order")
	}

	var entryPrice decimal.Decimal
	if req.Type == types.OrderTypeMarket {
		bid, ask, quoteErr := s.feed.GetQuote(req.Symbol)
		if quoteErr != nil {
			return PlaceOrderResult{}, fmt.Errorf("%w: %s", ErrNoMarketPrice, req.Symbol)
		}
		if req.Side == types.OrderSideBuy {
			entryPrice = decimal.NewFromFloat(ask)
		} else {
			entryPrice = decimal.NewFromFloat(bid)
		}
	} else {
		entryPrice = *req.Price
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	defer tx.Rollback(ctx)

	// The margin gate runs under the account row lock so concurrent orders
	// serialize on it rather than both passing against the same free margin.
	acc, err := s.ledger.GetAccountForUpdate(ctx, tx, req.AccountID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return PlaceOrderResult{}, ErrNotFound
		}
		return PlaceOrderResult{}, err
	}
	requiredMargin := MarginRequirement(entryPrice, req.Quantity, acc.Leverage)
	m, err := s.ledger.MetricsForUpdate(ctx, tx, req.AccountID)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	if err := checkMargin(requiredMargin, m); err != nil {
		return PlaceOrderResult{}, err
	}

	now := time.Now().UTC()
	order := Order{
		AccountID:     req.AccountID,
		SubaccountID:  req.SubaccountID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        types.OrderStatusPending,
		Quantity:      req.Quantity,
		Price:         req.Price,
		FundType:      req.FundType,
		InitiatorType: req.InitiatorType,
		InitiatedBy:   req.InitiatedBy,
	}
	if err := s.insertOrder(ctx, tx, &order); err != nil {
		return PlaceOrderResult{}, err
	}

	var position *Position
	if req.Type == types.OrderTypeMarket {
		position, err = s.fillTx(ctx, tx, &order, entryPrice, requiredMargin, now)
		if err != nil {
			return PlaceOrderResult{}, err
		}
	}

	_, err = s.audit.Record(ctx, tx, audit.Entry{
		ActorID:    req.InitiatedBy,
		ActorType:  req.InitiatorType,
		Action:     types.AuditActionOrderPlaced,
		TargetType: "order",
		TargetID:   order.ID,
		Details: map[string]any{
			"account_id": req.AccountID,
			"symbol":     req.Symbol,
			"side":       string(req.Side),
			"type":       string(req.Type),
			"quantity":   req.Quantity.String(),
			"status":     string(order.Status),
			"fund_type":  string(req.FundType),
		},
	})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PlaceOrderResult{}, err
	}
	metrics.OrdersPlaced.WithLabelValues(string(req.Side), string(req.InitiatorType)).Inc()
	return PlaceOrderResult{Order: order, Position: position}, nil
}

// fillTx transitions a pending order to filled and opens its position.
func (s *Service) fillTx(ctx context.Context, tx pgx.Tx, order *Order, fillPrice, margin decimal.Decimal, now time.Time) (*Position, error) {
	if order.Status != types.OrderStatusPending {
		return nil, ErrInvalidState
	}
	p := Position{
		AccountID:     order.AccountID,
		SubaccountID:  order.SubaccountID,
		OrderID:       order.ID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Status:        types.PositionStatusOpen,
		Quantity:      order.Quantity,
		OpenPrice:     fillPrice,
		CurrentPrice:  fillPrice,
		UnrealizedPnL: decimal.Zero,
		RealizedPnL:   decimal.Zero,
		Fees:          decimal.Zero,
		Margin:        margin,
		FundType:      order.FundType,
		OpenedAt:      now,
		UpdatedAt:     now,
	}
	if err := s.insertPosition(ctx, tx, &p); err != nil {
		return nil, err
	}
	order.Status = types.OrderStatusFilled
	order.Price = &fillPrice
	order.FilledAt = &now
	order.PositionID = &p.ID
	_, err := tx.Exec(ctx, `
		UPDATE orders SET status = $1, price = $2, filled_at = $3, position_id = $4 WHERE id = $5`,
		string(order.Status), fillPrice, now, p.ID, order.ID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FillOrder fills a pending limit order at its limit price.
func (s *Service) FillOrder(ctx context.Context, orderID string, actorID string, actorType types.InitiatorType) (*Position, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	order, err := s.getOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != types.OrderStatusPending {
		return nil, ErrInvalidState
	}
	if order.Price == nil {
		return nil, errors.New("order has no fill price")
	}
	acc, err := s.ledger.GetAccountForUpdate(ctx, tx, order.AccountID)
	if err != nil {
		return nil, err
	}
	margin := MarginRequirement(*order.Price, order.Quantity, acc.Leverage)
	now := time.Now().UTC()
	p, err := s.fillTx(ctx, tx, order, *order.Price, margin, now)
	if err != nil {
		return nil, err
	}
	_, err = s.audit.Record(ctx, tx, audit.Entry{
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     types.AuditActionOrderFilled,
		TargetType: "order",
		TargetID:   order.ID,
		Details: map[string]any{
			"status":      string(types.OrderStatusFilled),
			"fill_price":  order.Price.String(),
			"position_id": p.ID,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// CancelOrder is a state check, not a running-operation cancellation: it only
// succeeds while the order is still pending.
func (s *Service) CancelOrder(ctx context.Context, orderID, actorID string, actorType types.InitiatorType) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	order, err := s.getOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.Status != types.OrderStatusPending {
		return ErrInvalidState
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status = $1 WHERE id = $2`,
		string(types.OrderStatusCancelled), orderID); err != nil {
		return err
	}
	_, err = s.audit.Record(ctx, tx, audit.Entry{
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     types.AuditActionOrderCancelled,
		TargetType: "order",
		TargetID:   orderID,
		Details: map[string]any{
			"status_before": string(order.Status),
			"status_after":  string(types.OrderStatusCancelled),
		},
	})
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ClosePosition settles quantity units (the full remaining quantity when nil)
// at the current market price. Realized P&L minus fees goes through the
// ledger's fund-change path in the same transaction, paired with an audit
// entry carrying before/after balance and P&L.
func (s *Service) ClosePosition(ctx context.Context, positionID string, quantity *decimal.Decimal, actorID string, actorType types.InitiatorType) (*Position, CloseResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, CloseResult{}, err
	}
	defer tx.Rollback(ctx)

	p, err := s.getPositionForUpdate(ctx, tx, positionID)
	if err != nil {
		return nil, CloseResult{}, err
	}
	if p.Status != types.PositionStatusOpen {
		return nil, CloseResult{}, ErrInvalidState
	}

	closeQty := p.Quantity
	if quantity != nil {
		closeQty = *quantity
	}

	bid, ask, err := s.feed.GetQuote(p.Symbol)
	if err != nil {
		return nil, CloseResult{}, fmt.Errorf("%w: %s", ErrNoMarketPrice, p.Symbol)
	}
	price := closePrice(p.Side, bid, ask)
	fee := price.Mul(closeQty).Mul(s.commissionRate)

	now := time.Now().UTC()
	pnlBefore := p.UnrealizedPnL
	result, err := p.Close(closeQty, price, fee, now)
	if err != nil {
		return nil, CloseResult{}, err
	}

	change, err := s.ledger.ApplyFundChange(ctx, tx, p.AccountID, p.FundType, result.NetProceeds, ledger.ChangeOptions{
		MirrorMain: p.FundType == types.FundTypeReal,
	})
	if err != nil {
		return nil, CloseResult{}, err
	}
	if err := s.updatePosition(ctx, tx, p); err != nil {
		return nil, CloseResult{}, err
	}
	_, err = s.ledger.CreateTransaction(ctx, tx, ledger.Transaction{
		AccountID: p.AccountID,
		Type:      types.TransactionTypeTrade,
		FundType:  p.FundType,
		Amount:    result.NetProceeds,
		Status:    types.TransactionStatusCompleted,
		Notes:     fmt.Sprintf("close %s %s x%s", p.Symbol, p.Side, result.QuantityClosed.String()),
	})
	if err != nil {
		return nil, CloseResult{}, err
	}
	_, err = s.audit.Record(ctx, tx, audit.Entry{
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     types.AuditActionPositionClosed,
		TargetType: "position",
		TargetID:   p.ID,
		Details: map[string]any{
			"quantity_closed":       result.QuantityClosed.String(),
			"close_price":           result.ClosePrice.String(),
			"realized_pnl":          result.RealizedPnL.String(),
			"fee":                   result.Fee.String(),
			"net_proceeds":          result.NetProceeds.String(),
			"full_close":            result.FullClose,
			"unrealized_pnl_before": pnlBefore.String(),
			"unrealized_pnl_after":  p.UnrealizedPnL.String(),
			"balance_before":        change.BalanceBefore.String(),
			"balance_after":         change.BalanceAfter.String(),
			"fund_type":             string(p.FundType),
		},
	})
	if err != nil {
		return nil, CloseResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, CloseResult{}, err
	}
	kind := "partial"
	if result.FullClose {
		kind = "full"
	}
	metrics.PositionsClosed.WithLabelValues(kind).Inc()
	metrics.FundChanges.WithLabelValues(string(p.FundType), "trade").Inc()
	return p, result, nil
}

type ModifyRequest struct {
	OpenPrice  *decimal.Decimal      `json:"open_price,omitempty"`
	ClosePrice *decimal.Decimal      `json:"close_price,omitempty"`
	Quantity   *decimal.Decimal      `json:"quantity,omitempty"`
	Side       *types.OrderSide      `json:"side,omitempty"`
	Status     *types.PositionStatus `json:"status,omitempty"`
	OpenedAt   *time.Time            `json:"opened_at,omitempty"`
	ClosedAt   *time.Time            `json:"closed_at,omitempty"`
}

func (r ModifyRequest) empty() bool {
	return r.OpenPrice == nil && r.ClosePrice == nil && r.Quantity == nil &&
		r.Side == nil && r.Status == nil && r.OpenedAt == nil && r.ClosedAt == nil
}

// ModifyPosition is the administrative correction path. It bypasses trading
// semantics, so a full before/after snapshot of the position and the account
// balance is captured in the audit entry unconditionally.
func (s *Service) ModifyPosition(ctx context.Context, positionID string, req ModifyRequest, actorID string, actorType types.InitiatorType) (*Position, error) {
	if req.empty() {
		return nil, errors.New("no changes requested")
	}
	if req.Side != nil && *req.Side != types.OrderSideBuy && *req.Side != types.OrderSideSell {
		return nil, errors.New("invalid side")
	}
	if req.Status != nil && *req.Status != types.PositionStatusOpen && *req.Status != types.PositionStatusClosed {
		return nil, errors.New("invalid status")
	}
	if req.Quantity != nil && req.Quantity.IsNegative() {
		return nil, ErrInvalidQuantity
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := s.getPositionForUpdate(ctx, tx, positionID)
	if err != nil {
		return nil, err
	}
	acc, err := s.ledger.GetAccountForUpdate(ctx, tx, p.AccountID)
	if err != nil {
		return nil, err
	}
	before := p.Snapshot()
	balance := acc.Balance()

	if req.OpenPrice != nil {
		p.OpenPrice = *req.OpenPrice
	}
	if req.ClosePrice != nil {
		p.ClosePrice = req.ClosePrice
	}
	if req.Quantity != nil {
		p.Quantity = *req.Quantity
	}
	if req.Side != nil {
		p.Side = *req.Side
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	if req.OpenedAt != nil {
		p.OpenedAt = *req.OpenedAt
	}
	if req.ClosedAt != nil {
		p.ClosedAt = req.ClosedAt
	}
	if p.Status == types.PositionStatusOpen {
		p.UnrealizedPnL = PnL(p.Side, p.OpenPrice, p.CurrentPrice, p.Quantity)
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.updatePosition(ctx, tx, p); err != nil {
		return nil, err
	}
	_, err = s.audit.Record(ctx, tx, audit.Entry{
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     types.AuditActionPositionModified,
		TargetType: "position",
		TargetID:   p.ID,
		Details: map[string]any{
			"before":          before,
			"after":           p.Snapshot(),
			"account_balance": balance.String(),
		},
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePnL marks a position to the current market. On feed failure the
// original position is returned unchanged: stale P&L under a feed outage is
// a degraded value, not an error state.
func (s *Service) UpdatePnL(p Position) Position {
	bid, ask, err := s.feed.GetQuote(p.Symbol)
	if err != nil {
		return p
	}
	p.MarkToMarket(bid, ask)
	return p
}

// RefreshAccountPnL re-marks all open positions for an account and persists
// the result, so derived equity and margin figures read fresh values.
func (s *Service) RefreshAccountPnL(ctx context.Context, accountID string) ([]Position, error) {
	open, err := s.ListOpenPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range open {
		marked := s.UpdatePnL(open[i])
		if marked.UnrealizedPnL.Equal(open[i].UnrealizedPnL) && marked.CurrentPrice.Equal(open[i].CurrentPrice) {
			continue
		}
		open[i] = marked
		_, err := s.pool.Exec(ctx, `
			UPDATE positions SET current_price = $1, unrealized_pnl = $2, updated_at = $3 WHERE id = $4 AND status = 'open'`,
			marked.CurrentPrice, marked.UnrealizedPnL, time.Now().UTC(), marked.ID)
		if err != nil {
			return nil, err
		}
	}
	return open, nil
}
