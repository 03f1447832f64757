package positions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tradeflow/internal/types"
)

const orderColumns = `id, account_id, COALESCE(subaccount_id::text, ''), symbol, side, type, status, quantity, price, fund_type, initiator_type, initiated_by, position_id, created_at, filled_at`

const positionColumns = `id, account_id, COALESCE(subaccount_id::text, ''), order_id, symbol, side, status, quantity, open_price, current_price, close_price, unrealized_pnl, realized_pnl, fees, margin, fund_type, opened_at, closed_at, updated_at`

func (s *Service) insertOrder(ctx context.Context, tx pgx.Tx, o *Order) error {
	return tx.QueryRow(ctx, `
		INSERT INTO orders (account_id, subaccount_id, symbol, side, type, status, quantity, price, fund_type, initiator_type, initiated_by, created_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		o.AccountID, o.SubaccountID, o.Symbol, string(o.Side), string(o.Type),
		string(o.Status), o.Quantity, o.Price, string(o.FundType),
		string(o.InitiatorType), o.InitiatedBy, time.Now().UTC(),
	).Scan(&o.ID, &o.CreatedAt)
}

func (s *Service) insertPosition(ctx context.Context, tx pgx.Tx, p *Position) error {
	return tx.QueryRow(ctx, `
		INSERT INTO positions (account_id, subaccount_id, order_id, symbol, side, status, quantity, open_price, current_price, unrealized_pnl, realized_pnl, fees, margin, fund_type, opened_at, updated_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`,
		p.AccountID, p.SubaccountID, p.OrderID, p.Symbol, string(p.Side),
		string(p.Status), p.Quantity, p.OpenPrice, p.CurrentPrice,
		p.UnrealizedPnL, p.RealizedPnL, p.Fees, p.Margin, string(p.FundType),
		p.OpenedAt, p.UpdatedAt,
	).Scan(&p.ID)
}

func (s *Service) updatePosition(ctx context.Context, tx pgx.Tx, p *Position) error {
	_, err := tx.Exec(ctx, `
		UPDATE positions
		SET side = $1, status = $2, quantity = $3, open_price = $4, current_price = $5,
		    close_price = $6, unrealized_pnl = $7, realized_pnl = $8, fees = $9,
		    margin = $10, opened_at = $11, closed_at = $12, updated_at = $13
		WHERE id = $14`,
		string(p.Side), string(p.Status), p.Quantity, p.OpenPrice, p.CurrentPrice,
		p.ClosePrice, p.UnrealizedPnL, p.RealizedPnL, p.Fees,
		p.Margin, p.OpenedAt, p.ClosedAt, p.UpdatedAt, p.ID)
	return err
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var side, typ, status, fundType, initiatorType string
	err := row.Scan(&o.ID, &o.AccountID, &o.SubaccountID, &o.Symbol, &side, &typ, &status,
		&o.Quantity, &o.Price, &fundType, &initiatorType, &o.InitiatedBy,
		&o.PositionID, &o.CreatedAt, &o.FilledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Side = types.OrderSide(side)
	o.Type = types.OrderType(typ)
	o.Status = types.OrderStatus(status)
	o.FundType = types.FundType(fundType)
	o.InitiatorType = types.InitiatorType(initiatorType)
	return &o, nil
}

func scanPosition(row pgx.Row) (*Position, error) {
	var p Position
	var side, status, fundType string
	err := row.Scan(&p.ID, &p.AccountID, &p.SubaccountID, &p.OrderID, &p.Symbol, &side, &status,
		&p.Quantity, &p.OpenPrice, &p.CurrentPrice, &p.ClosePrice,
		&p.UnrealizedPnL, &p.RealizedPnL, &p.Fees, &p.Margin, &fundType,
		&p.OpenedAt, &p.ClosedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Side = types.OrderSide(side)
	p.Status = types.PositionStatus(status)
	p.FundType = types.FundType(fundType)
	return &p, nil
}

func (s *Service) getOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (*Order, error) {
	return scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
}

func (s *Service) getPositionForUpdate(ctx context.Context, tx pgx.Tx, positionID string) (*Position, error) {
	return scanPosition(tx.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1 FOR UPDATE`, positionID))
}

func (s *Service) GetPosition(ctx context.Context, positionID string) (*Position, error) {
	return scanPosition(s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, positionID))
}

func (s *Service) ListOpenPositions(ctx context.Context, accountID string) ([]Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE account_id = $1 AND status = 'open'
		ORDER BY opened_at ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Service) ListOrders(ctx context.Context, accountID string, limit int) ([]Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}
