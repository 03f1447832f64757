package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradeflow/internal/types"
)

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	return s.getAccount(ctx, s.pool, accountID, false)
}

// GetAccountForUpdate takes the account row lock for the duration of tx. All
// read-modify-write sequences on balances go through it.
func (s *Service) GetAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (*Account, error) {
	return s.getAccount(ctx, tx, accountID, true)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Service) getAccount(ctx context.Context, q querier, accountID string, forUpdate bool) (*Account, error) {
	query := `
		SELECT id, client_id, real_balance, demo_balance, bonus_balance, leverage, created_at, updated_at
		FROM accounts
		WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var a Account
	err := q.QueryRow(ctx, query, accountID).Scan(
		&a.ID, &a.ClientID, &a.RealBalance, &a.DemoBalance, &a.BonusBalance,
		&a.Leverage, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Service) GetAccountByClientEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx, `
		SELECT a.id, a.client_id, a.real_balance, a.demo_balance, a.bonus_balance, a.leverage, a.created_at, a.updated_at
		FROM accounts a
		JOIN clients c ON c.id = a.client_id
		WHERE lower(c.email) = lower($1)`, email).Scan(
		&a.ID, &a.ClientID, &a.RealBalance, &a.DemoBalance, &a.BonusBalance,
		&a.Leverage, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

type ChangeOptions struct {
	// RequireNonNegative makes the change fail with ErrInsufficientFunds
	// instead of producing a negative fund balance. Withdrawal-class
	// callers must set it; deposit-class callers must not.
	RequireNonNegative bool
	// MirrorMain applies the same delta to the account's main subaccount,
	// which mirrors real-fund movements for legacy compatibility.
	MirrorMain bool
}

// ApplyFundChange performs the arithmetic and total recompute for a single
// fund mutation inside tx and returns the before/after snapshot the caller
// must pair with an audit entry. Sufficiency rules beyond non-negativity
// belong to the caller.
func (s *Service) ApplyFundChange(ctx context.Context, tx pgx.Tx, accountID string, ft types.FundType, delta decimal.Decimal, opts ChangeOptions) (FundChange, error) {
	if !types.ValidFundType(ft) {
		return FundChange{}, ErrInvalidFundType
	}
	acc, err := s.GetAccountForUpdate(ctx, tx, accountID)
	if err != nil {
		return FundChange{}, err
	}
	change, err := acc.Apply(ft, delta, opts.RequireNonNegative)
	if err != nil {
		return FundChange{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE accounts
		SET real_balance = $1, demo_balance = $2, bonus_balance = $3, updated_at = $4
		WHERE id = $5`,
		acc.RealBalance, acc.DemoBalance, acc.BonusBalance, time.Now().UTC(), accountID)
	if err != nil {
		return FundChange{}, err
	}
	if opts.MirrorMain && ft == types.FundTypeReal {
		if err := s.mirrorMainSubaccount(ctx, tx, accountID, delta); err != nil {
			return FundChange{}, err
		}
	}
	return change, nil
}

func (s *Service) mirrorMainSubaccount(ctx context.Context, tx pgx.Tx, accountID string, delta decimal.Decimal) error {
	var id string
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT id, balance FROM subaccounts
		WHERE account_id = $1 AND is_main = TRUE
		FOR UPDATE`, accountID).Scan(&id, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Accounts created before subaccount segmentation have no
			// main subaccount; nothing to mirror.
			return nil
		}
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE subaccounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		balance.Add(delta), time.Now().UTC(), id)
	return err
}

func (s *Service) GetSubaccount(ctx context.Context, subaccountID string) (*Subaccount, error) {
	var sa Subaccount
	err := s.pool.QueryRow(ctx, `
		SELECT id, account_id, name, balance, is_main, created_at, updated_at
		FROM subaccounts
		WHERE id = $1`, subaccountID).Scan(
		&sa.ID, &sa.AccountID, &sa.Name, &sa.Balance, &sa.IsMain, &sa.CreatedAt, &sa.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sa, nil
}

func (s *Service) GetSubaccountForUpdate(ctx context.Context, tx pgx.Tx, subaccountID string) (*Subaccount, error) {
	var sa Subaccount
	err := tx.QueryRow(ctx, `
		SELECT id, account_id, name, balance, is_main, created_at, updated_at
		FROM subaccounts
		WHERE id = $1
		FOR UPDATE`, subaccountID).Scan(
		&sa.ID, &sa.AccountID, &sa.Name, &sa.Balance, &sa.IsMain, &sa.CreatedAt, &sa.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sa, nil
}

func (s *Service) UpdateSubaccountBalance(ctx context.Context, tx pgx.Tx, subaccountID string, balance decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `
		UPDATE subaccounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		balance, time.Now().UTC(), subaccountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ListSubaccounts(ctx context.Context, accountID string) ([]Subaccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, name, balance, is_main, created_at, updated_at
		FROM subaccounts
		WHERE account_id = $1
		ORDER BY is_main DESC, created_at ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Subaccount, 0, 4)
	for rows.Next() {
		var sa Subaccount
		if err := rows.Scan(&sa.ID, &sa.AccountID, &sa.Name, &sa.Balance, &sa.IsMain, &sa.CreatedAt, &sa.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

func (s *Service) CreateSubaccount(ctx context.Context, accountID, name string) (*Subaccount, error) {
	var sa Subaccount
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subaccounts (account_id, name, balance, is_main)
		VALUES ($1, $2, 0, FALSE)
		RETURNING id, account_id, name, balance, is_main, created_at, updated_at`,
		accountID, name).Scan(
		&sa.ID, &sa.AccountID, &sa.Name, &sa.Balance, &sa.IsMain, &sa.CreatedAt, &sa.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

func (s *Service) CreateTransaction(ctx context.Context, tx pgx.Tx, t Transaction) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO transactions (account_id, type, fund_type, amount, status, external_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		RETURNING id`,
		t.AccountID, string(t.Type), string(t.FundType), t.Amount, string(t.Status),
		t.ExternalID, t.Notes, time.Now().UTC()).Scan(&id)
	return id, err
}

// Metrics derives equity, margin and free margin from the persisted balance
// plus the open positions' last marked unrealized P&L and held margin.
func (s *Service) Metrics(ctx context.Context, accountID string) (Metrics, error) {
	return s.metrics(ctx, s.pool, accountID, false)
}

// MetricsForUpdate computes the same figures inside tx with the account row
// locked, for gates that must not race concurrent balance writes.
func (s *Service) MetricsForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (Metrics, error) {
	return s.metrics(ctx, tx, accountID, true)
}

func (s *Service) metrics(ctx context.Context, q querier, accountID string, forUpdate bool) (Metrics, error) {
	acc, err := s.getAccount(ctx, q, accountID, forUpdate)
	if err != nil {
		return Metrics{}, err
	}
	var unrealized, margin decimal.Decimal
	err = q.QueryRow(ctx, `
		SELECT COALESCE(SUM(unrealized_pnl), 0), COALESCE(SUM(margin), 0)
		FROM positions
		WHERE account_id = $1 AND status = 'open'`, accountID).Scan(&unrealized, &margin)
	if err != nil {
		return Metrics{}, err
	}
	return ComputeMetrics(acc.Balance(), unrealized, margin), nil
}

func (s *Service) UpdateLeverage(ctx context.Context, accountID string, leverage int) error {
	if !ValidLeverage(leverage) {
		return errors.New("leverage must be within 1..500")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET leverage = $1, updated_at = $2 WHERE id = $3`,
		leverage, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
