// Package clients holds the client records the ledger hangs off: contact
// identity, KYC status and the funding milestones (first and second deposit)
// retention reporting keys on.
package clients

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradeflow/internal/types"
)

var ErrNotFound = errors.New("client not found")

type Client struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	KYCStatus string    `json:"kyc_status"`
	CreatedAt time.Time `json:"created_at"`

	// FTD: first funded deposit, set exactly once.
	FTDMarked   bool             `json:"ftd_marked"`
	FTDAmount   *decimal.Decimal `json:"ftd_amount,omitempty"`
	FTDFundType *types.FundType  `json:"ftd_fund_type,omitempty"`
	FTDDate     *time.Time       `json:"ftd_date,omitempty"`

	// STD: second deposit, tracked for retention performance.
	STDMarked bool       `json:"std_marked"`
	STDDate   *time.Time `json:"std_date,omitempty"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const clientColumns = `id, email, first_name, last_name, kyc_status, created_at,
	ftd_marked, ftd_amount, ftd_fund_type, ftd_date, std_marked, std_date`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var ftdFundType *string
	err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.KYCStatus, &c.CreatedAt,
		&c.FTDMarked, &c.FTDAmount, &ftdFundType, &c.FTDDate, &c.STDMarked, &c.STDDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if ftdFundType != nil {
		ft := types.FundType(*ftdFundType)
		c.FTDFundType = &ft
	}
	return &c, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*Client, error) {
	return scanClient(s.pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE lower(email) = lower($1)`, email))
}

func (s *Store) Get(ctx context.Context, clientID string) (*Client, error) {
	return scanClient(s.pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = $1`, clientID))
}

// MarkFirstDeposit sets the FTD marker. The guard in the WHERE clause makes
// it a no-op once marked; it reports whether this call did the marking.
func (s *Store) MarkFirstDeposit(ctx context.Context, tx pgx.Tx, clientID string, amount decimal.Decimal, fundType types.FundType, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE clients
		SET ftd_marked = TRUE, ftd_amount = $1, ftd_fund_type = $2, ftd_date = $3
		WHERE id = $4 AND ftd_marked = FALSE`,
		amount, string(fundType), at, clientID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) MarkSecondDeposit(ctx context.Context, tx pgx.Tx, clientID string, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE clients
		SET std_marked = TRUE, std_date = $1
		WHERE id = $2 AND ftd_marked = TRUE AND std_marked = FALSE`,
		at, clientID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) UpdateKYCStatus(ctx context.Context, clientID, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE clients SET kyc_status = $1 WHERE id = $2`, status, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
