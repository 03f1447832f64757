package transfer

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
	"tradeflow/internal/types"
)

type Service struct {
	pool   *pgxpool.Pool
	ledger *ledger.Service
	audit  *audit.Service
}

func NewService(pool *pgxpool.Pool, ledgerSvc *ledger.Service, auditSvc *audit.Service) *Service {
	return &Service{pool: pool, ledger: ledgerSvc, audit: auditSvc}
}

type CreateRequest struct {
	SourceSubaccountID string
	DestSubaccountID   string
	Amount             decimal.Decimal
	InitiatedBy        string
	Notes              string
}

// Create validates the request and inserts a pending transfer row. Execution
// is a separate step so the row fixes the request before any balance moves.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*InternalTransfer, error) {
	amount, err := NormalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if req.SourceSubaccountID == req.DestSubaccountID {
		return nil, ErrSameSubaccount
	}

	src, err := s.ledger.GetSubaccount(ctx, req.SourceSubaccountID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	dst, err := s.ledger.GetSubaccount(ctx, req.DestSubaccountID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if src.AccountID != dst.AccountID {
		return nil, ErrCrossAccount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t := InternalTransfer{
		AccountID:          src.AccountID,
		SourceSubaccountID: src.ID,
		DestSubaccountID:   dst.ID,
		Amount:             amount,
		Status:             types.TransferStatusPending,
		InitiatedBy:        req.InitiatedBy,
		Notes:              req.Notes,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO internal_transfers (account_id, source_subaccount_id, dest_subaccount_id, amount, status, initiated_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		t.AccountID, t.SourceSubaccountID, t.DestSubaccountID, t.Amount,
		string(t.Status), t.InitiatedBy, t.Notes, time.Now().UTC(),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &t, nil
}

// Actor identifies the staff member a mutation is attributed to.
type Actor struct {
	ID   string
	Type types.InitiatorType
}

// Execute runs a pending transfer to its terminal status. A rejection for
// insufficient balance is a successful outcome, reported via the returned
// transfer's status, not an error. Both balance writes, the status write and
// the audit entry commit together or not at all.
func (s *Service) Execute(ctx context.Context, transferID string, actor Actor) (*InternalTransfer, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.getForUpdate(ctx, tx, transferID)
	if err != nil {
		return nil, err
	}
	if err := t.Executable(); err != nil {
		return nil, err
	}

	src, dst, err := s.lockSubaccounts(ctx, tx, t)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			// Infrastructure failure, not a business rejection: the
			// transfer stays pending and only the failure is recorded.
			if auditErr := s.recordFailure(ctx, t, actor, err); auditErr != nil {
				return nil, auditErr
			}
			return nil, ErrNotFound
		}
		return nil, err
	}

	outcome := Settle(src, dst, t.Amount)
	now := time.Now().UTC()

	switch outcome.Status {
	case types.TransferStatusRejected:
		if _, err := tx.Exec(ctx, `
			UPDATE internal_transfers SET status = $1 WHERE id = $2`,
			string(types.TransferStatusRejected), t.ID); err != nil {
			return nil, err
		}
		t.Status = types.TransferStatusRejected
	case types.TransferStatusCompleted:
		if err := s.ledger.UpdateSubaccountBalance(ctx, tx, src.ID, src.Balance); err != nil {
			return nil, err
		}
		if err := s.ledger.UpdateSubaccountBalance(ctx, tx, dst.ID, dst.Balance); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE internal_transfers SET status = $1, completed_at = $2 WHERE id = $3`,
			string(types.TransferStatusCompleted), now, t.ID); err != nil {
			return nil, err
		}
		t.Status = types.TransferStatusCompleted
		t.CompletedAt = &now
	}

	action := types.AuditActionTransferComplete
	if t.Status == types.TransferStatusRejected {
		action = types.AuditActionTransferRejected
	}
	_, err = s.audit.Record(ctx, tx, audit.Entry{
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		Action:     action,
		TargetType: "internal_transfer",
		TargetID:   t.ID,
		Details: map[string]any{
			"source_subaccount_id": t.SourceSubaccountID,
			"dest_subaccount_id":   t.DestSubaccountID,
			"amount":               t.Amount.String(),
			"status":               string(t.Status),
			"source_before":        outcome.SourceBefore.String(),
			"source_after":         outcome.SourceAfter.String(),
			"dest_before":          outcome.DestBefore.String(),
			"dest_after":           outcome.DestAfter.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	metrics.Transfers.WithLabelValues(string(t.Status)).Inc()
	return t, nil
}

// lockSubaccounts takes both row locks in ascending-id order regardless of
// transfer direction, so two opposing transfers cannot deadlock.
func (s *Service) lockSubaccounts(ctx context.Context, tx pgx.Tx, t *InternalTransfer) (src, dst *ledger.Subaccount, err error) {
	first, second := t.SourceSubaccountID, t.DestSubaccountID
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]*ledger.Subaccount, 2)
	for _, id := range []string{first, second} {
		sa, err := s.ledger.GetSubaccountForUpdate(ctx, tx, id)
		if err != nil {
			return nil, nil, err
		}
		locked[id] = sa
	}
	return locked[t.SourceSubaccountID], locked[t.DestSubaccountID], nil
}

// recordFailure writes the "transfer failed" audit entry in its own
// transaction; the execution transaction is rolled back and the transfer row
// remains pending for retry.
func (s *Service) recordFailure(ctx context.Context, t *InternalTransfer, actor Actor, cause error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	_, err = s.audit.Record(ctx, tx, audit.Entry{
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		Action:     types.AuditActionTransferFailed,
		TargetType: "internal_transfer",
		TargetID:   t.ID,
		Details: map[string]any{
			"source_subaccount_id": t.SourceSubaccountID,
			"dest_subaccount_id":   t.DestSubaccountID,
			"amount":               t.Amount.String(),
			"error":                cause.Error(),
		},
	})
	if err != nil {
		return fmt.Errorf("record transfer failure: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Service) getForUpdate(ctx context.Context, tx pgx.Tx, transferID string) (*InternalTransfer, error) {
	var t InternalTransfer
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id, account_id, source_subaccount_id, dest_subaccount_id, amount, status, initiated_by, COALESCE(notes, ''), created_at, completed_at
		FROM internal_transfers
		WHERE id = $1
		FOR UPDATE`, transferID).Scan(
		&t.ID, &t.AccountID, &t.SourceSubaccountID, &t.DestSubaccountID,
		&t.Amount, &status, &t.InitiatedBy, &t.Notes, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Status = types.TransferStatus(status)
	return &t, nil
}

func (s *Service) Get(ctx context.Context, transferID string) (*InternalTransfer, error) {
	var t InternalTransfer
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, account_id, source_subaccount_id, dest_subaccount_id, amount, status, initiated_by, COALESCE(notes, ''), created_at, completed_at
		FROM internal_transfers
		WHERE id = $1`, transferID).Scan(
		&t.ID, &t.AccountID, &t.SourceSubaccountID, &t.DestSubaccountID,
		&t.Amount, &status, &t.InitiatedBy, &t.Notes, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Status = types.TransferStatus(status)
	return &t, nil
}

func (s *Service) ListByAccount(ctx context.Context, accountID string, limit int) ([]InternalTransfer, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, source_subaccount_id, dest_subaccount_id, amount, status, initiated_by, COALESCE(notes, ''), created_at, completed_at
		FROM internal_transfers
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InternalTransfer
	for rows.Next() {
		var t InternalTransfer
		var status string
		if err := rows.Scan(&t.ID, &t.AccountID, &t.SourceSubaccountID, &t.DestSubaccountID,
			&t.Amount, &status, &t.InitiatedBy, &t.Notes, &t.CreatedAt, &t.CompletedAt); err != nil {
			return nil, err
		}
		t.Status = types.TransferStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}
