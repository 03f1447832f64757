// Package audit is the append-only record of every balance-affecting
// operation. Entries are hash-chained so the trail can back a replayer, and
// are written inside the same transaction as the mutation they describe.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeflow/internal/types"
)

type Entry struct {
	ID         string              `json:"id"`
	Sequence   int64               `json:"sequence"`
	ActorID    string              `json:"actor_id"`
	ActorType  types.InitiatorType `json:"actor_type"`
	Action     types.AuditAction   `json:"action"`
	TargetType string              `json:"target_type"`
	TargetID   string              `json:"target_id"`
	Details    map[string]any      `json:"details"`
	PrevHash   string              `json:"prev_hash,omitempty"`
	Hash       string              `json:"hash"`
	CreatedAt  time.Time           `json:"created_at"`
}

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// chain lock id; entries are serialized so the sequence and prev-hash chain
// stay gap-free across concurrent writers.
const chainLockID = 7301

// Record appends one entry inside tx. It must be called from the same
// transaction that performs the mutation the entry describes, so the entry
// can never outlive a rolled-back balance write.
func (s *Service) Record(ctx context.Context, tx pgx.Tx, e Entry) (string, error) {
	if e.Action == "" || e.TargetType == "" || e.TargetID == "" {
		return "", errors.New("audit entry requires action, target type and target id")
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", chainLockID); err != nil {
		return "", err
	}
	var prevHash *string
	err := tx.QueryRow(ctx, `
		SELECT encode(hash, 'hex') FROM audit_log ORDER BY sequence DESC LIMIT 1`).Scan(&prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	details, err := json.Marshal(e.Details)
	if err != nil {
		return "", err
	}
	var id string
	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO audit_log (actor_id, actor_type, action, target_type, target_id, details, prev_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, decode(nullif($7, ''), 'hex'), $8)
		RETURNING id, sequence`,
		e.ActorID, string(e.ActorType), string(e.Action), e.TargetType, e.TargetID,
		details, deref(prevHash), time.Now().UTC()).Scan(&id, &seq)
	if err != nil {
		return "", err
	}
	hash := ComputeHash(id, string(e.Action), e.TargetType, e.TargetID, details, seq, prevHash)
	if _, err := tx.Exec(ctx, "UPDATE audit_log SET hash = decode($1, 'hex') WHERE id = $2", hash, id); err != nil {
		return "", err
	}
	return id, nil
}

func ComputeHash(entryID, action, targetType, targetID string, details []byte, seq int64, prevHash *string) string {
	buf := entryID + "|" + action + "|" + targetType + "|" + targetID + "|" + string(details) + "|" + strconv.FormatInt(seq, 10) + "|"
	if prevHash != nil {
		buf += *prevHash
	}
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (s *Service) ListByTarget(ctx context.Context, targetType, targetID string, limit int) ([]Entry, error) {
	return s.list(ctx, `
		SELECT id, sequence, actor_id, actor_type, action, target_type, target_id, details,
		       COALESCE(encode(prev_hash, 'hex'), ''), COALESCE(encode(hash, 'hex'), ''), created_at
		FROM audit_log
		WHERE target_type = $1 AND target_id = $2
		ORDER BY sequence DESC
		LIMIT $3`, targetType, targetID, clampLimit(limit))
}

func (s *Service) ListByActor(ctx context.Context, actorID string, limit int) ([]Entry, error) {
	return s.list(ctx, `
		SELECT id, sequence, actor_id, actor_type, action, target_type, target_id, details,
		       COALESCE(encode(prev_hash, 'hex'), ''), COALESCE(encode(hash, 'hex'), ''), created_at
		FROM audit_log
		WHERE actor_id = $1
		ORDER BY sequence DESC
		LIMIT $2`, actorID, clampLimit(limit))
}

func (s *Service) list(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var actorType, action string
		var details []byte
		if err := rows.Scan(&e.ID, &e.Sequence, &e.ActorID, &actorType, &action,
			&e.TargetType, &e.TargetID, &details, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorType = types.InitiatorType(actorType)
		e.Action = types.AuditAction(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}
