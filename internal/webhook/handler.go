// Package webhook translates external platform events into ledger mutations.
// It is an inbound event source with a delivery contract: signed payloads,
// idempotent by external transaction id.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradeflow/internal/audit"
	"tradeflow/internal/clients"
	"tradeflow/internal/httputil"
	"tradeflow/internal/ledger"
	"tradeflow/internal/metrics"
	"tradeflow/internal/types"
)

const maxPayloadBytes = 1 << 20

type Handler struct {
	pool    *pgxpool.Pool
	ledger  *ledger.Service
	clients *clients.Store
	audit   *audit.Service
	secret  []byte
}

func NewHandler(pool *pgxpool.Pool, ledgerSvc *ledger.Service, clientStore *clients.Store, auditSvc *audit.Service, secret string) *Handler {
	return &Handler{
		pool:    pool,
		ledger:  ledgerSvc,
		clients: clientStore,
		audit:   auditSvc,
		secret:  []byte(secret),
	}
}

type platformEvent struct {
	Event         string `json:"event"`
	TransactionID string `json:"transaction_id"`
	Email         string `json:"email"`
	Amount        string `json:"amount"`
	KYCStatus     string `json:"kyc_status"`
}

type eventResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Platform is the single intake endpoint for platform events. Deposits and
// withdrawals target the real fund; demo and bonus money never enters or
// leaves through the platform.
func (h *Handler) Platform(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "unreadable body"})
		return
	}
	if !VerifySignature(h.secret, body, r.Header.Get("X-Webhook-Signature")) {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid signature"})
		return
	}

	var ev platformEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "malformed payload"})
		return
	}

	switch ev.Event {
	case "deposit.completed":
		h.handleFundMovement(r.Context(), w, ev, true)
	case "withdrawal.completed":
		h.handleFundMovement(r.Context(), w, ev, false)
	case "kyc.updated":
		h.handleKYC(r.Context(), w, ev)
	default:
		metrics.WebhookEvents.WithLabelValues(ev.Event, "ignored").Inc()
		httputil.WriteJSON(w, http.StatusOK, eventResponse{Status: "ignored"})
	}
}

func (h *Handler) handleFundMovement(ctx context.Context, w http.ResponseWriter, ev platformEvent, isDeposit bool) {
	eventName := "withdrawal.completed"
	txType := types.TransactionTypeWithdrawal
	if isDeposit {
		eventName = "deposit.completed"
		txType = types.TransactionTypeDeposit
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(ev.Amount))
	if err != nil || !amount.GreaterThan(decimal.Zero) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	if ev.Email == "" || ev.TransactionID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "email and transaction_id are required"})
		return
	}

	client, err := h.clients.GetByEmail(ctx, ev.Email)
	if err != nil {
		if errors.Is(err, clients.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "unknown client"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	account, err := h.ledger.GetAccountByClientEmail(ctx, ev.Email)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "no account for client"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}

	seen, err := h.alreadyProcessed(ctx, ev.TransactionID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if seen {
		metrics.WebhookEvents.WithLabelValues(eventName, "duplicate").Inc()
		httputil.WriteJSON(w, http.StatusOK, eventResponse{Status: "duplicate"})
		return
	}

	delta := amount
	if !isDeposit {
		delta = amount.Neg()
	}

	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	defer tx.Rollback(ctx)

	// The rejection payload must reflect the balance at decision time, so the
	// row lock is taken before the change is evaluated.
	locked, err := h.ledger.GetAccountForUpdate(ctx, tx, account.ID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}

	change, err := h.ledger.ApplyFundChange(ctx, tx, account.ID, types.FundTypeReal, delta, ledger.ChangeOptions{
		// Only real funds are withdrawable, and a withdrawal may not
		// overdraw them even when the total balance would cover it.
		RequireNonNegative: !isDeposit,
		MirrorMain:         true,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			h.rejectWithdrawal(ctx, w, tx, locked, client, ev, amount)
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}

	_, err = h.ledger.CreateTransaction(ctx, tx, ledger.Transaction{
		AccountID:  account.ID,
		Type:       txType,
		FundType:   types.FundTypeReal,
		Amount:     amount,
		Status:     types.TransactionStatusCompleted,
		ExternalID: ev.TransactionID,
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	_, err = h.audit.Record(ctx, tx, audit.Entry{
		ActorID:    client.ID,
		ActorType:  types.InitiatorClient,
		Action:     types.AuditActionWebhookEvent,
		TargetType: "account",
		TargetID:   account.ID,
		Details: map[string]any{
			"event":          eventName,
			"external_id":    ev.TransactionID,
			"amount":         amount.String(),
			"fund_type":      string(types.FundTypeReal),
			"fund_before":    change.FundBefore.String(),
			"fund_after":     change.FundAfter.String(),
			"balance_before": change.BalanceBefore.String(),
			"balance_after":  change.BalanceAfter.String(),
		},
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}

	if isDeposit {
		if err := h.markDepositMilestones(ctx, tx, client, amount); err != nil {
			httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	metrics.WebhookEvents.WithLabelValues(eventName, "completed").Inc()
	metrics.FundChanges.WithLabelValues(string(types.FundTypeReal), string(txType)).Inc()
	log.Printf("webhook: %s %s USD for account %s (external id %s)", eventName, amount.StringFixed(2), account.ID, ev.TransactionID)
	httputil.WriteJSON(w, http.StatusOK, eventResponse{Status: "completed"})
}

// rejectionDetails is the audit payload for a refused withdrawal: the
// attempted amount and the real balance that was actually available at
// decision time.
func rejectionDetails(ev platformEvent, attempted, available decimal.Decimal) map[string]any {
	return map[string]any{
		"event":            "withdrawal.completed",
		"external_id":      ev.TransactionID,
		"status":           "rejected",
		"attempted_amount": attempted.String(),
		"real_balance":     available.String(),
	}
}

// rejectWithdrawal fixes the denied attempt as a rejected transaction plus an
// audit entry. The account must be the row-locked read from the same
// transaction. A business rejection is a normal outcome: the response is 200
// with status rejected, not an error.
func (h *Handler) rejectWithdrawal(ctx context.Context, w http.ResponseWriter, tx pgx.Tx, account *ledger.Account, client *clients.Client, ev platformEvent, amount decimal.Decimal) {
	_, err := h.ledger.CreateTransaction(ctx, tx, ledger.Transaction{
		AccountID:  account.ID,
		Type:       types.TransactionTypeWithdrawal,
		FundType:   types.FundTypeReal,
		Amount:     amount,
		Status:     types.TransactionStatusRejected,
		ExternalID: ev.TransactionID,
		Notes:      "insufficient real balance",
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	_, err = h.audit.Record(ctx, tx, audit.Entry{
		ActorID:    client.ID,
		ActorType:  types.InitiatorClient,
		Action:     types.AuditActionWebhookEvent,
		TargetType: "account",
		TargetID:   account.ID,
		Details:    rejectionDetails(ev, amount, account.RealBalance),
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := tx.Commit(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	metrics.WebhookEvents.WithLabelValues("withdrawal.completed", "rejected").Inc()
	httputil.WriteJSON(w, http.StatusOK, eventResponse{Status: "rejected", Detail: "insufficient funds"})
}

// markDepositMilestones flips the FTD marker on the first completed deposit
// and the STD marker on the second. FTD can trigger a team reassignment
// downstream; that routing belongs to the CRM layer, not the ledger.
func (h *Handler) markDepositMilestones(ctx context.Context, tx pgx.Tx, client *clients.Client, amount decimal.Decimal) error {
	now := time.Now().UTC()
	marked, err := h.clients.MarkFirstDeposit(ctx, tx, client.ID, amount, types.FundTypeReal, now)
	if err != nil {
		return err
	}
	if marked {
		_, err = h.audit.Record(ctx, tx, audit.Entry{
			ActorID:    client.ID,
			ActorType:  types.InitiatorClient,
			Action:     types.AuditActionFTDMarked,
			TargetType: "client",
			TargetID:   client.ID,
			Details: map[string]any{
				"amount":    amount.String(),
				"fund_type": string(types.FundTypeReal),
				"date":      now,
			},
		})
		return err
	}
	_, err = h.clients.MarkSecondDeposit(ctx, tx, client.ID, now)
	return err
}

func (h *Handler) handleKYC(ctx context.Context, w http.ResponseWriter, ev platformEvent) {
	if ev.Email == "" || ev.KYCStatus == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "email and kyc_status are required"})
		return
	}
	client, err := h.clients.GetByEmail(ctx, ev.Email)
	if err != nil {
		if errors.Is(err, clients.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "unknown client"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.clients.UpdateKYCStatus(ctx, client.ID, ev.KYCStatus); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	metrics.WebhookEvents.WithLabelValues("kyc.updated", "completed").Inc()
	httputil.WriteJSON(w, http.StatusOK, eventResponse{Status: "completed"})
}

func (h *Handler) alreadyProcessed(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := h.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM transactions WHERE external_id = $1)`, externalID).Scan(&exists)
	return exists, err
}
