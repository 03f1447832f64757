package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tradeflow/internal/audit"
	"tradeflow/internal/httputil"
	"tradeflow/internal/metrics"
	"tradeflow/internal/types"
)

type Handler struct {
	svc   *Service
	audit *audit.Service
}

func NewHandler(svc *Service, auditSvc *audit.Service) *Handler {
	return &Handler{svc: svc, audit: auditSvc}
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request, accountID string) {
	acc, err := h.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}

// Balances returns the per-fund breakdown plus the derived total. The total
// is computed on the way out, never read from storage.
func (h *Handler) Balances(w http.ResponseWriter, r *http.Request, accountID string) {
	acc, err := h.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"account_id": acc.ID,
		"real":       acc.RealBalance,
		"demo":       acc.DemoBalance,
		"bonus":      acc.BonusBalance,
		"balance":    acc.Balance(),
	})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request, accountID string) {
	m, err := h.svc.Metrics(r.Context(), accountID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

type adjustRequest struct {
	FundType types.FundType  `json:"fund_type"`
	Amount   decimal.Decimal `json:"amount"`
	Notes    string          `json:"notes"`
}

// Adjust is the manual balance correction path for staff. The delta may be
// negative but may not take the fund below zero.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request, accountID, actorID string, actorType types.InitiatorType) {
	var req adjustRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.Amount.IsZero() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "amount must be non-zero"})
		return
	}

	ctx := r.Context()
	tx, err := h.svc.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	defer tx.Rollback(ctx)

	change, err := h.svc.ApplyFundChange(ctx, tx, accountID, req.FundType, req.Amount, ChangeOptions{
		RequireNonNegative: true,
		MirrorMain:         true,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	_, err = h.svc.CreateTransaction(ctx, tx, Transaction{
		AccountID: accountID,
		Type:      types.TransactionTypeAdjustment,
		FundType:  req.FundType,
		Amount:    req.Amount,
		Status:    types.TransactionStatusCompleted,
		Notes:     req.Notes,
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	_, err = h.audit.Record(ctx, tx, audit.Entry{
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     types.AuditActionFundChange,
		TargetType: "account",
		TargetID:   accountID,
		Details: map[string]any{
			"fund_type":      string(req.FundType),
			"amount":         req.Amount.String(),
			"fund_before":    change.FundBefore.String(),
			"fund_after":     change.FundAfter.String(),
			"balance_before": change.BalanceBefore.String(),
			"balance_after":  change.BalanceAfter.String(),
			"notes":          req.Notes,
		},
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := tx.Commit(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	metrics.FundChanges.WithLabelValues(string(req.FundType), "adjustment").Inc()
	httputil.WriteJSON(w, http.StatusOK, change)
}

func (h *Handler) ListSubaccounts(w http.ResponseWriter, r *http.Request, accountID string) {
	subs, err := h.svc.ListSubaccounts(r.Context(), accountID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, subs)
}

type createSubaccountRequest struct {
	Name string `json:"name"`
}

func (h *Handler) CreateSubaccount(w http.ResponseWriter, r *http.Request, accountID string) {
	var req createSubaccountRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.Name == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "name is required"})
		return
	}
	sa, err := h.svc.CreateSubaccount(r.Context(), accountID, req.Name)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sa)
}

type leverageRequest struct {
	Leverage int `json:"leverage"`
}

func (h *Handler) UpdateLeverage(w http.ResponseWriter, r *http.Request, accountID string) {
	var req leverageRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.svc.UpdateLeverage(r.Context(), accountID, req.Leverage); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"leverage": req.Leverage})
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidFundType):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInsufficientFunds):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
	}
}

// ParseLimit reads the optional ?limit query parameter shared by the list
// endpoints.
func ParseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
