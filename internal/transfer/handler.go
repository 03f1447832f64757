package transfer

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"tradeflow/internal/httputil"
	"tradeflow/internal/ledger"
	"tradeflow/internal/types"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createTransferRequest struct {
	SourceSubaccountID string          `json:"source_subaccount_id"`
	DestSubaccountID   string          `json:"dest_subaccount_id"`
	Amount             decimal.Decimal `json:"amount"`
	Notes              string          `json:"notes"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request, actorID string) {
	var req createTransferRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	t, err := h.svc.Create(r.Context(), CreateRequest{
		SourceSubaccountID: req.SourceSubaccountID,
		DestSubaccountID:   req.DestSubaccountID,
		Amount:             req.Amount,
		InitiatedBy:        actorID,
		Notes:              req.Notes,
	})
	if err != nil {
		writeTransferError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

// Execute runs the pending transfer. A rejected transfer comes back 200 with
// status rejected; only infrastructure failures are errors.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request, transferID, actorID string, actorType types.InitiatorType) {
	t, err := h.svc.Execute(r.Context(), transferID, Actor{ID: actorID, Type: actorType})
	if err != nil {
		writeTransferError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, transferID string) {
	t, err := h.svc.Get(r.Context(), transferID)
	if err != nil {
		writeTransferError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) ListByAccount(w http.ResponseWriter, r *http.Request, accountID string) {
	out, err := h.svc.ListByAccount(r.Context(), accountID, ledger.ParseLimit(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func writeTransferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrAlreadyExecuted):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSameSubaccount), errors.Is(err, ErrCrossAccount):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
	}
}
