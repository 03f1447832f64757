package positions

import (
	"errors"
	"io"
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

type placeOrderRequest struct {
	AccountID    string           `json:"account_id"`
	SubaccountID string           `json:"subaccount_id"`
	Symbol       string           `json:"symbol"`
	Side         types.OrderSide  `json:"side"`
	Type         types.OrderType  `json:"type"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	FundType     types.FundType   `json:"fund_type"`
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, actorID string, actorType types.InitiatorType) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	result, err := h.svc.PlaceOrder(r.Context(), PlaceOrderRequest{
		AccountID:     req.AccountID,
		SubaccountID:  req.SubaccountID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Price:         req.Price,
		FundType:      req.FundType,
		InitiatorType: actorType,
		InitiatedBy:   actorID,
	})
	if err != nil {
		writePositionsError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, orderID, actorID string, actorType types.InitiatorType) {
	if err := h.svc.CancelOrder(r.Context(), orderID, actorID, actorType); err != nil {
		writePositionsError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(types.OrderStatusCancelled)})
}

func (h *Handler) Fill(w http.ResponseWriter, r *http.Request, orderID, actorID string, actorType types.InitiatorType) {
	p, err := h.svc.FillOrder(r.Context(), orderID, actorID, actorType)
	if err != nil {
		writePositionsError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	o, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		writePositionsError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request, accountID string) {
	out, err := h.svc.ListOrders(r.Context(), accountID, ledger.ParseLimit(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request, positionID string) {
	p, err := h.svc.GetPosition(r.Context(), positionID)
	if err != nil {
		writePositionsError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.svc.UpdatePnL(*p))
}

// ListOpen re-marks open positions against the live feed before returning
// them, so the caller sees current P&L rather than the last persisted mark.
func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request, accountID string) {
	out, err := h.svc.RefreshAccountPnL(r.Context(), accountID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type closeRequest struct {
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
}

// Close settles the position. An empty body or omitted quantity means a full
// close.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request, positionID, actorID string, actorType types.InitiatorType) {
	var req closeRequest
	if err := httputil.ReadJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	p, result, err := h.svc.ClosePosition(r.Context(), positionID, req.Quantity, actorID, actorType)
	if err != nil {
		writePositionsError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"position": p,
		"result":   result,
	})
}

func (h *Handler) Modify(w http.ResponseWriter, r *http.Request, positionID, actorID string, actorType types.InitiatorType) {
	var req ModifyRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	p, err := h.svc.ModifyPosition(r.Context(), positionID, req, actorID, actorType)
	if err != nil {
		writePositionsError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func writePositionsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidState):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNoMarketPrice):
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ledger.ErrInvalidFundType):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ErrInsufficientMargin):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	}
}
