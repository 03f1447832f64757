package audit

import (
	"net/http"
	"strconv"

	"tradeflow/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ByTarget returns the trail for one entity, newest first.
func (h *Handler) ByTarget(w http.ResponseWriter, r *http.Request, targetType, targetID string) {
	entries, err := h.svc.ListByTarget(r.Context(), targetType, targetID, parseLimit(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func (h *Handler) ByActor(w http.ResponseWriter, r *http.Request, actorID string) {
	entries, err := h.svc.ListByActor(r.Context(), actorID, parseLimit(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}
