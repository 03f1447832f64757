package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradeflow/internal/audit"
	"tradeflow/internal/auth"
	"tradeflow/internal/httputil"
	"tradeflow/internal/ledger"
	"tradeflow/internal/positions"
	"tradeflow/internal/transfer"
	"tradeflow/internal/webhook"
)

type RouterDeps struct {
	AuthHandler      *auth.Handler
	LedgerHandler    *ledger.Handler
	TransferHandler  *transfer.Handler
	PositionsHandler *positions.Handler
	AuditHandler     *audit.Handler
	WebhookHandler   *webhook.Handler
	AuthService      *auth.Service
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", d.AuthHandler.Login)

		// Signed by the platform, not by a staff token.
		r.Post("/webhooks/platform", d.WebhookHandler.Platform)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))

			r.Route("/accounts/{id}", func(r chi.Router) {
				r.Get("/", func(w http.ResponseWriter, r *http.Request) {
					d.LedgerHandler.GetAccount(w, r, chi.URLParam(r, "id"))
				})
				r.Get("/balances", func(w http.ResponseWriter, r *http.Request) {
					d.LedgerHandler.Balances(w, r, chi.URLParam(r, "id"))
				})
				r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
					d.LedgerHandler.Metrics(w, r, chi.URLParam(r, "id"))
				})
				r.Get("/subaccounts", func(w http.ResponseWriter, r *http.Request) {
					d.LedgerHandler.ListSubaccounts(w, r, chi.URLParam(r, "id"))
				})
				r.Post("/subaccounts", func(w http.ResponseWriter, r *http.Request) {
					d.LedgerHandler.CreateSubaccount(w, r, chi.URLParam(r, "id"))
				})
				r.Get("/transfers", func(w http.ResponseWriter, r *http.Request) {
					d.TransferHandler.ListByAccount(w, r, chi.URLParam(r, "id"))
				})
				r.Get("/orders", func(w http.ResponseWriter, r *http.Request) {
					d.PositionsHandler.ListOrders(w, r, chi.URLParam(r, "id"))
				})
				r.Get("/positions", func(w http.ResponseWriter, r *http.Request) {
					d.PositionsHandler.ListOpen(w, r, chi.URLParam(r, "id"))
				})
				r.With(RequireCapability(auth.CapBalanceAdjust)).Post("/adjust", func(w http.ResponseWriter, r *http.Request) {
					ident, ok := IdentityFrom(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.LedgerHandler.Adjust(w, r, chi.URLParam(r, "id"), ident.UserID, ident.Role)
				})
				r.With(RequireCapability(auth.CapBalanceAdjust)).Put("/leverage", func(w http.ResponseWriter, r *http.Request) {
					d.LedgerHandler.UpdateLeverage(w, r, chi.URLParam(r, "id"))
				})
			})

			r.Route("/transfers", func(r chi.Router) {
				r.Post("/", func(w http.ResponseWriter, r *http.Request) {
					ident, ok := IdentityFrom(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.TransferHandler.Create(w, r, ident.UserID)
				})
				r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
					d.TransferHandler.Get(w, r, chi.URLParam(r, "id"))
				})
				r.With(RequireCapability(auth.CapTransferExecute)).Post("/{id}/execute", func(w http.ResponseWriter, r *http.Request) {
					ident, ok := IdentityFrom(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.TransferHandler.Execute(w, r, chi.URLParam(r, "id"), ident.UserID, ident.Role)
				})
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", func(w http.ResponseWriter, r *http.Request) {
					ident, ok := IdentityFrom(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.PositionsHandler.Place(w, r, ident.UserID, ident.Role)
				})
				r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
					d.PositionsHandler.GetOrder(w, r, chi.URLParam(r, "id"))
				})
				r.Post("/{id}/fill", func(w http.ResponseWriter, r *http.Request) {
					ident, ok := IdentityFrom(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.PositionsHandler.Fill(w, r, chi.URLParam(r, "id"), ident.UserID, ident.Role)
				})
				r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
					ident, ok := IdentityFrom(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.PositionsHandler.Cancel(w, r, chi.URLParam(r, "id"), ident.UserID, ident.Role)
				})
			})

			r.Route("/positions", func(r chi.Router) {
				r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
					d.PositionsHandler.GetPosition(w, r, chi.URLParam(r, "id"))
				})
				r.Post("/{id}/close", func(w http.ResponseWriter, r *http.Request) {
					ident, ok := IdentityFrom(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.PositionsHandler.Close(w, r, chi.URLParam(r, "id"), ident.UserID, ident.Role)
				})
				r.With(RequireCapability(auth.CapPositionModify)).Patch("/{id}", func(w http.ResponseWriter, r *http.Request) {
					ident, ok := IdentityFrom(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.PositionsHandler.Modify(w, r, chi.URLParam(r, "id"), ident.UserID, ident.Role)
				})
			})

			r.Route("/audit", func(r chi.Router) {
				r.Use(RequireCapability(auth.CapAuditRead))
				r.Get("/actors/{id}", func(w http.ResponseWriter, r *http.Request) {
					d.AuditHandler.ByActor(w, r, chi.URLParam(r, "id"))
				})
				r.Get("/{targetType}/{targetID}", func(w http.ResponseWriter, r *http.Request) {
					d.AuditHandler.ByTarget(w, r, chi.URLParam(r, "targetType"), chi.URLParam(r, "targetID"))
				})
			})
		})
	})

	return r
}
