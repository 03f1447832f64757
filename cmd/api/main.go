package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeflow/internal/audit"
	"tradeflow/internal/auth"
	"tradeflow/internal/clients"
	"tradeflow/internal/config"
	"tradeflow/internal/db"
	"tradeflow/internal/httpserver"
	"tradeflow/internal/ledger"
	"tradeflow/internal/positions"
	"tradeflow/internal/pricefeed"
	"tradeflow/internal/transfer"
	"tradeflow/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	quotes := pricefeed.NewCache()
	if cfg.PriceFeedURL != "" {
		sub := pricefeed.NewSubscriber(cfg.PriceFeedURL, quotes, cfg.PriceFeedTimeout)
		go sub.Run(ctx)
	} else {
		log.Println("pricefeed: no PRICEFEED_URL set, market orders will be rejected")
	}

	ledgerSvc := ledger.NewService(pool)
	auditSvc := audit.NewService(pool)
	clientStore := clients.NewStore(pool)
	transferSvc := transfer.NewService(pool, ledgerSvc, auditSvc)
	positionsSvc := positions.NewService(pool, ledgerSvc, auditSvc, quotes, cfg.Commission())
	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:      auth.NewHandler(authSvc),
		LedgerHandler:    ledger.NewHandler(ledgerSvc, auditSvc),
		TransferHandler:  transfer.NewHandler(transferSvc),
		PositionsHandler: positions.NewHandler(positionsSvc),
		AuditHandler:     audit.NewHandler(auditSvc),
		WebhookHandler:   webhook.NewHandler(pool, ledgerSvc, clientStore, auditSvc, cfg.WebhookSecret),
		AuthService:      authSvc,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Printf("server listening on %s", cfg.HTTPAddr)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
