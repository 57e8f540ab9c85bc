package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"paygate/internal/config"
	"paygate/internal/core/reconcile"
	httpx "paygate/internal/http"
	"paygate/internal/provider"
	"paygate/internal/provider/banktransfer"
	"paygate/internal/provider/stripe"
	"paygate/internal/services/payment"
	"paygate/internal/services/tenant"
	"paygate/internal/services/webhook"
	"paygate/internal/store/postgres"
	redisstore "paygate/internal/store/redis"
	"paygate/internal/vault"
)

func main() {
	cfg := config.Load()
	if cfg.App.Env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := postgres.MustOpen(ctx, cfg.DB.DSN)
	defer pool.Close()
	redisClient := redisstore.MustOpen(ctx, cfg.Redis.Addr)
	defer redisClient.Close()

	v, err := vault.New(cfg.Sec.AESKey)
	if err != nil {
		log.Fatal().Err(err).Msg("vault init failed")
	}

	// the provider set is closed: adding one is a code change here
	registry := provider.NewRegistry(
		stripe.New(cfg.Provider.CallTimeout),
		banktransfer.New(),
	)

	txns := postgres.NewTransactionRepository(pool)
	configs := postgres.NewProviderConfigRepository(pool)
	methods := postgres.NewMethodRepository(pool)
	tenants := postgres.NewTenantRepository(pool)
	events := postgres.NewWebhookEventRepository(pool)

	payments := payment.NewService(registry, v, txns, configs, methods, cfg.Provider.CallTimeout)
	tenantSvc := tenant.NewService(registry, v, tenants, configs, methods)
	webhookSvc := webhook.NewService(registry, v, payments, configs, txns, events,
		redisstore.NewDedup(redisClient, 24*time.Hour))

	worker := reconcile.NewWorker(payments, txns, cfg.Reconcile.PollEvery, cfg.Reconcile.StaleAfter, cfg.Reconcile.Batch)
	go worker.Run(ctx)

	r := httpx.NewRouter(httpx.RouterDependencies{
		Config:         cfg,
		PaymentService: payments,
		TenantService:  tenantSvc,
		WebhookService: webhookSvc,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("paygate API listening on :%s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	log.Info().Msg("server stopped")
}
