// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aitools-pro-billing/internal/config"
	"aitools-pro-billing/internal/domain/ports/adapter"
	"aitools-pro-billing/internal/domain/ports/repository"
	payAdapters "aitools-pro-billing/internal/infra/adapters/payment"
	"aitools-pro-billing/internal/infra/api"
	pg "aitools-pro-billing/internal/infra/db/postgres"
	"aitools-pro-billing/internal/infra/logging"
	"aitools-pro-billing/internal/infra/metrics"
	red "aitools-pro-billing/internal/infra/redis"
	"aitools-pro-billing/internal/infra/sched"
	"aitools-pro-billing/internal/usecase"
)

// Set via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no PII redaction)")
	mintToken := flag.Duration("mint-admin-token", 0, "print an admin API token valid for the given duration and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *mintToken > 0 {
		auth, err := api.NewAdminAuth(cfg.Admin.JWTSecret)
		if err != nil {
			log.Fatalf("admin auth: %v", err)
		}
		tok, err := auth.Mint("cli", *mintToken)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	checks := map[string]api.Pinger{"postgres": pool}

	// ---- Repositories ----
	eventRepo := pg.NewWebhookEventRepo(pool)
	var subRepo repository.SubscriberRepository = pg.NewSubscriberRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Redis (optional) ----
	var (
		locker  adapter.Locker
		limiter api.Limiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()

		checks["redis"] = redisClient
		locker = red.NewLocker(redisClient)
		limiter = red.NewRateLimiter(redisClient)
		subRepo = pg.NewSubscriberRepoCacheDecorator(subRepo, redisClient, cfg.Redis.TTL, logger)
	} else {
		logger.Warn().Msg("redis.url not set; running without cache, event lock and rate limit")
	}

	// ---- Use cases ----
	provider, err := payAdapters.NewPaystackWebhook(cfg.Paystack.SecretKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("paystack")
	}
	webhookUC := usecase.NewWebhookUseCase(provider, eventRepo, subRepo, tm, locker, logger)
	entitlementUC := usecase.NewEntitlementUseCase(subRepo, logger)

	// ---- Admin auth ----
	var auth *api.AdminAuth
	if cfg.Admin.JWTSecret != "" {
		if auth, err = api.NewAdminAuth(cfg.Admin.JWTSecret); err != nil {
			logger.Fatal().Err(err).Msg("admin auth")
		}
	} else {
		logger.Warn().Msg("admin.jwt_secret not set; admin API disabled")
	}

	// ---- HTTP server ----
	srv := api.NewServer(webhookUC, entitlementUC, auth, limiter, checks, api.Options{
		WebhookPath:       cfg.Paystack.WebhookPath,
		MaxBodyBytes:      cfg.Paystack.MaxBodyBytes,
		RequestTimeout:    cfg.Server.RequestTimeout,
		WebhookPerMinute:  cfg.RateLimit.WebhookPerMinute,
		DefaultStaleAfter: cfg.Scheduler.StaleAfter,
		TrustProxy:        cfg.Server.TrustProxy,
		Dev:               cfg.Runtime.Dev,
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("webhook_path", cfg.Paystack.WebhookPath).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// ---- Stale event monitor ----
	monitor := sched.NewStaleEventMonitor(eventRepo, cfg.Scheduler.StaleCheckInterval, cfg.Scheduler.StaleAfter,
		func() (int32, int32, int32) {
			st := pool.Stat()
			return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
		}, logger)
	go func() { _ = monitor.Run(ctx) }()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
