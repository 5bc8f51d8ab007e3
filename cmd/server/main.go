package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"payrecon/internal/api"
	"payrecon/internal/api/handlers"
	"payrecon/internal/api/middleware"
	"payrecon/internal/engine/reconcile"
	"payrecon/internal/engine/webhooks"
	"payrecon/internal/pkg/logger"
	"payrecon/internal/platform/audit"
	"payrecon/internal/platform/auth"
	"payrecon/internal/platform/config"
	"payrecon/internal/platform/database"
	"payrecon/internal/platform/repositories"
	"payrecon/migrations"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	migrate := flag.Bool("migrate", false, "Apply pending migrations before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Logging)

	if cfg.Stripe.WebhookSecret == "" {
		log.Fatal().Msg("stripe.webhook_secret is not set")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is not set")
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if *migrate {
		applied, err := migrations.Apply(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		log.Info().Strs("applied", applied).Msg("migrations applied")
	}

	// Repositories
	txRepo := repositories.NewTransactionRepository(db)
	eventRepo := repositories.NewEventRepository(db)

	// Reconciliation pipeline
	dispatcher := reconcile.NewDispatcher()
	if err := reconcile.RegisterDefaults(dispatcher, reconcile.NewHandlers(reconcile.NewLedger(txRepo))); err != nil {
		log.Fatal().Err(err).Msg("failed to register event handlers")
	}
	verifier := webhooks.NewVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.Tolerance)
	receiver := reconcile.NewReceiver(verifier, eventRepo, dispatcher)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLog := audit.NewLogger(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.APIReadPerMinute)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	go rateLimiter.CleanupLoop(10*time.Minute, stopCleanup)

	deps := &api.Dependencies{
		WebhookHandler:     handlers.NewWebhookHandler(receiver, cfg.Server.MaxBodyBytes),
		TransactionHandler: handlers.NewTransactionHandler(txRepo, auditLog),
		EventHandler:       handlers.NewEventHandler(eventRepo, auditLog),
		HealthHandler:      handlers.NewHealthHandler(db, receiver.EventTypes),
		MetricsHandler:     handlers.NewMetricsHandler(receiver.Stats),
		AuthMiddleware:     authMiddleware,
		RateLimiter:        rateLimiter,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", srv.Addr).Strs("event_types", receiver.EventTypes()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
