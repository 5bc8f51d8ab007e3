package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"payrecon/internal/engine/provider"
	"payrecon/internal/engine/reconcile"
	"payrecon/internal/pkg/logger"
	"payrecon/internal/platform/config"
	"payrecon/internal/platform/database"
	"payrecon/internal/platform/repositories"
	"payrecon/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	once := flag.Bool("once", false, "Run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Logging)

	if cfg.Stripe.APIKey == "" {
		log.Fatal().Msg("stripe.api_key is not set")
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	txRepo := repositories.NewTransactionRepository(db)
	sweeper := workers.NewSweeper(txRepo, reconcile.NewLedger(txRepo), provider.New(cfg.Stripe.APIKey), cfg.Reconcile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		report, err := sweeper.SweepOnce(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("sweep failed")
		}
		log.Info().Int("checked", report.Checked).Int("applied", report.Applied).Int("errors", report.Errors).Msg("sweep finished")
		return
	}

	log.Info().
		Dur("interval", cfg.Reconcile.Interval).
		Dur("stale_after", cfg.Reconcile.StaleAfter).
		Msg("pending sweeper starting")
	sweeper.Run(ctx)
	log.Info().Msg("pending sweeper stopped")
}
