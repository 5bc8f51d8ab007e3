package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"payrecon/internal/engine/reconcile"
	"payrecon/internal/pkg/logger"
	"payrecon/internal/platform/config"
	"payrecon/internal/platform/database"
	"payrecon/internal/platform/repositories"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	eventID := flag.String("event", "", "Provider event id to re-dispatch (evt_...)")
	flag.Parse()

	if *eventID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	txRepo := repositories.NewTransactionRepository(db)
	dispatcher := reconcile.NewDispatcher()
	if err := reconcile.RegisterDefaults(dispatcher, reconcile.NewHandlers(reconcile.NewLedger(txRepo))); err != nil {
		log.Fatal().Err(err).Msg("failed to register handlers")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := reconcile.NewReplayer(repositories.NewEventRepository(db), dispatcher).Replay(ctx, *eventID)
	if err != nil {
		log.Fatal().Err(err).Str("event_id", *eventID).Msg("replay failed")
	}
	fmt.Printf("Replayed %s: %s\n", *eventID, outcome)
	if outcome == reconcile.OutcomeFailed {
		os.Exit(1)
	}
}
