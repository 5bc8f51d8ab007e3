package main

import (
	"flag"
	"fmt"

	"github.com/rs/zerolog/log"
	"payrecon/internal/pkg/logger"
	"payrecon/internal/platform/config"
	"payrecon/internal/platform/database"
	"payrecon/migrations"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

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

	applied, err := migrations.Apply(db)
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	for _, name := range applied {
		log.Info().Str("file", name).Msg("applied migration")
	}

	fmt.Printf("Migration completed successfully (%d applied)\n", len(applied))
}
