// Command token mints read API access tokens for operators.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"payrecon/internal/platform/auth"
	"payrecon/internal/platform/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	userID := flag.Int64("user", 0, "User ID the token is issued for")
	role := flag.String("role", auth.RoleUser, "Role claim: user or admin")
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}
	if *role != auth.RoleUser && *role != auth.RoleAdmin {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is not set")
	}

	token, err := auth.NewTokenService(cfg.JWT).GenerateAccessToken(*userID, *role)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}
	fmt.Println(token)
}
