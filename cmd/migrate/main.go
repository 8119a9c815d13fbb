package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/quizfunnel/internal/adapters/database"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/clients/sqldb"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/observability"
	"github.com/zatekoja/quizfunnel/pkg/config"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "print the schema DDL without applying it")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		fmt.Print(database.SchemaSQL(cfg.Database.Driver))
		return
	}

	observability.InitLogger("quizfunnel-migrate", cfg.Log.Env, cfg.Log.Level)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := sqldb.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer client.Close()

	if err := database.EnsureSchema(ctx, client); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Str("driver", client.Driver()).Msg("Schema is up to date")
}
