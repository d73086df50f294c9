package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/better-wallet/marketplace/internal/logger"
	"github.com/better-wallet/marketplace/internal/storage"
)

func main() {
	var (
		dsn       = flag.String("dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
		direction = flag.String("direction", storage.MigrateUp, "Migration direction: up or down")
		steps     = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	if *direction != storage.MigrateUp && *direction != storage.MigrateDown {
		log.Fatalf("Invalid direction %q: must be up or down", *direction)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	store, err := storage.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	count, err := store.Migrate(ctx, *direction, *steps)
	if err != nil {
		slog.Error("migration failed", "direction", *direction, "applied", count, "error", err)
		os.Exit(1)
	}

	if count == 0 {
		slog.Info("no migrations to run", "direction", *direction)
		return
	}
	slog.Info("migrations complete", "direction", *direction, "count", count)
}
