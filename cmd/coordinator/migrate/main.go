package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/config"
	"github.com/chainsafe/swap-coordinator/pkg/migrations/swapdb"
	"github.com/chainsafe/swap-coordinator/pkg/pgutil"
	mghelper "github.com/chainsafe/swap-coordinator/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.example.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	if err := run(*cfgPath, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger(cfg.Logging, "migrate")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	db, err := pgutil.ConnectDB(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("running swap database migrations", zap.String("database", cfg.Database.Database))
	return mghelper.RunMigrations(ctx, migrate.NewMigrator(db, swapdb.Migrations), logger, args...)
}
