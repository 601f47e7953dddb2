// Package migrations holds bun migration helpers shared by the schema packages
// and the migrate command.
package migrations

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

const usageText = `Usage:
  migrate [-config config.yaml] <command>

Commands:
  init     create the migration bookkeeping tables
  up       apply every pending migration
  down     roll back the last migration group
  status   print applied and pending migrations
`

// Usage prints command usage and exits.
func Usage() {
	fmt.Fprint(os.Stderr, usageText)
	flag.PrintDefaults()
	os.Exit(2)
}

// CreateSchema creates the tables of the given models if they are missing.
func CreateSchema(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// DropTables drops the tables of the given models, cascading to dependents.
func DropTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", model, err)
		}
	}
	return nil
}

// CreateModelIndexes creates one idx_<table>_<column> index per column of the
// model's table.
func CreateModelIndexes(ctx context.Context, db bun.IDB, model any, columns ...string) error {
	for _, column := range columns {
		name, err := IndexName(db, model, column)
		if err != nil {
			return err
		}
		if _, err := db.NewCreateIndex().Model(model).Index(name).Column(column).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

// IndexName returns the idx_<table>_<column> name used by CreateModelIndexes.
func IndexName(db bun.IDB, model any, column string) (string, error) {
	if model == nil {
		return "", errors.New("model cannot be nil")
	}
	table := db.NewCreateIndex().Model(model).GetTableName()
	if table == "" {
		return "", fmt.Errorf("failed to resolve table name for model %T", model)
	}
	table = strings.NewReplacer(`"`, "", ".", "_").Replace(table)
	return fmt.Sprintf("idx_%s_%s", table, column), nil
}

type command func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error

var commands = map[string]command{
	"init": func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		if err := m.Init(ctx); err != nil {
			return err
		}
		logger.Info("migration tables created")
		return nil
	},
	"up": locked(func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		group, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		if group.IsZero() {
			logger.Info("database is up to date")
			return nil
		}
		logger.Info("migrated", zap.Stringer("group", group))
		return nil
	}),
	"down": locked(func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		group, err := m.Rollback(ctx)
		if err != nil {
			return err
		}
		if group.IsZero() {
			logger.Info("nothing to roll back")
			return nil
		}
		logger.Info("rolled back", zap.Stringer("group", group))
		return nil
	}),
	"status": func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		ms, err := m.MigrationsWithStatus(ctx)
		if err != nil {
			return err
		}
		logger.Info("migration status",
			zap.Stringer("applied", ms.Applied()),
			zap.Stringer("pending", ms.Unapplied()),
			zap.Stringer("last_group", ms.LastGroup()))
		return nil
	},
}

// locked runs cmd while holding the migrator's advisory lock.
func locked(cmd command) command {
	return func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		if err := m.Lock(ctx); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		defer func() {
			if err := m.Unlock(ctx); err != nil {
				logger.Warn("failed to release migration lock", zap.Error(err))
			}
		}()
		return cmd(ctx, m, logger)
	}
}

// Commands lists the supported command names.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunMigrations runs the command named by args[0] against migrator.
func RunMigrations(ctx context.Context, migrator *migrate.Migrator, logger *zap.Logger, args ...string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command provided, expected one of %s", strings.Join(Commands(), ", "))
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, expected one of %s", args[0], strings.Join(Commands(), ", "))
	}
	return cmd(ctx, migrator, logger)
}
