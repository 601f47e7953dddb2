package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/config"
	"github.com/chainsafe/swap-coordinator/pkg/pgutil"
)

type ledgerDao struct {
	bun.BaseModel `bun:"table:ledger_entries"`
	ID            int64  `bun:",pk,autoincrement"`
	SwapID        string `bun:",notnull,type:varchar(36)"`
	Status        string `bun:",notnull,type:varchar(40)"`
}

// offlineDB builds a bun.DB that never dials, for helpers that only need the dialect.
func offlineDB(t *testing.T) *bun.DB {
	t.Helper()
	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithAddr("127.0.0.1:1"))), pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIndexName(t *testing.T) {
	db := offlineDB(t)

	name, err := IndexName(db, &ledgerDao{}, "swap_id")
	require.NoError(t, err)
	assert.Equal(t, "idx_ledger_entries_swap_id", name)

	_, err = IndexName(db, nil, "swap_id")
	assert.Error(t, err)
}

func TestRunMigrations_RejectsBadCommand(t *testing.T) {
	m := migrate.NewMigrator(offlineDB(t), migrate.NewMigrations())

	err := RunMigrations(context.Background(), m, zap.NewNop())
	assert.ErrorContains(t, err, "no command provided")

	err = RunMigrations(context.Background(), m, zap.NewNop(), "sideways")
	assert.ErrorContains(t, err, `unknown command "sideways"`)
	assert.ErrorContains(t, err, "down, init, status, up")
}

func TestConnectDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     5432,
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
	}

	db, err := pgutil.ConnectDB(context.Background(), cfg, zap.NewNop())
	if err == nil {
		db.Close()
		t.Fatal("ConnectDB() should fail with invalid host")
	}
}

func TestSchemaHelpers(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, CreateSchema(ctx, db, &ledgerDao{}))
	require.NoError(t, CreateSchema(ctx, db, &ledgerDao{}), "second create must be a no-op")
	pgutil.AssertTableExists(t, db, "ledger_entries")

	require.NoError(t, CreateModelIndexes(ctx, db, &ledgerDao{}, "swap_id", "status"))
	require.NoError(t, CreateModelIndexes(ctx, db, &ledgerDao{}, "swap_id"))
	pgutil.AssertIndexExists(t, db, "idx_ledger_entries_swap_id")
	pgutil.AssertIndexExists(t, db, "idx_ledger_entries_status")

	require.NoError(t, DropTables(ctx, db, &ledgerDao{}))
	require.NoError(t, DropTables(ctx, db, &ledgerDao{}), "second drop must be a no-op")
	pgutil.AssertTableNotExists(t, db, "ledger_entries")
}
