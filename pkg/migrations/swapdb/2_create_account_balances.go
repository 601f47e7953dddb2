package swapdb

import (
	"context"

	"github.com/uptrace/bun"

	mghelper "github.com/chainsafe/swap-coordinator/pkg/pgutil/migrations"
	"github.com/chainsafe/swap-coordinator/pkg/swapstore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return mghelper.CreateSchema(ctx, db, &swapstore.AccountBalanceDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		return mghelper.DropTables(ctx, db, &swapstore.AccountBalanceDao{})
	})
}
