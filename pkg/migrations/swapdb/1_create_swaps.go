package swapdb

import (
	"context"

	"github.com/uptrace/bun"

	mghelper "github.com/chainsafe/swap-coordinator/pkg/pgutil/migrations"
	"github.com/chainsafe/swap-coordinator/pkg/swapstore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if err := mghelper.CreateSchema(ctx, db, &swapstore.SwapDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &swapstore.SwapDao{}, "status", "wallet_id", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		return mghelper.DropTables(ctx, db, &swapstore.SwapDao{})
	})
}
