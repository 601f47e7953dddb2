package swapdb

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/chainsafe/swap-coordinator/pkg/swapstore"
)

// Databases created before swaps could be halted lack the column; newer ones
// already have it from the model.
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewAddColumn().
			Model((*swapstore.SwapDao)(nil)).
			ColumnExpr("halted boolean NOT NULL DEFAULT false").
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropColumn().
			Model((*swapstore.SwapDao)(nil)).
			Column("halted").
			Exec(ctx)
		return err
	})
}
