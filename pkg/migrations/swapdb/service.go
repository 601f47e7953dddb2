// Package swapdb holds all the migrations for the swap coordinator database
package swapdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the swap coordinator database
var Migrations = migrate.NewMigrations()
