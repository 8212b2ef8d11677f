package database

import (
	"context"
	"fmt"
	"sync/atomic"

	"rwa-market-indexer/config"

	"gorm.io/gorm"
)

var testDBCounter atomic.Uint64

// ConnectTestDB opens a fresh, migrated in-memory sqlite database. Each call
// returns an isolated database.
func ConnectTestDB(ctx context.Context) (*gorm.DB, error) {
	cfg := &config.DBConfig{
		Driver:   DriverSQLite,
		Database: fmt.Sprintf("file:rwa_test_%d?mode=memory&cache=shared", testDBCounter.Add(1)),
	}

	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}

	if err := Initialize(ctx, db, false); err != nil {
		return nil, err
	}

	return db, nil
}
