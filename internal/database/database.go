package database

import (
	"github.com/ksred/exchange-api/internal/auth"
	"github.com/ksred/exchange-api/internal/ledger"
	"github.com/ksred/exchange-api/internal/orders"
	"github.com/ksred/exchange-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the schema for every model the exchange owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&auth.Account{},
		&types.Instrument{},
		&types.Order{},
		&types.Trade{},
		&ledger.Balance{},
		&orders.IdempotencyRecord{},
	)
}
