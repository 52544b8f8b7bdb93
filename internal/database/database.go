package database

import (
	"fmt"

	"asset-tracker-go/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the sqlite ledger at dsn and migrates the schema.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// A single connection makes the store single-writer and keeps
	// "file::memory:" databases alive for the lifetime of the handle.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates or updates the ledger tables. Existing rows are kept.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Holding{},
		&models.ExchangeCredential{},
		&models.HistorySnapshot{},
		&models.SyncLogEntry{},
		&models.Setting{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// Older ledgers stored mixed-case market and source spellings.
	for from, to := range map[string]models.Market{"CRYPTO": models.MarketCrypto, "crypto": models.MarketCrypto, "tw": models.MarketTW, "us": models.MarketUS} {
		if err := db.Model(&models.Holding{}).Where("market = ?", from).Update("market", to).Error; err != nil {
			return fmt.Errorf("failed to normalize market %q: %w", from, err)
		}
	}
	if err := db.Model(&models.Holding{}).Where("source = ? OR source IS NULL", "").Update("source", models.SourceManual).Error; err != nil {
		return fmt.Errorf("failed to backfill holding source: %w", err)
	}

	return nil
}
