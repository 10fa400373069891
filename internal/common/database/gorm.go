package database

import (
	"fmt"
	"time"

	"academic360-notifications/internal/common/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewGorm opens a gorm handle on the same Postgres database. It is used for
// schema migration only; runtime queries go through database/sql.
func NewGorm(cfg config.PostgresConfig, verbose bool) (*gorm.DB, error) {
	logMode := gormlogger.Silent
	if verbose {
		logMode = gormlogger.Info
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.GetDSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap gorm sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}
