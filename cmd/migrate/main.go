package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"academic360-notifications/internal/common/config"
	"academic360-notifications/internal/common/database"
	"academic360-notifications/internal/common/logger"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Print the raw DDL applied after AutoMigrate and exit")
	verbose := flag.Bool("verbose", false, "Log every SQL statement")
	flag.Parse()

	if *dryRun {
		for _, stmt := range database.MigrationStatements() {
			fmt.Println(stmt + ";")
			fmt.Println()
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	db, err := database.NewGorm(cfg.Database.Postgres, *verbose)
	if err != nil {
		zapLog.Fatal("database connection failed", zap.Error(err))
	}

	if err := database.Migrate(db); err != nil {
		zapLog.Fatal("migration failed", zap.Error(err))
	}
	zapLog.Info("Migration complete",
		zap.String("database", cfg.Database.Postgres.Database),
		zap.Int("tables", len(database.SchemaModels())),
	)
}
