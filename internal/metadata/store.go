package metadata

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/daniel-olson-code/buelon/internal/config"
	"github.com/daniel-olson-code/buelon/internal/logger"
)

// Open connects to the configured backend (Postgres in production, SQLite in
// development/tests) and migrates the steps table. The GORM logger ignores
// ErrRecordNotFound: this store is polled constantly by the scheduler and a
// miss is the common case, not an error.
func Open(cfg config.Config, baseLog *logger.Logger) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.MetadataDriver {
	case "postgres":
		dialector = postgres.Open(cfg.PostgresDSN())
	default:
		dialector = sqlite.Open(cfg.SQLitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		if baseLog != nil {
			baseLog.Error("failed to open metadata store", "driver", cfg.MetadataDriver, "error", err)
		}
		return nil, fmt.Errorf("open metadata store (%s): %w", cfg.MetadataDriver, err)
	}

	if cfg.MetadataDriver != "postgres" {
		// WAL allows the scheduler's readers and the executor's writers to
		// proceed concurrently against the same SQLite file.
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, fmt.Errorf("enable WAL journal mode: %w", err)
		}
		if err := db.Exec("PRAGMA busy_timeout=5000;").Error; err != nil {
			return nil, fmt.Errorf("set busy_timeout: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)

	if err := db.AutoMigrate(&Step{}); err != nil {
		if baseLog != nil {
			baseLog.Error("auto migration failed", "error", err)
		}
		return nil, fmt.Errorf("auto migrate steps table: %w", err)
	}

	return db, nil
}
