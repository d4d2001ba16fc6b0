package database

import (
	"fmt"
	"time"

	"github.com/MTES-MCT/zero-logement-vacant-sub005/internal/housing"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// Meant for development and tests; production runs on PostgreSQL.
func OpenSQLite(path string, catalog *housing.Catalog, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := initialize(db, catalog, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", "sqlite"), zap.String("path", path))
	}
	return db, nil
}

// OpenPostgres establishes a PostgreSQL connection and performs schema
// migrations.
func OpenPostgres(dsn string, catalog *housing.Catalog, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := initialize(db, catalog, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", "postgres"))
	}
	return db, nil
}

func initialize(db *gorm.DB, catalog *housing.Catalog, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&housing.HousingRecord{},
		&housing.Precision{},
		&housing.HousingPrecisionLink{},
		&housing.Document{},
		&housing.HousingDocumentLink{},
		&housing.Note{},
		&housing.Event{},
		&housing.HousingEvent{},
		&housing.PrecisionHousingEvent{},
		&migrationRecord{},
	); err != nil {
		return err
	}

	return applyMigrations(db, catalog, logger)
}
