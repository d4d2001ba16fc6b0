package database

import (
	"errors"
	"time"

	"github.com/MTES-MCT/zero-logement-vacant-sub005/internal/housing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationSeedPrecisionCatalog = "2026-07-01_seed_precision_catalog"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB, *housing.Catalog) error
}

func applyMigrations(db *gorm.DB, catalog *housing.Catalog, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedPrecisionCatalog, apply: seedPrecisionCatalog},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db, catalog); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// seedPrecisionCatalog populates the precisions table from the static
// catalog. The catalog in memory is the source of truth; the table exists
// for reporting joins and referential integrity.
func seedPrecisionCatalog(db *gorm.DB, catalog *housing.Catalog) error {
	if catalog == nil {
		return nil
	}
	for _, entry := range catalog.Entries() {
		precision := entry
		if err := db.Create(&precision).Error; err != nil {
			return err
		}
	}
	return nil
}
