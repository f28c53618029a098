package migrations

import (
	"errors"
	"fmt"
	"time"

	"papertrader/src/model"

	"gorm.io/gorm"
)

// DataMigration tracks executed data migrations.
// Table name is fixed to avoid collisions with other models.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

func ensureDataMigrationsTable(db *gorm.DB) error {
	return db.AutoMigrate(&DataMigration{})
}

// RunOnce runs fn only if migrationID was not executed before.
// It records the migration as executed only after fn succeeds.
func RunOnce(db *gorm.DB, migrationID string, fn func(*gorm.DB) error) error {
	if db == nil {
		return nil
	}
	if migrationID == "" {
		return fmt.Errorf("migration id is empty")
	}
	if fn == nil {
		return fmt.Errorf("migration %q has nil fn", migrationID)
	}

	if err := ensureDataMigrationsTable(db); err != nil {
		return fmt.Errorf("ensure data migrations table: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var m DataMigration
		err := tx.First(&m, "id = ?", migrationID).Error
		if err == nil {
			// already applied
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check migration %q: %w", migrationID, err)
		}

		if err := fn(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", migrationID, err)
		}

		rec := DataMigration{
			ID:        migrationID,
			AppliedAt: time.Now().UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", migrationID, err)
		}

		return nil
	})
}

// Run executes all data migrations that go beyond schema auto-migrations.
// Append new migrations at the bottom with a stable unique id.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	if err := RunOnce(db, "00001_seed_default_settings", seedDefaultSettings); err != nil {
		return err
	}

	if err := RunOnce(db, "00002_uppercase_position_symbols", uppercasePositionSymbols); err != nil {
		return err
	}

	if err := RunOnce(db, "00003_backfill_versions", backfillVersions); err != nil {
		return err
	}

	return nil
}

// seedDefaultSettings inserts the default settings row when the table is empty.
func seedDefaultSettings(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Settings{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	settings := model.DefaultSettings()
	return db.Create(&settings).Error
}

func uppercasePositionSymbols(db *gorm.DB) error {
	return db.Exec("UPDATE positions SET symbol = UPPER(symbol) WHERE symbol <> UPPER(symbol)").Error
}

// backfillVersions sets version 0 on rows written before the column existed.
func backfillVersions(db *gorm.DB) error {
	if err := db.Exec("UPDATE positions SET version = 0 WHERE version IS NULL").Error; err != nil {
		return err
	}
	return db.Exec("UPDATE portfolio_snapshots SET version = 0 WHERE version IS NULL").Error
}
