package repository

import (
	"context"

	"papertrader/src/database"
	"papertrader/src/model"

	"gorm.io/gorm"
)

// SettingsRepository keeps the single settings row.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{db: database.MainDB}
}

func (r *SettingsRepository) WithDB(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Load returns (nil, nil) when no settings were stored yet.
func (r *SettingsRepository) Load(ctx context.Context) (*model.Settings, error) {
	var rows []model.Settings
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Save updates the stored row, creating it on first use. settings.ID is set afterwards.
func (r *SettingsRepository) Save(ctx context.Context, settings *model.Settings) error {
	db := r.db.WithContext(ctx)

	if settings.ID == 0 {
		current, err := r.Load(ctx)
		if err != nil {
			return err
		}
		if current == nil {
			return db.Create(settings).Error
		}
		settings.ID = current.ID
	}
	return db.Save(settings).Error
}
