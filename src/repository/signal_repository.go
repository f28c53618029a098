package repository

import (
	"context"

	"papertrader/src/database"
	"papertrader/src/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository() *SignalRepository {
	return &SignalRepository{db: database.MainDB}
}

func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Upsert stores a signal record; a second call with the same id records execution.
func (r *SignalRepository) Upsert(ctx context.Context, record *model.SignalRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"stop_loss", "take_profit", "executed", "position_id", "updated_at"}),
		}).
		Create(record).Error
}

// Recent returns the latest signals for symbol, or for every symbol when symbol is empty.
func (r *SignalRepository) Recent(ctx context.Context, symbol string, limit int) ([]model.SignalRecord, error) {
	query := r.db.WithContext(ctx)
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}

	var out []model.SignalRecord
	err := query.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
