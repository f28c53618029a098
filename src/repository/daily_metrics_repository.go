package repository

import (
	"context"

	"papertrader/src/database"
	"papertrader/src/model"

	"gorm.io/gorm"
)

type DailyMetricsRepository struct {
	db *gorm.DB
}

func NewDailyMetricsRepository() *DailyMetricsRepository {
	return &DailyMetricsRepository{db: database.MainDB}
}

func (r *DailyMetricsRepository) WithDB(db *gorm.DB) *DailyMetricsRepository {
	return &DailyMetricsRepository{db: db}
}

func (r *DailyMetricsRepository) Create(ctx context.Context, daily *model.DailyMetrics) error {
	daily.ID = 0
	return r.db.WithContext(ctx).Create(daily).Error
}

// List returns the last limit entries, oldest first.
func (r *DailyMetricsRepository) List(ctx context.Context, limit int) ([]model.DailyMetrics, error) {
	var out []model.DailyMetrics
	err := r.db.WithContext(ctx).
		Order("date DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
