package repository

import (
	"context"

	"papertrader/src/database"
	"papertrader/src/model"

	"gorm.io/gorm"
)

// SnapshotRepository stores portfolio snapshots. Rows are append-only.
type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{db: database.MainDB}
}

func (r *SnapshotRepository) WithDB(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Create(ctx context.Context, snap *model.PortfolioSnapshot) error {
	snap.ID = 0
	return r.db.WithContext(ctx).Create(snap).Error
}

// Latest returns the snapshot with the highest version, or (nil, nil) when
// no snapshot was stored yet.
func (r *SnapshotRepository) Latest(ctx context.Context) (*model.PortfolioSnapshot, error) {
	var rows []model.PortfolioSnapshot
	err := r.db.WithContext(ctx).
		Order("version DESC, id DESC").
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
