package repository

import (
	"context"
	"errors"
	"time"

	"papertrader/src/database"
	"papertrader/src/model"
	"papertrader/src/portfolio"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PositionRepository handles read/write operations for paper positions.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Save inserts the position or updates every column of an existing one.
// A row already stored with the same or a newer version is left untouched.
func (r *PositionRepository) Save(ctx context.Context, position *portfolio.Position) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "positions.version < excluded.version"},
			}},
		}).
		Create(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Save",
			"position_id": position.ID,
		}).WithError(err).Error("Failed to save position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Save",
		"position_id": position.ID,
		"status":      position.Status,
	}).Debug("Position saved")

	return nil
}

// FindByID returns (nil, nil) when the position does not exist.
func (r *PositionRepository) FindByID(ctx context.Context, id string) (*portfolio.Position, error) {
	var pos portfolio.Position
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// FindOpenedSince returns every position opened at or after since, oldest first.
func (r *PositionRepository) FindOpenedSince(ctx context.Context, since time.Time) ([]portfolio.Position, error) {
	var out []portfolio.Position
	err := r.db.WithContext(ctx).
		Where("open_time >= ?", since).
		Order("open_time ASC").
		Find(&out).Error
	return out, err
}

// PositionSearchOptions filters a position search. Zero values are ignored.
type PositionSearchOptions struct {
	Symbol string
	Status model.PositionStatus
	Limit  int
	Offset int
}

// Search returns positions newest first.
func (r *PositionRepository) Search(ctx context.Context, opts PositionSearchOptions) ([]portfolio.Position, error) {
	query := r.db.WithContext(ctx).Model(&portfolio.Position{})

	if opts.Symbol != "" {
		query = query.Where("symbol = ?", opts.Symbol)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	query = query.Order("open_time DESC")

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var out []portfolio.Position
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
