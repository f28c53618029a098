package repository

import (
	"context"
	"fmt"

	"papertrader/src/model"
	"papertrader/src/portfolio"

	"gorm.io/gorm"
)

// Store is the engine's persistence, backed by one gorm connection.
type Store struct {
	Positions  *PositionRepository
	Snapshots  *SnapshotRepository
	Settings   *SettingsRepository
	Signals    *SignalRepository
	Daily      *DailyMetricsRepository
	Exceptions *ExceptionRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		Positions:  (&PositionRepository{}).WithDB(db),
		Snapshots:  (&SnapshotRepository{}).WithDB(db),
		Settings:   (&SettingsRepository{}).WithDB(db),
		Signals:    (&SignalRepository{}).WithDB(db),
		Daily:      (&DailyMetricsRepository{}).WithDB(db),
		Exceptions: (&ExceptionRepository{}).WithDB(db),
	}
}

func (s *Store) LoadSettings(ctx context.Context) (*model.Settings, error) {
	return s.Settings.Load(ctx)
}

func (s *Store) SaveSettings(ctx context.Context, settings *model.Settings) error {
	return s.Settings.Save(ctx, settings)
}

func (s *Store) SavePosition(ctx context.Context, position *portfolio.Position) error {
	return s.Positions.Save(ctx, position)
}

func (s *Store) SavePortfolioSnapshot(ctx context.Context, snapshot *model.PortfolioSnapshot) error {
	return s.Snapshots.Create(ctx, snapshot)
}

// LoadPortfolio returns the latest snapshot and the positions opened since its session
// started. Positions of earlier sessions stay in the table as history.
func (s *Store) LoadPortfolio(ctx context.Context) (*model.PortfolioSnapshot, []portfolio.Position, error) {
	snap, err := s.Snapshots.Latest(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	if snap == nil {
		return nil, nil, nil
	}

	positions, err := s.Positions.FindOpenedSince(ctx, snap.SessionStart)
	if err != nil {
		return nil, nil, fmt.Errorf("load positions: %w", err)
	}
	return snap, positions, nil
}

func (s *Store) SaveDailyMetrics(ctx context.Context, daily *model.DailyMetrics) error {
	return s.Daily.Create(ctx, daily)
}

func (s *Store) SaveSignal(ctx context.Context, record *model.SignalRecord) error {
	return s.Signals.Upsert(ctx, record)
}
