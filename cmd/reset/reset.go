package reset

import (
	"context"
	"fmt"

	"papertrader/src/database"
	"papertrader/src/model"
	"papertrader/src/portfolio"
	"papertrader/src/repository"

	"github.com/sirupsen/logrus"
)

type Reset struct {
	Log *logrus.Entry
}

// Start writes a fresh snapshot. Positions of older sessions stay in storage but
// are no longer restored, since they opened before the new session start.
func (t *Reset) Start() error {
	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		t.Log.WithError(err).Error("Failed to connect to main database")
		return err
	}

	snap, err := NewSession(context.Background(), repository.NewStore(database.MainDB))
	if err != nil {
		return err
	}

	t.Log.WithFields(logrus.Fields{
		"balance":       snap.CashBalance.StringFixed(2),
		"session_start": snap.SessionStart,
	}).Warn("portfolio reset")
	return nil
}

// NewSession stores an empty portfolio at the stored (or default) initial balance.
func NewSession(ctx context.Context, store *repository.Store) (*model.PortfolioSnapshot, error) {
	settings, err := store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings == nil {
		defaults := model.DefaultSettings()
		settings = &defaults
	}

	latest, err := store.Snapshots.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	fresh := portfolio.New(settings.InitialBalance)
	// the new session must outrank every snapshot already stored
	if latest != nil {
		fresh.Version = latest.Version + 1
	}
	snap := fresh.ToSnapshot()
	if err := store.SavePortfolioSnapshot(ctx, &snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return &snap, nil
}
