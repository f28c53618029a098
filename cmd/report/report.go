package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"papertrader/src/database"
	"papertrader/src/model"
	"papertrader/src/portfolio"
	"papertrader/src/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Summary is what the report command prints.
type Summary struct {
	GeneratedAt    time.Time            `json:"generated_at"`
	SessionStart   time.Time            `json:"session_start"`
	InitialBalance string               `json:"initial_balance"`
	CashBalance    string               `json:"cash_balance"`
	Equity         string               `json:"equity"`
	MarginUsed     string               `json:"margin_used"`
	OpenPositions  []portfolio.Position `json:"open_positions"`
	Metrics        model.Metrics        `json:"metrics"`
	Daily          []model.DailyMetrics `json:"daily"`
}

type Report struct {
	Log  *logrus.Entry
	Out  io.Writer
	Days int
	// DB overrides the read-only connection.
	DB *gorm.DB
}

func (r *Report) Start() error {
	db := r.DB
	if db == nil {
		// Initialize read-only database
		if err := database.InitReadOnlyDB(); err != nil {
			r.Log.WithError(err).Error("Failed to connect to read-only database")
			return err
		}
		db = database.ReadOnlyDB
	}

	summary, err := Build(context.Background(), repository.NewStore(db), r.Days, time.Now().UTC())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(r.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// Build replays the latest session from storage. Without a snapshot the
// summary is empty at the default initial balance.
func Build(ctx context.Context, store *repository.Store, days int, now time.Time) (*Summary, error) {
	snap, positions, err := store.LoadPortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}

	var p *portfolio.Portfolio
	if snap == nil {
		p = portfolio.New(model.DefaultSettings().InitialBalance)
	} else {
		p = portfolio.Restore(*snap, positions)
	}
	view := p.View()

	var daily []model.DailyMetrics
	if days > 0 {
		if daily, err = store.Daily.List(ctx, days); err != nil {
			return nil, fmt.Errorf("load daily metrics: %w", err)
		}
	}

	return &Summary{
		GeneratedAt:    now,
		SessionStart:   view.SessionStart,
		InitialBalance: view.InitialBalance.StringFixed(2),
		CashBalance:    view.CashBalance.StringFixed(2),
		Equity:         view.Equity.StringFixed(2),
		MarginUsed:     view.MarginUsed.StringFixed(2),
		OpenPositions:  view.OpenPositions,
		Metrics:        view.Metrics,
		Daily:          daily,
	}, nil
}
