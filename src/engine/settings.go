package engine

import (
	"context"

	"papertrader/src/events"
	"papertrader/src/model"
	"papertrader/src/portfolio"

	"github.com/sirupsen/logrus"
)

// UpdateSettings replaces the settings. Invalid input changes nothing. A persistence
// failure is logged and the in-memory change is kept.
func (e *Engine) UpdateSettings(ctx context.Context, settings model.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	next := settings.Clone()
	e.settingsMu.Lock()
	next.ID = e.settings.ID
	e.settings = next
	e.settingsMu.Unlock()

	e.settingsChanged(ctx, next, "settings")
	return nil
}

// UpdateConfidenceThreshold sets the minimum confidence a signal needs, in [0,1].
func (e *Engine) UpdateConfidenceThreshold(ctx context.Context, threshold float64) error {
	if err := model.ValidateConfidenceThreshold(threshold); err != nil {
		return err
	}

	e.settingsMu.Lock()
	e.settings.ConfidenceThreshold = threshold
	next := e.settings.Clone()
	e.settingsMu.Unlock()

	e.settingsChanged(ctx, next, "confidence_threshold")
	return nil
}

// UpdateSignalInterval sets the signal loop period in minutes, in [1,1440].
// The running loop picks it up after its current wait.
func (e *Engine) UpdateSignalInterval(ctx context.Context, minutes int) error {
	if err := model.ValidateSignalInterval(minutes); err != nil {
		return err
	}

	e.settingsMu.Lock()
	e.settings.SignalIntervalMinutes = minutes
	next := e.settings.Clone()
	e.settingsMu.Unlock()

	e.settingsChanged(ctx, next, "signal_interval")
	return nil
}

func (e *Engine) settingsChanged(ctx context.Context, settings model.Settings, field string) {
	e.saveSettings(ctx, &settings)

	e.logger.WithFields(logrus.Fields{
		"field":                field,
		"confidence_threshold": settings.ConfidenceThreshold,
		"signal_interval":      settings.SignalIntervalMinutes,
	}).Info("settings updated")
	e.publisher.Publish(events.SettingsUpdated, settings)
}

// ResetPortfolio starts a new ledger at the configured initial balance and drops queued
// orders. Stored history is kept; the new session's snapshot hides it from the next restore.
func (e *Engine) ResetPortfolio(ctx context.Context) portfolio.View {
	settings := e.Settings()

	e.queueMu.Lock()
	dropped := len(e.queue)
	e.queue = nil
	e.queueMu.Unlock()

	e.portfolioMu.Lock()
	next := portfolio.New(settings.InitialBalance)
	next.Version = e.portfolio.Version + 1
	e.portfolio = next
	view := e.portfolio.View()
	snap := e.portfolio.ToSnapshot()
	e.portfolioMu.Unlock()

	e.saveSnapshot(ctx, snap)

	e.logger.WithFields(logrus.Fields{
		"initial_balance": settings.InitialBalance.StringFixed(2),
		"dropped_orders":  dropped,
	}).Warn("portfolio reset")
	e.publisher.Publish(events.PortfolioReset, view)

	return view
}
