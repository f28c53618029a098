package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"papertrader/src/events"
	"papertrader/src/executors"
	"papertrader/src/model"
	"papertrader/src/portfolio"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrNotRunning = errors.New("engine not running")

// Deps are the collaborators of an Engine. Optimizer and Publisher may be nil.
type Deps struct {
	MarketData MarketData
	Signals    SignalGenerator
	Store      Persistence
	Optimizer  Optimizer
	Publisher  events.Publisher
	Logger     *logrus.Entry
}

// Engine owns one Portfolio and one Settings value and runs the background loops that
// keep them up to date. Every exported method is safe for concurrent use.
//
// Lock order when both are needed: settingsMu before portfolioMu. Most paths copy the
// settings first and never hold both.
type Engine struct {
	logger    *logrus.Entry
	config    Config
	market    MarketData
	signals   SignalGenerator
	store     Persistence
	optimizer Optimizer
	publisher events.Publisher
	scheduler *executors.Scheduler

	portfolioMu sync.RWMutex
	portfolio   *portfolio.Portfolio

	settingsMu sync.RWMutex
	settings   model.Settings

	priceMu sync.RWMutex
	prices  map[string]decimal.Decimal

	queueMu sync.Mutex
	queue   []PendingOrder

	lifecycleMu sync.Mutex
	running     atomic.Bool
	restored    bool

	// guarded by priceMu
	lastFunding time.Time

	now func() time.Time
}

type noopPublisher struct{}

func (noopPublisher) Publish(events.Type, interface{}) {}

func New(config Config, deps Deps) (*Engine, error) {
	if deps.MarketData == nil || deps.Signals == nil || deps.Store == nil {
		return nil, fmt.Errorf("engine requires market data, signal generator and store")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = noopPublisher{}
	}

	settings := model.DefaultSettings()

	return &Engine{
		logger:    logger.WithField("component", "engine"),
		config:    config,
		market:    deps.MarketData,
		signals:   deps.Signals,
		store:     deps.Store,
		optimizer: deps.Optimizer,
		publisher: publisher,
		scheduler: executors.NewScheduler(logger),
		portfolio: portfolio.New(settings.InitialBalance),
		settings:  settings,
		prices:    map[string]decimal.Decimal{},
		now:       time.Now,
	}, nil
}

// OnPanic forwards recovered loop panics, e.g. to the exception store.
func (e *Engine) OnPanic(h executors.PanicHandler) {
	e.scheduler.OnPanic(h)
}

// Start restores persisted state on the first call, schedules the loops and publishes
// engine_started. Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.running.Load() {
		e.logger.Debug("start called on running engine, ignoring")
		return nil
	}

	if !e.restored {
		e.restore(ctx)
		e.restored = true
	}

	if err := e.scheduler.Reset(); err != nil {
		return fmt.Errorf("reset scheduler: %w", err)
	}
	for _, task := range e.tasks() {
		if err := e.scheduler.Register(task); err != nil {
			return fmt.Errorf("register %s: %w", task.Name, err)
		}
	}
	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	e.running.Store(true)

	symbols := e.trackedSymbols()
	e.logger.WithFields(logrus.Fields{
		"symbols": symbols,
		"tasks":   e.scheduler.Tasks(),
	}).Info("engine started")
	e.publisher.Publish(events.EngineStarted, map[string]interface{}{"symbols": symbols})

	return nil
}

// Stop signals the loops to exit, waits for ticks already running and then
// persists the portfolio.
func (e *Engine) Stop(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.running.Load() {
		return ErrNotRunning
	}

	e.running.Store(false)
	if err := e.scheduler.Stop(); err != nil {
		e.logger.WithError(err).Warn("scheduler stop")
	}
	// ticks still in flight persist before the final snapshot
	e.scheduler.Wait()

	e.saveSnapshot(ctx, e.snapshot())

	e.logger.Info("engine stopped")
	e.publisher.Publish(events.EngineStopped, nil)
	return nil
}

// Wait blocks until every loop has returned after Stop.
func (e *Engine) Wait() {
	e.scheduler.Wait()
}

func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

func (e *Engine) restore(ctx context.Context) {
	stored, err := e.store.LoadSettings(ctx)
	switch {
	case err != nil:
		e.logger.WithError(err).Error("load settings failed, using defaults")
	case stored != nil:
		if verr := stored.Validate(); verr != nil {
			e.logger.WithError(verr).Error("stored settings invalid, using defaults")
		} else {
			e.settingsMu.Lock()
			e.settings = stored.Clone()
			e.settingsMu.Unlock()
		}
	}

	if e.config.SymbolsFile != "" {
		e.applySymbolsFile(ctx)
	} else if stored == nil && err == nil {
		settings := e.Settings()
		e.saveSettings(ctx, &settings)
	}

	settings := e.Settings()

	snap, positions, err := e.store.LoadPortfolio(ctx)
	if err != nil {
		e.logger.WithError(err).Error("load portfolio failed, starting a fresh one")
	}

	e.portfolioMu.Lock()
	if err == nil && snap != nil {
		e.portfolio = portfolio.Restore(*snap, positions)
	} else {
		e.portfolio = portfolio.New(settings.InitialBalance)
	}
	view := e.portfolio.View()
	e.portfolioMu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"cash":           view.CashBalance.StringFixed(2),
		"equity":         view.Equity.StringFixed(2),
		"open_positions": len(view.OpenPositions),
		"closed":         len(view.ClosedPositions),
	}).Info("portfolio restored")
}

func (e *Engine) applySymbolsFile(ctx context.Context) {
	overrides, err := LoadSymbolOverrides(e.config.SymbolsFile)
	if err != nil {
		e.logger.WithError(err).WithField("file", e.config.SymbolsFile).Error("symbols file ignored")
		return
	}

	settings := e.Settings()
	for symbol, o := range overrides {
		settings.Symbols[symbol] = o
	}
	if err := settings.Validate(); err != nil {
		e.logger.WithError(err).WithField("file", e.config.SymbolsFile).Error("symbols file rejected")
		return
	}

	e.settingsMu.Lock()
	e.settings = settings
	e.settingsMu.Unlock()

	e.saveSettings(ctx, &settings)
	e.logger.WithField("symbols", len(overrides)).Info("symbol overrides loaded")
}

// trackedSymbols is the configured list plus every overridden symbol and every symbol
// with an open position, sorted.
func (e *Engine) trackedSymbols() []string {
	set := map[string]struct{}{}
	for _, s := range e.config.Symbols {
		if s != "" {
			set[s] = struct{}{}
		}
	}

	e.settingsMu.RLock()
	for s := range e.settings.Symbols {
		set[s] = struct{}{}
	}
	e.settingsMu.RUnlock()

	e.portfolioMu.RLock()
	for _, pos := range e.portfolio.OpenPositions() {
		set[pos.Symbol] = struct{}{}
	}
	e.portfolioMu.RUnlock()

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ----- readers -----

// Portfolio returns a detached view of the ledger.
func (e *Engine) Portfolio() portfolio.View {
	e.portfolioMu.RLock()
	defer e.portfolioMu.RUnlock()
	return e.portfolio.View()
}

func (e *Engine) Metrics() model.Metrics {
	e.portfolioMu.RLock()
	defer e.portfolioMu.RUnlock()
	return e.portfolio.Metrics()
}

func (e *Engine) Settings() model.Settings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.settings.Clone()
}

func (e *Engine) PendingOrders() []PendingOrder {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return append([]PendingOrder(nil), e.queue...)
}

// Price is the latest cached price of symbol.
func (e *Engine) Price(symbol string) (decimal.Decimal, bool) {
	e.priceMu.RLock()
	defer e.priceMu.RUnlock()
	p, ok := e.prices[symbol]
	return p, ok
}

func (e *Engine) snapshot() model.PortfolioSnapshot {
	e.portfolioMu.RLock()
	defer e.portfolioMu.RUnlock()
	return e.portfolio.ToSnapshot()
}

// ----- persistence helpers: failures are logged, never returned -----

func (e *Engine) saveSnapshot(ctx context.Context, snap model.PortfolioSnapshot) {
	if err := e.store.SavePortfolioSnapshot(ctx, &snap); err != nil {
		e.logger.WithError(err).Error("save portfolio snapshot failed")
	}
}

func (e *Engine) savePosition(ctx context.Context, pos portfolio.Position) {
	if err := e.store.SavePosition(ctx, &pos); err != nil {
		e.logger.WithError(err).WithField("position_id", pos.ID).Error("save position failed")
	}
}

func (e *Engine) saveSettings(ctx context.Context, settings *model.Settings) {
	if err := e.store.SaveSettings(ctx, settings); err != nil {
		e.logger.WithError(err).Error("save settings failed")
	}
}

func (e *Engine) saveSignal(ctx context.Context, record *model.SignalRecord) {
	if err := e.store.SaveSignal(ctx, record); err != nil {
		e.logger.WithError(err).WithField("signal_id", record.ID).Error("save signal failed")
	}
}
