package engine

import (
	"context"
	"time"

	"papertrader/src/events"
	"papertrader/src/executors"
	"papertrader/src/model"
	"papertrader/src/portfolio"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	taskPrice        = "price"
	taskSignal       = "signal"
	taskMonitor      = "monitor"
	taskPerformance  = "performance"
	taskOptimization = "optimization"
	taskDaily        = "daily_metrics"
)

func (e *Engine) tasks() []executors.Task {
	return []executors.Task{
		{Name: taskPrice, Interval: e.config.PriceInterval, RunOnStart: true, Run: e.priceTick},
		{Name: taskSignal, IntervalFunc: e.signalInterval, Run: e.signalTick},
		{Name: taskMonitor, Interval: e.config.MonitorInterval, Run: e.monitorTick},
		{Name: taskPerformance, Interval: e.config.PerformanceInterval, Run: e.performanceTick},
		{Name: taskOptimization, Interval: e.config.OptimizationInterval, Run: e.optimizationTick},
		{Name: taskDaily, Interval: e.config.DailyInterval, Run: e.dailyTick},
	}
}

func (e *Engine) signalInterval() time.Duration {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return time.Duration(e.settings.SignalIntervalMinutes) * time.Minute
}

// priceTick fetches price and funding per symbol. A failing symbol is skipped.
// Funding is charged once per FundingInterval; in between the rates are only recorded.
func (e *Engine) priceTick(ctx context.Context) {
	prices := map[string]decimal.Decimal{}
	funding := map[string]decimal.Decimal{}

	for _, symbol := range e.trackedSymbols() {
		log := e.logger.WithField("symbol", symbol)

		raw, err := e.market.Price(ctx, symbol)
		if err != nil {
			log.WithError(err).Warn("price fetch failed, skipping symbol")
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil || !price.IsPositive() {
			log.WithField("raw", raw).Warn("invalid price, skipping symbol")
			continue
		}
		prices[symbol] = price

		rawRate, err := e.market.FundingRate(ctx, symbol)
		if err != nil {
			log.WithError(err).Debug("funding rate fetch failed")
			continue
		}
		if rate, err := decimal.NewFromString(rawRate); err == nil {
			funding[symbol] = rate
		}
	}

	if len(prices) == 0 {
		return
	}

	now := e.now()
	settle := false

	e.priceMu.Lock()
	if e.lastFunding.IsZero() {
		e.lastFunding = now
	} else if now.Sub(e.lastFunding) >= e.config.FundingInterval {
		settle = true
		e.lastFunding = now
	}
	for symbol, price := range prices {
		e.prices[symbol] = price
	}
	e.priceMu.Unlock()

	e.portfolioMu.Lock()
	if settle {
		e.portfolio.UpdatePrices(prices, funding)
	} else {
		e.portfolio.UpdatePrices(prices, nil)
		e.portfolio.RecordFundingRates(funding)
	}
	e.portfolioMu.Unlock()

	if settle {
		e.logger.WithField("symbols", len(funding)).Info("funding settled")
	}

	out := make(map[string]string, len(prices))
	for symbol, price := range prices {
		out[symbol] = price.String()
	}
	e.publisher.Publish(events.PriceUpdate, out)
}

// signalTick asks for a signal per symbol. Every signal is recorded and published; only
// those at or above the confidence threshold are processed.
func (e *Engine) signalTick(ctx context.Context) {
	threshold := e.Settings().ConfidenceThreshold

	for _, symbol := range e.trackedSymbols() {
		log := e.logger.WithField("symbol", symbol)

		signal, err := e.GenerateSignal(ctx, symbol)
		if err != nil {
			log.WithError(err).Warn("signal generation failed")
			continue
		}

		e.recordSignal(ctx, signal)

		if signal.Confidence < threshold {
			log.WithFields(logrus.Fields{
				"confidence": signal.Confidence,
				"threshold":  threshold,
			}).Debug("signal below confidence threshold")
			continue
		}

		result := e.ProcessSignal(ctx, signal)
		log.WithFields(logrus.Fields{
			"signal_id": signal.ID,
			"direction": signal.Direction,
			"success":   result.Success,
			"reason":    result.Reason,
		}).Info("signal processed")
	}
}

// GenerateSignal builds a market snapshot for symbol and asks the signal generator.
func (e *Engine) GenerateSignal(ctx context.Context, symbol string) (model.Signal, error) {
	price, ok := e.Price(symbol)
	if !ok {
		raw, err := e.market.Price(ctx, symbol)
		if err != nil {
			return model.Signal{}, err
		}
		if price, err = decimal.NewFromString(raw); err != nil {
			return model.Signal{}, err
		}
	}

	candles, err := e.market.Klines(ctx, symbol, e.config.KlineInterval, e.config.KlineLimit)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", symbol).Warn("klines fetch failed, analysing without candles")
	}

	settings := e.Settings()
	sym := settings.ForSymbol(symbol)

	e.portfolioMu.RLock()
	fundingRate, _ := e.portfolio.FundingRate(symbol)
	strategy := StrategyContext{
		Equity:              e.portfolio.Equity,
		FreeMargin:          e.portfolio.FreeMargin,
		OpenPositions:       e.portfolio.OpenCount(),
		SymbolPositions:     e.portfolio.OpenCountBySymbol(symbol),
		MaxPositions:        settings.MaxPositions,
		Leverage:            sym.Leverage,
		StopLossPct:         sym.StopLossPct,
		TakeProfitPct:       sym.TakeProfitPct,
		ConfidenceThreshold: settings.ConfidenceThreshold,
		WinRate:             e.portfolio.Metrics().WinRate,
	}
	e.portfolioMu.RUnlock()

	now := e.now().UTC()
	snapshot := MarketSnapshot{
		Symbol:      symbol,
		Price:       price,
		FundingRate: fundingRate,
		Candles:     candles,
		Timestamp:   now,
	}

	analysis, err := e.signals.Analyze(ctx, snapshot, strategy)
	if err != nil {
		return model.Signal{}, err
	}

	return model.Signal{
		ID:                  uuid.NewString(),
		Symbol:              symbol,
		Direction:           analysis.Direction,
		Confidence:          analysis.Confidence,
		EntryPrice:          price,
		SuggestedStopLoss:   analysis.SuggestedStopLoss,
		SuggestedTakeProfit: analysis.SuggestedTakeProfit,
		SuggestedLeverage:   analysis.SuggestedLeverage,
		Reasoning:           analysis.Reasoning,
		MarketAnalysis:      analysis.MarketAnalysis,
		Timestamp:           now,
	}, nil
}

func (e *Engine) recordSignal(ctx context.Context, signal model.Signal) {
	e.saveSignal(ctx, model.NewSignalRecord(signal))
	e.publisher.Publish(events.SignalReceived, signal)
}

// monitorTick: trailing stops, then automatic closures, then the pending queue.
// Closures always finish before any queued order executes.
func (e *Engine) monitorTick(ctx context.Context) {
	trailing := e.Settings().TrailingStop

	var (
		moved  []portfolio.Position
		closed []portfolio.ClosedPosition
		snap   model.PortfolioSnapshot
	)

	e.portfolioMu.Lock()
	for _, id := range e.portfolio.UpdateTrailingStops(trailing) {
		if pos, ok := e.portfolio.Position(id); ok {
			moved = append(moved, pos)
		}
	}
	closed = e.portfolio.CheckAutomaticClosures()
	if len(moved) > 0 || len(closed) > 0 {
		snap = e.portfolio.ToSnapshot()
	}
	e.portfolioMu.Unlock()

	closedIDs := make(map[string]struct{}, len(closed))
	for _, c := range closed {
		closedIDs[c.ID] = struct{}{}
	}

	for _, pos := range moved {
		if _, ok := closedIDs[pos.ID]; ok {
			continue
		}
		e.logger.WithFields(logrus.Fields{
			"position_id": pos.ID,
			"stop_loss":   pos.StopLoss.String(),
		}).Debug("trailing stop moved")
		e.savePosition(ctx, pos)
	}

	for _, c := range closed {
		e.logger.WithFields(logrus.Fields{
			"position_id": c.ID,
			"symbol":      c.Position.Symbol,
			"reason":      c.Reason,
			"exit_price":  c.ExitPrice.String(),
			"realized":    c.Position.Realized().StringFixed(2),
		}).Info("position closed automatically")
		e.savePosition(ctx, c.Position)
		e.publisher.Publish(events.TradeClosed, c.Position)
	}

	if len(moved) > 0 || len(closed) > 0 {
		e.saveSnapshot(ctx, snap)
	}

	e.drainQueue(ctx)
}

func (e *Engine) performanceTick(ctx context.Context) {
	e.portfolioMu.Lock()
	metrics := e.portfolio.RecomputeMetrics()
	snap := e.portfolio.ToSnapshot()
	e.portfolioMu.Unlock()

	e.publisher.Publish(events.PerformanceUpdate, metrics)
	e.saveSnapshot(ctx, snap)
}

// optimizationTick forwards performance data to the optimizer. Its answer is not applied.
func (e *Engine) optimizationTick(ctx context.Context) {
	if e.optimizer == nil {
		return
	}

	report := e.PerformanceReport()
	if err := e.optimizer.Submit(ctx, report); err != nil {
		e.logger.WithError(err).Warn("optimizer submit failed")
		return
	}
	e.logger.WithField("trades", len(report.RecentTrades)).Info("performance report submitted")
}

// PerformanceReport collects metrics, settings and the most recent closed trades.
func (e *Engine) PerformanceReport() PerformanceReport {
	settings := e.Settings()

	e.portfolioMu.RLock()
	metrics := e.portfolio.Metrics()
	daily := e.portfolio.DailyHistory()
	trades := e.portfolio.ClosedPositions()
	e.portfolioMu.RUnlock()

	if n := e.config.RecentTrades; n > 0 && len(trades) > n {
		trades = trades[len(trades)-n:]
	}

	return PerformanceReport{
		GeneratedAt:  e.now().UTC(),
		Metrics:      metrics,
		Settings:     settings,
		DailyHistory: daily,
		RecentTrades: trades,
	}
}

func (e *Engine) dailyTick(ctx context.Context) {
	e.portfolioMu.Lock()
	entry := e.portfolio.RecordDaily()
	snap := e.portfolio.ToSnapshot()
	e.portfolioMu.Unlock()

	if err := e.store.SaveDailyMetrics(ctx, &entry); err != nil {
		e.logger.WithError(err).Error("save daily metrics failed")
	}
	e.saveSnapshot(ctx, snap)

	e.logger.WithFields(logrus.Fields{
		"pnl":     entry.PnL.StringFixed(2),
		"pnl_pct": entry.PnLPct,
		"trades":  entry.TradesClosed,
	}).Info("daily metrics recorded")
}
