package engine

import (
	"context"
	"time"

	"papertrader/src/model"
	"papertrader/src/portfolio"

	"github.com/shopspring/decimal"
)

// MarketData is the live price source. Prices and rates come back as strings, the way
// exchanges send them.
type MarketData interface {
	Price(ctx context.Context, symbol string) (string, error)
	FundingRate(ctx context.Context, symbol string) (string, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
}

// SignalGenerator turns a market snapshot into a trading recommendation.
type SignalGenerator interface {
	Analyze(ctx context.Context, snapshot MarketSnapshot, strategy StrategyContext) (*model.Analysis, error)
}

// Persistence stores engine state. Every failure is logged by the engine and never
// stops a loop.
type Persistence interface {
	// LoadSettings returns nil, nil when nothing was stored yet.
	LoadSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, settings *model.Settings) error

	// SavePosition inserts or updates a position.
	SavePosition(ctx context.Context, position *portfolio.Position) error
	SavePortfolioSnapshot(ctx context.Context, snapshot *model.PortfolioSnapshot) error
	// LoadPortfolio returns the latest snapshot and the positions of its session.
	// A nil snapshot means there is nothing to restore.
	LoadPortfolio(ctx context.Context) (*model.PortfolioSnapshot, []portfolio.Position, error)

	SaveDailyMetrics(ctx context.Context, daily *model.DailyMetrics) error
	// SaveSignal inserts or updates a signal record.
	SaveSignal(ctx context.Context, record *model.SignalRecord) error
}

// Optimizer receives performance reports. It is advisory: nothing it answers changes settings.
type Optimizer interface {
	Submit(ctx context.Context, report PerformanceReport) error
}

// MarketSnapshot is what the signal generator sees for one symbol.
type MarketSnapshot struct {
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	FundingRate decimal.Decimal `json:"funding_rate"`
	Candles     []model.Candle  `json:"candles"`
	Timestamp   time.Time       `json:"timestamp"`
}

// StrategyContext describes the account the signal would be traded on.
type StrategyContext struct {
	Equity              decimal.Decimal `json:"equity"`
	FreeMargin          decimal.Decimal `json:"free_margin"`
	OpenPositions       int             `json:"open_positions"`
	SymbolPositions     int             `json:"symbol_positions"`
	MaxPositions        int             `json:"max_positions"`
	Leverage            int             `json:"leverage"`
	StopLossPct         decimal.Decimal `json:"stop_loss_pct"`
	TakeProfitPct       decimal.Decimal `json:"take_profit_pct"`
	ConfidenceThreshold float64         `json:"confidence_threshold"`
	WinRate             float64         `json:"win_rate"`
}

// PerformanceReport is the payload handed to the optimizer.
type PerformanceReport struct {
	GeneratedAt  time.Time            `json:"generated_at"`
	Metrics      model.Metrics        `json:"metrics"`
	Settings     model.Settings       `json:"settings"`
	DailyHistory []model.DailyMetrics `json:"daily_history"`
	RecentTrades []portfolio.Position `json:"recent_trades"`
}
