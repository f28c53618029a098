package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metrics is a fully derived performance snapshot. It carries no incremental
// state: recomputing it from the same positions always yields the same values.
type Metrics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	TotalRealizedPnL decimal.Decimal `json:"total_realized_pnl"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	TotalReturnPct   float64         `json:"total_return_pct"`
	GrossProfit      decimal.Decimal `json:"gross_profit"`
	GrossLoss        decimal.Decimal `json:"gross_loss"`
	AverageWin       decimal.Decimal `json:"average_win"`
	AverageLoss      decimal.Decimal `json:"average_loss"`
	LargestWin       decimal.Decimal `json:"largest_win"`
	LargestLoss      decimal.Decimal `json:"largest_loss"`
	ProfitFactor     float64         `json:"profit_factor"`

	MaxDrawdown        decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPct     float64         `json:"max_drawdown_pct"`
	CurrentDrawdown    decimal.Decimal `json:"current_drawdown"`
	CurrentDrawdownPct float64         `json:"current_drawdown_pct"`

	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	// CurrentStreak is positive for a run of wins, negative for a run of losses.
	CurrentStreak int `json:"current_streak"`

	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	CalmarRatio    float64 `json:"calmar_ratio"`
	RecoveryFactor float64 `json:"recovery_factor"`

	OpenPositions        int             `json:"open_positions"`
	PositionsBySymbol    map[string]int  `json:"positions_by_symbol"`
	AverageLeverage      float64         `json:"average_leverage"`
	TotalFeesPaid        decimal.Decimal `json:"total_fees_paid"`
	AverageTradeDuration time.Duration   `json:"average_trade_duration"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DailyMetrics is one entry of the daily performance history.
type DailyMetrics struct {
	ID             uint            `gorm:"primaryKey" json:"-"`
	Date           time.Time       `gorm:"not null;index" json:"date"`
	StartingEquity decimal.Decimal `gorm:"type:numeric;not null" json:"starting_equity"`
	EndingEquity   decimal.Decimal `gorm:"type:numeric;not null" json:"ending_equity"`
	PnL            decimal.Decimal `gorm:"type:numeric;not null" json:"pnl"`
	PnLPct         float64         `json:"pnl_pct"`
	TradesClosed   int             `json:"trades_closed"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (DailyMetrics) TableName() string {
	return "daily_metrics"
}

// PortfolioSnapshot is a persisted view of the ledger. The row with the highest
// version is used to restore the portfolio when the engine starts.
type PortfolioSnapshot struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	InitialBalance     decimal.Decimal `gorm:"type:numeric;not null" json:"initial_balance"`
	CashBalance        decimal.Decimal `gorm:"type:numeric;not null" json:"cash_balance"`
	Equity             decimal.Decimal `gorm:"type:numeric;not null" json:"equity"`
	MarginUsed         decimal.Decimal `gorm:"type:numeric;not null" json:"margin_used"`
	FreeMargin         decimal.Decimal `gorm:"type:numeric;not null" json:"free_margin"`
	MarginLevel        decimal.Decimal `gorm:"type:numeric;not null" json:"margin_level"`
	LastRecordedEquity decimal.Decimal `gorm:"type:numeric" json:"last_recorded_equity"`
	SessionStart       time.Time       `json:"session_start"`
	// Version of the ledger state this row was taken from.
	Version            uint64          `gorm:"index" json:"version"`
	OpenPositions      int             `json:"open_positions"`
	ClosedPositions    int             `json:"closed_positions"`
	Metrics            Metrics         `gorm:"serializer:json" json:"metrics"`
	DailyHistory       []DailyMetrics  `gorm:"serializer:json" json:"daily_history"`
	CreatedAt          time.Time       `gorm:"index" json:"created_at"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
