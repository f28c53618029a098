package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidSettings = errors.New("invalid settings")

const (
	MinSignalIntervalMinutes = 1
	MaxSignalIntervalMinutes = 1440
	MaxLeverage              = 125
)

// SymbolSettings overrides the global defaults for one symbol.
// Zero numeric fields fall back to the global default.
type SymbolSettings struct {
	Enabled         bool            `json:"enabled"`
	Leverage        int             `json:"leverage"`
	PositionSizePct decimal.Decimal `json:"position_size_pct"`
	StopLossPct     decimal.Decimal `json:"stop_loss_pct"`
	TakeProfitPct   decimal.Decimal `json:"take_profit_pct"`
	MaxPositions    int             `json:"max_positions"`
}

type TrailingStopSettings struct {
	Enabled       bool            `json:"enabled"`
	TrailPct      decimal.Decimal `gorm:"type:numeric" json:"trail_pct"`
	ActivationPct decimal.Decimal `gorm:"type:numeric" json:"activation_pct"`
}

// Settings is the engine configuration that can be changed at runtime.
// It is stored as a single row.
type Settings struct {
	ID                     uint                      `gorm:"primaryKey" json:"-"`
	InitialBalance         decimal.Decimal           `gorm:"type:numeric;not null" json:"initial_balance"`
	MaxPositions           int                       `gorm:"not null" json:"max_positions"`
	DefaultPositionSizePct decimal.Decimal           `gorm:"type:numeric;not null" json:"default_position_size_pct"`
	DefaultLeverage        int                       `gorm:"not null" json:"default_leverage"`
	DefaultStopLossPct     decimal.Decimal           `gorm:"type:numeric;not null" json:"default_stop_loss_pct"`
	DefaultTakeProfitPct   decimal.Decimal           `gorm:"type:numeric;not null" json:"default_take_profit_pct"`
	TradingFeeRate         decimal.Decimal           `gorm:"type:numeric;not null" json:"trading_fee_rate"`
	TrailingStop           TrailingStopSettings      `gorm:"embedded;embeddedPrefix:trailing_" json:"trailing_stop"`
	Symbols                map[string]SymbolSettings `gorm:"serializer:json" json:"symbols"`
	ConfidenceThreshold    float64                   `gorm:"not null" json:"confidence_threshold"`
	SignalIntervalMinutes  int                       `gorm:"not null" json:"signal_interval_minutes"`
	UpdatedAt              time.Time                 `json:"updated_at"`
}

func (Settings) TableName() string {
	return "settings"
}

// DefaultSettings reasonable defaults for a 10k paper account.
func DefaultSettings() Settings {
	return Settings{
		InitialBalance:         decimal.NewFromInt(10000),
		MaxPositions:           5,
		DefaultPositionSizePct: decimal.NewFromInt(2),
		DefaultLeverage:        10,
		DefaultStopLossPct:     decimal.NewFromInt(2),
		DefaultTakeProfitPct:   decimal.NewFromInt(4),
		TradingFeeRate:         decimal.RequireFromString("0.0004"),
		TrailingStop: TrailingStopSettings{
			Enabled:       true,
			TrailPct:      decimal.NewFromInt(1),
			ActivationPct: decimal.RequireFromString("1.5"),
		},
		Symbols:               map[string]SymbolSettings{},
		ConfidenceThreshold:   0.7,
		SignalIntervalMinutes: 15,
	}
}

// Clone returns a copy that shares no map with the receiver.
func (s Settings) Clone() Settings {
	out := s
	out.Symbols = make(map[string]SymbolSettings, len(s.Symbols))
	for k, v := range s.Symbols {
		out.Symbols[k] = v
	}
	return out
}

// ForSymbol resolves the effective per-symbol configuration.
// A symbol without an override is enabled and uses the global defaults.
func (s Settings) ForSymbol(symbol string) SymbolSettings {
	eff := SymbolSettings{
		Enabled:         true,
		Leverage:        s.DefaultLeverage,
		PositionSizePct: s.DefaultPositionSizePct,
		StopLossPct:     s.DefaultStopLossPct,
		TakeProfitPct:   s.DefaultTakeProfitPct,
		MaxPositions:    s.MaxPositions,
	}

	o, ok := s.Symbols[symbol]
	if !ok {
		return eff
	}

	eff.Enabled = o.Enabled
	if o.Leverage > 0 {
		eff.Leverage = o.Leverage
	}
	if o.PositionSizePct.IsPositive() {
		eff.PositionSizePct = o.PositionSizePct
	}
	if o.StopLossPct.IsPositive() {
		eff.StopLossPct = o.StopLossPct
	}
	if o.TakeProfitPct.IsPositive() {
		eff.TakeProfitPct = o.TakeProfitPct
	}
	if o.MaxPositions > 0 {
		eff.MaxPositions = o.MaxPositions
	}
	return eff
}

// Validate checks every range. The returned error wraps ErrInvalidSettings.
func (s Settings) Validate() error {
	hundred := decimal.NewFromInt(100)

	switch {
	case !s.InitialBalance.IsPositive():
		return invalid("initial_balance must be > 0")
	case s.MaxPositions < 1:
		return invalid("max_positions must be >= 1")
	case !s.DefaultPositionSizePct.IsPositive() || s.DefaultPositionSizePct.GreaterThan(hundred):
		return invalid("default_position_size_pct must be in (0,100]")
	case s.DefaultLeverage < 1 || s.DefaultLeverage > MaxLeverage:
		return invalid(fmt.Sprintf("default_leverage must be in [1,%d]", MaxLeverage))
	case !s.DefaultStopLossPct.IsPositive() || s.DefaultStopLossPct.GreaterThanOrEqual(hundred):
		return invalid("default_stop_loss_pct must be in (0,100)")
	case !s.DefaultTakeProfitPct.IsPositive():
		return invalid("default_take_profit_pct must be > 0")
	case s.TradingFeeRate.IsNegative() || s.TradingFeeRate.GreaterThanOrEqual(decimal.RequireFromString("0.1")):
		return invalid("trading_fee_rate must be in [0,0.1)")
	case s.TrailingStop.TrailPct.IsNegative() || s.TrailingStop.ActivationPct.IsNegative():
		return invalid("trailing stop percentages must be >= 0")
	case s.TrailingStop.Enabled && !s.TrailingStop.TrailPct.IsPositive():
		return invalid("trailing stop trail_pct must be > 0 when enabled")
	}

	if err := ValidateConfidenceThreshold(s.ConfidenceThreshold); err != nil {
		return err
	}
	if err := ValidateSignalInterval(s.SignalIntervalMinutes); err != nil {
		return err
	}

	for symbol, o := range s.Symbols {
		if symbol == "" {
			return invalid("symbol override with empty symbol")
		}
		if o.Leverage < 0 || o.Leverage > MaxLeverage {
			return invalid(fmt.Sprintf("%s: leverage must be in [0,%d]", symbol, MaxLeverage))
		}
		if o.PositionSizePct.IsNegative() || o.PositionSizePct.GreaterThan(hundred) {
			return invalid(fmt.Sprintf("%s: position_size_pct must be in [0,100]", symbol))
		}
		if o.StopLossPct.IsNegative() || o.StopLossPct.GreaterThanOrEqual(hundred) {
			return invalid(fmt.Sprintf("%s: stop_loss_pct must be in [0,100)", symbol))
		}
		if o.TakeProfitPct.IsNegative() || o.MaxPositions < 0 {
			return invalid(fmt.Sprintf("%s: negative take_profit_pct or max_positions", symbol))
		}
	}

	return nil
}

func ValidateConfidenceThreshold(v float64) error {
	if v < 0 || v > 1 {
		return invalid(fmt.Sprintf("confidence threshold %.4f out of range [0,1]", v))
	}
	return nil
}

func ValidateSignalInterval(minutes int) error {
	if minutes < MinSignalIntervalMinutes || minutes > MaxSignalIntervalMinutes {
		return invalid(fmt.Sprintf("signal interval %d out of range [%d,%d] minutes",
			minutes, MinSignalIntervalMinutes, MaxSignalIntervalMinutes))
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSettings, msg)
}
