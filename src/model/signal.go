package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalDirection is what a signal source recommends. Neutral means "do nothing"
// and can never be turned into a position.
type SignalDirection string

const (
	DirectionLong    SignalDirection = "long"
	DirectionShort   SignalDirection = "short"
	DirectionNeutral SignalDirection = "neutral"
)

// Side maps a direction onto a position side. ok is false for neutral or unknown values.
func (d SignalDirection) Side() (side Side, ok bool) {
	switch d {
	case DirectionLong:
		return SideLong, true
	case DirectionShort:
		return SideShort, true
	default:
		return "", false
	}
}

// MarketAnalysis is the market snapshot a signal source attaches to its verdict.
type MarketAnalysis struct {
	Trend      string             `json:"trend,omitempty"`
	Volatility float64            `json:"volatility,omitempty"`
	Support    decimal.Decimal    `json:"support"`
	Resistance decimal.Decimal    `json:"resistance"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Summary    string             `json:"summary,omitempty"`
}

// Analysis is the raw answer of the signal generator, before it is bound to a symbol and price.
type Analysis struct {
	Direction           SignalDirection     `json:"direction"`
	Confidence          float64             `json:"confidence"`
	Reasoning           string              `json:"reasoning"`
	SuggestedStopLoss   decimal.NullDecimal `json:"suggested_stop_loss"`
	SuggestedTakeProfit decimal.NullDecimal `json:"suggested_take_profit"`
	SuggestedLeverage   *int                `json:"suggested_leverage,omitempty"`
	MarketAnalysis      MarketAnalysis      `json:"market_analysis"`
}

// Signal is a trading recommendation for one symbol at one point in time.
type Signal struct {
	ID                  string              `json:"id"`
	Symbol              string              `json:"symbol"`
	Direction           SignalDirection     `json:"direction"`
	Confidence          float64             `json:"confidence"`
	EntryPrice          decimal.Decimal     `json:"entry_price"`
	SuggestedStopLoss   decimal.NullDecimal `json:"suggested_stop_loss"`
	SuggestedTakeProfit decimal.NullDecimal `json:"suggested_take_profit"`
	SuggestedLeverage   *int                `json:"suggested_leverage,omitempty"`
	Reasoning           string              `json:"reasoning"`
	MarketAnalysis      MarketAnalysis      `json:"market_analysis"`
	Timestamp           time.Time           `json:"timestamp"`
}

// SignalRecord is the persisted form of a Signal, including what the engine did with it.
type SignalRecord struct {
	ID         string              `gorm:"primaryKey;size:36" json:"id"`
	Symbol     string              `gorm:"size:50;index" json:"symbol"`
	Direction  SignalDirection     `gorm:"size:10;not null" json:"direction"`
	Confidence float64             `json:"confidence"`
	EntryPrice decimal.Decimal     `gorm:"type:numeric" json:"entry_price"`
	StopLoss   decimal.NullDecimal `gorm:"type:numeric" json:"stop_loss"`
	TakeProfit decimal.NullDecimal `gorm:"type:numeric" json:"take_profit"`
	Reasoning  string              `gorm:"type:text" json:"reasoning"`
	Analysis   MarketAnalysis      `gorm:"serializer:json" json:"analysis"`
	Executed   bool                `gorm:"not null" json:"executed"`
	PositionID *string             `gorm:"size:36;index" json:"position_id,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (SignalRecord) TableName() string {
	return "signals"
}

// NewSignalRecord builds the not-yet-executed record for a signal.
func NewSignalRecord(s Signal) *SignalRecord {
	return &SignalRecord{
		ID:         s.ID,
		Symbol:     s.Symbol,
		Direction:  s.Direction,
		Confidence: s.Confidence,
		EntryPrice: s.EntryPrice,
		StopLoss:   s.SuggestedStopLoss,
		TakeProfit: s.SuggestedTakeProfit,
		Reasoning:  s.Reasoning,
		Analysis:   s.MarketAnalysis,
		CreatedAt:  s.Timestamp,
	}
}
