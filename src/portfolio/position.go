package portfolio

import (
	"errors"
	"fmt"
	"time"

	"papertrader/src/model"
	"papertrader/src/risk"
	"papertrader/src/tp_sl"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPosition       = errors.New("invalid position")
	ErrPositionAlreadyClosed = errors.New("position already closed")
)

var hundred = decimal.NewFromInt(100)

// Position is one leveraged paper trade. It is also the row stored in "positions".
// A Position is not safe for concurrent use; the Portfolio owning it is guarded by the engine.
type Position struct {
	ID       string     `gorm:"primaryKey;size:36" json:"id"`
	Symbol   string     `gorm:"size:50;not null;index" json:"symbol"`
	Side     model.Side `gorm:"size:10;not null" json:"side"`
	Leverage int        `gorm:"not null" json:"leverage"`

	EntryPrice    decimal.Decimal `gorm:"type:numeric;not null" json:"entry_price"`
	Quantity      decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	FeeRate       decimal.Decimal `gorm:"type:numeric;not null" json:"fee_rate"`
	InitialMargin decimal.Decimal `gorm:"type:numeric;not null" json:"initial_margin"`

	StopLoss           decimal.Decimal `gorm:"type:numeric" json:"stop_loss"`
	TakeProfit         decimal.Decimal `gorm:"type:numeric" json:"take_profit"`
	TrailingStopActive bool            `gorm:"not null" json:"trailing_stop_active"`
	PeakPrice          decimal.Decimal `gorm:"type:numeric" json:"peak_price"`

	Status        model.PositionStatus `gorm:"size:10;not null;index" json:"status"`
	CurrentPrice  decimal.Decimal      `gorm:"type:numeric" json:"current_price"`
	UnrealizedPnL decimal.Decimal      `gorm:"type:numeric" json:"unrealized_pnl"`
	PnLPercentage decimal.Decimal      `gorm:"type:numeric" json:"pnl_percentage"`

	// NULL while the position is open.
	RealizedPnL decimal.NullDecimal `gorm:"type:numeric" json:"realized_pnl"`
	ExitPrice   decimal.NullDecimal `gorm:"type:numeric" json:"exit_price"`

	TradingFees decimal.Decimal `gorm:"type:numeric;not null" json:"trading_fees"`
	// Positive is a cost (longs pay), negative is income (shorts receive).
	FundingFees decimal.Decimal `gorm:"type:numeric;not null" json:"funding_fees"`

	MaxFavorableExcursion decimal.Decimal `gorm:"type:numeric" json:"max_favorable_excursion"`
	MaxAdverseExcursion   decimal.Decimal `gorm:"type:numeric" json:"max_adverse_excursion"`

	OpenTime    time.Time         `gorm:"not null;index" json:"open_time"`
	CloseTime   *time.Time        `json:"close_time,omitempty"`
	Duration    time.Duration     `json:"duration"`
	CloseReason model.CloseReason `gorm:"size:20" json:"close_reason,omitempty"`

	SignalID         *string  `gorm:"size:36;index" json:"signal_id,omitempty"`
	SignalConfidence *float64 `json:"signal_confidence,omitempty"`
	SignalReasoning  string   `gorm:"type:text" json:"signal_reasoning,omitempty"`

	// Portfolio version of the last change to this position.
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// OpenParams are the inputs of NewPosition. ID and OpenTime are generated when empty.
type OpenParams struct {
	ID         string
	Symbol     string
	Side       model.Side
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal
	Leverage   int
	FeeRate    decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	OpenTime   time.Time

	SignalID         *string
	SignalConfidence *float64
	SignalReasoning  string
}

// NewPosition opens a position. The entry fee is charged immediately into TradingFees.
func NewPosition(p OpenParams) (*Position, error) {
	switch {
	case p.Symbol == "":
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidPosition)
	case !p.Side.Valid():
		return nil, fmt.Errorf("%w: side %q", ErrInvalidPosition, p.Side)
	case !p.EntryPrice.IsPositive():
		return nil, fmt.Errorf("%w: entry price must be > 0", ErrInvalidPosition)
	case !p.Quantity.IsPositive():
		return nil, fmt.Errorf("%w: quantity must be > 0", ErrInvalidPosition)
	case p.Leverage < 1:
		return nil, fmt.Errorf("%w: leverage must be >= 1", ErrInvalidPosition)
	case p.FeeRate.IsNegative():
		return nil, fmt.Errorf("%w: fee rate must be >= 0", ErrInvalidPosition)
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	openTime := p.OpenTime
	if openTime.IsZero() {
		openTime = time.Now().UTC()
	}

	notional := p.EntryPrice.Mul(p.Quantity)

	return &Position{
		ID:               id,
		Symbol:           p.Symbol,
		Side:             p.Side,
		Leverage:         p.Leverage,
		EntryPrice:       p.EntryPrice,
		Quantity:         p.Quantity,
		FeeRate:          p.FeeRate,
		InitialMargin:    notional.Div(decimal.NewFromInt(int64(p.Leverage))),
		StopLoss:         p.StopLoss,
		TakeProfit:       p.TakeProfit,
		PeakPrice:        p.EntryPrice,
		Status:           model.PositionStatusOpen,
		CurrentPrice:     p.EntryPrice,
		TradingFees:      notional.Mul(p.FeeRate),
		OpenTime:         openTime,
		SignalID:         p.SignalID,
		SignalConfidence: p.SignalConfidence,
		SignalReasoning:  p.SignalReasoning,
		UpdatedAt:        openTime,
	}, nil
}

func (p *Position) IsOpen() bool {
	return p.Status == model.PositionStatusOpen
}

// Notional is entry price times quantity.
func (p *Position) Notional() decimal.Decimal {
	return p.EntryPrice.Mul(p.Quantity)
}

// PnLAt is the gross price PnL the position would have at price.
func (p *Position) PnLAt(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.EntryPrice).Mul(p.Quantity).Mul(p.Side.Sign())
}

// UpdateWithPrice revalues the position. When fundingRate is non-nil a funding payment is
// accrued on the entry notional.
func (p *Position) UpdateWithPrice(price decimal.Decimal, fundingRate *decimal.Decimal) {
	if !p.IsOpen() || !price.IsPositive() {
		return
	}

	p.CurrentPrice = price
	p.UnrealizedPnL = p.PnLAt(price)
	if p.InitialMargin.IsPositive() {
		p.PnLPercentage = p.UnrealizedPnL.Div(p.InitialMargin).Mul(hundred)
	}

	if p.UnrealizedPnL.GreaterThan(p.MaxFavorableExcursion) {
		p.MaxFavorableExcursion = p.UnrealizedPnL
	}
	if adverse := p.UnrealizedPnL.Neg(); adverse.GreaterThan(p.MaxAdverseExcursion) {
		p.MaxAdverseExcursion = adverse
	}

	p.trackPeak(price)

	if fundingRate != nil {
		payment := p.Notional().Mul(*fundingRate)
		p.FundingFees = p.FundingFees.Add(payment.Mul(p.Side.Sign()))
	}
}

// trackPeak keeps the best price seen: highest for longs, lowest for shorts.
func (p *Position) trackPeak(price decimal.Decimal) {
	switch p.Side {
	case model.SideLong:
		if price.GreaterThan(p.PeakPrice) {
			p.PeakPrice = price
		}
	case model.SideShort:
		if p.PeakPrice.IsZero() || price.LessThan(p.PeakPrice) {
			p.PeakPrice = price
		}
	}
}

// ShouldStopLoss long: price <= SL. short: price >= SL. An unset (zero) stop never fires.
func (p *Position) ShouldStopLoss(price decimal.Decimal) bool {
	if !p.IsOpen() || !p.StopLoss.IsPositive() {
		return false
	}
	if p.Side == model.SideShort {
		return price.GreaterThanOrEqual(p.StopLoss)
	}
	return price.LessThanOrEqual(p.StopLoss)
}

// ShouldTakeProfit long: price >= TP. short: price <= TP.
func (p *Position) ShouldTakeProfit(price decimal.Decimal) bool {
	if !p.IsOpen() || !p.TakeProfit.IsPositive() {
		return false
	}
	if p.Side == model.SideShort {
		return price.LessThanOrEqual(p.TakeProfit)
	}
	return price.GreaterThanOrEqual(p.TakeProfit)
}

func (p *Position) IsAtLiquidationRisk(price decimal.Decimal) bool {
	if !p.IsOpen() {
		return false
	}
	return risk.IsAtLiquidationRisk(p.Side, p.EntryPrice, price, p.Leverage)
}

// UpdateTrailingStop ratchets the stop-loss behind the best price once the favorable
// move exceeds activationPct. Returns true when the stop moved.
func (p *Position) UpdateTrailingStop(price, trailPct, activationPct decimal.Decimal) bool {
	if !p.IsOpen() || !price.IsPositive() {
		return false
	}

	p.trackPeak(price)

	if !p.TrailingStopActive {
		if !tp_sl.IsActivated(p.Side, p.EntryPrice, p.PeakPrice, activationPct) {
			return false
		}
		p.TrailingStopActive = true
	}

	next, moved := tp_sl.ComputeTrailingStop(p.Side, p.StopLoss, p.PeakPrice, trailPct)
	if moved {
		p.StopLoss = next
	}
	return moved
}

// Close settles the position. It is the only status transition and cannot be undone.
//
//	realized = gross PnL at exit - (entry fee + exit fee) - funding
func (p *Position) Close(exitPrice decimal.Decimal, reason model.CloseReason, exitFees decimal.Decimal, at time.Time) error {
	if !p.IsOpen() {
		return fmt.Errorf("%w: %s", ErrPositionAlreadyClosed, p.ID)
	}
	if !exitPrice.IsPositive() {
		return fmt.Errorf("%w: exit price must be > 0", ErrInvalidPosition)
	}

	gross := p.PnLAt(exitPrice)
	p.TradingFees = p.TradingFees.Add(exitFees)
	realized := gross.Sub(p.TradingFees).Sub(p.FundingFees)

	closeTime := at
	p.Status = model.PositionStatusClosed
	p.CloseReason = reason
	p.CloseTime = &closeTime
	p.Duration = at.Sub(p.OpenTime)
	p.ExitPrice = decimal.NewNullDecimal(exitPrice)
	p.RealizedPnL = decimal.NewNullDecimal(realized)
	p.CurrentPrice = exitPrice
	p.UnrealizedPnL = decimal.Zero
	if p.InitialMargin.IsPositive() {
		p.PnLPercentage = realized.Div(p.InitialMargin).Mul(hundred)
	}
	p.UpdatedAt = at

	return nil
}

// Realized returns the realized PnL, zero while open.
func (p *Position) Realized() decimal.Decimal {
	if !p.RealizedPnL.Valid {
		return decimal.Zero
	}
	return p.RealizedPnL.Decimal
}
