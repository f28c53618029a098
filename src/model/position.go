package model

import "github.com/shopspring/decimal"

// Side is the direction of an open position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Sign returns +1 for long and -1 for short, so that
// pnl = (price - entry) * qty * sign.
func (s Side) Sign() decimal.Decimal {
	if s == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// CloseReason records what closed a position.
type CloseReason string

const (
	CloseReasonStopLoss    CloseReason = "stop_loss"
	CloseReasonTakeProfit  CloseReason = "take_profit"
	CloseReasonLiquidation CloseReason = "liquidation"
	CloseReasonManual      CloseReason = "manual"
)
