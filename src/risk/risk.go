package risk

import (
	"papertrader/src/model"

	"github.com/shopspring/decimal"
)

// ----- maintenance margin rule -----

var (
	// MaintenanceMarginRate is the share of notional an exchange keeps as
	// maintenance margin before force-closing a position.
	MaintenanceMarginRate = decimal.RequireFromString("0.005")

	// LiquidationRiskBuffer flags a position once the adverse move has eaten this
	// share of the distance between entry and the liquidation price.
	LiquidationRiskBuffer = decimal.RequireFromString("0.8")

	// StopInsideFraction places a clamped stop-loss at this share of the
	// liquidation-risk distance, so it always fires first.
	StopInsideFraction = decimal.RequireFromString("0.9")

	// MarginCapFraction of free margin is the most a single new position may reserve.
	MarginCapFraction = decimal.RequireFromString("0.95")

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ----- public API -----

// LiquidationRiskDistance returns, as a fraction of the entry price, how far price may
// move against a position before it is considered at liquidation risk.
//
//	distance = (1/leverage - maintenance rate) * buffer
func LiquidationRiskDistance(leverage int) decimal.Decimal {
	if leverage < 1 {
		leverage = 1
	}
	d := one.Div(decimal.NewFromInt(int64(leverage))).Sub(MaintenanceMarginRate)
	if !d.IsPositive() {
		return decimal.Zero
	}
	return d.Mul(LiquidationRiskBuffer)
}

// LiquidationRiskPrice is the price at which IsAtLiquidationRisk starts returning true.
func LiquidationRiskPrice(side model.Side, entry decimal.Decimal, leverage int) decimal.Decimal {
	d := LiquidationRiskDistance(leverage)
	if side == model.SideShort {
		return entry.Mul(one.Add(d))
	}
	return entry.Mul(one.Sub(d))
}

// IsAtLiquidationRisk long: price at or below the risk price. short: at or above.
func IsAtLiquidationRisk(side model.Side, entry, price decimal.Decimal, leverage int) bool {
	if !entry.IsPositive() || !price.IsPositive() {
		return false
	}
	riskPrice := LiquidationRiskPrice(side, entry, leverage)
	switch side {
	case model.SideLong:
		return price.LessThanOrEqual(riskPrice)
	case model.SideShort:
		return price.GreaterThanOrEqual(riskPrice)
	default:
		return false
	}
}

// StopLevels converts percentage distances into absolute stop-loss and take-profit
// prices on the correct side of the entry.
func StopLevels(side model.Side, entry, stopLossPct, takeProfitPct decimal.Decimal) (stopLoss, takeProfit decimal.Decimal) {
	sl := stopLossPct.Div(hundred)
	tp := takeProfitPct.Div(hundred)

	if side == model.SideShort {
		return entry.Mul(one.Add(sl)), entry.Mul(one.Sub(tp))
	}
	return entry.Mul(one.Sub(sl)), entry.Mul(one.Add(tp))
}

// ClampStopLoss moves a stop-loss that sits on or beyond the liquidation-risk price
// back inside the band, so liquidation can never trigger before the stop.
// A zero stop (unset) is clamped too.
func ClampStopLoss(side model.Side, entry, stopLoss decimal.Decimal, leverage int) (decimal.Decimal, bool) {
	riskPrice := LiquidationRiskPrice(side, entry, leverage)
	inside := entry.Sub(riskPrice).Abs().Mul(StopInsideFraction)

	switch side {
	case model.SideLong:
		if stopLoss.IsPositive() && stopLoss.GreaterThan(riskPrice) {
			return stopLoss, false
		}
		return entry.Sub(inside), true
	case model.SideShort:
		if stopLoss.IsPositive() && stopLoss.LessThan(riskPrice) {
			return stopLoss, false
		}
		return entry.Add(inside), true
	default:
		return stopLoss, false
	}
}

// SizePosition risk-based sizing.
//
//	risk amount = equity * riskPct / 100
//	raw size    = risk amount / |entry - stop|
//	cap         = freeMargin * 0.95 * leverage / entry
//
// Returns zero when nothing can be opened.
func SizePosition(equity, freeMargin, riskPct, entry, stop decimal.Decimal, leverage int) decimal.Decimal {
	if !entry.IsPositive() || !riskPct.IsPositive() || !equity.IsPositive() || leverage < 1 {
		return decimal.Zero
	}

	distance := entry.Sub(stop).Abs()
	if distance.IsZero() {
		return decimal.Zero
	}

	riskAmount := equity.Mul(riskPct).Div(hundred)
	size := riskAmount.Div(distance)

	maxSize := freeMargin.Mul(MarginCapFraction).Mul(decimal.NewFromInt(int64(leverage))).Div(entry)
	if size.GreaterThan(maxSize) {
		size = maxSize
	}

	if !size.IsPositive() {
		return decimal.Zero
	}
	return size
}
