package tp_sl

import (
	"papertrader/src/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FavorableMovePct is how far, in percent of entry, the best seen price has moved in
// the position's favour. Negative when the best price is still adverse.
func FavorableMovePct(side model.Side, entry, peak decimal.Decimal) decimal.Decimal {
	if !entry.IsPositive() {
		return decimal.Zero
	}
	return peak.Sub(entry).Mul(side.Sign()).Div(entry).Mul(hundred)
}

// IsActivated reports whether the trailing stop should start following price.
func IsActivated(side model.Side, entry, peak, activationPct decimal.Decimal) bool {
	return FavorableMovePct(side, entry, peak).GreaterThan(activationPct)
}

// ComputeTrailingStop applies a percentage trailing SL for long or short.
//
// Long:
// - candidate: peak * (1 - trail/100)
// - update: SL = max(SL, candidate)
//
// Short:
// - candidate: peak * (1 + trail/100)
// - update: SL = min(SL, candidate), an unset (zero) SL always takes the candidate
func ComputeTrailingStop(
	side model.Side,
	currentSL decimal.Decimal,
	peak decimal.Decimal,
	trailPct decimal.Decimal,
) (newSL decimal.Decimal, moved bool) {
	if !peak.IsPositive() || !trailPct.IsPositive() {
		return currentSL, false
	}

	offset := trailPct.Div(hundred)

	switch side {
	case model.SideLong:
		candidate := peak.Mul(decimal.NewFromInt(1).Sub(offset))
		if candidate.GreaterThan(currentSL) {
			return candidate, true
		}
		return currentSL, false

	case model.SideShort:
		candidate := peak.Mul(decimal.NewFromInt(1).Add(offset))
		// Stop only moves down for shorts
		if currentSL.IsZero() || candidate.LessThan(currentSL) {
			return candidate, true
		}
		return currentSL, false

	default:
		return currentSL, false
	}
}
