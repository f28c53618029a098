package portfolio

import (
	"math"
	"time"

	"papertrader/src/model"

	"github.com/shopspring/decimal"
)

// ComputeMetrics derives every performance figure from scratch.
// closed must be in closing order: the equity curve used for drawdown and
// per-trade returns is replayed from initialBalance in that order.
// Every ratio with a zero denominator is 0.
func ComputeMetrics(initialBalance, equity decimal.Decimal, open, closed []*Position, now time.Time) model.Metrics {
	m := model.Metrics{
		TotalTrades:       len(closed),
		OpenPositions:     len(open),
		PositionsBySymbol: map[string]int{},
		UpdatedAt:         now,
	}

	for _, pos := range open {
		m.UnrealizedPnL = m.UnrealizedPnL.Add(pos.UnrealizedPnL)
		m.PositionsBySymbol[pos.Symbol]++
	}

	if initialBalance.IsPositive() {
		m.TotalReturnPct = equity.Sub(initialBalance).Div(initialBalance).Mul(hundred).InexactFloat64()
	}

	var (
		running     = initialBalance
		peak        = initialBalance
		returns     []float64
		streak      int
		totalDur    time.Duration
		leverageSum int
	)

	for _, pos := range closed {
		pnl := pos.Realized()
		m.TotalRealizedPnL = m.TotalRealizedPnL.Add(pnl)

		switch {
		case pnl.IsPositive():
			m.WinningTrades++
			m.GrossProfit = m.GrossProfit.Add(pnl)
			if pnl.GreaterThan(m.LargestWin) {
				m.LargestWin = pnl
			}
			if streak > 0 {
				streak++
			} else {
				streak = 1
			}
		case pnl.IsNegative():
			m.LosingTrades++
			loss := pnl.Abs()
			m.GrossLoss = m.GrossLoss.Add(loss)
			if loss.GreaterThan(m.LargestLoss) {
				m.LargestLoss = loss
			}
			if streak < 0 {
				streak--
			} else {
				streak = -1
			}
		default:
			streak = 0
		}

		if streak > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = streak
		}
		if -streak > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = -streak
		}

		if running.IsPositive() {
			returns = append(returns, pnl.Div(running).InexactFloat64())
		}

		running = running.Add(pnl)
		if running.GreaterThan(peak) {
			peak = running
		}
		if dd := peak.Sub(running); dd.GreaterThan(m.MaxDrawdown) {
			m.MaxDrawdown = dd
		}
		if peak.IsPositive() {
			if pct := peak.Sub(running).Div(peak).Mul(hundred).InexactFloat64(); pct > m.MaxDrawdownPct {
				m.MaxDrawdownPct = pct
			}
		}

		totalDur += pos.Duration
		leverageSum += pos.Leverage
		m.TotalFeesPaid = m.TotalFeesPaid.Add(pos.TradingFees).Add(pos.FundingFees)
	}
	m.CurrentStreak = streak

	for _, pos := range open {
		leverageSum += pos.Leverage
		m.TotalFeesPaid = m.TotalFeesPaid.Add(pos.TradingFees).Add(pos.FundingFees)
	}

	if equity.LessThan(peak) {
		m.CurrentDrawdown = peak.Sub(equity)
		if peak.IsPositive() {
			m.CurrentDrawdownPct = m.CurrentDrawdown.Div(peak).Mul(hundred).InexactFloat64()
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
		m.AverageTradeDuration = totalDur / time.Duration(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.GrossLoss.Div(decimal.NewFromInt(int64(m.LosingTrades)))
	}
	if m.GrossLoss.IsPositive() {
		m.ProfitFactor = m.GrossProfit.Div(m.GrossLoss).InexactFloat64()
	}
	if n := len(open) + len(closed); n > 0 {
		m.AverageLeverage = float64(leverageSum) / float64(n)
	}

	m.SharpeRatio, m.SortinoRatio = tradeRatios(returns)

	if m.MaxDrawdownPct > 0 {
		m.CalmarRatio = m.TotalReturnPct / m.MaxDrawdownPct
	}
	if m.MaxDrawdown.IsPositive() {
		m.RecoveryFactor = m.TotalRealizedPnL.Div(m.MaxDrawdown).InexactFloat64()
	}

	return m
}

// tradeRatios returns per-trade (not annualized) Sharpe and Sortino ratios.
// Both need at least two returns.
func tradeRatios(returns []float64) (sharpe, sortino float64) {
	n := len(returns)
	if n < 2 {
		return 0, 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)

	var variance, downside float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
		if r < 0 {
			downside += r * r
		}
	}

	if std := math.Sqrt(variance / float64(n-1)); std > 0 {
		sharpe = mean / std
	}
	if dd := math.Sqrt(downside / float64(n)); dd > 0 {
		sortino = mean / dd
	}
	return sharpe, sortino
}
