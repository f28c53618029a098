package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"papertrader/src/model"
	"papertrader/src/risk"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrPositionNotFound   = errors.New("position not found")
)

// MaxDailyHistory is how many daily entries are kept, oldest dropped first.
const MaxDailyHistory = 365

// Portfolio is the paper trading ledger.
//
// CashBalance is the wallet balance: opening a position reserves margin but does not
// debit cash, closing one credits the realized PnL and releases the reservation.
//
//	equity      = cash + sum(open unrealized pnl)
//	free margin = equity - margin used
//
// Portfolio is not safe for concurrent use. The engine serializes access.
type Portfolio struct {
	InitialBalance decimal.Decimal
	CashBalance    decimal.Decimal
	Equity         decimal.Decimal
	MarginUsed     decimal.Decimal
	FreeMargin     decimal.Decimal
	MarginLevel    decimal.Decimal
	// SessionStart is when this ledger was created. A reset starts a new session.
	SessionStart time.Time
	// Version grows on every mutation and is stamped on the positions it touched,
	// so persisted rows can be ordered by the ledger state they came from.
	Version uint64

	positions map[string]*Position
	openIDs   []string
	closedIDs []string

	currentPrices map[string]decimal.Decimal
	fundingRates  map[string]decimal.Decimal

	metrics            model.Metrics
	daily              []model.DailyMetrics
	lastRecordedEquity decimal.Decimal

	now func() time.Time
}

// ClosedPosition is what an automatic closure did to one position.
type ClosedPosition struct {
	ID        string
	Reason    model.CloseReason
	ExitPrice decimal.Decimal
	Position  Position
}

func New(initialBalance decimal.Decimal) *Portfolio {
	p := &Portfolio{
		InitialBalance:     initialBalance,
		CashBalance:        initialBalance,
		positions:          map[string]*Position{},
		currentPrices:      map[string]decimal.Decimal{},
		fundingRates:       map[string]decimal.Decimal{},
		lastRecordedEquity: initialBalance,
		now:                time.Now,
	}
	p.SessionStart = p.now().UTC()
	p.recompute()
	return p
}

// Restore rebuilds a ledger from its latest snapshot and every persisted position.
// Margin in use is re-derived from the open positions rather than trusted from the snapshot.
func Restore(snap model.PortfolioSnapshot, positions []Position) *Portfolio {
	p := New(snap.InitialBalance)
	p.CashBalance = snap.CashBalance
	if !snap.SessionStart.IsZero() {
		p.SessionStart = snap.SessionStart
	}
	p.lastRecordedEquity = snap.LastRecordedEquity
	if p.lastRecordedEquity.IsZero() {
		p.lastRecordedEquity = snap.Equity
	}
	p.daily = append([]model.DailyMetrics(nil), snap.DailyHistory...)
	p.Version = snap.Version

	var open, closed []*Position
	for i := range positions {
		pos := positions[i]
		p.positions[pos.ID] = &pos
		if pos.Version > p.Version {
			p.Version = pos.Version
		}
		if pos.IsOpen() {
			open = append(open, &pos)
			p.MarginUsed = p.MarginUsed.Add(pos.InitialMargin)
			if pos.CurrentPrice.IsPositive() {
				p.currentPrices[pos.Symbol] = pos.CurrentPrice
			}
		} else {
			closed = append(closed, &pos)
		}
	}

	sort.SliceStable(open, func(i, j int) bool { return open[i].OpenTime.Before(open[j].OpenTime) })
	sort.SliceStable(closed, func(i, j int) bool { return closeTime(closed[i]).Before(closeTime(closed[j])) })

	for _, pos := range open {
		p.openIDs = append(p.openIDs, pos.ID)
	}
	for _, pos := range closed {
		p.closedIDs = append(p.closedIDs, pos.ID)
	}

	p.recompute()
	return p
}

func closeTime(p *Position) time.Time {
	if p.CloseTime == nil {
		return time.Time{}
	}
	return *p.CloseTime
}

// Add reserves margin for an open position and starts tracking it.
// Nothing changes when the margin does not fit.
func (p *Portfolio) Add(pos *Position) error {
	if pos == nil || !pos.IsOpen() {
		return fmt.Errorf("%w: only open positions can be added", ErrInvalidPosition)
	}
	if _, exists := p.positions[pos.ID]; exists {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidPosition, pos.ID)
	}
	if pos.InitialMargin.GreaterThan(p.FreeMargin) {
		return fmt.Errorf("%w: required %s, free %s",
			ErrInsufficientMargin, pos.InitialMargin.StringFixed(2), p.FreeMargin.StringFixed(2))
	}

	p.MarginUsed = p.MarginUsed.Add(pos.InitialMargin)
	p.positions[pos.ID] = pos
	p.openIDs = append(p.openIDs, pos.ID)

	p.bump(pos)
	p.recompute()
	return nil
}

// bump advances the ledger version and stamps it on the changed positions.
func (p *Portfolio) bump(changed ...*Position) {
	p.Version++
	for _, pos := range changed {
		pos.Version = p.Version
	}
}

// Close settles an open position at exitPrice. The exit fee uses the position's fee rate.
// A copy of the closed position is returned.
func (p *Portfolio) Close(id string, exitPrice decimal.Decimal, reason model.CloseReason) (Position, error) {
	pos, ok := p.positions[id]
	if !ok {
		return Position{}, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}

	exitFee := exitPrice.Mul(pos.Quantity).Mul(pos.FeeRate)
	if err := pos.Close(exitPrice, reason, exitFee, p.now().UTC()); err != nil {
		return Position{}, err
	}

	p.MarginUsed = p.MarginUsed.Sub(pos.InitialMargin)
	// Margin was never debited from cash at open, so only the realized PnL is credited.
	p.CashBalance = p.CashBalance.Add(pos.Realized())
	p.openIDs = removeID(p.openIDs, id)
	p.closedIDs = append(p.closedIDs, id)

	p.bump(pos)
	p.recompute()
	return *pos, nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// UpdatePrices revalues every open position whose symbol has a price.
// Funding is accrued only for symbols present in funding; pass nil to revalue without accrual.
func (p *Portfolio) UpdatePrices(prices map[string]decimal.Decimal, funding map[string]decimal.Decimal) {
	for symbol, price := range prices {
		if price.IsPositive() {
			p.currentPrices[symbol] = price
		}
	}
	p.RecordFundingRates(funding)

	var updated []*Position
	for _, id := range p.openIDs {
		pos := p.positions[id]
		price, ok := prices[pos.Symbol]
		if !ok {
			continue
		}

		var rate *decimal.Decimal
		if r, ok := funding[pos.Symbol]; ok {
			rate = &r
		}
		pos.UpdateWithPrice(price, rate)
		updated = append(updated, pos)
	}

	p.bump(updated...)
	p.recompute()
}

// RecordFundingRates stores the latest funding rates without charging them.
func (p *Portfolio) RecordFundingRates(funding map[string]decimal.Decimal) {
	for symbol, rate := range funding {
		p.fundingRates[symbol] = rate
	}
}

// UpdateTrailingStops applies the trailing stop to every open position with a known price.
// Returns the ids whose stop moved.
func (p *Portfolio) UpdateTrailingStops(cfg model.TrailingStopSettings) []string {
	if !cfg.Enabled {
		return nil
	}

	var moved []string
	for _, id := range p.openIDs {
		pos := p.positions[id]
		price, ok := p.currentPrices[pos.Symbol]
		if !ok {
			continue
		}
		if pos.UpdateTrailingStop(price, cfg.TrailPct, cfg.ActivationPct) {
			moved = append(moved, id)
		}
	}
	if len(moved) > 0 {
		changed := make([]*Position, 0, len(moved))
		for _, id := range moved {
			changed = append(changed, p.positions[id])
		}
		p.bump(changed...)
	}
	return moved
}

// CheckAutomaticClosures scans the open positions once against the latest prices.
// Priority per position: stop-loss, take-profit, liquidation risk.
func (p *Portfolio) CheckAutomaticClosures() []ClosedPosition {
	ids := append([]string(nil), p.openIDs...)

	var closed []ClosedPosition
	for _, id := range ids {
		pos := p.positions[id]
		price, ok := p.currentPrices[pos.Symbol]
		if !ok {
			continue
		}

		var reason model.CloseReason
		switch {
		case pos.ShouldStopLoss(price):
			reason = model.CloseReasonStopLoss
		case pos.ShouldTakeProfit(price):
			reason = model.CloseReasonTakeProfit
		case pos.IsAtLiquidationRisk(price):
			reason = model.CloseReasonLiquidation
		default:
			continue
		}

		settled, err := p.Close(id, price, reason)
		if err != nil {
			continue
		}
		closed = append(closed, ClosedPosition{ID: id, Reason: reason, ExitPrice: price, Position: settled})
	}
	return closed
}

// CanOpen reports whether a new position needing requiredMargin fits.
// The margin level check only applies while some margin is in use.
func (p *Portfolio) CanOpen(requiredMargin decimal.Decimal) bool {
	if requiredMargin.GreaterThan(p.FreeMargin) {
		return false
	}
	return p.MarginUsed.IsZero() || p.MarginLevel.GreaterThanOrEqual(hundred)
}

// SizePosition sizes a trade so that hitting stop loses riskPct of equity.
func (p *Portfolio) SizePosition(riskPct, entry, stop decimal.Decimal, leverage int) decimal.Decimal {
	return risk.SizePosition(p.Equity, p.FreeMargin, riskPct, entry, stop, leverage)
}

// RecordDaily appends the PnL since the last recorded equity to the daily history.
func (p *Portfolio) RecordDaily() model.DailyMetrics {
	now := p.now().UTC()

	var since time.Time
	if n := len(p.daily); n > 0 {
		since = p.daily[n-1].Date
	}

	trades := 0
	for _, id := range p.closedIDs {
		if ct := closeTime(p.positions[id]); ct.After(since) {
			trades++
		}
	}

	start := p.lastRecordedEquity
	if start.IsZero() {
		start = p.InitialBalance
	}
	pnl := p.Equity.Sub(start)

	var pct float64
	if start.IsPositive() {
		pct = pnl.Div(start).Mul(hundred).InexactFloat64()
	}

	entry := model.DailyMetrics{
		Date:           now,
		StartingEquity: start,
		EndingEquity:   p.Equity,
		PnL:            pnl,
		PnLPct:         pct,
		TradesClosed:   trades,
	}

	p.daily = append(p.daily, entry)
	if len(p.daily) > MaxDailyHistory {
		p.daily = append([]model.DailyMetrics(nil), p.daily[len(p.daily)-MaxDailyHistory:]...)
	}
	p.lastRecordedEquity = p.Equity
	p.bump()

	return entry
}

// RecomputeMetrics rebuilds the metrics snapshot from scratch.
func (p *Portfolio) RecomputeMetrics() model.Metrics {
	p.recompute()
	return p.metrics
}

func (p *Portfolio) recompute() {
	unrealized := decimal.Zero
	for _, id := range p.openIDs {
		unrealized = unrealized.Add(p.positions[id].UnrealizedPnL)
	}

	p.Equity = p.CashBalance.Add(unrealized)
	p.FreeMargin = p.Equity.Sub(p.MarginUsed)
	if p.MarginUsed.IsPositive() {
		p.MarginLevel = p.Equity.Div(p.MarginUsed).Mul(hundred)
	} else {
		p.MarginLevel = decimal.Zero
	}

	p.metrics = ComputeMetrics(p.InitialBalance, p.Equity, p.list(p.openIDs), p.list(p.closedIDs), p.now().UTC())
}

func (p *Portfolio) list(ids []string) []*Position {
	out := make([]*Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.positions[id])
	}
	return out
}

func (p *Portfolio) copies(ids []string) []Position {
	out := make([]Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, *p.positions[id])
	}
	return out
}

// ----- readers -----

func (p *Portfolio) Position(id string) (Position, bool) {
	pos, ok := p.positions[id]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

func (p *Portfolio) OpenPositions() []Position   { return p.copies(p.openIDs) }
func (p *Portfolio) ClosedPositions() []Position { return p.copies(p.closedIDs) }
func (p *Portfolio) OpenCount() int              { return len(p.openIDs) }

func (p *Portfolio) OpenIDs() []string   { return append([]string(nil), p.openIDs...) }
func (p *Portfolio) ClosedIDs() []string { return append([]string(nil), p.closedIDs...) }

func (p *Portfolio) OpenCountBySymbol(symbol string) int {
	n := 0
	for _, id := range p.openIDs {
		if p.positions[id].Symbol == symbol {
			n++
		}
	}
	return n
}

func (p *Portfolio) CurrentPrice(symbol string) (decimal.Decimal, bool) {
	price, ok := p.currentPrices[symbol]
	return price, ok
}

func (p *Portfolio) FundingRate(symbol string) (decimal.Decimal, bool) {
	rate, ok := p.fundingRates[symbol]
	return rate, ok
}

func (p *Portfolio) Metrics() model.Metrics {
	return cloneMetrics(p.metrics)
}

func (p *Portfolio) DailyHistory() []model.DailyMetrics {
	return append([]model.DailyMetrics(nil), p.daily...)
}

// View is a consistent, detached copy of the ledger for readers outside the lock.
type View struct {
	InitialBalance     decimal.Decimal            `json:"initial_balance"`
	CashBalance        decimal.Decimal            `json:"cash_balance"`
	Equity             decimal.Decimal            `json:"equity"`
	MarginUsed         decimal.Decimal            `json:"margin_used"`
	FreeMargin         decimal.Decimal            `json:"free_margin"`
	MarginLevel        decimal.Decimal            `json:"margin_level"`
	OpenPositions      []Position                 `json:"open_positions"`
	ClosedPositions    []Position                 `json:"closed_positions"`
	CurrentPrices      map[string]decimal.Decimal `json:"current_prices"`
	FundingRates       map[string]decimal.Decimal `json:"funding_rates"`
	Metrics            model.Metrics              `json:"metrics"`
	DailyHistory       []model.DailyMetrics       `json:"daily_history"`
	LastRecordedEquity decimal.Decimal            `json:"last_recorded_equity"`
	SessionStart       time.Time                  `json:"session_start"`
}

func (p *Portfolio) View() View {
	return View{
		InitialBalance:     p.InitialBalance,
		CashBalance:        p.CashBalance,
		Equity:             p.Equity,
		MarginUsed:         p.MarginUsed,
		FreeMargin:         p.FreeMargin,
		MarginLevel:        p.MarginLevel,
		OpenPositions:      p.OpenPositions(),
		ClosedPositions:    p.ClosedPositions(),
		CurrentPrices:      cloneDecimals(p.currentPrices),
		FundingRates:       cloneDecimals(p.fundingRates),
		Metrics:            p.Metrics(),
		DailyHistory:       p.DailyHistory(),
		LastRecordedEquity: p.lastRecordedEquity,
		SessionStart:       p.SessionStart,
	}
}

// ToSnapshot builds the row persisted as the latest portfolio state.
func (p *Portfolio) ToSnapshot() model.PortfolioSnapshot {
	return model.PortfolioSnapshot{
		InitialBalance:     p.InitialBalance,
		CashBalance:        p.CashBalance,
		Equity:             p.Equity,
		MarginUsed:         p.MarginUsed,
		FreeMargin:         p.FreeMargin,
		MarginLevel:        p.MarginLevel,
		LastRecordedEquity: p.lastRecordedEquity,
		SessionStart:       p.SessionStart,
		Version:            p.Version,
		OpenPositions:      len(p.openIDs),
		ClosedPositions:    len(p.closedIDs),
		Metrics:            p.Metrics(),
		DailyHistory:       p.DailyHistory(),
		CreatedAt:          p.now().UTC(),
	}
}

func cloneDecimals(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneMetrics(m model.Metrics) model.Metrics {
	out := m
	out.PositionsBySymbol = make(map[string]int, len(m.PositionsBySymbol))
	for k, v := range m.PositionsBySymbol {
		out.PositionsBySymbol[k] = v
	}
	return out
}
