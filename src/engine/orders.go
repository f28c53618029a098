package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"papertrader/src/events"
	"papertrader/src/model"
	"papertrader/src/portfolio"
	"papertrader/src/risk"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrPositionCap = errors.New("position cap reached")

// quantityPlaces is the precision new positions are sized to.
const quantityPlaces = 8

// PendingOrder is a sized order waiting for the next queue drain.
type PendingOrder struct {
	Signal     model.Signal    `json:"signal"`
	Symbol     string          `json:"symbol"`
	Side       model.Side      `json:"side,omitempty"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Leverage   int             `json:"leverage"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ProcessResult is the outcome of ProcessSignal. A rejection is an expected outcome,
// not an error.
type ProcessResult struct {
	Success    bool              `json:"success"`
	Reason     string            `json:"reason,omitempty"`
	Order      *PendingOrder     `json:"order,omitempty"`
	Executions []ExecutionResult `json:"executions,omitempty"`
}

// ExecutionResult is the outcome of ExecuteOrder.
type ExecutionResult struct {
	Success  bool                `json:"success"`
	Reason   string              `json:"reason,omitempty"`
	SignalID string              `json:"signal_id,omitempty"`
	Position *portfolio.Position `json:"position,omitempty"`
}

func rejected(format string, args ...interface{}) ProcessResult {
	return ProcessResult{Reason: fmt.Sprintf(format, args...)}
}

// ProcessSignal sizes a signal into a PendingOrder, enqueues it and drains the queue.
//
// Rejected when the symbol is disabled, a position cap is reached or the size is zero
// after the margin cap. Stops come from the signal when they sit on the right side of
// the entry, otherwise from the symbol settings, and are clamped inside the
// liquidation-risk band. Neutral signals are sized as if long; execution rejects them.
func (e *Engine) ProcessSignal(ctx context.Context, signal model.Signal) ProcessResult {
	settings := e.Settings()
	sym := settings.ForSymbol(signal.Symbol)

	log := e.logger.WithFields(logrus.Fields{
		"signal_id": signal.ID,
		"symbol":    signal.Symbol,
		"direction": signal.Direction,
	})

	if !sym.Enabled {
		return rejected("symbol %s is disabled", signal.Symbol)
	}

	entry := signal.EntryPrice
	if !entry.IsPositive() {
		if price, ok := e.Price(signal.Symbol); ok {
			entry = price
		}
	}
	if !entry.IsPositive() {
		return rejected("no price for %s", signal.Symbol)
	}

	side, directional := signal.Direction.Side()
	sizingSide := side
	if !directional {
		sizingSide = model.SideLong
	}

	leverage := sym.Leverage
	if l := signal.SuggestedLeverage; l != nil && *l >= 1 && *l < leverage {
		leverage = *l
	}

	stopLoss, takeProfit := risk.StopLevels(sizingSide, entry, sym.StopLossPct, sym.TakeProfitPct)
	if v := signal.SuggestedStopLoss; v.Valid && onLossSide(sizingSide, entry, v.Decimal) {
		stopLoss = v.Decimal
	}
	if v := signal.SuggestedTakeProfit; v.Valid && onProfitSide(sizingSide, entry, v.Decimal) {
		takeProfit = v.Decimal
	}
	if clamped, moved := risk.ClampStopLoss(sizingSide, entry, stopLoss, leverage); moved {
		log.WithFields(logrus.Fields{
			"stop_loss": stopLoss.String(),
			"clamped":   clamped.String(),
		}).Warn("stop-loss beyond liquidation-risk price, clamped")
		stopLoss = clamped
	}

	e.portfolioMu.RLock()
	openCount := e.portfolio.OpenCount()
	symbolCount := e.portfolio.OpenCountBySymbol(signal.Symbol)
	quantity := e.portfolio.SizePosition(sym.PositionSizePct, entry, stopLoss, leverage)
	e.portfolioMu.RUnlock()

	if openCount >= settings.MaxPositions {
		return rejected("max open positions reached (%d)", settings.MaxPositions)
	}
	if symbolCount >= sym.MaxPositions {
		return rejected("max open positions for %s reached (%d)", signal.Symbol, sym.MaxPositions)
	}

	quantity = quantity.Truncate(quantityPlaces)
	if !quantity.IsPositive() {
		return rejected("position size is zero after margin cap")
	}

	order := PendingOrder{
		Signal:     signal,
		Symbol:     signal.Symbol,
		Side:       side,
		EntryPrice: entry,
		Quantity:   quantity,
		Leverage:   leverage,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		EnqueuedAt: e.now().UTC(),
	}
	e.enqueue(order)

	log.WithFields(logrus.Fields{
		"quantity":    quantity.String(),
		"leverage":    leverage,
		"stop_loss":   stopLoss.String(),
		"take_profit": takeProfit.String(),
	}).Info("order queued")

	return ProcessResult{Success: true, Order: &order, Executions: e.drainQueue(ctx)}
}

// onLossSide long: below entry. short: above entry.
func onLossSide(side model.Side, entry, price decimal.Decimal) bool {
	if !price.IsPositive() {
		return false
	}
	if side == model.SideShort {
		return price.GreaterThan(entry)
	}
	return price.LessThan(entry)
}

// onProfitSide long: above entry. short: below entry.
func onProfitSide(side model.Side, entry, price decimal.Decimal) bool {
	if !price.IsPositive() {
		return false
	}
	if side == model.SideShort {
		return price.LessThan(entry)
	}
	return price.GreaterThan(entry)
}

func (e *Engine) enqueue(order PendingOrder) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	e.queue = append(e.queue, order)
}

// drainQueue swaps the queue for an empty one and executes the batch outside the queue lock.
func (e *Engine) drainQueue(ctx context.Context) []ExecutionResult {
	e.queueMu.Lock()
	batch := e.queue
	e.queue = nil
	e.queueMu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	results := make([]ExecutionResult, 0, len(batch))
	for _, order := range batch {
		results = append(results, e.ExecuteOrder(ctx, order))
	}
	return results
}

// ExecuteOrder opens the position of a pending order. Neutral orders, caps and
// insufficient margin are rejections.
func (e *Engine) ExecuteOrder(ctx context.Context, order PendingOrder) ExecutionResult {
	result := ExecutionResult{SignalID: order.Signal.ID}
	log := e.logger.WithFields(logrus.Fields{
		"signal_id": order.Signal.ID,
		"symbol":    order.Symbol,
	})

	side, ok := order.Signal.Direction.Side()
	if !ok {
		result.Reason = "neutral signal cannot open a position"
		log.Info(result.Reason)
		return result
	}

	settings := e.Settings()
	sym := settings.ForSymbol(order.Symbol)

	params := portfolio.OpenParams{
		Symbol:          order.Symbol,
		Side:            side,
		EntryPrice:      order.EntryPrice,
		Quantity:        order.Quantity,
		Leverage:        order.Leverage,
		FeeRate:         settings.TradingFeeRate,
		StopLoss:        order.StopLoss,
		TakeProfit:      order.TakeProfit,
		OpenTime:        e.now().UTC(),
		SignalReasoning: order.Signal.Reasoning,
	}
	if order.Signal.ID != "" {
		id := order.Signal.ID
		confidence := order.Signal.Confidence
		params.SignalID = &id
		params.SignalConfidence = &confidence
	}

	pos, err := portfolio.NewPosition(params)
	if err != nil {
		result.Reason = err.Error()
		log.WithError(err).Warn("order rejected")
		return result
	}

	e.portfolioMu.Lock()
	switch {
	case e.portfolio.OpenCount() >= settings.MaxPositions:
		err = fmt.Errorf("%w: %d open", ErrPositionCap, settings.MaxPositions)
	case e.portfolio.OpenCountBySymbol(order.Symbol) >= sym.MaxPositions:
		err = fmt.Errorf("%w: %d open for %s", ErrPositionCap, sym.MaxPositions, order.Symbol)
	default:
		err = e.portfolio.Add(pos)
	}
	var (
		opened portfolio.Position
		snap   model.PortfolioSnapshot
	)
	if err == nil {
		opened = *pos
		snap = e.portfolio.ToSnapshot()
	}
	e.portfolioMu.Unlock()

	if err != nil {
		result.Reason = err.Error()
		log.WithError(err).Info("order rejected")
		return result
	}

	e.savePosition(ctx, opened)
	e.saveSnapshot(ctx, snap)
	if order.Signal.ID != "" {
		record := model.NewSignalRecord(order.Signal)
		record.StopLoss = decimal.NewNullDecimal(opened.StopLoss)
		record.TakeProfit = decimal.NewNullDecimal(opened.TakeProfit)
		record.Executed = true
		record.PositionID = &opened.ID
		e.saveSignal(ctx, record)
	}

	log.WithFields(logrus.Fields{
		"position_id": opened.ID,
		"side":        opened.Side,
		"quantity":    opened.Quantity.String(),
		"entry":       opened.EntryPrice.String(),
		"margin":      opened.InitialMargin.StringFixed(2),
	}).Info("trade executed")
	e.publisher.Publish(events.TradeExecuted, opened)

	result.Success = true
	result.Position = &opened
	return result
}

// ClosePosition closes a position at the cached price of its symbol, or at its entry
// price when no price was seen yet. Unknown and already closed ids are errors.
func (e *Engine) ClosePosition(ctx context.Context, id string) (portfolio.Position, error) {
	e.portfolioMu.Lock()
	pos, ok := e.portfolio.Position(id)
	if !ok {
		e.portfolioMu.Unlock()
		return portfolio.Position{}, fmt.Errorf("%w: %s", portfolio.ErrPositionNotFound, id)
	}

	price, cached := e.Price(pos.Symbol)
	if !cached {
		price = pos.EntryPrice
	}

	closed, err := e.portfolio.Close(id, price, model.CloseReasonManual)
	var snap model.PortfolioSnapshot
	if err == nil {
		snap = e.portfolio.ToSnapshot()
	}
	e.portfolioMu.Unlock()

	if err != nil {
		return portfolio.Position{}, err
	}

	e.savePosition(ctx, closed)
	e.saveSnapshot(ctx, snap)

	e.logger.WithFields(logrus.Fields{
		"position_id": closed.ID,
		"exit_price":  price.String(),
		"realized":    closed.Realized().StringFixed(2),
		"cached":      cached,
	}).Info("position closed manually")
	e.publisher.Publish(events.TradeClosed, closed)

	return closed, nil
}
