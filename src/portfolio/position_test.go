package portfolio

import (
	"testing"
	"time"

	"papertrader/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, got.Equal(d(want)), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func btcLong(t *testing.T) *Position {
	t.Helper()
	pos, err := NewPosition(OpenParams{
		ID:         "btc-long",
		Symbol:     "BTCUSDT",
		Side:       model.SideLong,
		EntryPrice: d("50000"),
		Quantity:   d("0.2"),
		Leverage:   10,
		FeeRate:    d("0.0004"),
		StopLoss:   d("49000"),
		TakeProfit: d("52000"),
		OpenTime:   t0,
	})
	require.NoError(t, err)
	return pos
}

func ethShort(t *testing.T) *Position {
	t.Helper()
	pos, err := NewPosition(OpenParams{
		ID:         "eth-short",
		Symbol:     "ETHUSDT",
		Side:       model.SideShort,
		EntryPrice: d("3000"),
		Quantity:   d("1"),
		Leverage:   5,
		OpenTime:   t0,
	})
	require.NoError(t, err)
	return pos
}

func TestNewPosition_ComputesMarginAndEntryFee(t *testing.T) {
	pos := btcLong(t)

	requireDecimal(t, "1000", pos.InitialMargin)
	requireDecimal(t, "4", pos.TradingFees)
	requireDecimal(t, "50000", pos.PeakPrice)
	require.Equal(t, model.PositionStatusOpen, pos.Status)
	require.False(t, pos.RealizedPnL.Valid)
	require.False(t, pos.ExitPrice.Valid)
}

func TestNewPosition_GeneratesIDAndOpenTime(t *testing.T) {
	pos, err := NewPosition(OpenParams{
		Symbol: "ETHUSDT", Side: model.SideShort,
		EntryPrice: d("3000"), Quantity: d("1"), Leverage: 1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, pos.ID)
	require.False(t, pos.OpenTime.IsZero())
	requireDecimal(t, "3000", pos.InitialMargin)
}

func TestNewPosition_Validation(t *testing.T) {
	valid := OpenParams{
		Symbol: "BTCUSDT", Side: model.SideLong,
		EntryPrice: d("100"), Quantity: d("1"), Leverage: 2,
	}

	tests := []struct {
		name   string
		mutate func(p *OpenParams)
	}{
		{"missing symbol", func(p *OpenParams) { p.Symbol = "" }},
		{"neutral side", func(p *OpenParams) { p.Side = model.Side("neutral") }},
		{"zero entry", func(p *OpenParams) { p.EntryPrice = decimal.Zero }},
		{"zero quantity", func(p *OpenParams) { p.Quantity = decimal.Zero }},
		{"negative quantity", func(p *OpenParams) { p.Quantity = d("-1") }},
		{"zero leverage", func(p *OpenParams) { p.Leverage = 0 }},
		{"negative fee", func(p *OpenParams) { p.FeeRate = d("-0.1") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := valid
			tt.mutate(&params)
			_, err := NewPosition(params)
			require.ErrorIs(t, err, ErrInvalidPosition)
		})
	}
}

func TestUpdateWithPrice_PnLAndExcursions(t *testing.T) {
	pos := btcLong(t)

	pos.UpdateWithPrice(d("52000"), nil)
	requireDecimal(t, "400", pos.UnrealizedPnL)
	requireDecimal(t, "40", pos.PnLPercentage)
	requireDecimal(t, "400", pos.MaxFavorableExcursion)
	requireDecimal(t, "52000", pos.PeakPrice)

	pos.UpdateWithPrice(d("49500"), nil)
	requireDecimal(t, "-100", pos.UnrealizedPnL)
	requireDecimal(t, "400", pos.MaxFavorableExcursion)
	requireDecimal(t, "100", pos.MaxAdverseExcursion)
	requireDecimal(t, "52000", pos.PeakPrice)

	// initial margin never changes after open
	requireDecimal(t, "1000", pos.InitialMargin)
}

func TestUpdateWithPrice_Monotonicity(t *testing.T) {
	long := btcLong(t)
	short, err := NewPosition(OpenParams{
		Symbol: "BTCUSDT", Side: model.SideShort,
		EntryPrice: d("50000"), Quantity: d("0.2"), Leverage: 10,
	})
	require.NoError(t, err)

	prevLong := d("-1000000")
	prevShort := d("1000000")
	for _, p := range []string{"45000", "48000", "49999.5", "50000", "50001", "53000", "60000"} {
		long.UpdateWithPrice(d(p), nil)
		short.UpdateWithPrice(d(p), nil)

		require.True(t, long.UnrealizedPnL.GreaterThanOrEqual(prevLong), "long pnl must increase with price")
		require.True(t, short.UnrealizedPnL.LessThanOrEqual(prevShort), "short pnl must decrease with price")
		prevLong = long.UnrealizedPnL
		prevShort = short.UnrealizedPnL
	}
}

func TestUpdateWithPrice_FundingSign(t *testing.T) {
	long := btcLong(t)
	short, err := NewPosition(OpenParams{
		Symbol: "BTCUSDT", Side: model.SideShort,
		EntryPrice: d("50000"), Quantity: d("0.2"), Leverage: 10,
	})
	require.NoError(t, err)

	rate := d("0.0001")
	long.UpdateWithPrice(d("50000"), &rate)
	short.UpdateWithPrice(d("50000"), &rate)

	requireDecimal(t, "1", long.FundingFees)
	requireDecimal(t, "-1", short.FundingFees)
}

func TestUpdateWithPrice_FundingOnEntryNotional(t *testing.T) {
	pos := btcLong(t)
	rate := d("0.0001")

	// 50000 * 0.2 * 0.0001, whatever the mark price
	pos.UpdateWithPrice(d("55000"), &rate)
	requireDecimal(t, "1", pos.FundingFees)

	pos.UpdateWithPrice(d("45000"), &rate)
	requireDecimal(t, "2", pos.FundingFees)
}

func TestShouldStopLossAndTakeProfit(t *testing.T) {
	long := btcLong(t)
	require.True(t, long.ShouldStopLoss(d("49000")))
	require.True(t, long.ShouldStopLoss(d("48000")))
	require.False(t, long.ShouldStopLoss(d("49500")))
	require.True(t, long.ShouldTakeProfit(d("52000")))
	require.False(t, long.ShouldTakeProfit(d("51999")))

	short, err := NewPosition(OpenParams{
		Symbol: "ETHUSDT", Side: model.SideShort,
		EntryPrice: d("3000"), Quantity: d("1"), Leverage: 5,
		StopLoss: d("3060"), TakeProfit: d("2880"),
	})
	require.NoError(t, err)
	require.True(t, short.ShouldStopLoss(d("3061")))
	require.False(t, short.ShouldStopLoss(d("3000")))
	require.True(t, short.ShouldTakeProfit(d("2880")))
	require.False(t, short.ShouldTakeProfit(d("2950")))

	unset, err := NewPosition(OpenParams{
		Symbol: "ETHUSDT", Side: model.SideLong,
		EntryPrice: d("3000"), Quantity: d("1"), Leverage: 5,
	})
	require.NoError(t, err)
	require.False(t, unset.ShouldStopLoss(d("1")))
	require.False(t, unset.ShouldTakeProfit(d("100000")))
}

func TestIsAtLiquidationRisk_AfterStopLoss(t *testing.T) {
	pos := btcLong(t)

	// 10x: risk price is 46200, well below the 49000 stop
	require.False(t, pos.IsAtLiquidationRisk(d("49000")))
	require.True(t, pos.ShouldStopLoss(d("49000")))
	require.True(t, pos.IsAtLiquidationRisk(d("46200")))
}

func TestUpdateTrailingStop(t *testing.T) {
	pos, err := NewPosition(OpenParams{
		Symbol: "SOLUSDT", Side: model.SideLong,
		EntryPrice: d("100"), Quantity: d("1"), Leverage: 10,
		StopLoss: d("98"),
	})
	require.NoError(t, err)

	// below activation
	require.False(t, pos.UpdateTrailingStop(d("101"), d("1"), d("1.5")))
	require.False(t, pos.TrailingStopActive)
	requireDecimal(t, "98", pos.StopLoss)

	require.True(t, pos.UpdateTrailingStop(d("102"), d("1"), d("1.5")))
	require.True(t, pos.TrailingStopActive)
	requireDecimal(t, "100.98", pos.StopLoss)

	// pullback keeps the stop
	require.False(t, pos.UpdateTrailingStop(d("101.5"), d("1"), d("1.5")))
	requireDecimal(t, "100.98", pos.StopLoss)

	require.True(t, pos.UpdateTrailingStop(d("110"), d("1"), d("1.5")))
	requireDecimal(t, "108.9", pos.StopLoss)
}

func TestUpdateTrailingStop_ShortNeverLoosens(t *testing.T) {
	pos, err := NewPosition(OpenParams{
		Symbol: "SOLUSDT", Side: model.SideShort,
		EntryPrice: d("100"), Quantity: d("1"), Leverage: 10,
		StopLoss: d("102"),
	})
	require.NoError(t, err)

	prev := pos.StopLoss
	for _, p := range []string{"99", "98", "97.5", "96", "95", "94.2", "90"} {
		pos.UpdateTrailingStop(d(p), d("1"), d("1.5"))
		require.True(t, pos.StopLoss.LessThanOrEqual(prev), "short stop moved up at %s", p)
		prev = pos.StopLoss
	}
	require.True(t, pos.TrailingStopActive)
	requireDecimal(t, "90.9", pos.StopLoss)
}

func TestClose_OnlyOnce(t *testing.T) {
	pos := btcLong(t)
	closedAt := t0.Add(2 * time.Hour)

	require.NoError(t, pos.Close(d("52000"), model.CloseReasonTakeProfit, d("4.16"), closedAt))
	require.Equal(t, model.PositionStatusClosed, pos.Status)
	require.True(t, pos.RealizedPnL.Valid)
	requireDecimal(t, "391.84", pos.RealizedPnL.Decimal)
	requireDecimal(t, "8.16", pos.TradingFees)
	requireDecimal(t, "52000", pos.ExitPrice.Decimal)
	require.Equal(t, 2*time.Hour, pos.Duration)
	require.Equal(t, model.CloseReasonTakeProfit, pos.CloseReason)

	err := pos.Close(d("40000"), model.CloseReasonManual, decimal.Zero, closedAt.Add(time.Hour))
	require.ErrorIs(t, err, ErrPositionAlreadyClosed)
	requireDecimal(t, "391.84", pos.RealizedPnL.Decimal)
	require.Equal(t, model.CloseReasonTakeProfit, pos.CloseReason)

	// closed positions ignore price updates
	pos.UpdateWithPrice(d("10"), nil)
	requireDecimal(t, "0", pos.UnrealizedPnL)
}

func TestClose_FundingReducesRealized(t *testing.T) {
	pos := btcLong(t)
	rate := d("0.0001")
	pos.UpdateWithPrice(d("50000"), &rate)

	require.NoError(t, pos.Close(d("50000"), model.CloseReasonManual, d("4"), t0.Add(time.Minute)))
	// 0 gross - 8 fees - 1 funding
	requireDecimal(t, "-9", pos.RealizedPnL.Decimal)
}
