package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"papertrader/src/engine"
	"papertrader/src/model"

	"github.com/nntaoli-project/goex"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func testLog() *logger.Entry {
	l, _ := test.NewNullLogger()
	return logger.NewEntry(l)
}

func newTestMarket(t *testing.T, handler http.HandlerFunc) *BinanceMarketData {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewBinanceMarketData(Config{
		BinanceFuturesURL: srv.URL,
		BinanceSpotURL:    srv.URL,
		HTTPTimeout:       2 * time.Second,
	}, testLog())
}

func TestBinancePriceAndFunding(t *testing.T) {
	m := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case tickerPricePath:
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"50123.40","time":1700000000000}`))
		case premiumIndexPath:
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","markPrice":"50120.00","lastFundingRate":"0.00010000"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	price, err := m.Price(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, "50123.40", price)

	rate, err := m.FundingRate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, "0.00010000", rate)
}

func TestBinanceAPIError(t *testing.T) {
	m := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := m.Price(context.Background(), "NOPEUSDT")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, -1121, apiErr.Code)
	require.Contains(t, err.Error(), "BAD_SYMBOL")
}

func TestBinanceEmptyFundingRate(t *testing.T) {
	m := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT"}`))
	})

	rate, err := m.FundingRate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, "0", rate)
}

type fakeKlines struct {
	pair   goex.CurrencyPair
	period goex.KlinePeriod
	size   int
}

func (f *fakeKlines) GetKlineRecords(pair goex.CurrencyPair, period goex.KlinePeriod, size int, _ ...goex.OptionalParameter) ([]goex.Kline, error) {
	f.pair, f.period, f.size = pair, period, size
	return []goex.Kline{
		{Timestamp: 1700000000, Open: 100, High: 110, Low: 95, Close: 105, Vol: 12.5},
		{Timestamp: 1700000900, Open: 105, High: 106, Low: 90, Close: 92, Vol: 20},
	}, nil
}

func TestBinanceKlines(t *testing.T) {
	m := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {})
	src := &fakeKlines{}
	m.klines = src

	candles, err := m.Klines(context.Background(), "ETHUSDT", "15m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	require.Equal(t, "ETH", src.pair.CurrencyA.Symbol)
	require.Equal(t, "USDT", src.pair.CurrencyB.Symbol)
	require.Equal(t, goex.KlinePeriod(goex.KLINE_PERIOD_15MIN), src.period)
	require.Equal(t, 2, src.size)

	require.Equal(t, "ETHUSDT", candles[0].Symbol)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), candles[0].Datetime)
	require.True(t, candles[0].IsBullish())
	require.True(t, candles[1].IsBearish())
	require.True(t, decimal.NewFromFloat(12.5).Equal(candles[0].Volume))

	_, err = m.Klines(context.Background(), "ETHUSDT", "7m", 2)
	require.Error(t, err)
	_, err = m.Klines(context.Background(), "XYZ", "15m", 2)
	require.Error(t, err)
}

func TestSplitSymbol(t *testing.T) {
	tests := []struct {
		symbol, base, quote string
	}{
		{"BTCUSDT", "BTC", "USDT"},
		{"ethusdc", "ETH", "USDC"},
		{"SOLBTC", "SOL", "BTC"},
	}
	for _, tt := range tests {
		pair, err := splitSymbol(tt.symbol)
		require.NoError(t, err, tt.symbol)
		require.Equal(t, tt.base, pair.CurrencyA.Symbol)
		require.Equal(t, tt.quote, pair.CurrencyB.Symbol)
	}

	_, err := splitSymbol("USDT")
	require.Error(t, err)
}

func TestAISignalClientAnalyze(t *testing.T) {
	var got analyzeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"direction": "short",
			"confidence": 0.82,
			"reasoning": "lower highs",
			"suggested_stop_loss": "51000",
			"suggested_leverage": 500
		}`))
	}))
	defer srv.Close()

	c := NewAISignalClient(Config{SignalURL: srv.URL, SignalAPIKey: "secret", SignalTimeout: 2 * time.Second}, testLog())

	analysis, err := c.Analyze(context.Background(),
		engine.MarketSnapshot{Symbol: "BTCUSDT", Price: decimal.NewFromInt(50000)},
		engine.StrategyContext{Leverage: 10},
	)
	require.NoError(t, err)
	require.Equal(t, model.DirectionShort, analysis.Direction)
	require.Equal(t, 0.82, analysis.Confidence)
	require.True(t, analysis.SuggestedStopLoss.Valid)
	require.True(t, decimal.NewFromInt(51000).Equal(analysis.SuggestedStopLoss.Decimal))
	require.False(t, analysis.SuggestedTakeProfit.Valid)
	require.Nil(t, analysis.SuggestedLeverage, "out of range leverage is dropped")

	require.Equal(t, "BTCUSDT", got.Snapshot.Symbol)
	require.Equal(t, 10, got.Strategy.Leverage)
}

func TestAISignalClientRejectsInvalidAnswer(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown direction", `{"direction":"sideways","confidence":0.5}`},
		{"confidence out of range", `{"direction":"long","confidence":1.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewAISignalClient(Config{SignalURL: srv.URL}, testLog())
			_, err := c.Analyze(context.Background(), engine.MarketSnapshot{Symbol: "BTCUSDT"}, engine.StrategyContext{})
			require.ErrorIs(t, err, ErrInvalidAnalysis)
		})
	}
}

func TestAISignalClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAISignalClient(Config{SignalURL: srv.URL}, testLog())
	_, err := c.Analyze(context.Background(), engine.MarketSnapshot{Symbol: "BTCUSDT"}, engine.StrategyContext{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestOptimizerClient(t *testing.T) {
	require.Nil(t, NewOptimizerClient(Config{}, testLog()))

	var report engine.PerformanceReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		_, _ = w.Write([]byte(`{"suggestions":["lower leverage"]}`))
	}))
	defer srv.Close()

	c := NewOptimizerClient(Config{OptimizerURL: srv.URL}, testLog())
	require.NotNil(t, c)

	err := c.Submit(context.Background(), engine.PerformanceReport{
		Metrics: model.Metrics{TotalTrades: 7},
	})
	require.NoError(t, err)
	require.Equal(t, 7, report.Metrics.TotalTrades)
}

func TestGetErrorMsg(t *testing.T) {
	require.Equal(t, "BAD_SYMBOL", GetErrorMsg(-1121))
	require.Equal(t, "UNKNOWN_BINANCE_ERROR_42", GetErrorMsg(42))
}
