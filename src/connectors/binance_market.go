// MARKET DATA CLIENT FOR BINANCE USDT-M FUTURES
// RESTY FOR PRICES + GOEX FOR KLINES, RATE LIMITED
package connectors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"papertrader/src/model"

	"github.com/go-resty/resty/v2"
	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second

	tickerPricePath  = "/fapi/v1/ticker/price"
	premiumIndexPath = "/fapi/v1/premiumIndex"
)

// quote assets recognised when splitting a symbol such as BTCUSDT
var quoteAssets = []string{"USDT", "USDC", "BUSD", "FDUSD", "BTC", "ETH"}

// -----------------------------
// API RESPONSES
// -----------------------------
type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Time   int64  `json:"time"`
}

type premiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
}

// klineSource is the part of goex.API used for candles.
type klineSource interface {
	GetKlineRecords(currency goex.CurrencyPair, period goex.KlinePeriod, size int, optional ...goex.OptionalParameter) ([]goex.Kline, error)
}

// -----------------------------
// CLIENT
// -----------------------------
type BinanceMarketData struct {
	http    *resty.Client
	klines  klineSource
	limiter *rate.Limiter
	log     *logger.Entry
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func newRestClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp).
		SetHeader("Accept", "application/json")
}

func NewBinanceMarketData(cfg Config, log *logger.Entry) *BinanceMarketData {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}
	if cfg.BinanceFuturesURL == "" {
		cfg.BinanceFuturesURL = "https://fapi.binance.com"
		log.Warnf("No futures URL provided, using default: %s", cfg.BinanceFuturesURL)
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}

	apiConfig := &goex.APIConfig{
		HttpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	if cfg.BinanceSpotURL != "" {
		apiConfig.Endpoint = cfg.BinanceSpotURL
	}

	return &BinanceMarketData{
		http:    newRestClient(cfg.BinanceFuturesURL, cfg.HTTPTimeout),
		klines:  binance.NewWithConfig(apiConfig),
		limiter: newLimiter(cfg.RequestsPerSecond, cfg.RequestBurst),
		log:     log.WithField("component", "binance"),
	}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (b *BinanceMarketData) get(ctx context.Context, path, symbol string, out interface{}) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	apiErr := &APIError{}
	resp, err := b.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(out).
		SetError(apiErr).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s %s: %w", path, symbol, err)
	}
	if resp.IsError() {
		if apiErr.Code != 0 {
			return apiErr
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

// -----------------------------
// MARKET DATA
// -----------------------------

// Price returns the last traded price of symbol as sent by the exchange.
func (b *BinanceMarketData) Price(ctx context.Context, symbol string) (string, error) {
	var out tickerPrice
	if err := b.get(ctx, tickerPricePath, symbol, &out); err != nil {
		return "", err
	}
	if out.Price == "" {
		return "", fmt.Errorf("empty price for %s", symbol)
	}
	return out.Price, nil
}

// FundingRate returns the last funding rate of symbol.
func (b *BinanceMarketData) FundingRate(ctx context.Context, symbol string) (string, error) {
	var out premiumIndex
	if err := b.get(ctx, premiumIndexPath, symbol, &out); err != nil {
		return "", err
	}
	if out.LastFundingRate == "" {
		return "0", nil
	}
	return out.LastFundingRate, nil
}

// Klines returns the last limit candles of symbol, oldest first.
func (b *BinanceMarketData) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	period, err := parseKlinePeriod(interval)
	if err != nil {
		return nil, err
	}
	pair, err := splitSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	series, err := b.klines.GetKlineRecords(pair, period, limit)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}

	b.log.WithFields(logger.Fields{
		"symbol":   symbol,
		"interval": interval,
		"count":    len(series),
	}).Debug("klines fetched")

	return toCandles(symbol, series), nil
}

func toCandles(symbol string, series []goex.Kline) []model.Candle {
	out := make([]model.Candle, 0, len(series))
	for _, k := range series {
		out = append(out, model.Candle{
			Symbol:   symbol,
			Datetime: time.Unix(k.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(k.Open),
			High:     decimal.NewFromFloat(k.High),
			Low:      decimal.NewFromFloat(k.Low),
			Close:    decimal.NewFromFloat(k.Close),
			Volume:   decimal.NewFromFloat(k.Vol),
		})
	}
	return out
}

// splitSymbol turns BTCUSDT into the BTC/USDT pair.
func splitSymbol(symbol string) (goex.CurrencyPair, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, quote := range quoteAssets {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			base := strings.TrimSuffix(s, quote)
			return goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: quote}), nil
		}
	}
	return goex.CurrencyPair{}, fmt.Errorf("unknown quote asset in symbol %q", symbol)
}

func parseKlinePeriod(interval string) (goex.KlinePeriod, error) {
	var period goex.KlinePeriod
	switch interval {
	case "1m":
		period = goex.KLINE_PERIOD_1MIN
	case "5m":
		period = goex.KLINE_PERIOD_5MIN
	case "15m":
		period = goex.KLINE_PERIOD_15MIN
	case "30m":
		period = goex.KLINE_PERIOD_30MIN
	case "1h":
		period = goex.KLINE_PERIOD_1H
	case "4h":
		period = goex.KLINE_PERIOD_4H
	case "1d":
		period = goex.KLINE_PERIOD_1DAY
	default:
		return 0, fmt.Errorf("unsupported kline interval %q", interval)
	}
	return period, nil
}
