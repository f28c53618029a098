package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BinanceFuturesURL string        `envconfig:"BINANCE_FUTURES_URL" default:"https://fapi.binance.com"`
	BinanceSpotURL    string        `envconfig:"BINANCE_SPOT_URL" default:"https://api.binance.com"`
	RequestsPerSecond float64       `envconfig:"BINANCE_REQUESTS_PER_SECOND" default:"10"`
	RequestBurst      int           `envconfig:"BINANCE_REQUEST_BURST" default:"5"`
	HTTPTimeout       time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	SignalURL     string        `envconfig:"AI_SIGNAL_URL" default:"http://localhost:8000/analyze"`
	SignalAPIKey  string        `envconfig:"AI_SIGNAL_API_KEY"`
	SignalTimeout time.Duration `envconfig:"AI_SIGNAL_TIMEOUT" default:"60s"`

	// OptimizerURL empty disables the optimizer loop.
	OptimizerURL    string `envconfig:"OPTIMIZER_URL"`
	OptimizerAPIKey string `envconfig:"OPTIMIZER_API_KEY"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
