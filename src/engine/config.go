package engine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"papertrader/src/model"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Symbols     []string `envconfig:"SYMBOLS" default:"BTCUSDT,ETHUSDT"`
	SymbolsFile string   `envconfig:"SYMBOLS_FILE"`

	PriceInterval        time.Duration `envconfig:"PRICE_INTERVAL" default:"1s"`
	MonitorInterval      time.Duration `envconfig:"MONITOR_INTERVAL" default:"5s"`
	PerformanceInterval  time.Duration `envconfig:"PERFORMANCE_INTERVAL" default:"5m"`
	OptimizationInterval time.Duration `envconfig:"OPTIMIZATION_INTERVAL" default:"1h"`
	DailyInterval        time.Duration `envconfig:"DAILY_INTERVAL" default:"24h"`
	// FundingInterval is how often funding is charged on open positions.
	FundingInterval time.Duration `envconfig:"FUNDING_INTERVAL" default:"8h"`

	KlineInterval string `envconfig:"KLINE_INTERVAL" default:"15m"`
	KlineLimit    int    `envconfig:"KLINE_LIMIT" default:"100"`

	// RecentTrades is how many closed trades go into an optimizer report.
	RecentTrades int    `envconfig:"OPTIMIZER_RECENT_TRADES" default:"50"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"papertrader"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	for i, s := range config.Symbols {
		config.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return config
}

// symbolsFile is the YAML layout of SYMBOLS_FILE:
//
//	symbols:
//	  BTCUSDT:
//	    leverage: 20
//	    stop_loss_pct: 1.5
//	  DOGEUSDT:
//	    enabled: false
type symbolsFile struct {
	Symbols map[string]symbolEntry `yaml:"symbols"`
}

type symbolEntry struct {
	Enabled         *bool   `yaml:"enabled"`
	Leverage        int     `yaml:"leverage"`
	PositionSizePct float64 `yaml:"position_size_pct"`
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct"`
	MaxPositions    int     `yaml:"max_positions"`
}

// LoadSymbolOverrides reads per-symbol overrides from a YAML file.
// A symbol listed without "enabled" is enabled.
func LoadSymbolOverrides(path string) (map[string]model.SymbolSettings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	return parseSymbolOverrides(raw)
}

func parseSymbolOverrides(raw []byte) (map[string]model.SymbolSettings, error) {
	var file symbolsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse symbols file: %w", err)
	}

	out := make(map[string]model.SymbolSettings, len(file.Symbols))
	for symbol, e := range file.Symbols {
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		out[strings.ToUpper(symbol)] = model.SymbolSettings{
			Enabled:         enabled,
			Leverage:        e.Leverage,
			PositionSizePct: decimal.NewFromFloat(e.PositionSizePct),
			StopLossPct:     decimal.NewFromFloat(e.StopLossPct),
			TakeProfitPct:   decimal.NewFromFloat(e.TakeProfitPct),
			MaxPositions:    e.MaxPositions,
		}
	}
	return out, nil
}
