package database

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"debug"` // Expected to hold values like "debug", "info", "warn", "error"
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"` // Expected to hold values like "json" or "text"

	// Driver is "postgres" or "sqlite". For sqlite DatabaseURL is a file path.
	Driver              string        `envconfig:"DB_DRIVER" default:"sqlite"`
	DatabaseURLMain     string        `envconfig:"DATABASE_URL" default:"papertrader.db"`
	DatabaseURLReadOnly string        `envconfig:"DATABASE_URL_READONLY"`
	GormLogLevel        int           `envconfig:"GORM_LOG_LEVEL" default:"2"`
	MaxOpenConns        int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns        int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime     time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
