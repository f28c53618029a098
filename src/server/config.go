package server

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port            string        `envconfig:"PORT" default:"9898"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	WSWriteTimeout  time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	WSPingInterval  time.Duration `envconfig:"WS_PING_INTERVAL" default:"30s"`
	// Empty allows every origin.
	WSAllowedOrigins []string `envconfig:"WS_ALLOWED_ORIGINS"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
