package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// MinInterval guards against a zero or negative task interval.
	MinInterval time.Duration `envconfig:"SCHEDULER_MIN_INTERVAL" default:"10ms"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
