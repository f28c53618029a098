package engine

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// EventBuffer is the per-subscriber buffer of the event bus.
	EventBuffer int `envconfig:"EVENT_BUFFER" default:"256"`
	// DisableHTTP runs the loops without the API.
	DisableHTTP bool `envconfig:"DISABLE_HTTP" default:"false"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
