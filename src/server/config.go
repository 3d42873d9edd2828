package server

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           string `envconfig:"PORT" default:"9898"`
	MaxBodyBytes   int64  `envconfig:"MAX_BODY_BYTES" default:"65536"`
	AdminTokenHash string `envconfig:"APP_ERROR_ADMIN_TOKEN_HASH"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
