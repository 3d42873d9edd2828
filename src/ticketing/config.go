package ticketing

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	URL     string        `envconfig:"TICKETING_URL"`
	Token   string        `envconfig:"TICKETING_TOKEN"`
	Project string        `envconfig:"TICKETING_PROJECT" default:"OPS"`
	Timeout time.Duration `envconfig:"TICKETING_TIMEOUT" default:"10s"`
	Retries int           `envconfig:"TICKETING_RETRIES" default:"3"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
