package notifier

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`

	WebhookURL     string        `envconfig:"APP_ERROR_WEBHOOK_URL"`
	WebhookFormat  string        `envconfig:"APP_ERROR_WEBHOOK_FORMAT" default:"generic"` // generic, slack
	WebhookTimeout time.Duration `envconfig:"APP_ERROR_WEBHOOK_TIMEOUT" default:"10s"`
	WebhookRetries int           `envconfig:"APP_ERROR_WEBHOOK_RETRIES" default:"3"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
