package tracker

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SubjectPrefix string   `envconfig:"APP_ERROR_SUBJECT_PREFIX" default:"[errortracker]"`
	Sender        string   `envconfig:"APP_ERROR_EMAIL_SENDER" default:"errortracker@localhost"`
	Recipients    []string `envconfig:"APP_ERROR_RECIPIENT_EMAIL"`
	TrackAll      bool     `envconfig:"TRACK_ALL_EXCEPTIONS" default:"false"`
	Notifiers     []string `envconfig:"APP_ERROR_NOTIFIERS" default:"log"` // log, email, webhook, live
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
