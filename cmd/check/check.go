package check

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"errortracker/src/bootstrap"
	"errortracker/src/database"
	"errortracker/src/tracker"
)

// ErrSynthetic is the error the check command records.
var ErrSynthetic = errors.New("errortracker check: synthetic error")

type Check struct {
	Log *logrus.Entry
	Out io.Writer

	tracker *tracker.Tracker
}

// Start records ErrSynthetic through the configured pipeline and prints the aggregate.
func (c *Check) Start() error {
	if c.tracker == nil {
		if err := database.InitMainDB(); err != nil {
			c.Log.WithError(err).Error("Failed to connect to database")
			return err
		}

		pipeline, err := bootstrap.Build(bootstrap.LoadSettings(), database.MainDB, nil, c.Log)
		if err != nil {
			return err
		}
		c.tracker = pipeline.Tracker
	}

	aggregate, err := c.tracker.RecordException(context.Background(), nil, ErrSynthetic)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	_, err = fmt.Fprintf(c.Out, "recorded aggregate #%d (%s), seen %d time(s), hash %s\n",
		aggregate.ID, aggregate.ExceptionName, aggregate.Count, aggregate.Hash)
	return err
}
