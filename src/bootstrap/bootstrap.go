// Package bootstrap assembles the capture pipeline from environment configuration.
package bootstrap

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"errortracker/src/masking"
	"errortracker/src/metrics"
	"errortracker/src/notifier"
	"errortracker/src/repository"
	"errortracker/src/ticketing"
	"errortracker/src/tracker"
)

// Settings gathers every configuration section the pipeline reads.
type Settings struct {
	Tracker   tracker.Config
	Masking   masking.Config
	Notifier  notifier.Config
	Ticketing ticketing.Config
}

func LoadSettings() Settings {
	return Settings{
		Tracker:   tracker.GetConfig(),
		Masking:   masking.GetConfig(),
		Notifier:  notifier.GetConfig(),
		Ticketing: ticketing.GetConfig(),
	}
}

// Pipeline is the assembled tracker plus the parts the server exposes.
type Pipeline struct {
	Tracker    *tracker.Tracker
	Repository *repository.ErrorAggregateRepository
	LiveHub    *notifier.LiveHub
}

// Build wires the tracker to db. m may be nil.
func Build(settings Settings, db *gorm.DB, m *metrics.Metrics, logger *logrus.Entry) (*Pipeline, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	policy, err := masking.NewPolicyFromConfig(settings.Masking)
	if err != nil {
		return nil, fmt.Errorf("masking policy: %w", err)
	}

	repo := repository.NewErrorAggregateRepositoryWithDB(db).WithRetryObserver(m.RecordUpsertRetry)
	pipeline := &Pipeline{Repository: repo}

	opts := []tracker.Option{
		tracker.WithMasking(policy),
		tracker.WithMetrics(m),
		tracker.WithLogger(logger),
	}

	notifiers, hub, err := buildNotifiers(settings, logger)
	if err != nil {
		return nil, err
	}
	pipeline.LiveHub = hub
	if len(notifiers) > 0 {
		opts = append(opts, tracker.WithNotifier(notifiers))
	}

	if settings.Ticketing.URL != "" {
		tk, err := ticketing.NewHTTPTicketing(settings.Ticketing, repo, logger)
		if err != nil {
			return nil, fmt.Errorf("ticketing: %w", err)
		}
		opts = append(opts, tracker.WithTicketing(tk))
	}

	pipeline.Tracker = tracker.New(settings.Tracker, repo, opts...)

	logger.WithFields(logrus.Fields{
		"notifiers":  settings.Tracker.Notifiers,
		"ticketing":  settings.Ticketing.URL != "",
		"track_all":  settings.Tracker.TrackAll,
		"recipients": len(settings.Tracker.Recipients),
	}).Info("[bootstrap] error tracker ready")

	return pipeline, nil
}

func buildNotifiers(settings Settings, logger *logrus.Entry) (notifier.Multi, *notifier.LiveHub, error) {
	var (
		multi notifier.Multi
		hub   *notifier.LiveHub
	)

	for _, name := range settings.Tracker.Notifiers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "log":
			multi = append(multi, notifier.NewLogNotifier(logger))
		case "email":
			n, err := notifier.NewEmailNotifier(settings.Notifier)
			if err != nil {
				return nil, nil, fmt.Errorf("email notifier: %w", err)
			}
			multi = append(multi, n)
		case "webhook":
			n, err := notifier.NewWebhookNotifier(settings.Notifier)
			if err != nil {
				return nil, nil, fmt.Errorf("webhook notifier: %w", err)
			}
			multi = append(multi, n)
		case "live":
			if hub == nil {
				hub = notifier.NewLiveHub(logger)
				multi = append(multi, hub)
			}
		default:
			return nil, nil, fmt.Errorf("unknown notifier %q", name)
		}
	}

	return multi, hub, nil
}
