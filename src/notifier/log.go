package notifier

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"errortracker/src/model"
)

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	logger *logrus.Entry
}

func NewLogNotifier(logger *logrus.Entry) *LogNotifier {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, _ *http.Request, aggregate *model.ErrorAggregate, n model.Notification) error {
	summary := summarize(aggregate)
	l.logger.WithFields(logrus.Fields{
		"aggregate_id": summary.ID,
		"hash":         summary.Hash,
		"exception":    summary.ExceptionName,
		"count":        summary.Count,
		"recipients":   n.Recipients,
	}).Error(n.Subject)
	l.logger.Debug(n.Body)
	return nil
}
