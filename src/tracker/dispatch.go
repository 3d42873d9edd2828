package tracker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"errortracker/src/metrics"
	"errortracker/src/model"
)

// postProcess notifies first and raises a ticket second. Each step is
// isolated: a failing or panicking notifier never blocks ticketing, and
// neither failure reaches the caller.
func (t *Tracker) postProcess(
	ctx context.Context,
	r *http.Request,
	captured model.CapturedException,
	aggregate *model.ErrorAggregate,
) model.DispatchOutcome {
	var outcome model.DispatchOutcome

	if t.notifier != nil {
		n := model.Notification{
			Subject:    subject(t.config.SubjectPrefix, captured.Request, captured),
			Body:       body(r, captured.FrameString),
			Sender:     t.config.Sender,
			Recipients: t.config.Recipients,
		}
		outcome.NotifyErr = isolate(func() error {
			return t.notifier.Notify(ctx, r, aggregate, n)
		})
		outcome.Notified = outcome.NotifyErr == nil
		if outcome.NotifyErr != nil {
			t.metrics.RecordDispatchFailure(metrics.CollaboratorNotifier)
			t.logger.WithError(outcome.NotifyErr).WithFields(logrus.Fields{
				"aggregate_id": aggregate.ID,
				"subject":      n.Subject,
			}).Error("[tracker] notifier failed")
		}
	}

	if t.ticketing != nil {
		outcome.TicketErr = isolate(func() error {
			return t.ticketing.RaiseTicket(ctx, r, aggregate)
		})
		outcome.Ticketed = outcome.TicketErr == nil
		if outcome.TicketErr != nil {
			t.metrics.RecordDispatchFailure(metrics.CollaboratorTicketing)
			t.logger.WithError(outcome.TicketErr).WithField("aggregate_id", aggregate.ID).
				Error("[tracker] ticketing failed")
		}
	}

	return outcome
}

func isolate(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("collaborator panicked: %v", v)
		}
	}()
	return fn()
}
