// Package notifier delivers error notifications over log, email, webhooks
// and live websocket connections.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"errortracker/src/model"
)

type Notifier interface {
	Notify(ctx context.Context, r *http.Request, aggregate *model.ErrorAggregate, n model.Notification) error
}

// Multi calls every notifier in order, even after one fails.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, r *http.Request, aggregate *model.ErrorAggregate, n model.Notification) error {
	var errs []error
	for i, notifier := range m {
		if err := notifyOne(ctx, notifier, r, aggregate, n); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d (%T): %w", i, notifier, err))
		}
	}
	return errors.Join(errs...)
}

func notifyOne(
	ctx context.Context,
	notifier Notifier,
	r *http.Request,
	aggregate *model.ErrorAggregate,
	n model.Notification,
) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panicked: %v", v)
		}
	}()
	return notifier.Notify(ctx, r, aggregate, n)
}

// AggregateSummary is the aggregate as shown to notification receivers.
type AggregateSummary struct {
	ID            uint      `json:"id"`
	Hash          string    `json:"hash"`
	Host          string    `json:"host,omitempty"`
	Path          string    `json:"path,omitempty"`
	Method        string    `json:"method,omitempty"`
	ExceptionName string    `json:"exception_name"`
	Count         int64     `json:"count"`
	TicketKey     string    `json:"ticket_key,omitempty"`
	LastSeen      time.Time `json:"last_seen"`
}

func summarize(a *model.ErrorAggregate) AggregateSummary {
	if a == nil {
		return AggregateSummary{}
	}
	return AggregateSummary{
		ID:            a.ID,
		Hash:          a.Hash,
		Host:          a.Host,
		Path:          a.Path,
		Method:        a.Method,
		ExceptionName: a.ExceptionName,
		Count:         a.Count,
		TicketKey:     a.TicketKey,
		LastSeen:      a.LastSeen,
	}
}
