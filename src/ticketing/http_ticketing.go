// Package ticketing opens tickets for error aggregates in an external tracker.
package ticketing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"errortracker/src/model"
)

// ticketNamespace scopes idempotency keys so they never collide with other uuid v5 users.
var ticketNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("errortracker/ticketing"))

// TicketAttacher stores the ticket key on the aggregate.
type TicketAttacher interface {
	AttachTicket(ctx context.Context, id uint, ticketKey string) error
}

type ticketRequest struct {
	Project     string   `json:"project"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
	ExternalID  string   `json:"external_id"`
}

type ticketResponse struct {
	Key string `json:"key"`
}

// HTTPTicketing opens one ticket per aggregate. Aggregates that already
// carry a ticket key are skipped, and retries reuse a deterministic
// Idempotency-Key so the remote side can drop duplicates.
type HTTPTicketing struct {
	project  string
	http     *resty.Client
	attacher TicketAttacher
	logger   *logrus.Entry
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	return (code >= 500 && code <= 599) || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func NewHTTPTicketing(config Config, attacher TicketAttacher, logger *logrus.Entry) (*HTTPTicketing, error) {
	if config.URL == "" {
		return nil, errors.New("TICKETING_URL is required for ticketing")
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	retries := config.Retries
	if retries < 0 {
		retries = 0
	}

	client := resty.New().
		SetBaseURL(config.URL).
		SetTimeout(config.Timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(4 * time.Second).
		AddRetryCondition(isRetryableResp)
	if config.Token != "" {
		client.SetAuthToken(config.Token)
	}

	return &HTTPTicketing{project: config.Project, http: client, attacher: attacher, logger: logger}, nil
}

// IdempotencyKey is stable for a given aggregate identity.
func IdempotencyKey(a *model.ErrorAggregate) string {
	name := a.Hash + "|" + a.Host + "|" + a.Path + "|" + a.Method
	return uuid.NewSHA1(ticketNamespace, []byte(name)).String()
}

func (t *HTTPTicketing) RaiseTicket(ctx context.Context, _ *http.Request, aggregate *model.ErrorAggregate) error {
	if aggregate == nil {
		return errors.New("no aggregate to raise a ticket for")
	}
	if aggregate.TicketKey != "" {
		t.logger.WithFields(logrus.Fields{
			"aggregate_id": aggregate.ID,
			"ticket_key":   aggregate.TicketKey,
		}).Debug("[ticketing] aggregate already has a ticket")
		return nil
	}

	key := IdempotencyKey(aggregate)

	var created ticketResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", key).
		SetBody(ticketRequest{
			Project:     t.project,
			Title:       title(aggregate),
			Description: aggregate.Traceback,
			Labels:      []string{"errortracker", aggregate.ExceptionName},
			ExternalID:  key,
		}).
		SetResult(&created).
		Post("/tickets")
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("create ticket: HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	if created.Key == "" {
		return errors.New("create ticket: response carried no ticket key")
	}

	aggregate.TicketKey = created.Key

	if t.attacher != nil {
		if err := t.attacher.AttachTicket(ctx, aggregate.ID, created.Key); err != nil {
			return fmt.Errorf("attach ticket %s to aggregate %d: %w", created.Key, aggregate.ID, err)
		}
	}

	t.logger.WithFields(logrus.Fields{
		"aggregate_id": aggregate.ID,
		"ticket_key":   created.Key,
	}).Info("[ticketing] ticket created")

	return nil
}

func title(a *model.ErrorAggregate) string {
	if a.Path == "" {
		return a.ExceptionName
	}
	return fmt.Sprintf("%s on %s %s", a.ExceptionName, a.Method, a.Path)
}
