package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"errortracker/src/model"
)

const (
	FormatGeneric = "generic"
	FormatSlack   = "slack"

	slackTextLimit = 2900
)

// WebhookNotifier posts notifications as JSON. 5xx, 429 and 408 answers are
// retried, other non-2xx answers fail immediately.
type WebhookNotifier struct {
	url    string
	format string
	http   *resty.Client
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

func NewWebhookNotifier(config Config) (*WebhookNotifier, error) {
	if config.WebhookURL == "" {
		return nil, errors.New("APP_ERROR_WEBHOOK_URL is required for the webhook notifier")
	}

	format := config.WebhookFormat
	switch format {
	case "":
		format = FormatGeneric
	case FormatGeneric, FormatSlack:
	default:
		return nil, fmt.Errorf("unknown webhook format %q", format)
	}

	retries := config.WebhookRetries
	if retries < 0 {
		retries = 0
	}

	client := resty.New().
		SetTimeout(config.WebhookTimeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(isRetryableResp)

	return &WebhookNotifier{url: config.WebhookURL, format: format, http: client}, nil
}

func (w *WebhookNotifier) Notify(ctx context.Context, _ *http.Request, aggregate *model.ErrorAggregate, n model.Notification) error {
	payload, err := formatPayload(w.format, aggregate, n)
	if err != nil {
		return fmt.Errorf("format webhook payload: %w", err)
	}

	resp, err := w.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return fmt.Errorf("webhook returned HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type genericPayload struct {
	Subject   string           `json:"subject"`
	Body      string           `json:"body"`
	Aggregate AggregateSummary `json:"aggregate"`
}

func formatPayload(format string, aggregate *model.ErrorAggregate, n model.Notification) ([]byte, error) {
	if format == FormatSlack {
		return formatSlack(aggregate, n)
	}
	return json.Marshal(genericPayload{Subject: n.Subject, Body: n.Body, Aggregate: summarize(aggregate)})
}

func formatSlack(aggregate *model.ErrorAggregate, n model.Notification) ([]byte, error) {
	summary := summarize(aggregate)

	route := summary.Method + " " + summary.Path
	if summary.Path == "" {
		route = "(no request)"
	}

	trace := truncate(n.Body, slackTextLimit)

	payload := map[string]any{
		"text": n.Subject,
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{"type": "plain_text", "text": summary.ExceptionName},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Route:* %s", route)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Host:* %s", summary.Host)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Occurrences:* %d", summary.Count)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Aggregate:* #%d", summary.ID)},
				},
			},
			map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": "```" + trace + "```"},
			},
		},
	}
	return json.Marshal(payload)
}

// truncate cuts s to at most limit bytes on a rune boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n..."
}
