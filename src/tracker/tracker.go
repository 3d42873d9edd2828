package tracker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"errortracker/src/masking"
	"errortracker/src/metrics"
	"errortracker/src/model"
)

// Store persists occurrences. repository.ErrorAggregateRepository implements it.
type Store interface {
	CreateOrUpdate(ctx context.Context, occ model.Occurrence) (*model.ErrorAggregate, error)
}

// Notifier delivers a human-facing alert for a capture.
type Notifier interface {
	Notify(ctx context.Context, r *http.Request, aggregate *model.ErrorAggregate, n model.Notification) error
}

// Ticketing opens a ticket for a capture.
type Ticketing interface {
	RaiseTicket(ctx context.Context, r *http.Request, aggregate *model.ErrorAggregate) error
}

// Tracker runs the capture pipeline: extract, upsert, dispatch.
// It is built once at startup and is safe for concurrent use.
type Tracker struct {
	config    Config
	store     Store
	notifier  Notifier
	ticketing Ticketing
	policy    masking.Policy
	builder   ContextBuilder
	metrics   *metrics.Metrics
	logger    *logrus.Entry
	extractor *Extractor
}

type Option func(*Tracker)

func WithNotifier(n Notifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

func WithTicketing(tk Ticketing) Option {
	return func(t *Tracker) { t.ticketing = tk }
}

func WithMasking(p masking.Policy) Option {
	return func(t *Tracker) { t.policy = p }
}

func WithContextBuilder(b ContextBuilder) Option {
	return func(t *Tracker) { t.builder = b }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithLogger(l *logrus.Entry) Option {
	return func(t *Tracker) { t.logger = l }
}

func New(config Config, store Store, opts ...Option) *Tracker {
	t := &Tracker{config: config, store: store}
	for _, opt := range opts {
		opt(t)
	}

	if t.logger == nil {
		t.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if t.policy == nil {
		t.policy = masking.NewKeyPolicy(masking.DefaultKeyHas, "", masking.DefaultValuePatterns()...)
	}

	t.extractor = NewExtractor(t.builder, t.policy, t.logger)
	return t
}

// Config returns the configuration the tracker was built with.
func (t *Tracker) Config() Config {
	return t.config
}

// RecordException captures err, with r as the request it surfaced in (nil
// outside a request). Collaborator failures are logged; only a failed
// upsert is returned, wrapping ErrPersistence.
func (t *Tracker) RecordException(ctx context.Context, r *http.Request, err error) (*model.ErrorAggregate, error) {
	captured := t.extractor.Extract(r, err)

	occ := model.Occurrence{
		Fingerprint:   captured.Fingerprint,
		Host:          captured.Request.Host,
		Path:          captured.Request.Path,
		Method:        captured.Request.Method,
		RequestData:   captured.RequestData,
		ExceptionName: captured.TypeName,
		Traceback:     captured.Traceback,
	}

	aggregate, storeErr := t.store.CreateOrUpdate(ctx, occ)
	if storeErr != nil {
		t.metrics.RecordCapture(metrics.OutcomeFailed)
		t.logger.WithError(storeErr).WithFields(logrus.Fields{
			"exception": captured.TypeName,
			"hash":      captured.Fingerprint,
			"path":      occ.Path,
		}).Error("[tracker] failed to persist error aggregate")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, storeErr)
	}

	t.metrics.RecordCapture(metrics.OutcomeRecorded)

	outcome := t.postProcess(ctx, r, captured, aggregate)

	t.logger.WithFields(logrus.Fields{
		"aggregate_id": aggregate.ID,
		"count":        aggregate.Count,
		"exception":    aggregate.ExceptionName,
		"notified":     outcome.Notified,
		"ticketed":     outcome.Ticketed,
	}).Info("[tracker] exception recorded")

	return aggregate, nil
}

// Skip counts an invocation the no-track guard ignored.
func (t *Tracker) Skip() {
	t.metrics.RecordCapture(metrics.OutcomeIgnored)
}
