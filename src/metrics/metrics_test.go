package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCapture(OutcomeRecorded)
	m.RecordCapture(OutcomeRecorded)
	m.RecordCapture(OutcomeFailed)
	m.RecordDispatchFailure(CollaboratorNotifier)
	m.RecordUpsertRetry(1, errors.New("busy"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.captures.WithLabelValues(OutcomeRecorded)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.captures.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dispatchFailures.WithLabelValues(CollaboratorNotifier)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.upsertRetries))

	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCapture(OutcomeRecorded)
		m.RecordDispatchFailure(CollaboratorTicketing)
		m.RecordUpsertRetry(1, nil)
	})
}
