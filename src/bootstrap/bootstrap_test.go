package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"errortracker/src/database"
	"errortracker/src/masking"
	"errortracker/src/metrics"
	"errortracker/src/notifier"
	"errortracker/src/ticketing"
	"errortracker/src/tracker"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "errors.db") + "?_busy_timeout=5000"
	db, err := database.Open(database.Config{Driver: "sqlite", GormLogLevel: 1}, dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func settings() Settings {
	return Settings{
		Tracker: tracker.Config{SubjectPrefix: "[test]", Notifiers: []string{"log", "live"}},
		Masking: masking.Config{MaskedKeyHas: masking.DefaultKeyHas, MaskWith: masking.DefaultMaskWith},
	}
}

func TestBuildWiresPipeline(t *testing.T) {
	log, hook := logrustest.NewNullLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	tickets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"key":"OPS-1"}`))
	}))
	defer tickets.Close()

	s := settings()
	s.Ticketing = ticketing.Config{URL: tickets.URL, Project: "OPS"}

	p, err := Build(s, newSQLiteDB(t), m, logrus.NewEntry(log))
	require.NoError(t, err)
	require.NotNil(t, p.LiveHub)

	req := httptest.NewRequest(http.MethodGet, "http://example.org/reports?token=abc", nil)
	agg, err := p.Tracker.RecordException(context.Background(), req, assert.AnError)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.Count)
	assert.NotContains(t, agg.RequestData, "abc")

	stored, err := p.Repository.FindByID(context.Background(), agg.ID)
	require.NoError(t, err)
	assert.Equal(t, "OPS-1", stored.TicketKey)

	count, err := testutil.GatherAndCount(reg, "errortracker_captures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NotEmpty(t, hook.AllEntries())
}

func TestBuildRejectsUnknownNotifier(t *testing.T) {
	s := settings()
	s.Tracker.Notifiers = []string{"pager"}

	_, err := Build(s, newSQLiteDB(t), nil, nil)
	assert.ErrorContains(t, err, `unknown notifier "pager"`)
}

func TestBuildNotifiersRequireTheirSettings(t *testing.T) {
	for _, name := range []string{"email", "webhook"} {
		s := settings()
		s.Tracker.Notifiers = []string{name}

		_, _, err := buildNotifiers(s, logrus.NewEntry(logrus.StandardLogger()))
		assert.Error(t, err, name)
	}

	s := settings()
	s.Tracker.Notifiers = []string{"live", "LIVE", " log "}
	multi, hub, err := buildNotifiers(s, logrus.NewEntry(logrus.StandardLogger()))
	require.NoError(t, err)
	assert.NotNil(t, hub)
	assert.Len(t, multi, 2)
	assert.IsType(t, &notifier.LiveHub{}, multi[0])
}
