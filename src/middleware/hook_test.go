package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errortracker/src/model"
	"errortracker/src/tracker"
)

type recordingStore struct {
	mu    sync.Mutex
	calls []model.Occurrence
	err   error
}

func (s *recordingStore) CreateOrUpdate(_ context.Context, occ model.Occurrence) (*model.ErrorAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, occ)
	if s.err != nil {
		return nil, s.err
	}
	return &model.ErrorAggregate{ID: uint(len(s.calls)), Hash: occ.Fingerprint, Count: 1}, nil
}

func newHook(t *testing.T, store *recordingStore, trackAll bool) (*Hook, *logrustest.Hook) {
	t.Helper()
	log, logHook := logrustest.NewNullLogger()
	entry := logrus.NewEntry(log)
	tr := tracker.New(tracker.Config{TrackAll: trackAll}, store, tracker.WithLogger(entry))
	return NewHook(tr, 1024, entry), logHook
}

func TestProcessExceptionIgnoresNilWithoutTrackAll(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, false)

	hook.ProcessException(httptest.NewRequest(http.MethodGet, "/orders", nil), nil)

	assert.Empty(t, store.calls)
}

func TestProcessExceptionRecordsNilWithTrackAll(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, true)

	hook.ProcessException(httptest.NewRequest(http.MethodGet, "/orders", nil), nil)

	require.Len(t, store.calls, 1)
	assert.Equal(t, "/orders", store.calls[0].Path)
	assert.True(t, strings.HasPrefix(store.calls[0].Traceback, "*errors.errorString: "+tracker.ErrNoException.Error()))
}

func TestProcessExceptionLogsPersistenceFailures(t *testing.T) {
	store := &recordingStore{err: errors.New("db down")}
	hook, logs := newHook(t, store, false)

	assert.NotPanics(t, func() {
		hook.ProcessException(httptest.NewRequest(http.MethodGet, "/orders", nil), errors.New("x"))
	})

	require.NotNil(t, logs.LastEntry())
	assert.Equal(t, "[middleware] failed to record request exception", logs.LastEntry().Message)
	assert.ErrorIs(t, logs.LastEntry().Data[logrus.ErrorKey].(error), tracker.ErrPersistence)
}

func TestMiddlewareRecordsPanicAndAnswers500(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, false)

	var seenBody string
	handler := hook.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seenBody = string(raw)
		panic("cart is nil")
	}))

	req := httptest.NewRequest(http.MethodPost, "http://shop.example.org/checkout", strings.NewReader(`{"card":"4111","password":"hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, `{"card":"4111","password":"hunter2"}`, seenBody, "handler must still read the full body")

	require.Len(t, store.calls, 1)
	occ := store.calls[0]
	assert.Equal(t, "shop.example.org", occ.Host)
	assert.Equal(t, "/checkout", occ.Path)
	assert.Equal(t, http.MethodPost, occ.Method)
	assert.Equal(t, "panic(string)", occ.ExceptionName)
	assert.Contains(t, occ.RequestData, `"card":"4111"`)
	assert.NotContains(t, occ.RequestData, "hunter2")
}

func TestMiddlewareKeepsStatusAlreadyWritten(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, false)

	handler := hook.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic(errors.New("late failure"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Len(t, store.calls, 1)
}

func TestMiddlewarePassesAbortHandlerThrough(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, true)

	handler := hook.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stream", nil))
	})
	assert.Empty(t, store.calls)
}

func TestMiddlewareTracksServerErrorsOnlyWithTrackAll(t *testing.T) {
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})

	for _, trackAll := range []bool{false, true} {
		store := &recordingStore{}
		hook, _ := newHook(t, store, trackAll)

		rr := httptest.NewRecorder()
		hook.Middleware(failing).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/proxy", nil))

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		if trackAll {
			assert.Len(t, store.calls, 1)
		} else {
			assert.Empty(t, store.calls)
		}
	}
}

func TestMiddlewareIgnoresSuccessfulRequests(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, true)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	rr := httptest.NewRecorder()
	hook.Middleware(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, store.calls)
}

func TestHandleRecordsReturnedErrors(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, false)

	handler := hook.Handle(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("order not found")
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/1?token=abc", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Len(t, store.calls, 1)
	assert.Equal(t, "/orders/1", store.calls[0].Path)
	assert.NotContains(t, store.calls[0].RequestData, "abc")
}

func TestHandleInsideMiddlewareRecordsOnceWithTrackAll(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, true)

	handler := hook.Middleware(hook.Handle(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("handler failed")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Len(t, store.calls, 1)
	assert.True(t, strings.HasPrefix(store.calls[0].Traceback, "*errors.errorString: handler failed\n"), store.calls[0].Traceback)
}

func TestMiddlewareRecordsPanicOnceWithTrackAll(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, true)

	handler := hook.Middleware(hook.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Len(t, store.calls, 1)
}

func TestHandleLocatesPlainErrorsAtTheHandler(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, false)

	listOrders := hook.Handle(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("a")
	})
	getOrder := hook.Handle(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("a")
	})

	listOrders.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders", nil))
	getOrder.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders", nil))

	require.Len(t, store.calls, 2)
	for _, occ := range store.calls {
		lines := strings.Split(occ.Traceback, "\n")
		require.GreaterOrEqual(t, len(lines), 3)
		assert.Equal(t, "*errors.errorString: a", lines[0])
		assert.Contains(t, lines[1], "TestHandleLocatesPlainErrorsAtTheHandler.func")
		assert.Contains(t, lines[2], "hook_test.go:")
		assert.NotContains(t, lines[1], "(*Hook)")
	}
	assert.NotEqual(t, store.calls[0].Fingerprint, store.calls[1].Fingerprint)
}

func TestHandleKeepsStacksCarriedByTheError(t *testing.T) {
	err := pkgerrors.New("with stack")
	assert.Same(t, err, locateAt(0, err))

	pe := tracker.NewPanicError("boom")
	assert.Same(t, error(pe), locateAt(0, pe))
}

func TestProcessExceptionSkipsHookFrames(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, false)

	hook.ProcessException(httptest.NewRequest(http.MethodGet, "/orders", nil), errors.New("direct"))

	require.Len(t, store.calls, 1)
	lines := strings.Split(store.calls[0].Traceback, "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Contains(t, lines[1], "TestProcessExceptionSkipsHookFrames")
}

func TestBufferBodyLimitsCapturedBytes(t *testing.T) {
	store := &recordingStore{}
	hook, _ := newHook(t, store, false)

	payload := strings.Repeat("a", 4096)
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(payload))
	req = hook.bufferBody(req)

	captured, ok := tracker.RequestBodyFromContext(req.Context())
	require.True(t, ok)
	assert.Len(t, captured, 1024)

	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(rest))
}
