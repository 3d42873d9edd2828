// Package middleware records unhandled request failures through a tracker.
package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"
	"runtime"
	"sync/atomic"

	chimw "github.com/go-chi/chi/v5/middleware"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"errortracker/src/tracker"
)

// DefaultMaxBodyBytes bounds how much of a request body is kept for capture.
const DefaultMaxBodyBytes = 64 << 10

func init() {
	tracker.SkipFramesFrom(reflect.TypeOf(Hook{}).PkgPath())
}

// captureMark is shared by every layer handling one request, so a failure
// recorded by Handle is not recorded again by Middleware.
type captureMark struct {
	recorded atomic.Bool
}

type captureMarkKey struct{}

func markRequest(r *http.Request) (*http.Request, *captureMark) {
	if mark, ok := r.Context().Value(captureMarkKey{}).(*captureMark); ok {
		return r, mark
	}
	mark := &captureMark{}
	return r.WithContext(context.WithValue(r.Context(), captureMarkKey{}, mark)), mark
}

// Hook is the request pipeline entrypoint. It holds a tracker rather than
// extending it, and never re-raises what it records.
type Hook struct {
	tracker      *tracker.Tracker
	trackAll     bool
	maxBodyBytes int64
	logger       *logrus.Entry
}

func NewHook(t *tracker.Tracker, maxBodyBytes int64, logger *logrus.Entry) *Hook {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hook{
		tracker:      t,
		trackAll:     t.Config().TrackAll,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// ProcessException records err for r. A nil err is ignored unless
// TRACK_ALL_EXCEPTIONS is set, in which case tracker.ErrNoException is recorded.
func (h *Hook) ProcessException(r *http.Request, err error) {
	if err == nil && !h.trackAll {
		h.tracker.Skip()
		return
	}
	if err == nil {
		err = tracker.ErrNoException
	}
	if mark, ok := r.Context().Value(captureMarkKey{}).(*captureMark); ok {
		mark.recorded.Store(true)
	}

	if _, recErr := h.tracker.RecordException(r.Context(), r, err); recErr != nil {
		h.logger.WithError(recErr).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("[middleware] failed to record request exception")
	}
}

// Middleware recovers panics from next, records them and answers 500.
// http.ErrAbortHandler is passed through untouched. With TRACK_ALL_EXCEPTIONS
// a 5xx answer nobody recorded is captured as tracker.ErrNoException.
func (h *Hook) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = h.bufferBody(r)
		r, mark := markRequest(r)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				h.ProcessException(r, tracker.NewPanicError(v))
				if ww.Status() == 0 {
					http.Error(ww, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
				return
			}

			if h.trackAll && !mark.recorded.Load() && ww.Status() >= http.StatusInternalServerError {
				h.ProcessException(r, nil)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// Handle adapts a handler that returns an error. A returned error is
// recorded and answered with 500 unless the handler already responded.
// Errors without a stack of their own are located at fn.
func (h *Hook) Handle(fn func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	entry := reflect.ValueOf(fn).Pointer()

	return func(w http.ResponseWriter, r *http.Request) {
		r = h.bufferBody(r)
		r, _ = markRequest(r)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		err := fn(ww, r)
		if err == nil {
			return
		}

		h.ProcessException(r, locateAt(entry, err))
		if ww.Status() == 0 {
			http.Error(ww, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// handlerError gives a stackless error the handler's entry point as its
// origin, followed by the stack that served the request.
type handlerError struct {
	err   error
	stack pkgerrors.StackTrace
}

func (e *handlerError) Error() string { return e.err.Error() }

func (e *handlerError) Unwrap() error { return e.err }

func (e *handlerError) StackTrace() pkgerrors.StackTrace { return e.stack }

func locateAt(entry uintptr, err error) error {
	var st stackTracer
	var pe *tracker.PanicError
	if errors.As(err, &st) || errors.As(err, &pe) {
		return err
	}

	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)

	// +1 so the entry resolves to the function itself, like a return address.
	stack := make(pkgerrors.StackTrace, 0, n+1)
	stack = append(stack, pkgerrors.Frame(entry+1))
	for _, pc := range pcs[:n] {
		stack = append(stack, pkgerrors.Frame(pc))
	}
	return &handlerError{err: err, stack: stack}
}

type replayBody struct {
	io.Reader
	io.Closer
}

// bufferBody copies up to maxBodyBytes of the body into the context for the
// extractor and leaves the full body readable for the handler.
func (h *Hook) bufferBody(r *http.Request) *http.Request {
	if r.Body == nil || r.Body == http.NoBody {
		return r
	}
	if _, ok := tracker.RequestBodyFromContext(r.Context()); ok {
		return r
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes))
	if err != nil {
		h.logger.WithError(err).Debug("[middleware] request body could not be buffered")
	}

	r = r.WithContext(tracker.WithRequestBody(r.Context(), buf))
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	return r
}
