package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"errortracker/src/masking"
	"errortracker/src/model"
)

type requestBodyKey struct{}

// WithRequestBody stores a copy of the request body for the extractor.
// The middleware calls it before the handler consumes the body.
func WithRequestBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, requestBodyKey{}, body)
}

// RequestBodyFromContext returns the body stored by WithRequestBody.
func RequestBodyFromContext(ctx context.Context) ([]byte, bool) {
	body, ok := ctx.Value(requestBodyKey{}).([]byte)
	return body, ok
}

// Extractor derives a CapturedException from an error and an optional request.
type Extractor struct {
	builder ContextBuilder
	policy  masking.Policy
	logger  *logrus.Entry
}

func NewExtractor(builder ContextBuilder, policy masking.Policy, logger *logrus.Entry) *Extractor {
	if builder == nil {
		builder = NewRuntimeContextBuilder()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Extractor{builder: builder, policy: policy, logger: logger}
}

// Extract never panics. A nil or partial request yields an empty route and no request data.
func (e *Extractor) Extract(r *http.Request, err error) (captured model.CapturedException) {
	if err == nil {
		err = ErrNoException
	}

	defer func() {
		if v := recover(); v != nil {
			e.logger.WithField("panic", v).Error("[tracker] context extraction failed, storing a partial capture")
			captured.Frames = nil
			captured.FrameString = ""
			captured.Traceback = formatTraceback(captured.TypeName, captured.Message, nil)
			captured.Fingerprint = fingerprint(captured.TypeName, nil)
			captured.RequestData = ""
		}
	}()

	captured.TypeName = typeName(err)
	captured.Message = err.Error()
	captured.Request = requestContext(r)
	captured.Frames = e.builder.Frames(err)
	captured.FrameString = formatFrames(captured.Frames)
	captured.Traceback = formatTraceback(captured.TypeName, captured.Message, captured.Frames)
	captured.Fingerprint = fingerprint(captured.TypeName, captured.Frames)
	captured.RequestData = e.requestData(r)

	return captured
}

// typeName names the innermost cause. A panic with a non-error value is
// named after the value's type.
func typeName(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) && pe.Unwrap() == nil {
		return fmt.Sprintf("panic(%T)", pe.Value)
	}

	cause := err
	for {
		next := errors.Unwrap(cause)
		if next == nil {
			break
		}
		cause = next
	}
	return fmt.Sprintf("%T", cause)
}

func requestContext(r *http.Request) model.RequestContext {
	if r == nil {
		return model.RequestContext{}
	}

	rc := model.RequestContext{Host: r.Host, Method: r.Method}
	if r.URL != nil {
		rc.Path = r.URL.Path
		rc.FullPath = r.URL.RequestURI()
	}
	return rc
}

type requestData struct {
	Query   map[string][]string `json:"query,omitempty"`
	Form    map[string][]string `json:"form,omitempty"`
	Body    any                 `json:"body,omitempty"`
	Headers map[string][]string `json:"headers,omitempty"`
}

// requestData masks every field through the policy and serializes the result.
// Fields whose masking fails are dropped and logged.
func (e *Extractor) requestData(r *http.Request) string {
	if r == nil || e.policy == nil {
		return ""
	}

	var (
		data   requestData
		failed []masking.FieldError
		errs   []masking.FieldError
	)

	if r.URL != nil && r.URL.RawQuery != "" {
		if query, err := url.ParseQuery(r.URL.RawQuery); err == nil {
			data.Query, errs = masking.MaskValues(e.policy, query)
			failed = append(failed, errs...)
		}
	}

	if len(r.Header) > 0 {
		data.Headers, errs = masking.MaskValues(e.policy, url.Values(r.Header))
		failed = append(failed, errs...)
	}

	if body, ok := RequestBodyFromContext(r.Context()); ok && len(body) > 0 {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/x-www-form-urlencoded":
			if form, err := url.ParseQuery(string(body)); err == nil {
				data.Form, errs = masking.MaskValues(e.policy, form)
				failed = append(failed, errs...)
			}
		case "application/json":
			data.Body, errs = masking.MaskJSON(e.policy, body)
			failed = append(failed, errs...)
		default:
			if masked, err := e.policy.Mask("body", string(body)); err == nil {
				data.Body = masked
			} else {
				failed = append(failed, masking.FieldError{Key: "body", Err: err})
			}
		}
	}

	masking.LogFailures(failed)

	raw, err := json.Marshal(data)
	if err != nil {
		e.logger.WithError(err).Warn("[tracker] request data could not be serialized")
		return ""
	}
	if string(raw) == "{}" {
		return ""
	}
	return string(raw)
}
