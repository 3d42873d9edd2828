package tracker

import "context"

// Track runs fn and records any error it returns or panic it raises, then
// hands the failure back untouched: the same error value is returned and
// the same panic value is re-raised. A nil tracker only runs fn.
func Track(ctx context.Context, t *Tracker, fn func() error) error {
	_, err := TrackResult(ctx, t, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// TrackResult is Track for functions that also return a value.
func TrackResult[T any](ctx context.Context, t *Tracker, fn func() (T, error)) (result T, err error) {
	if t == nil {
		return fn()
	}

	defer func() {
		if v := recover(); v != nil {
			t.record(ctx, NewPanicError(v))
			panic(v)
		}
	}()

	result, err = fn()
	if err != nil {
		t.record(ctx, err)
	}
	return result, err
}

// record captures outside any request. A persistence failure is only logged;
// the caller keeps its own error.
func (t *Tracker) record(ctx context.Context, err error) {
	if _, recErr := t.RecordException(ctx, nil, err); recErr != nil {
		t.logger.WithError(recErr).WithField("original_error", err.Error()).
			Warn("[tracker] explicit capture was not recorded")
	}
}
