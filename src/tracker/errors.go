package tracker

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrPersistence is the only failure RecordException propagates: without a
	// stored aggregate there is nothing to dispatch.
	ErrPersistence = errors.New("error aggregate could not be persisted")

	// ErrNoException is recorded by the pipeline hook when it runs without an
	// error and TRACK_ALL_EXCEPTIONS is on.
	ErrNoException = errors.New("request failed without an exception")
)

const maxStackDepth = 64

// PanicError carries a recovered panic value and the stack at recovery time.
type PanicError struct {
	Value any
	pcs   []uintptr
}

// NewPanicError must be called from the deferred function that recovered value,
// so the captured stack still contains the panicking frames.
func NewPanicError(value any) *PanicError {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2, pcs)
	return &PanicError{Value: value, pcs: pcs[:n]}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
