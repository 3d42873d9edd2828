package tracker

import (
	"bufio"
	"errors"
	"os"
	"runtime"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"errortracker/src/model"
)

// ContextBuilder turns an error into stack frames, innermost first.
type ContextBuilder interface {
	Frames(err error) []model.Frame
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// RuntimeContextBuilder recovers frames from the deepest github.com/pkg/errors
// stack in the error chain, else from a recovered panic, else from the
// goroutine stack at capture time.
type RuntimeContextBuilder struct {
	MaxFrames  int
	ReadSource bool
}

func NewRuntimeContextBuilder() *RuntimeContextBuilder {
	return &RuntimeContextBuilder{MaxFrames: maxStackDepth, ReadSource: true}
}

// Frames implements ContextBuilder.
func (b *RuntimeContextBuilder) Frames(err error) []model.Frame {
	var frames []model.Frame

	var pe *PanicError
	if pcs := deepestStack(err); len(pcs) > 0 {
		frames = b.resolve(pcs)
	} else if errors.As(err, &pe) && len(pe.pcs) > 0 {
		frames = b.resolve(pe.pcs)
		frames = dropThroughPanic(frames)
	} else {
		pcs := make([]uintptr, maxStackDepth)
		n := runtime.Callers(1, pcs)
		frames = b.resolve(pcs[:n])
	}

	frames = dropLeadingInternal(frames)

	if b.MaxFrames > 0 && len(frames) > b.MaxFrames {
		frames = frames[:b.MaxFrames]
	}

	if b.ReadSource {
		attachSource(frames)
	}

	return frames
}

func (b *RuntimeContextBuilder) resolve(pcs []uintptr) []model.Frame {
	var frames []model.Frame

	callers := runtime.CallersFrames(pcs)
	for {
		frame, more := callers.Next()
		if frame.Function != "" {
			frames = append(frames, model.Frame{
				File:     frame.File,
				Function: frame.Function,
				Line:     frame.Line,
			})
		}
		if !more {
			break
		}
	}

	return frames
}

// deepestStack walks the chain and keeps the stack closest to the origin.
func deepestStack(err error) []uintptr {
	var pcs []uintptr
	for e := err; e != nil; e = errors.Unwrap(e) {
		st, ok := e.(stackTracer)
		if !ok {
			continue
		}
		trace := st.StackTrace()
		pcs = make([]uintptr, len(trace))
		for i, f := range trace {
			pcs[i] = uintptr(f)
		}
	}
	return pcs
}

// dropThroughPanic removes the recovery machinery above runtime.gopanic and
// the runtime frames that raised the panic.
func dropThroughPanic(frames []model.Frame) []model.Frame {
	for i, f := range frames {
		if f.Function == "runtime.gopanic" {
			frames = frames[i+1:]
			break
		}
	}
	out := frames[:0:0]
	for _, f := range frames {
		if isRuntime(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

var selfPackage = func() string {
	pc, _, _, _ := runtime.Caller(0)
	return packageOf(runtime.FuncForPC(pc).Name())
}()

func packageOf(function string) string {
	slash := strings.LastIndex(function, "/")
	if slash < 0 {
		slash = 0
	}
	dot := strings.Index(function[slash:], ".")
	if dot < 0 {
		return function
	}
	return function[:slash+dot+1]
}

func isRuntime(f model.Frame) bool {
	return strings.HasPrefix(f.Function, "runtime.") || strings.HasPrefix(f.Function, "internal/runtime/")
}

var (
	plumbingMu       sync.RWMutex
	plumbingPackages = []string{selfPackage}
)

// SkipFramesFrom marks pkgPath as capture plumbing. Its frames are dropped
// from the top of captured stacks like the tracker's own.
func SkipFramesFrom(pkgPath string) {
	plumbingMu.Lock()
	defer plumbingMu.Unlock()
	plumbingPackages = append(plumbingPackages, pkgPath+".")
}

func isPlumbing(f model.Frame) bool {
	if strings.HasSuffix(f.File, "_test.go") {
		return false
	}
	plumbingMu.RLock()
	defer plumbingMu.RUnlock()
	for _, pkg := range plumbingPackages {
		if strings.HasPrefix(f.Function, pkg) {
			return true
		}
	}
	return false
}

// dropLeadingInternal strips plumbing and runtime frames from the top of the
// stack so Frames[0] is application code.
func dropLeadingInternal(frames []model.Frame) []model.Frame {
	for len(frames) > 0 && (isRuntime(frames[0]) || isPlumbing(frames[0])) {
		frames = frames[1:]
	}
	return frames
}

// attachSource fills Frame.Source from files readable on this host.
func attachSource(frames []model.Frame) {
	wanted := map[string]map[int]string{}
	for _, f := range frames {
		if wanted[f.File] == nil {
			wanted[f.File] = map[int]string{}
		}
		wanted[f.File][f.Line] = ""
	}

	for file, lines := range wanted {
		readLines(file, lines)
	}

	for i := range frames {
		frames[i].Source = wanted[frames[i].File][frames[i].Line]
	}
}

func readLines(path string, lines map[int]string) {
	fh, err := os.Open(path)
	if err != nil {
		return
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		if _, ok := lines[n]; ok {
			lines[n] = strings.TrimSpace(scanner.Text())
		}
	}
}
