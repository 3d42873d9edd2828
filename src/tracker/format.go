package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"errortracker/src/model"
)

// formatFrames renders frames innermost first, one block per frame.
func formatFrames(frames []model.Frame) string {
	var b strings.Builder
	b.WriteString("Stack (innermost first):\n")
	for _, f := range frames {
		fmt.Fprintf(&b, "  File %q, line %d, in %s\n", f.File, f.Line, f.Function)
		if f.Source != "" {
			fmt.Fprintf(&b, "    %s\n", f.Source)
		}
	}
	return b.String()
}

func formatTraceback(typeName, message string, frames []model.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", typeName, message)
	for _, f := range frames {
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
	}
	return b.String()
}

// fingerprint hashes the type and the frame signatures only, so messages,
// request data and build paths never split an aggregate.
func fingerprint(typeName string, frames []model.Frame) string {
	h := sha256.New()
	h.Write([]byte(typeName))
	h.Write([]byte{'\n'})
	for _, f := range frames {
		fmt.Fprintf(h, "%s|%s|%d\n", f.Function, filepath.Base(f.File), f.Line)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// subject builds "<prefix> <METHOD> <path>: <Type> at <fn> (<file>:<line>)".
// The ": " separator only follows a real method or path.
func subject(prefix string, rc model.RequestContext, captured model.CapturedException) string {
	location := rc.FullPath
	if location == "" {
		location = rc.Path
	}

	var route []string
	if rc.Method != "" {
		route = append(route, rc.Method)
	}
	if location != "" {
		route = append(route, location)
	}

	identity := captured.TypeName
	if origin := captured.Origin(); origin.Function != "" {
		identity = fmt.Sprintf("%s at %s (%s:%d)", captured.TypeName, origin.Function, filepath.Base(origin.File), origin.Line)
	}

	s := identity
	if len(route) > 0 {
		s = strings.Join(route, " ") + ": " + s
	}
	if prefix != "" {
		s = prefix + " " + s
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func body(r *http.Request, frameString string) string {
	if r == nil {
		return frameString
	}
	return "URL: " + requestContext(r).Path + "\n\n" + frameString
}
