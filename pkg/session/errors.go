package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stepviz/stepviz/pkg/compiler"
)

// Fatal submission errors. Each surfaces to the client as a single error
// event; InstrumentationDegraded is deliberately absent because degraded
// instrumentation is logged and the run continues.
var (
	// ErrExecutionTimeout means the traced process exceeded the wall-clock
	// bound while not waiting on input.
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrEmptyTrace means synthesis produced no usable steps beyond the
	// start/end sentinels.
	ErrEmptyTrace = errors.New("program produced no trace events")

	// ErrDisconnected means the client went away; the submission is
	// cancelled and its resources released.
	ErrDisconnected = errors.New("client disconnected")
)

// CompilationError carries the structured diagnostics from a failed build.
type CompilationError struct {
	Diagnostics []compiler.Diagnostic
}

func (e *CompilationError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "compilation failed"
	}
	var b strings.Builder
	b.WriteString("compilation failed: ")
	written := 0
	for _, d := range e.Diagnostics {
		if d.Severity != "error" {
			continue
		}
		if written > 0 {
			b.WriteString("; ")
		}
		if d.Line > 0 {
			fmt.Fprintf(&b, "line %d: ", d.Line)
		}
		b.WriteString(d.Message)
		written++
	}
	return b.String()
}

// CrashError reports a traced process killed by a signal. Whatever events it
// flushed before dying have already been synthesized and delivered.
type CrashError struct {
	Signal   string
	ExitCode int
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("program crashed: %s", e.Signal)
}
