package errors

import (
	"fmt"
	"runtime"
)

// Origin records where an Error was constructed. It is captured once, at
// the construction call, and never recomputed. The Go runtime does not
// expose column positions, so the origin carries file, function and line.
type Origin struct {
	File     string
	Function string
	Line     int
}

// Error is the single error value surfaced to all callers of this client.
// It is immutable after construction and safe to pass across goroutines.
type Error struct {
	problem Problem
	origin  Origin
	trace   []string
}

// New constructs an Error from a Problem, capturing the origin and the
// causal trace at the call site.
func New(problem Problem) *Error {
	return newAt(problem, 3)
}

// newAt builds an Error with origin capture skipping the given number of
// frames, so construction helpers inside this package do not show up as
// the origin.
func newAt(problem Problem, skip int) *Error {
	e := &Error{problem: problem}

	if pc, file, line, ok := runtime.Caller(skip - 1); ok {
		e.origin = Origin{File: file, Line: line}
		if fn := runtime.FuncForPC(pc); fn != nil {
			e.origin.Function = fn.Name()
		}
	}
	e.trace = captureTrace(skip + 1)
	return e
}

// Problem returns the taxonomy variant this error carries.
func (e *Error) Problem() Problem {
	return e.problem
}

// Identifier returns the stable machine-readable key of the variant.
// It depends only on the variant tag; two errors of the same kind share
// an identifier even with different payloads.
func (e *Error) Identifier() string {
	return e.problem.Identifier()
}

// Reason returns the human-readable explanation of the problem.
func (e *Error) Reason() string {
	return e.problem.reason()
}

// Origin returns the capture-site metadata recorded at construction.
func (e *Error) Origin() Origin {
	return e.origin
}

// CausalTrace returns the ordered stack frames captured at construction.
// The returned slice is a copy; the captured trace is immutable.
func (e *Error) CausalTrace() []string {
	out := make([]string, len(e.trace))
	copy(out, e.trace)
	return out
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Identifier(), e.Reason())
}

const maxTraceDepth = 16

func captureTrace(skip int) []string {
	pcs := make([]uintptr, maxTraceDepth)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var trace []string
	for {
		frame, more := frames.Next()
		trace = append(trace, fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return trace
}
