package vm

import (
	"fmt"
	"strings"
)

// ErrorCode names the runtime error categories a thread's dispatch loop
// can raise. The numbering matches the error taxonomy the trace printer
// and test programs key off of.
type ErrorCode int

const (
	ErrStackOverflow    ErrorCode = 1
	ErrArityMismatch    ErrorCode = 2
	ErrTypeError        ErrorCode = 3
	ErrMissingMember    ErrorCode = 4
	ErrMalformedOperand ErrorCode = 6
	ErrIndexOutOfBounds ErrorCode = 9
)

// VMError is a runtime error that unwinds a thread's dispatch loop. It
// carries the frames active when raised so the caller can print a trace
// without the dispatch loop itself knowing about formatting.
type VMError struct {
	Code    ErrorCode
	Message string
	Trace   []TraceEntry
}

// TraceEntry is one call frame's contribution to a printed stack trace.
type TraceEntry struct {
	FunctionName string
	Line         uint32
	File         string
}

func (e *VMError) Error() string {
	return fmt.Sprintf("runtime error %d: %s", e.Code, e.Message)
}

// PrintTrace renders the error message followed by one "at" line per
// traced frame, innermost first, in the style of a conventional stack
// trace dump.
func (e *VMError) PrintTrace() string {
	var b strings.Builder
	fmt.Fprintf(&b, "runtime error %d: %s\n", e.Code, e.Message)
	for _, entry := range e.Trace {
		file := entry.File
		if file == "" {
			file = "<unknown>"
		}
		fmt.Fprintf(&b, "\tat %s (%s:%d)\n", entry.FunctionName, file, entry.Line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newError(code ErrorCode, format string, args ...any) *VMError {
	return &VMError{Code: code, Message: fmt.Sprintf(format, args...)}
}
