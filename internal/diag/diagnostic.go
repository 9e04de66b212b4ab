package diag

import (
	"github.com/Antony1060/ESL/internal/source"
)

// Note is secondary context attached to a Diagnostic, e.g. "declared here".
type Note struct {
	Span source.Span
	Msg  string
}

// Diagnostic is a single compiler-reported finding: a source-level warning
// or error, or a recoverable compile-time system error such as a constant
// pool overflow.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Span
	Notes    []Note
}

// WithNote appends a secondary note and returns the diagnostic for chaining.
func (d Diagnostic) WithNote(sp source.Span, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Span: sp, Msg: msg})
	return d
}
