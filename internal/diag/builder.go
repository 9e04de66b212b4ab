package diag

import "github.com/Antony1060/ESL/internal/source"

// New constructs a Diagnostic without emitting it.
func New(sev Severity, code Code, primary source.Span, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  primary,
		Message:  msg,
	}
}

// NewError is a shortcut for New(SevError, ...).
func NewError(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

// NewWarning is a shortcut for New(SevWarning, ...).
func NewWarning(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevWarning, code, primary, msg)
}
