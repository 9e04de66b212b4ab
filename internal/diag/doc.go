// Package diag defines the diagnostic model shared by the compiler's
// source-level diagnostics and its recoverable compile-time system errors.
//
// Diagnostic is the central record: a Severity, a stable Code, a message,
// and a primary source.Span, plus optional Notes for secondary context.
//
// Producers emit through a Reporter rather than touching storage directly.
// The compiler calls Reporter.Report itself; ReportError/ReportWarning,
// WithNote and Emit offer a builder-style route to the same call.
// BagReporter collects diagnostics into a Bag, which supports
// deterministic sorting and deduplication before a driver prints them.
// DedupReporter wraps a Reporter to suppress exact repeats inline; no
// compiler path wraps its reporter in one.
package diag
