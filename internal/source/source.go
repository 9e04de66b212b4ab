// Package source models the token positions that the external parser attaches
// to every AST node, so compiler diagnostics and runtime stack traces can
// point back at the program text. Lexing and parsing themselves are out of
// scope for this module; FileSet only needs to resolve the file names the
// parser recorded.
package source

import "fmt"

// FileID indexes into a FileSet. FileID(0) is reserved for "no file".
type FileID uint32

// Span is a half-open [Start, End) byte range within File, plus the source
// line it starts on so diagnostics and stack traces don't need to re-scan
// the file to report a line number.
type Span struct {
	File  FileID
	Start uint32
	Line  uint32
	End   uint32
}

// String renders a span as "file:line" for diagnostics that have a FileSet,
// or a bare offset range when none is available.
func (s Span) String() string {
	return fmt.Sprintf("#%d@%d:%d-%d", s.File, s.Line, s.Start, s.End)
}

// FileSet records the paths of every file the parser handed modules from.
// It is append-only and safe to share across the compiler and VM.
type FileSet struct {
	paths []string
}

// NewFileSet returns an empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{}
}

// Add registers a file path and returns its stable FileID.
func (fs *FileSet) Add(path string) FileID {
	fs.paths = append(fs.paths, path)
	return FileID(len(fs.paths))
}

// Path returns the path for id, or "<unknown>" if id is out of range.
func (fs *FileSet) Path(id FileID) string {
	if id == 0 || int(id) > len(fs.paths) {
		return "<unknown>"
	}
	return fs.paths[id-1]
}

// Format renders span as "path:line" using the registered file name.
func (fs *FileSet) Format(span Span) string {
	if fs == nil {
		return span.String()
	}
	return fmt.Sprintf("%s:%d", fs.Path(span.File), span.Line)
}
