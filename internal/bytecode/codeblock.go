package bytecode

import (
	"encoding/binary"

	"github.com/Antony1060/ESL/internal/source"
	"github.com/Antony1060/ESL/internal/value"
)

// LineRange maps a [Start, End) byte range of Code to the source position
// it came from, letting the VM decode a frame's IP into a file:line for
// diagnostics without annotating every instruction individually.
type LineRange struct {
	Start, End uint32
	Line       uint32
	File       source.FileID
}

// CodeBlock is the single, process-wide, append-only bytecode buffer plus
// its parallel constant pool and line table. Every compiled Function
// records offsets into this one block, so many functions share one flat
// buffer.
type CodeBlock struct {
	Code      []byte
	Constants []value.Value
	Lines     []LineRange
}

// NewCodeBlock returns an empty code block.
func NewCodeBlock() *CodeBlock {
	return &CodeBlock{}
}

// Len returns the current write offset — the bytecode offset a Function
// recorded "here" would start at.
func (cb *CodeBlock) Len() int { return len(cb.Code) }

// WriteByte appends a single raw byte and returns its offset.
func (cb *CodeBlock) WriteByte(b byte) int {
	cb.Code = append(cb.Code, b)
	return len(cb.Code) - 1
}

// WriteOp appends an opcode byte.
func (cb *CodeBlock) WriteOp(op Op) int {
	return cb.WriteByte(byte(op))
}

// WriteU16 appends a big-endian 16-bit operand.
func (cb *CodeBlock) WriteU16(v uint16) int {
	at := len(cb.Code)
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	cb.Code = append(cb.Code, buf[:]...)
	return at
}

// PatchU16 overwrites the big-endian 16-bit operand written at offset at.
func (cb *CodeBlock) PatchU16(at int, v uint16) {
	binary.BigEndian.PutUint16(cb.Code[at:at+2], v)
}

// ReadU16 decodes the big-endian 16-bit operand starting at ip.
func (cb *CodeBlock) ReadU16(ip int) uint16 {
	return binary.BigEndian.Uint16(cb.Code[ip : ip+2])
}

// AddConstant appends v to the constant pool and returns its absolute
// index in the shared pool; operands carry that index as-is, with no
// per-function constantsOffset applied.
func (cb *CodeBlock) AddConstant(v value.Value) int {
	cb.Constants = append(cb.Constants, v)
	return len(cb.Constants) - 1
}

// AddLine records that [start, end) of Code came from line on file;
// adjacent identical (line, file) pairs are coalesced to keep the table
// small. The compiler does not call it, so a compiled code block has an
// empty line table.
func (cb *CodeBlock) AddLine(start, end int, line uint32, file source.FileID) {
	if n := len(cb.Lines); n > 0 {
		last := &cb.Lines[n-1]
		if last.End == uint32(start) && last.Line == line && last.File == file {
			last.End = uint32(end)
			return
		}
	}
	cb.Lines = append(cb.Lines, LineRange{Start: uint32(start), End: uint32(end), Line: line, File: file})
}

// SpanForIP finds the line table entry covering ip, used to decode a call
// frame's instruction pointer into a source position for stack traces.
func (cb *CodeBlock) SpanForIP(ip int) (source.Span, bool) {
	// Linear scan: line ranges grow with the program, but stack traces are
	// only built on the (rare) error path, so a binary search isn't worth
	// the added bookkeeping for keeping Lines sorted under patching.
	for _, lr := range cb.Lines {
		if uint32(ip) >= lr.Start && uint32(ip) < lr.End {
			return source.Span{File: lr.File, Start: lr.Start, End: lr.End, Line: lr.Line}, true
		}
	}
	return source.Span{}, false
}
