package vm

import "github.com/Antony1060/ESL/internal/value"

// Frame is a single call's activation record: the closure running, the
// instruction pointer into the shared code block, and the stack-slot
// base. The base slot holds the call's receiver; argument i sits at
// base+1+i, and locals follow after the arguments.
type Frame struct {
	Closure value.Handle
	IP      int
	Base    int
}
