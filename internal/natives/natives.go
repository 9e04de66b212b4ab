// Package natives defines the registry the compiler and VM consult for
// GET_NATIVE and for primitive method dispatch: a flat slot table of
// callable stubs, plus a per-builtin-kind method dictionary keyed by
// name. Implementations beyond the small default table here are external
// collaborators.
package natives

import "github.com/Antony1060/ESL/internal/object"

// BuiltinKind names the primitive receiver kinds that carry their own
// method dictionary, distinct from object.Kind so a struct/common
// instance can also be addressed.
type BuiltinKind uint8

const (
	BuiltinCommon BuiltinKind = iota
	BuiltinString
	BuiltinArray
	BuiltinFile
	BuiltinMutex
	BuiltinFuture
)

// Entry pairs a native stub with the arity the VM checks calls against at
// call time; -1 means variadic.
type Entry struct {
	Name  string
	Arity int
	Stub  object.NativeStub
}

// Table is the registry handed to the compiler (for GET_NATIVE slot
// resolution) and the VM (for property access on primitives). It is
// built once at startup and never mutated afterward.
type Table struct {
	flat    []Entry
	index   map[string]int
	methods map[BuiltinKind]map[string]Entry
}

// NewTable returns an empty registry; callers populate it with Register
// and RegisterMethod before compiling or running anything.
func NewTable() *Table {
	return &Table{
		index:   make(map[string]int),
		methods: make(map[BuiltinKind]map[string]Entry),
	}
}

// Register adds a flat native function slot and returns its index, the
// value GET_NATIVE's operand names.
func (t *Table) Register(e Entry) int {
	i := len(t.flat)
	t.flat = append(t.flat, e)
	t.index[e.Name] = i
	return i
}

// Slot resolves a native function name to its GET_NATIVE index.
func (t *Table) Slot(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// At returns the entry at a GET_NATIVE slot.
func (t *Table) At(i int) Entry { return t.flat[i] }

// Len reports how many native slots are registered.
func (t *Table) Len() int { return len(t.flat) }

// RegisterMethod adds a method to a builtin kind's dictionary, consulted
// by GET_PROPERTY when the receiver is a primitive.
func (t *Table) RegisterMethod(kind BuiltinKind, e Entry) {
	m, ok := t.methods[kind]
	if !ok {
		m = make(map[string]Entry)
		t.methods[kind] = m
	}
	m[e.Name] = e
}

// Method looks up a primitive method by kind and name.
func (t *Table) Method(kind BuiltinKind, name string) (Entry, bool) {
	m, ok := t.methods[kind]
	if !ok {
		return Entry{}, false
	}
	e, ok := m[name]
	return e, ok
}

// EachMethod visits every registered primitive method once, in no
// particular order. Used at VM startup to pre-allocate a NativeFunction
// object per method; property access on a primitive still allocates the
// BoundNativeFunction that pairs that object with its receiver.
func (t *Table) EachMethod(fn func(kind BuiltinKind, e Entry)) {
	for kind, m := range t.methods {
		for _, e := range m {
			fn(kind, e)
		}
	}
}
