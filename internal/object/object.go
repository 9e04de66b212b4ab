// Package object defines the closed set of heap object variants: every
// value.Kind == KindObj Value's handle resolves to exactly one of these.
// Every heap object carries its own mark bit and size query so the garbage
// collector (internal/gc) can trace and sweep generically without a type
// switch at the call site.
package object

import (
	"sync"

	"github.com/Antony1060/ESL/internal/value"
)

// Kind identifies a heap object's variant.
type Kind uint8

const (
	KindString Kind = iota
	KindFunction
	KindNativeFunction
	KindBoundNativeFunction
	KindClosure
	KindUpvalue
	KindArray
	KindClass
	KindInstance
	KindBoundMethod
	KindFile
	KindMutex
	KindFuture
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindNativeFunction:
		return "native function"
	case KindBoundNativeFunction:
		return "bound native function"
	case KindClosure:
		return "closure"
	case KindUpvalue:
		return "upvalue"
	case KindArray:
		return "array"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindBoundMethod:
		return "bound method"
	case KindFile:
		return "file"
	case KindMutex:
		return "mutex"
	case KindFuture:
		return "future"
	default:
		return "unknown"
	}
}

// Object is implemented by every heap object variant. Marked and SetMarked
// back the GC's mark bit; Trace reports every handle this object keeps
// alive, so the collector can push them onto its mark stack without a
// type switch.
type Object interface {
	Kind() Kind
	Size() int
	Marked() bool
	SetMarked(bool)
	Trace(mark func(value.Handle))
}

// header is embedded by every concrete object and supplies the GC mark bit.
type header struct {
	marked bool
}

func (h *header) Marked() bool     { return h.marked }
func (h *header) SetMarked(m bool) { h.marked = m }

func traceValue(v value.Value, mark func(value.Handle)) {
	if value.IsObj(v) {
		mark(value.AsObj(v))
	}
}

// String is an interned or ad-hoc string object.
type String struct {
	header
	Content string
}

func NewString(s string) *String { return &String{Content: s} }

func (*String) Kind() Kind                       { return KindString }
func (s *String) Size() int                      { return 24 + len(s.Content) }
func (s *String) Trace(mark func(value.Handle)) {}

// Function is a compiled function body: an offset into the process-wide
// code block and constant pool, plus arity/upvalue bookkeeping.
type Function struct {
	header
	Name            string
	Arity           int
	UpvalueCount    int
	BytecodeOffset  int
	ConstantsOffset int

	// Super is set on a class method's Function to the class's own
	// superclass handle (0 if none), so GET_SUPER/SUPER_INVOKE can resolve
	// against the defining class's parent rather than the receiver's
	// runtime class.
	Super value.Handle
}

func (*Function) Kind() Kind                       { return KindFunction }
func (*Function) Size() int                        { return 48 }
func (*Function) Trace(mark func(value.Handle))    {}

// NativeStub is the callable signature native functions implement: it
// returns true when the VM should collapse the receiver slot with the
// single pushed result.
type NativeStub func(rt NativeRuntime, argc int) (bool, error)

// NativeRuntime is the narrow slice of thread state a native stub needs:
// reading call arguments, pushing/replacing results, allocating strings,
// and resolving a handle back to its object so stubs can inspect or
// mutate arrays, strings, and the like. The concrete VM thread type
// implements it; object stays independent of internal/vm and internal/gc.
//
// Arg(i) for i >= 0 returns the i-th call argument; Arg(-1) returns the
// receiver (the callee slot CALL found the native or bound-native value
// in), which a primitive method stub needs but a plain flat native never
// does.
type NativeRuntime interface {
	Arg(i int) value.Value
	Push(value.Value)
	AllocString(string) value.Handle
	Alloc(Object) value.Handle
	Resolve(value.Handle) Object
}

// NativeFunction wraps an externally supplied callable stub. Arity -1
// means variadic.
type NativeFunction struct {
	header
	Name  string
	Arity int
	Stub  NativeStub
}

func (*NativeFunction) Kind() Kind                    { return KindNativeFunction }
func (*NativeFunction) Size() int                     { return 40 }
func (*NativeFunction) Trace(mark func(value.Handle)) {}

// BoundNativeFunction pairs a receiver with a native function handle,
// produced when property access resolves to a primitive method.
type BoundNativeFunction struct {
	header
	Receiver value.Value
	Native   value.Handle
}

func (*BoundNativeFunction) Kind() Kind { return KindBoundNativeFunction }
func (*BoundNativeFunction) Size() int  { return 24 }
func (b *BoundNativeFunction) Trace(mark func(value.Handle)) {
	traceValue(b.Receiver, mark)
	mark(b.Native)
}

// Closure pairs a Function with its captured upvalue cells. len(Upvalues)
// always equals Function.UpvalueCount.
type Closure struct {
	header
	Function value.Handle
	Upvalues []value.Handle
}

func (*Closure) Kind() Kind { return KindClosure }
func (c *Closure) Size() int {
	return 24 + 8*len(c.Upvalues)
}
func (c *Closure) Trace(mark func(value.Handle)) {
	mark(c.Function)
	for _, uv := range c.Upvalues {
		mark(uv)
	}
}

// Upvalue is a heap cell holding one Value; a local is promoted here the
// first time an inner function captures it.
type Upvalue struct {
	header
	Value value.Value
}

func (*Upvalue) Kind() Kind { return KindUpvalue }
func (*Upvalue) Size() int  { return 16 }
func (u *Upvalue) Trace(mark func(value.Handle)) {
	traceValue(u.Value, mark)
}

// Array is a dense ordered sequence of Values. HeapCount tracks how many
// elements are object handles, letting the tracer skip a scan when it is
// zero.
type Array struct {
	header
	Elements  []value.Value
	HeapCount int
}

func NewArray(elems []value.Value) *Array {
	a := &Array{Elements: elems}
	a.recountHeap()
	return a
}

func (a *Array) recountHeap() {
	n := 0
	for _, v := range a.Elements {
		if value.IsObj(v) {
			n++
		}
	}
	a.HeapCount = n
}

// Set replaces element i, keeping HeapCount consistent.
func (a *Array) Set(i int, v value.Value) {
	was := value.IsObj(a.Elements[i])
	now := value.IsObj(v)
	a.Elements[i] = v
	switch {
	case was && !now:
		a.HeapCount--
	case !was && now:
		a.HeapCount++
	}
}

// Append adds v to the end of the array, keeping HeapCount consistent.
func (a *Array) Append(v value.Value) {
	a.Elements = append(a.Elements, v)
	if value.IsObj(v) {
		a.HeapCount++
	}
}

// PopBack removes and returns the last element, keeping HeapCount
// consistent. The caller must ensure the array is non-empty.
func (a *Array) PopBack() value.Value {
	last := a.Elements[len(a.Elements)-1]
	a.Elements = a.Elements[:len(a.Elements)-1]
	if value.IsObj(last) {
		a.HeapCount--
	}
	return last
}

func (*Array) Kind() Kind { return KindArray }
func (a *Array) Size() int {
	return 24 + 8*len(a.Elements)
}
func (a *Array) Trace(mark func(value.Handle)) {
	if a.HeapCount == 0 {
		return
	}
	for _, v := range a.Elements {
		traceValue(v, mark)
	}
}

// Class is a name, a method table (name -> Closure Value), and an optional
// superclass handle (0 means none). Method tables are built at compile
// time.
type Class struct {
	header
	Name    string
	Methods map[string]value.Value
	Super   value.Handle
}

func NewClass(name string) *Class {
	return &Class{Name: name, Methods: make(map[string]value.Value)}
}

func (*Class) Kind() Kind { return KindClass }
func (c *Class) Size() int {
	return 32 + 48*len(c.Methods)
}
func (c *Class) Trace(mark func(value.Handle)) {
	if c.Super != 0 {
		mark(c.Super)
	}
	for _, m := range c.Methods {
		traceValue(m, mark)
	}
}

// Instance has a class pointer (0 when this instance is a struct literal)
// and a name->Value field map. A struct literal's field map may only hold
// fields literally named at the construction site.
type Instance struct {
	header
	Class  value.Handle
	Fields map[string]value.Value
}

func NewInstance(class value.Handle) *Instance {
	return &Instance{Class: class, Fields: make(map[string]value.Value)}
}

func (i *Instance) IsStruct() bool { return i.Class == 0 }

func (*Instance) Kind() Kind { return KindInstance }
func (i *Instance) Size() int {
	return 32 + 48*len(i.Fields)
}
func (i *Instance) Trace(mark func(value.Handle)) {
	if i.Class != 0 {
		mark(i.Class)
	}
	for _, v := range i.Fields {
		traceValue(v, mark)
	}
}

// BoundMethod pairs a receiver instance with the closure resolved against
// it.
type BoundMethod struct {
	header
	Receiver value.Value
	Closure  value.Handle
}

func (*BoundMethod) Kind() Kind { return KindBoundMethod }
func (*BoundMethod) Size() int  { return 24 }
func (b *BoundMethod) Trace(mark func(value.Handle)) {
	traceValue(b.Receiver, mark)
	mark(b.Closure)
}

// File wraps an OS file handle. Its internals are an external collaborator;
// the VM only needs it to exist as an addressable heap kind so native file
// functions have something to hold a handle to.
type File struct {
	header
	Path   string
	Handle any
	Closed bool
}

func (*File) Kind() Kind                    { return KindFile }
func (*File) Size() int                     { return 40 }
func (*File) Trace(mark func(value.Handle)) {}

// Destroy closes the underlying OS handle when the GC sweeps this File.
// No ordering is guaranteed relative to other objects destroyed in the
// same pass.
func (f *File) Destroy() {
	if f.Closed {
		return
	}
	if closer, ok := f.Handle.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	f.Closed = true
}

// Mutex is a real OS mutex exposed to scripts so futures can share state
// safely — the language offers no sharing primitive beyond Mutex objects.
// Internals beyond existing and locking are out of scope.
type Mutex struct {
	header
	mu sync.Mutex
}

func (*Mutex) Kind() Kind                    { return KindMutex }
func (*Mutex) Size() int                     { return 24 }
func (*Mutex) Trace(mark func(value.Handle)) {}
func (m *Mutex) Lock()                       { m.mu.Lock() }
func (m *Mutex) Unlock()                     { m.mu.Unlock() }
func (m *Mutex) TryLock() bool               { return m.mu.TryLock() }

// Future holds a child thread reference, a settled-value slot, and the
// condition backing await. ThreadID is an opaque handle into the VM's
// thread table; object stays independent of internal/vm to avoid an
// import cycle.
type Future struct {
	header
	mu       sync.Mutex
	cond     *sync.Cond
	ThreadID uint64
	Settled  bool
	Result   value.Value
}

func NewFuture(threadID uint64) *Future {
	f := &Future{ThreadID: threadID}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Settle records the future's final value and wakes any waiters. A
// settled future's value slot must never be mutated further; Settle only
// ever applies the first call's result, so settling twice is a silent
// no-op rather than a crash.
func (f *Future) Settle(v value.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Settled {
		return
	}
	f.Result = v
	f.Settled = true
	f.cond.Broadcast()
}

// Await blocks until Settle has run, then returns the settled value.
func (f *Future) Await() value.Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.Settled {
		f.cond.Wait()
	}
	return f.Result
}

// TryResult is a non-blocking poll, used by a thread that must keep
// answering GC safepoints while it waits rather than parking on Await.
func (f *Future) TryResult() (value.Value, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Result, f.Settled
}

func (*Future) Kind() Kind { return KindFuture }
func (*Future) Size() int  { return 48 }
func (f *Future) Trace(mark func(value.Handle)) {
	traceValue(f.Result, mark)
}
