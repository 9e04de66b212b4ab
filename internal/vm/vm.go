// Package vm hosts the main interpreter loop, call frames, the
// fixed-size per-thread operand stack, the globals array, the pool of
// child threads spawned by async calls, and the synchronization
// primitives used for GC safepoints and for await.
package vm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Antony1060/ESL/internal/bytecode"
	"github.com/Antony1060/ESL/internal/compiler"
	"github.com/Antony1060/ESL/internal/config"
	"github.com/Antony1060/ESL/internal/gc"
	"github.com/Antony1060/ESL/internal/natives"
	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/source"
	"github.com/Antony1060/ESL/internal/value"
)

// methodKey addresses a primitive method's pre-allocated NativeFunction
// handle by receiver kind and name.
type methodKey struct {
	kind natives.BuiltinKind
	name string
}

// VM owns the one global heap, the one shared code block, and the one
// globals array a compiler.Result produced. It runs a fixed number of
// parallel OS threads: the main thread plus zero or more children
// spawned by LAUNCH_ASYNC.
type VM struct {
	Heap    *gc.Heap
	Code    *bytecode.CodeBlock
	Globals []value.Value
	Natives *natives.Table

	// Files resolves a traced frame's FileID back to a path. It is nil
	// when the caller never built a FileSet (e.g. a compiled .eslc
	// snapshot carries no file paths), in which case traces report lines
	// with an empty file name rather than failing.
	Files *source.FileSet

	main value.Handle // the Closure the module-runner function lives in

	// nativeFlat and nativeMethods hold one pre-allocated NativeFunction
	// object per registered entry, built once at startup so GET_NATIVE never
	// allocates; primitive GET_PROPERTY still allocates one
	// BoundNativeFunction per access.
	nativeFlat    []value.Handle
	nativeMethods map[methodKey]value.Handle

	// stackSlots, frameSlots, and awaitPoll come from config.Tuning (or
	// config.Default() when the caller has no esl.toml to load).
	stackSlots int
	frameSlots int
	awaitPoll  time.Duration

	pauseMu       sync.Mutex
	pauseCond     *sync.Cond
	childCond     *sync.Cond
	children      map[*Thread]struct{}
	threadsPaused int

	shouldCollect atomic.Bool
}

// New builds a VM from a finished compiler.Result, sized from
// config.Default(). Use NewWithTuning to apply a loaded config.Tuning.
func New(heap *gc.Heap, nativeTable *natives.Table, result compiler.Result) *VM {
	return NewWithTuning(heap, nativeTable, result, config.Default())
}

// NewWithTuning builds a VM with explicit stack/frame/await-poll sizing,
// letting a caller wire in a loaded config.Tuning instead of the engine's
// built-in defaults.
func NewWithTuning(heap *gc.Heap, nativeTable *natives.Table, result compiler.Result, tuning config.Tuning) *VM {
	globals := make([]value.Value, len(result.Globals))
	for i, g := range result.Globals {
		globals[i] = g.Value
	}
	vm := &VM{
		Heap:       heap,
		Natives:    nativeTable,
		Globals:    globals,
		Code:       result.Code,
		main:       result.Main,
		children:   make(map[*Thread]struct{}),
		stackSlots: tuning.VM.StackSlots,
		frameSlots: tuning.VM.FrameSlots,
		awaitPoll:  time.Duration(tuning.VM.AwaitPollMS) * time.Millisecond,
	}
	vm.pauseCond = sync.NewCond(&vm.pauseMu)
	vm.childCond = sync.NewCond(&vm.pauseMu)

	vm.nativeFlat = make([]value.Handle, nativeTable.Len())
	for i := 0; i < nativeTable.Len(); i++ {
		e := nativeTable.At(i)
		vm.nativeFlat[i] = heap.Alloc(&object.NativeFunction{Name: e.Name, Arity: e.Arity, Stub: e.Stub})
	}
	vm.nativeMethods = make(map[methodKey]value.Handle)
	nativeTable.EachMethod(func(kind natives.BuiltinKind, e natives.Entry) {
		vm.nativeMethods[methodKey{kind, e.Name}] = heap.Alloc(&object.NativeFunction{Name: e.Name, Arity: e.Arity, Stub: e.Stub})
	})

	return vm
}

func (vm *VM) functionOf(closureHandle value.Handle) *object.Function {
	cl, ok := vm.Heap.Get(closureHandle).(*object.Closure)
	if !ok {
		return &object.Function{}
	}
	fn, _ := vm.Heap.Get(cl.Function).(*object.Function)
	if fn == nil {
		return &object.Function{}
	}
	return fn
}

// pollSafepoint is called at the top of every dispatch iteration. It is
// the only place a thread observes a GC request or a cancellation.
func (vm *VM) pollSafepoint(t *Thread) (cancelled bool) {
	if t.cancel.Load() {
		return true
	}
	if !vm.shouldCollect.Load() && !vm.Heap.ShouldCollect() {
		return false
	}
	vm.parkForGC(t)
	return t.cancel.Load()
}

// parkForGC implements the two-sided safepoint protocol: the main thread
// waits for every child to park, runs the collection, then wakes
// everyone; a child thread parks, waits to be released, and resumes.
func (vm *VM) parkForGC(t *Thread) {
	vm.pauseMu.Lock()
	defer vm.pauseMu.Unlock()

	if t.isMain {
		for vm.threadsPaused < len(vm.children) {
			vm.pauseCond.Wait()
		}
		vm.runCollect(t)
		vm.shouldCollect.Store(false)
		vm.childCond.Broadcast()
		return
	}

	vm.threadsPaused++
	vm.pauseCond.Signal()
	for vm.shouldCollect.Load() || vm.Heap.ShouldCollect() {
		vm.childCond.Wait()
	}
	vm.threadsPaused--
}

// runCollect gathers roots from every live thread plus the globals array
// and runs one mark-and-sweep pass. Caller must hold pauseMu.
func (vm *VM) runCollect(main *Thread) {
	roots := main.Roots()
	for child := range vm.children {
		roots = append(roots, child.Roots()...)
	}
	for _, g := range vm.Globals {
		if value.IsObj(g) {
			roots = append(roots, value.AsObj(g))
		}
	}
	vm.Heap.Collect(roots)
}

// RequestCollect lets an external caller (e.g. a debugger command) force
// the next safepoint to collect.
func (vm *VM) RequestCollect() { vm.shouldCollect.Store(true) }

// ThreadCount reports the number of live child threads (spawned by
// LAUNCH_ASYNC and not yet reaped), for status surfaces such as the
// interactive viewer's live thread/future line.
func (vm *VM) ThreadCount() int {
	vm.pauseMu.Lock()
	defer vm.pauseMu.Unlock()
	return len(vm.children)
}

// registerChild adds a freshly spawned thread to the pool, serialized by
// pauseMu alongside the safepoint bookkeeping it interacts with.
func (vm *VM) registerChild(t *Thread) {
	vm.pauseMu.Lock()
	vm.children[t] = struct{}{}
	vm.pauseMu.Unlock()
}

// reapChild removes a thread from the pool once its future has settled.
func (vm *VM) reapChild(t *Thread) {
	vm.pauseMu.Lock()
	delete(vm.children, t)
	vm.pauseMu.Unlock()
}

// Shutdown asks every live child thread to cancel and waits for each one
// to observe the request and settle its future, bounded by ctx. One
// errgroup goroutine watches each child's future independently and the
// group's combined wait is what Shutdown blocks on, the same
// fan-out/one-waiter-per-worker, fan-in-a-single-error shape the teacher
// uses for its own worker pools.
func (vm *VM) Shutdown(ctx context.Context) error {
	vm.pauseMu.Lock()
	children := make([]*Thread, 0, len(vm.children))
	for c := range vm.children {
		c.cancel.Store(true)
		children = append(children, c)
	}
	vm.pauseMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range children {
		child := child
		g.Go(func() error {
			for {
				future, ok := vm.Heap.Get(child.Future).(*object.Future)
				if !ok {
					return nil
				}
				if _, done := future.TryResult(); done {
					return nil
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-time.After(vm.awaitPoll):
				}
			}
		})
	}
	return g.Wait()
}
