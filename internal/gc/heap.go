// Package gc implements a cooperative mark-and-sweep collector: it owns
// every heap allocation and the string intern table, decides when a
// collection must run, and performs the mark/sweep itself. Coordinating a
// stop-the-world pause across VM threads is the VM's job; gc only exposes
// the shared "should collect" flag threads poll at their safepoint and the
// Collect entry point the main thread calls once every other thread has
// parked.
package gc

import (
	"sync"
	"sync/atomic"

	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/value"
)

// defaultThreshold is the initial bytes-allocated budget before a
// collection is requested.
const defaultThreshold = 1 << 20 // 1 MiB

// Destroyer is implemented by object kinds with a destructor that must run
// when swept. Ordering across objects destroyed in the same sweep is not
// guaranteed.
type Destroyer interface {
	Destroy()
}

// Stats summarizes one Collect call, used by callers that report GC
// activity (tracing, debugger UI).
type Stats struct {
	Live      int
	Swept     int
	Bytes     int64
	Threshold int64
}

// Heap owns every live heap object and the string intern table. All
// mutation is serialized by mu — coarse, but acceptable since allocations
// are comparatively rare next to bytecode dispatch.
type Heap struct {
	mu         sync.Mutex
	objects    map[value.Handle]object.Object
	order      []value.Handle // insertion order, for deterministic reverse sweep
	nextHandle value.Handle

	bytesAllocated int64
	threshold      int64
	growthFactor   float64

	interned map[string]value.Handle

	shouldCollect atomic.Bool
}

// defaultGrowthFactor is the threshold multiplier applied when a
// collection finishes still over budget.
const defaultGrowthFactor = 2.0

// NewHeap constructs an empty heap with the default collection threshold.
func NewHeap() *Heap {
	return NewHeapWithTuning(defaultThreshold, defaultGrowthFactor)
}

// NewHeapWithTuning constructs an empty heap with an explicit initial
// threshold and post-collection growth factor, letting a caller wire
// these in from config.Tuning instead of the built-in defaults.
func NewHeapWithTuning(initialThreshold int64, growthFactor float64) *Heap {
	return &Heap{
		objects:      make(map[value.Handle]object.Object),
		interned:     make(map[string]value.Handle),
		threshold:    initialThreshold,
		growthFactor: growthFactor,
	}
}

// Alloc registers obj as a new live allocation and returns its handle. It
// atomically bumps the byte counter; when the counter crosses the
// threshold it sets the shared ShouldCollect flag, but does not itself
// collect — that is driven by the main thread at its next safepoint.
func (h *Heap) Alloc(obj object.Object) value.Handle {
	h.mu.Lock()
	h.nextHandle++
	handle := h.nextHandle
	h.objects[handle] = obj
	h.order = append(h.order, handle)
	h.bytesAllocated += int64(obj.Size())
	over := h.bytesAllocated >= h.threshold
	h.mu.Unlock()

	if over {
		h.shouldCollect.Store(true)
	}
	return handle
}

// Get resolves a handle to its object, or nil if the handle is stale or
// invalid (Handle(0), or an object already swept).
func (h *Heap) Get(handle value.Handle) object.Object {
	if handle == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.objects[handle]
}

// ShouldCollect reports whether an allocation has crossed the threshold
// since the last collection. VM threads poll this at their safepoint.
func (h *Heap) ShouldCollect() bool {
	return h.shouldCollect.Load()
}

// RequestCollect lets a caller outside Alloc force the next safepoint to
// collect (used by tests and by an explicit "collect now" debugger command).
func (h *Heap) RequestCollect() {
	h.shouldCollect.Store(true)
}

// BytesAllocated reports the current live-object byte count.
func (h *Heap) BytesAllocated() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bytesAllocated
}

// Threshold reports the byte count that triggers the next collection,
// used by callers that report GC activity (e.g. an interactive status
// line) alongside BytesAllocated.
func (h *Heap) Threshold() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.threshold
}

// InternString returns the handle for the unique String object holding s,
// allocating one on first use. Equal contents always share one handle
// until a sweep frees it — interned strings additionally appear in a weak
// intern map that a collection prunes before the object sweep.
func (h *Heap) InternString(s string) value.Handle {
	h.mu.Lock()
	if handle, ok := h.interned[s]; ok {
		h.mu.Unlock()
		return handle
	}
	h.mu.Unlock()

	handle := h.Alloc(object.NewString(s))

	h.mu.Lock()
	// Re-check: a concurrent allocator may have interned the same content
	// while we built the object above without holding mu.
	if existing, ok := h.interned[s]; ok {
		h.mu.Unlock()
		return existing
	}
	h.interned[s] = handle
	h.mu.Unlock()
	return handle
}

// Collect runs one full mark-and-sweep pass rooted at the given handles.
// The caller is responsible for gathering the correct root set and, for
// the threaded VM, for guaranteeing every other thread is parked at a
// safepoint first. Whether the roots are VM state (stacks, frames,
// globals) or compile-time state (code block constants, globals, native
// table, main function, base class), both are just root slices from this
// function's point of view.
func (h *Heap) Collect(roots []value.Handle) Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.markFrom(roots)
	h.pruneInterned()
	swept, survivingBytes := h.sweep()

	h.bytesAllocated = survivingBytes
	if h.bytesAllocated >= h.threshold {
		h.threshold = int64(float64(h.threshold) * h.growthFactor) // still over budget after sweeping: grow instead of thrashing
	}
	h.shouldCollect.Store(false)

	return Stats{
		Live:      len(h.objects),
		Swept:     swept,
		Bytes:     h.bytesAllocated,
		Threshold: h.threshold,
	}
}

// markFrom is the iterative mark phase: an explicit worklist stands in for
// recursion so deep object graphs can't blow the host stack.
func (h *Heap) markFrom(roots []value.Handle) {
	stack := make([]value.Handle, 0, len(roots)+16)
	stack = append(stack, roots...)

	for len(stack) > 0 {
		n := len(stack) - 1
		handle := stack[n]
		stack = stack[:n]

		if handle == 0 {
			continue
		}
		obj, ok := h.objects[handle]
		if !ok || obj.Marked() {
			continue // duplicate pushes are tolerated: the mark bit short-circuits re-tracing
		}
		obj.SetMarked(true)
		obj.Trace(func(child value.Handle) {
			if child != 0 {
				stack = append(stack, child)
			}
		})
	}
}

// pruneInterned drops intern-table entries whose string is unmarked, so
// the subsequent object sweep frees them like any other unreachable
// string. It must run before the object sweep.
func (h *Heap) pruneInterned() {
	for s, handle := range h.interned {
		obj, ok := h.objects[handle]
		if !ok || !obj.Marked() {
			delete(h.interned, s)
		}
	}
}

// sweep walks the live-objects list in reverse, destroying unmarked
// objects and clearing the mark bit (plus re-accumulating size) on
// survivors.
func (h *Heap) sweep() (swept int, survivingBytes int64) {
	newOrder := make([]value.Handle, 0, len(h.order))
	kept := make([]value.Handle, 0, len(h.order))

	for i := len(h.order) - 1; i >= 0; i-- {
		handle := h.order[i]
		obj, ok := h.objects[handle]
		if !ok {
			continue
		}
		if !obj.Marked() {
			if d, ok := obj.(Destroyer); ok {
				d.Destroy()
			}
			delete(h.objects, handle)
			swept++
			continue
		}
		obj.SetMarked(false)
		survivingBytes += int64(obj.Size())
		kept = append(kept, handle)
	}

	for i := len(kept) - 1; i >= 0; i-- {
		newOrder = append(newOrder, kept[i])
	}
	h.order = newOrder
	return swept, survivingBytes
}
