package gc

import (
	"testing"

	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/value"
)

func TestInternStringSharesHandle(t *testing.T) {
	h := NewHeap()
	a := h.InternString("hello")
	b := h.InternString("hello")
	if a != b {
		t.Fatalf("InternString(\"hello\") returned different handles: %d vs %d", a, b)
	}
}

func TestCollectKeepsReachableAndFreesGarbage(t *testing.T) {
	h := NewHeap()
	root := h.Alloc(object.NewString("root"))
	garbage := h.Alloc(object.NewString("garbage"))

	stats := h.Collect([]value.Handle{root})

	if h.Get(root) == nil {
		t.Fatal("reachable object was swept")
	}
	if h.Get(garbage) != nil {
		t.Fatal("unreachable object survived collection")
	}
	if stats.Swept != 1 {
		t.Fatalf("expected 1 swept object, got %d", stats.Swept)
	}
	if stats.Live != 1 {
		t.Fatalf("expected 1 live object, got %d", stats.Live)
	}
}

func TestCollectTracesArrayElements(t *testing.T) {
	h := NewHeap()
	inner := h.Alloc(object.NewString("inner"))
	arr := h.Alloc(object.NewArray([]value.Value{value.EncodeObj(inner)}))

	h.Collect([]value.Handle{arr})

	if h.Get(inner) == nil {
		t.Fatal("array element reachable through root array was swept")
	}
}

func TestCollectPrunesInternTableForUnmarkedStrings(t *testing.T) {
	h := NewHeap()
	handle := h.InternString("ephemeral")

	h.Collect(nil) // no roots: the interned string is now garbage

	if h.Get(handle) != nil {
		t.Fatal("interned string should have been collected with no roots")
	}
	again := h.InternString("ephemeral")
	if again == handle {
		t.Fatal("stale handle should not be reused after the intern entry was pruned")
	}
}

func TestAllocSetsShouldCollectPastThreshold(t *testing.T) {
	h := NewHeap()
	h.threshold = 10 // force an early trip
	if h.ShouldCollect() {
		t.Fatal("fresh heap should not request collection")
	}
	h.Alloc(object.NewString("this string is definitely over ten bytes"))
	if !h.ShouldCollect() {
		t.Fatal("allocation past threshold should set ShouldCollect")
	}
}

func TestCollectDoublesThresholdWhenStillOverBudget(t *testing.T) {
	h := NewHeap()
	h.threshold = 1
	root := h.Alloc(object.NewString("still too big for threshold 1"))
	before := h.threshold
	h.Collect([]value.Handle{root})
	if h.threshold != before*2 {
		t.Fatalf("threshold should double when still over budget: got %d want %d", h.threshold, before*2)
	}
}

func TestCycleIsCollectedWhenUnreachable(t *testing.T) {
	h := NewHeap()
	// Two instances pointing at each other via fields, with no external root.
	a := h.Alloc(object.NewInstance(0))
	b := h.Alloc(object.NewInstance(0))
	h.Get(a).(*object.Instance).Fields["b"] = value.EncodeObj(b)
	h.Get(b).(*object.Instance).Fields["a"] = value.EncodeObj(a)

	h.Collect(nil)

	if h.Get(a) != nil || h.Get(b) != nil {
		t.Fatal("unreachable cycle should be collected by reachability tracing")
	}
}

func TestFutureSettleWakesAwait(t *testing.T) {
	f := object.NewFuture(1)
	done := make(chan value.Value, 1)
	go func() {
		done <- f.Await()
	}()
	f.Settle(value.EncodeInt(7))
	got := <-done
	if !value.Equals(got, value.EncodeInt(7), nil) {
		t.Fatalf("Await returned %v, want 7", got)
	}
}
