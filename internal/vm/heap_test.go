package vm

import (
	"fmt"
	"testing"
)

func TestAllocReleaseString(t *testing.T) {
	hp := NewHeap()
	v := hp.AllocString([]byte("hello"))
	if hp.ObjectCount() != 1 {
		t.Fatalf("live = %d, want 1", hp.ObjectCount())
	}
	b, ok := hp.StringBytes(v)
	if !ok || string(b) != "hello" {
		t.Fatalf("StringBytes = %q, %v", b, ok)
	}
	hp.Release(v)
	if hp.ObjectCount() != 0 {
		t.Fatalf("live = %d after release, want 0", hp.ObjectCount())
	}
	s := hp.Stats()
	if s.Allocations != 1 || s.FreedTotal != 1 || s.PeakLive != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRetainKeepsAlive(t *testing.T) {
	hp := NewHeap()
	v := hp.AllocString([]byte("x"))
	hp.Retain(v)
	hp.Release(v)
	if hp.ObjectCount() != 1 {
		t.Fatal("object freed while a reference remained")
	}
	hp.Release(v)
	if hp.ObjectCount() != 0 {
		t.Fatal("object survived its last release")
	}
}

func TestListDestroyReleasesChildren(t *testing.T) {
	hp := NewHeap()
	s := hp.AllocString([]byte("elem"))
	l := hp.AllocList([]Value{s})
	if hp.ObjectCount() != 2 {
		t.Fatalf("live = %d, want 2", hp.ObjectCount())
	}
	hp.Release(l)
	if hp.ObjectCount() != 0 {
		t.Fatalf("live = %d after releasing list, want 0", hp.ObjectCount())
	}
}

func TestSharedChildSurvivesOwner(t *testing.T) {
	hp := NewHeap()
	s := hp.AllocString([]byte("shared"))
	l := hp.AllocList([]Value{hp.Retain(s)})
	hp.Release(l)
	if hp.ObjectCount() != 1 {
		t.Fatal("shared element freed with its container")
	}
	hp.Release(s)
	if hp.ObjectCount() != 0 {
		t.Fatal("leak after final release")
	}
}

// Destroying a deeply nested structure must not recurse per level.
func TestDeepListDestroy(t *testing.T) {
	hp := NewHeap()
	inner := hp.AllocList(nil)
	for i := 0; i < 50000; i++ {
		inner = hp.AllocList([]Value{inner})
	}
	if hp.ObjectCount() != 50001 {
		t.Fatalf("live = %d", hp.ObjectCount())
	}
	hp.Release(inner)
	hp.ForceCollect()
	if hp.ObjectCount() != 0 {
		t.Fatalf("live = %d after destroying the chain", hp.ObjectCount())
	}
}

func TestSetDeduplicates(t *testing.T) {
	hp := NewHeap()
	v := hp.AllocSet([]Value{MakeInt(1), MakeInt(1), MakeInt(2)})
	if n, _ := hp.SetLen(v); n != 2 {
		t.Fatalf("set len = %d, want 2", n)
	}
	if !hp.SetContains(v, MakeInt(2)) {
		t.Error("set should contain 2")
	}
	if hp.SetContains(v, MakeInt(3)) {
		t.Error("set should not contain 3")
	}
	hp.Release(v)
}

func TestSetStringIdentity(t *testing.T) {
	hp := NewHeap()
	a := hp.AllocString([]byte("k"))
	b := hp.AllocString([]byte("k"))
	v := hp.AllocSet([]Value{a, b})
	// References key by handle, so equal contents are distinct members.
	if n, _ := hp.SetLen(v); n != 2 {
		t.Fatalf("set len = %d, want 2", n)
	}
	hp.Release(v)
	if hp.ObjectCount() != 0 {
		t.Fatal("leak")
	}
}

func TestSetNaNNeverMatches(t *testing.T) {
	hp := NewHeap()
	nan := MakeFloat(nanFloat())
	v := hp.AllocSet([]Value{nan})
	if n, _ := hp.SetLen(v); n != 1 {
		t.Fatalf("set len = %d, want 1", n)
	}
	if hp.SetContains(v, nan) {
		t.Error("NaN must not be retrievable by equality")
	}
	hp.Release(v)
}

func nanFloat() float64 {
	zero := 0.0
	return zero / zero
}

func TestReleaseUnderflowPanics(t *testing.T) {
	hp := NewHeap()
	v := hp.AllocString([]byte("x"))
	hp.Release(v)
	defer func() {
		r := recover()
		e, ok := r.(*VMError)
		if !ok {
			t.Fatalf("recover = %v, want *VMError", r)
		}
		if e.Code != PanicUseAfterFree && e.Code != PanicRefCountUnderflow {
			t.Fatalf("code = VM%04d", e.Code)
		}
	}()
	hp.Release(v)
}

func TestInvalidHandlePanics(t *testing.T) {
	hp := NewHeap()
	defer func() {
		e, ok := recover().(*VMError)
		if !ok || e.Code != PanicInvalidHandle {
			t.Fatalf("expected invalid handle panic, got %v", e)
		}
	}()
	hp.Get(Handle(12345))
}

func TestClear(t *testing.T) {
	hp := NewHeap()
	hp.AllocString([]byte("a"))
	a := hp.AllocList(nil)
	bobj := hp.Get(a.H)
	bobj.List = append(bobj.List, hp.Retain(a)) // self cycle, would need the collector
	hp.Clear()
	if hp.ObjectCount() != 0 {
		t.Fatalf("live = %d after Clear", hp.ObjectCount())
	}
	if hp.SuspectLen() != 0 {
		t.Fatal("suspect buffer not cleared")
	}
	if hp.Stats().FreedTotal != 2 {
		t.Errorf("FreedTotal = %d, want 2", hp.Stats().FreedTotal)
	}
}

// A pass triggered by the allocation itself must only ever see the new
// object with its payload in place, reactive kinds included.
func TestCollectDuringAllocSeesCompleteObject(t *testing.T) {
	hp := NewHeapWithThreshold(2)
	a := hp.AllocList(nil)
	b := hp.AllocList(nil)
	s := hp.AllocSignal("src", MakeUnit()) // third suspect, pass fires here
	c := hp.AllocComputed("derived")
	if hp.ObjectCount() != 4 {
		t.Fatalf("live = %d, want 4", hp.ObjectCount())
	}
	hp.AddDependency(c.H, s.H)
	for _, v := range []Value{a, b, s, c} {
		hp.Release(v)
	}
	hp.ForceCollect()
	if hp.ObjectCount() != 0 {
		t.Fatalf("live = %d, want 0\n%s", hp.ObjectCount(), hp.DumpObjects())
	}
}

func TestThresholdTriggersCollection(t *testing.T) {
	hp := NewHeapWithThreshold(4)
	for i := 0; i < 8; i++ {
		a := hp.AllocList(nil)
		b := hp.AllocList(nil)
		ao := hp.Get(a.H)
		ao.List = append(ao.List, hp.Retain(b))
		bo := hp.Get(b.H)
		bo.List = append(bo.List, hp.Retain(a))
		hp.Release(a)
		hp.Release(b)
	}
	if hp.Stats().Collections == 0 {
		t.Fatal("no automatic collection despite exceeding the threshold")
	}
	hp.ForceCollect()
	if hp.ObjectCount() != 0 {
		t.Fatalf("live = %d, want 0\n%s", hp.ObjectCount(), hp.DumpObjects())
	}
}

func TestStatsCounters(t *testing.T) {
	hp := NewHeap()
	var refs []Value
	for i := 0; i < 10; i++ {
		refs = append(refs, hp.AllocString([]byte(fmt.Sprintf("s%d", i))))
	}
	s := hp.Stats()
	if s.Allocations != 10 || s.Live != 10 || s.PeakLive != 10 {
		t.Fatalf("stats = %+v", s)
	}
	for _, v := range refs {
		hp.Release(v)
	}
	hp.ForceCollect()
	s = hp.Stats()
	if s.Live != 0 || s.FreedTotal != 10 || s.PeakLive != 10 {
		t.Fatalf("stats after release = %+v", s)
	}
	if s.Collections == 0 {
		t.Error("ForceCollect should count as a collection")
	}
}
