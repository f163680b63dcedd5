package vm

import "testing"

func TestSignalHoldsValue(t *testing.T) {
	hp := NewHeap()
	s := hp.AllocSignal("count", MakeInt(1))
	if got := hp.SignalValue(s.H); got.Int != 1 {
		t.Fatalf("signal value = %v", got)
	}
	hp.UpdateSignal(s.H, MakeInt(2))
	if got := hp.SignalValue(s.H); got.Int != 2 {
		t.Fatalf("signal value after update = %v", got)
	}
	hp.Release(s)
	if hp.ObjectCount() != 0 {
		t.Fatal("leak")
	}
}

func TestUpdateSignalReleasesOldValue(t *testing.T) {
	hp := NewHeap()
	old := hp.AllocString([]byte("old"))
	s := hp.AllocSignal("name", old)
	hp.UpdateSignal(s.H, hp.AllocString([]byte("new")))
	// Only the signal and the new string remain.
	if hp.ObjectCount() != 2 {
		t.Fatalf("live = %d, want 2\n%s", hp.ObjectCount(), hp.DumpObjects())
	}
	hp.Release(s)
	if hp.ObjectCount() != 0 {
		t.Fatal("leak")
	}
}

func TestComputedCache(t *testing.T) {
	hp := NewHeap()
	c := hp.AllocComputed("total")
	if _, ok := hp.ComputedValue(c.H); ok {
		t.Fatal("fresh computed should have no cached value")
	}
	hp.SetComputedValue(c.H, MakeFloat(3.5))
	v, ok := hp.ComputedValue(c.H)
	if !ok || v.Float != 3.5 {
		t.Fatalf("cached = %v, %v", v, ok)
	}
	hp.SetComputedValue(c.H, MakeFloat(4.5))
	if v, _ := hp.ComputedValue(c.H); v.Float != 4.5 {
		t.Fatalf("cached after overwrite = %v", v)
	}
	hp.InvalidateComputed(c.H)
	if _, ok := hp.ComputedValue(c.H); ok {
		t.Fatal("cache should be gone after invalidation")
	}
	hp.Release(c)
}

func TestDependencyEdgeHoldsBothSides(t *testing.T) {
	hp := NewHeap()
	s := hp.AllocSignal("a", MakeUnit())
	c := hp.AllocComputed("b")
	hp.AddDependency(c.H, s.H)

	// Dropping the external references leaves the edge cycle alive.
	hp.Release(s)
	hp.Release(c)
	if hp.ObjectCount() != 2 {
		t.Fatalf("live = %d, want 2", hp.ObjectCount())
	}
	if freed := hp.ForceCollect(); freed != 2 {
		t.Fatalf("freed = %d, want 2", freed)
	}
	if hp.ObjectCount() != 0 {
		t.Fatal("reactive cycle survived collection")
	}
}

func TestRemoveDependencyAllowsEagerFree(t *testing.T) {
	hp := NewHeap()
	s := hp.AllocSignal("a", MakeUnit())
	c := hp.AllocComputed("b")
	hp.AddDependency(c.H, s.H)
	hp.RemoveDependency(c.H, s.H)
	hp.Release(s)
	hp.Release(c)
	if hp.ObjectCount() != 0 {
		t.Fatalf("live = %d, want 0 without the collector", hp.ObjectCount())
	}
	if freed := hp.ForceCollect(); freed != 0 {
		t.Fatalf("collector freed %d, want 0", freed)
	}
}

func TestDuplicateDependencyIsNoop(t *testing.T) {
	hp := NewHeap()
	s := hp.AllocSignal("a", MakeUnit())
	c := hp.AllocComputed("b")
	hp.AddDependency(c.H, s.H)
	hp.AddDependency(c.H, s.H)
	if rc := hp.Get(s.H).RefCount; rc != 2 {
		t.Fatalf("signal refcount = %d, want 2", rc)
	}
	hp.RemoveDependency(c.H, s.H)
	hp.RemoveDependency(c.H, s.H) // second removal is a no-op
	hp.Release(s)
	hp.Release(c)
	if hp.ObjectCount() != 0 {
		t.Fatal("leak")
	}
}

// Signal -> computed -> cached value -> signal, a three-object cycle mixing
// reactive nodes and a container.
func TestReactiveCycleThroughCachedValue(t *testing.T) {
	hp := NewHeap()
	s := hp.AllocSignal("src", MakeUnit())
	c := hp.AllocComputed("derived")
	hp.AddDependency(c.H, s.H)
	l := hp.AllocList([]Value{hp.Retain(s)})
	hp.SetComputedValue(c.H, l) // computed now owns the list
	hp.Release(s)
	hp.Release(c)
	if hp.ObjectCount() != 3 {
		t.Fatalf("live = %d, want 3", hp.ObjectCount())
	}
	if freed := hp.ForceCollect(); freed != 3 {
		t.Fatalf("freed = %d, want 3\n%s", freed, hp.DumpObjects())
	}
}

func TestKindMismatchPanics(t *testing.T) {
	hp := NewHeap()
	l := hp.AllocList(nil)
	defer func() {
		e, ok := recover().(*VMError)
		if !ok || e.Code != PanicTypeMismatch {
			t.Fatalf("expected type mismatch panic, got %v", e)
		}
	}()
	hp.SignalValue(l.H)
}
