package vm

// Reactive graph surface. Signals hold a current value and a dependent set;
// computed nodes hold an optional cached value and a dependency set. Both
// sides of a dependency edge hold refcounts, which is exactly why the cycle
// collector treats signal and computed objects as suspects.

func (hp *Heap) signal(h Handle) *signalData {
	obj := hp.lookup(h)
	if obj.Kind != OKSignal {
		hp.heapPanic(PanicTypeMismatch, "handle %d is a %s, not a signal", h, obj.Kind)
	}
	return obj.Signal
}

func (hp *Heap) computed(h Handle) *computedData {
	obj := hp.lookup(h)
	if obj.Kind != OKComputed {
		hp.heapPanic(PanicTypeMismatch, "handle %d is a %s, not a computed", h, obj.Kind)
	}
	return obj.Computed
}

// AddDependency records that computed reads signal. The signal's dependent
// set takes a reference on the computed node and vice versa. Adding an
// existing edge is a no-op.
func (hp *Heap) AddDependency(computed, signal Handle) {
	c := hp.computed(computed)
	s := hp.signal(signal)
	if _, ok := c.Dependencies[signal]; ok {
		return
	}
	c.Dependencies[signal] = struct{}{}
	s.Dependents[computed] = struct{}{}
	hp.lookup(signal).RefCount++
	hp.lookup(computed).RefCount++
}

// RemoveDependency removes the edge and drops both references. Removing an
// edge that does not exist is a no-op.
func (hp *Heap) RemoveDependency(computed, signal Handle) {
	c := hp.computed(computed)
	s := hp.signal(signal)
	if _, ok := c.Dependencies[signal]; !ok {
		return
	}
	delete(c.Dependencies, signal)
	delete(s.Dependents, computed)
	hp.release(signal)
	hp.release(computed)
}

// UpdateSignal replaces the signal's value. Ownership of v transfers to the
// signal; the previous value is released. Dependents are not recomputed, the
// graph only records them.
func (hp *Heap) UpdateSignal(h Handle, v Value) {
	s := hp.signal(h)
	old := s.Value
	s.Value = v
	hp.Release(old)
}

// SignalValue returns the signal's current value, borrowed.
func (hp *Heap) SignalValue(h Handle) Value {
	return hp.signal(h).Value
}

// SetComputedValue caches v on the computed node, taking ownership and
// releasing any previous cache.
func (hp *Heap) SetComputedValue(h Handle, v Value) {
	c := hp.computed(h)
	if c.HasCached {
		old := c.Cached
		c.Cached = v
		c.HasCached = true
		hp.Release(old)
		return
	}
	c.Cached = v
	c.HasCached = true
}

// ComputedValue returns the cached value, borrowed, and whether one exists.
func (hp *Heap) ComputedValue(h Handle) (Value, bool) {
	c := hp.computed(h)
	if !c.HasCached {
		return Value{}, false
	}
	return c.Cached, true
}

// InvalidateComputed drops the cached value, if any.
func (hp *Heap) InvalidateComputed(h Handle) {
	c := hp.computed(h)
	if !c.HasCached {
		return
	}
	old := c.Cached
	c.Cached = Value{}
	c.HasCached = false
	hp.Release(old)
}
