package vm

import "fmt"

// DefaultGCThreshold is the suspect-buffer size that triggers an automatic
// collection pass.
const DefaultGCThreshold = 256

// Stats is a point-in-time snapshot of heap counters.
type Stats struct {
	Allocations uint64
	Collections uint64
	FreedTotal  uint64
	Live        int
	PeakLive    int
	SuspectLen  int
}

// Heap owns every runtime object. Objects are reference counted and
// destroyed eagerly when their count hits zero; cycles are reclaimed by the
// trial-deletion collector in gc.go. A heap is not safe for concurrent use;
// it belongs to exactly one VM.
type Heap struct {
	objs        map[Handle]*Object
	next        Handle
	nextAllocID uint64

	suspects  []Handle
	threshold int

	// Release defers nested drops onto this queue so that destroying a
	// deep structure never grows the Go stack.
	releasing      bool
	pendingRelease []Handle

	collecting bool

	allocations uint64
	collections uint64
	freedTotal  uint64
	live        int
	peakLive    int

	tracer    *Tracer
	onCollect func(freed int)
}

// NewHeap returns an empty heap with the default collection threshold.
func NewHeap() *Heap { return NewHeapWithThreshold(DefaultGCThreshold) }

// NewHeapWithThreshold returns an empty heap that starts a collection pass
// once the suspect buffer exceeds threshold entries.
func NewHeapWithThreshold(threshold int) *Heap {
	if threshold < 1 {
		threshold = 1
	}
	return &Heap{
		objs:      make(map[Handle]*Object),
		threshold: threshold,
	}
}

// SetTracer routes allocation, free and collection events to t. Pass nil to
// disable.
func (hp *Heap) SetTracer(t *Tracer) { hp.tracer = t }

func (hp *Heap) heapPanic(code PanicCode, format string, args ...any) {
	panic(&VMError{Code: code, Message: fmt.Sprintf(format, args...), CodeObject: -1})
}

func (hp *Heap) alloc(kind ObjectKind) (Handle, *Object) {
	hp.next++
	h := hp.next
	if h == InvalidHandle {
		hp.heapPanic(PanicAllocFailed, "handle space exhausted")
	}
	hp.nextAllocID++
	obj := &Object{Kind: kind, RefCount: 1, AllocID: hp.nextAllocID}
	hp.objs[h] = obj
	hp.allocations++
	hp.live++
	if hp.live > hp.peakLive {
		hp.peakLive = hp.live
	}
	hp.tracer.alloc(kind, h)
	return h, obj
}

// track enters a fully built object into collector bookkeeping. It must run
// only after the payload is assigned: a collection pass triggered here
// traverses the object's children.
func (hp *Heap) track(h Handle, obj *Object) {
	if obj.Kind.cyclic() {
		hp.suspect(h, obj)
	}
	hp.maybeCollect()
}

// AllocString copies s into a fresh string object.
func (hp *Heap) AllocString(s []byte) Value {
	h, obj := hp.alloc(OKString)
	obj.Str = append([]byte(nil), s...)
	hp.track(h, obj)
	return makeRef(VKString, h)
}

// AllocList takes ownership of elems: their refcounts transfer to the list.
func (hp *Heap) AllocList(elems []Value) Value {
	h, obj := hp.alloc(OKList)
	obj.List = elems
	hp.track(h, obj)
	return makeRef(VKList, h)
}

// AllocDict takes ownership of every value in entries.
func (hp *Heap) AllocDict(entries map[string]Value) Value {
	h, obj := hp.alloc(OKDict)
	if entries == nil {
		entries = make(map[string]Value)
	}
	obj.Dict = entries
	hp.track(h, obj)
	return makeRef(VKDict, h)
}

// AllocSet takes ownership of elems, deduplicating them: a duplicate's
// refcount is released on the spot.
func (hp *Heap) AllocSet(elems []Value) Value {
	h, obj := hp.alloc(OKSet)
	obj.Set = make(map[setKey]Value, len(elems))
	for _, v := range elems {
		k := makeSetKey(v)
		if _, dup := obj.Set[k]; dup {
			hp.Release(v)
			continue
		}
		obj.Set[k] = v
	}
	hp.track(h, obj)
	return makeRef(VKSet, h)
}

// AllocTuple takes ownership of elems. The tuple is frozen from here on.
func (hp *Heap) AllocTuple(elems []Value) Value {
	h, obj := hp.alloc(OKTuple)
	obj.Tuple = elems
	hp.track(h, obj)
	return makeRef(VKTuple, h)
}

// AllocSignal creates a reactive signal holding initial. Ownership of
// initial transfers to the signal.
func (hp *Heap) AllocSignal(id string, initial Value) Value {
	h, obj := hp.alloc(OKSignal)
	obj.Signal = &signalData{
		ID:         id,
		Value:      initial,
		Dependents: make(map[Handle]struct{}),
	}
	hp.track(h, obj)
	return makeRef(VKSignal, h)
}

// AllocComputed creates a reactive computed node with no cached value.
func (hp *Heap) AllocComputed(id string) Value {
	h, obj := hp.alloc(OKComputed)
	obj.Computed = &computedData{
		ID:           id,
		Dependencies: make(map[Handle]struct{}),
	}
	hp.track(h, obj)
	return makeRef(VKComputed, h)
}

// lookup resolves h or panics with a heap error. Every access funnels
// through here so stale and foreign handles fail loudly.
func (hp *Heap) lookup(h Handle) *Object {
	if h == InvalidHandle || h > hp.next {
		hp.heapPanic(PanicInvalidHandle, "invalid handle %d", h)
	}
	obj, ok := hp.objs[h]
	if !ok {
		hp.heapPanic(PanicUseAfterFree, "handle %d refers to a freed object", h)
	}
	return obj
}

// Get resolves h to its object. The object is borrowed; mutating refcount
// fields directly is heap corruption.
func (hp *Heap) Get(h Handle) *Object { return hp.lookup(h) }

// Retain increments the refcount behind v. Immediates pass through.
func (hp *Heap) Retain(v Value) Value {
	if v.IsHeap() {
		hp.lookup(v.H).RefCount++
	}
	return v
}

// Release drops one reference held on v. When the count reaches zero the
// object is destroyed and its children released, iteratively. A surviving
// cycle candidate is painted purple and buffered for the collector.
func (hp *Heap) Release(v Value) {
	if !v.IsHeap() {
		return
	}
	hp.release(v.H)
}

func (hp *Heap) release(h Handle) {
	if hp.releasing {
		hp.pendingRelease = append(hp.pendingRelease, h)
		return
	}
	hp.releasing = true
	hp.releaseHandle(h)
	for len(hp.pendingRelease) > 0 {
		h := hp.pendingRelease[len(hp.pendingRelease)-1]
		hp.pendingRelease = hp.pendingRelease[:len(hp.pendingRelease)-1]
		hp.releaseHandle(h)
	}
	hp.releasing = false
	hp.maybeCollect()
}

func (hp *Heap) releaseHandle(h Handle) {
	obj := hp.lookup(h)
	if obj.RefCount <= 0 {
		hp.heapPanic(PanicRefCountUnderflow, "release of %s handle %d with refcount %d", obj.Kind, h, obj.RefCount)
	}
	obj.RefCount--
	if obj.RefCount == 0 {
		hp.free(h, obj, true)
		return
	}
	if obj.Kind.cyclic() {
		obj.col = colorPurple
		hp.suspect(h, obj)
	}
}

// free destroys obj. With releaseChildren set, every held reference is
// queued for release; the collector passes false because it drops whole
// cycles at once.
func (hp *Heap) free(h Handle, obj *Object, releaseChildren bool) {
	if releaseChildren {
		obj.eachChild(func(ch Handle) {
			hp.pendingRelease = append(hp.pendingRelease, ch)
		})
	}
	obj.Freed = true
	obj.Str = nil
	obj.List = nil
	obj.Dict = nil
	obj.Set = nil
	obj.Tuple = nil
	obj.Signal = nil
	obj.Computed = nil
	delete(hp.objs, h)
	hp.freedTotal++
	hp.live--
	hp.tracer.free(obj.Kind, h)
}

func (hp *Heap) suspect(h Handle, obj *Object) {
	if obj.buffered {
		return
	}
	obj.buffered = true
	obj.col = colorPurple
	hp.suspects = append(hp.suspects, h)
}

func (hp *Heap) maybeCollect() {
	if hp.collecting || hp.releasing {
		return
	}
	if len(hp.suspects) > hp.threshold {
		hp.Collect()
	}
}

// ObjectCount returns the number of live objects.
func (hp *Heap) ObjectCount() int { return hp.live }

// SuspectLen returns the current suspect buffer size.
func (hp *Heap) SuspectLen() int { return len(hp.suspects) }

// Stats returns a counter snapshot.
func (hp *Heap) Stats() Stats {
	return Stats{
		Allocations: hp.allocations,
		Collections: hp.collections,
		FreedTotal:  hp.freedTotal,
		Live:        hp.live,
		PeakLive:    hp.peakLive,
		SuspectLen:  len(hp.suspects),
	}
}

// Clear frees every object regardless of refcount and empties the suspect
// buffer. Outstanding handles become invalid. Counters other than live are
// preserved; the freed objects count toward FreedTotal.
func (hp *Heap) Clear() {
	n := len(hp.objs)
	hp.objs = make(map[Handle]*Object)
	hp.suspects = hp.suspects[:0]
	hp.pendingRelease = hp.pendingRelease[:0]
	hp.freedTotal += uint64(n)
	hp.live = 0
}
