package vm

import (
	"fmt"
	"math"
)

// Handle identifies a heap object. Handles are monotonically assigned and
// never reused; 0 is always invalid.
type Handle uint32

// InvalidHandle is the zero Handle.
const InvalidHandle Handle = 0

// ObjectKind is the heap-side class of an object.
type ObjectKind uint8

const (
	OKString ObjectKind = iota
	OKList
	OKDict
	OKSet
	OKTuple
	OKSignal
	OKComputed
)

func (k ObjectKind) String() string {
	switch k {
	case OKString:
		return "string"
	case OKList:
		return "list"
	case OKDict:
		return "dict"
	case OKSet:
		return "set"
	case OKTuple:
		return "tuple"
	case OKSignal:
		return "signal"
	case OKComputed:
		return "computed"
	default:
		return fmt.Sprintf("object(%d)", uint8(k))
	}
}

// cyclic reports whether objects of this kind can close a reference cycle.
// Strings hold no references and tuples are frozen at construction, so
// neither can originate a cycle; they stay out of the suspect buffer but are
// still traversed as interior edges during collection.
func (k ObjectKind) cyclic() bool {
	switch k {
	case OKList, OKDict, OKSet, OKSignal, OKComputed:
		return true
	default:
		return false
	}
}

func (k ObjectKind) valueKind() ValueKind {
	switch k {
	case OKString:
		return VKString
	case OKList:
		return VKList
	case OKDict:
		return VKDict
	case OKSet:
		return VKSet
	case OKTuple:
		return VKTuple
	case OKSignal:
		return VKSignal
	default:
		return VKComputed
	}
}

// color is the trial-deletion marking state. Black (the zero value) means
// live or unprocessed; purple marks a suspected cycle root sitting in the
// buffer; grey and white are transient within one collection pass.
type color uint8

const (
	colorBlack color = iota
	colorPurple
	colorGrey
	colorWhite
)

// setKey is the map key form of a set element. Immediates key by structural
// value (floats by bit pattern), heap references by handle identity.
type setKey struct {
	kind ValueKind
	bits uint64
	h    Handle
}

func makeSetKey(v Value) setKey {
	switch v.Kind {
	case VKUnit:
		return setKey{kind: VKUnit}
	case VKBool:
		var b uint64
		if v.Bool {
			b = 1
		}
		return setKey{kind: VKBool, bits: b}
	case VKInt:
		return setKey{kind: VKInt, bits: uint64(v.Int)}
	case VKFloat:
		return setKey{kind: VKFloat, bits: math.Float64bits(v.Float)}
	default:
		return setKey{kind: v.Kind, h: v.H}
	}
}

// signalData is the payload of a reactive signal: a current value plus the
// set of computed nodes that depend on it. Dependent entries hold refcounts.
type signalData struct {
	ID         string
	Value      Value
	Dependents map[Handle]struct{}
}

// computedData is the payload of a reactive computed node: an optional cached
// value plus the signals it reads. Dependency entries hold refcounts.
type computedData struct {
	ID           string
	Cached       Value
	HasCached    bool
	Dependencies map[Handle]struct{}
}

// Object is one heap cell. Exactly one payload field is populated, selected
// by Kind. RefCount counts owning references from VM slots and from other
// objects; crc, col and buffered belong to the cycle collector.
type Object struct {
	Kind     ObjectKind
	RefCount int32
	Freed    bool
	AllocID  uint64

	crc      int32
	col      color
	buffered bool

	Str      []byte
	List     []Value
	Dict     map[string]Value
	Set      map[setKey]Value
	Tuple    []Value
	Signal   *signalData
	Computed *computedData
}

// eachChild invokes fn for every heap reference held by o's payload.
// Traversal order is unspecified.
func (o *Object) eachChild(fn func(Handle)) {
	visit := func(v Value) {
		if v.IsHeap() {
			fn(v.H)
		}
	}
	switch o.Kind {
	case OKList:
		for _, v := range o.List {
			visit(v)
		}
	case OKDict:
		for _, v := range o.Dict {
			visit(v)
		}
	case OKSet:
		for _, v := range o.Set {
			visit(v)
		}
	case OKTuple:
		for _, v := range o.Tuple {
			visit(v)
		}
	case OKSignal:
		visit(o.Signal.Value)
		for h := range o.Signal.Dependents {
			fn(h)
		}
	case OKComputed:
		if o.Computed.HasCached {
			visit(o.Computed.Cached)
		}
		for h := range o.Computed.Dependencies {
			fn(h)
		}
	}
}
