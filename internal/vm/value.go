package vm

import (
	"fmt"
	"strconv"
)

// ValueKind discriminates the tagged Value union.
type ValueKind uint8

const (
	VKUnit ValueKind = iota
	VKBool
	VKInt
	VKFloat
	VKString
	VKList
	VKDict
	VKSet
	VKTuple
	VKSignal
	VKComputed
)

func (k ValueKind) String() string {
	switch k {
	case VKUnit:
		return "unit"
	case VKBool:
		return "bool"
	case VKInt:
		return "int"
	case VKFloat:
		return "float"
	case VKString:
		return "string"
	case VKList:
		return "list"
	case VKDict:
		return "dict"
	case VKSet:
		return "set"
	case VKTuple:
		return "tuple"
	case VKSignal:
		return "signal"
	case VKComputed:
		return "computed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// heapKind reports whether values of this kind carry a heap handle.
func (k ValueKind) heapKind() bool { return k >= VKString }

// Value is the uniform slot type for locals, globals, operand stacks and
// container payloads. Immediates live inline; everything else is a handle
// into the Heap. The zero Value is Unit, which is what fresh locals hold.
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int   int64
	Float float64
	H     Handle
}

func MakeUnit() Value           { return Value{} }
func MakeBool(b bool) Value     { return Value{Kind: VKBool, Bool: b} }
func MakeInt(i int64) Value     { return Value{Kind: VKInt, Int: i} }
func MakeFloat(f float64) Value { return Value{Kind: VKFloat, Float: f} }

func makeRef(k ValueKind, h Handle) Value { return Value{Kind: k, H: h} }

// IsHeap reports whether v holds a heap handle.
func (v Value) IsHeap() bool { return v.Kind.heapKind() }

// String renders the immediate payload; heap values show only their handle.
// Use Heap.Format for a deep rendering.
func (v Value) String() string {
	switch v.Kind {
	case VKUnit:
		return "unit"
	case VKBool:
		return strconv.FormatBool(v.Bool)
	case VKInt:
		return strconv.FormatInt(v.Int, 10)
	case VKFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return fmt.Sprintf("%s@%d", v.Kind, v.H)
	}
}
