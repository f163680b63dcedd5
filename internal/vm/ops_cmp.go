package vm

import (
	"bytes"

	"vela/internal/bytecode"
)

// ValuesEqual implements structural equality: immediates of the same kind by
// value (NaN is not equal to itself), strings by byte content, other heap
// references by handle identity. Cross-kind comparisons are false, never a
// coercion and never an error.
func (hp *Heap) ValuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case VKUnit:
		return true
	case VKBool:
		return a.Bool == b.Bool
	case VKInt:
		return a.Int == b.Int
	case VKFloat:
		return a.Float == b.Float
	case VKString:
		if a.H == b.H {
			return true
		}
		return bytes.Equal(hp.Get(a.H).Str, hp.Get(b.H).Str)
	default:
		return a.H == b.H
	}
}

// Truthy maps a value onto a branch condition: unit is false, bools are
// themselves, numbers are true unless zero, strings and containers are true
// unless empty, reactive nodes are always true.
func (hp *Heap) Truthy(v Value) bool {
	switch v.Kind {
	case VKUnit:
		return false
	case VKBool:
		return v.Bool
	case VKInt:
		return v.Int != 0
	case VKFloat:
		return v.Float != 0
	case VKString:
		return len(hp.Get(v.H).Str) > 0
	case VKList:
		return len(hp.Get(v.H).List) > 0
	case VKDict:
		return len(hp.Get(v.H).Dict) > 0
	case VKSet:
		return len(hp.Get(v.H).Set) > 0
	case VKTuple:
		return len(hp.Get(v.H).Tuple) > 0
	default:
		return true
	}
}

// evalOrder implements lt/le/gt/ge. Ordering exists within ints, within
// floats and between strings (bytewise); everything else is a type mismatch.
func (vm *VM) evalOrder(op bytecode.Opcode, a, b Value) (Value, *VMError) {
	var cmp int
	switch {
	case a.Kind == VKInt && b.Kind == VKInt:
		switch {
		case a.Int < b.Int:
			cmp = -1
		case a.Int > b.Int:
			cmp = 1
		}
	case a.Kind == VKFloat && b.Kind == VKFloat:
		// NaN is unordered: every ordering comparison involving it is
		// false.
		if a.Float != a.Float || b.Float != b.Float {
			return MakeBool(false), nil
		}
		switch {
		case a.Float < b.Float:
			cmp = -1
		case a.Float > b.Float:
			cmp = 1
		}
	case a.Kind == VKString && b.Kind == VKString:
		cmp = bytes.Compare(vm.heap.Get(a.H).Str, vm.heap.Get(b.H).Str)
	default:
		return Value{}, vm.eb.typeMismatch(op.String(), a.Kind, b.Kind)
	}
	switch op {
	case bytecode.OpLt:
		return MakeBool(cmp < 0), nil
	case bytecode.OpLe:
		return MakeBool(cmp <= 0), nil
	case bytecode.OpGt:
		return MakeBool(cmp > 0), nil
	default:
		return MakeBool(cmp >= 0), nil
	}
}
