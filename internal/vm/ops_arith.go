package vm

import (
	"math"

	"vela/internal/bytecode"
)

// Arithmetic semantics: ints wrap on overflow (two's complement), mixed
// int/float promotes to float, floats follow IEEE 754. Add doubles as
// concatenation for strings and lists. Division and modulo by integer zero
// are errors; float division by zero yields infinities and NaN as IEEE
// prescribes.

func (vm *VM) evalArith(op bytecode.Opcode, a, b Value) (Value, *VMError) {
	switch op {
	case bytecode.OpAdd:
		return vm.evalAdd(a, b)
	case bytecode.OpSub:
		return vm.evalNumeric(op, a, b)
	case bytecode.OpMul:
		return vm.evalNumeric(op, a, b)
	case bytecode.OpDiv:
		return vm.evalDiv(a, b)
	default:
		return vm.evalMod(a, b)
	}
}

func (vm *VM) evalAdd(a, b Value) (Value, *VMError) {
	switch {
	case a.Kind == VKInt && b.Kind == VKInt:
		return MakeInt(a.Int + b.Int), nil
	case a.Kind == VKString && b.Kind == VKString:
		as := vm.heap.Get(a.H).Str
		bs := vm.heap.Get(b.H).Str
		joined := make([]byte, 0, len(as)+len(bs))
		joined = append(joined, as...)
		joined = append(joined, bs...)
		return vm.heap.AllocString(joined), nil
	case a.Kind == VKList && b.Kind == VKList:
		al := vm.heap.Get(a.H).List
		bl := vm.heap.Get(b.H).List
		elems := make([]Value, 0, len(al)+len(bl))
		for _, v := range al {
			elems = append(elems, vm.heap.Retain(v))
		}
		for _, v := range bl {
			elems = append(elems, vm.heap.Retain(v))
		}
		return vm.heap.AllocList(elems), nil
	default:
		if af, bf, ok := promote(a, b); ok {
			return MakeFloat(af + bf), nil
		}
		return Value{}, vm.eb.typeMismatch("add", a.Kind, b.Kind)
	}
}

func (vm *VM) evalNumeric(op bytecode.Opcode, a, b Value) (Value, *VMError) {
	if a.Kind == VKInt && b.Kind == VKInt {
		if op == bytecode.OpSub {
			return MakeInt(a.Int - b.Int), nil
		}
		return MakeInt(a.Int * b.Int), nil
	}
	if af, bf, ok := promote(a, b); ok {
		if op == bytecode.OpSub {
			return MakeFloat(af - bf), nil
		}
		return MakeFloat(af * bf), nil
	}
	return Value{}, vm.eb.typeMismatch(op.String(), a.Kind, b.Kind)
}

func (vm *VM) evalDiv(a, b Value) (Value, *VMError) {
	if a.Kind == VKInt && b.Kind == VKInt {
		if b.Int == 0 {
			return Value{}, vm.eb.arithmetic("integer division by zero")
		}
		// Go defines MinInt64 / -1 as wrapping, which is the contract
		// here as well.
		return MakeInt(a.Int / b.Int), nil
	}
	if af, bf, ok := promote(a, b); ok {
		return MakeFloat(af / bf), nil
	}
	return Value{}, vm.eb.typeMismatch("div", a.Kind, b.Kind)
}

func (vm *VM) evalMod(a, b Value) (Value, *VMError) {
	if a.Kind == VKInt && b.Kind == VKInt {
		if b.Int == 0 {
			return Value{}, vm.eb.arithmetic("integer modulo by zero")
		}
		return MakeInt(a.Int % b.Int), nil
	}
	if af, bf, ok := promote(a, b); ok {
		return MakeFloat(math.Mod(af, bf)), nil
	}
	return Value{}, vm.eb.typeMismatch("mod", a.Kind, b.Kind)
}

func (vm *VM) evalNeg(a Value) (Value, *VMError) {
	switch a.Kind {
	case VKInt:
		return MakeInt(-a.Int), nil
	case VKFloat:
		return MakeFloat(-a.Float), nil
	default:
		return Value{}, vm.eb.typeMismatch("neg", a.Kind)
	}
}

// promote widens an int/float operand pair to floats. False when either side
// is not numeric or both are ints.
func promote(a, b Value) (float64, float64, bool) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok || (a.Kind == VKInt && b.Kind == VKInt) {
		return 0, 0, false
	}
	return af, bf, true
}

func asFloat(v Value) (float64, bool) {
	switch v.Kind {
	case VKInt:
		return float64(v.Int), true
	case VKFloat:
		return v.Float, true
	default:
		return 0, false
	}
}
