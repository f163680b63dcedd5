package vm

import (
	"fortio.org/safecast"

	"vela/internal/bytecode"
)

// throw aborts the current instruction. run's recover turns the panic into
// the Execute error result; the heap's own panics travel the same path.
func (vm *VM) throw(e *VMError) { panic(e) }

func (vm *VM) mustPush(f *frame, v Value) {
	if len(f.operands) >= vm.stackLimit {
		vm.heap.Release(v)
		vm.throw(vm.eb.overflow(vm.stackLimit))
	}
	f.operands = append(f.operands, v)
}

func (vm *VM) mustPop(f *frame, op string) Value {
	if len(f.operands) == 0 {
		vm.throw(vm.eb.underflow(op))
	}
	v := f.operands[len(f.operands)-1]
	f.operands = f.operands[:len(f.operands)-1]
	return v
}

func (vm *VM) constValue(c bytecode.Constant) Value {
	switch c.Kind {
	case bytecode.ConstBool:
		return MakeBool(c.Bool)
	case bytecode.ConstInt:
		return MakeInt(c.Int)
	case bytecode.ConstFloat:
		return MakeFloat(c.Float)
	case bytecode.ConstString:
		return vm.heap.AllocString(c.Str)
	default:
		return MakeUnit()
	}
}

// run executes until the root frame returns. Every fault escapes as a
// *VMError panic and is caught here; anything else is a bug and re-panics.
func (vm *VM) run() (result Value, verr *VMError) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(*VMError)
		if !ok {
			panic(r)
		}
		if e.CodeObject < 0 && len(vm.frames) > 0 {
			f := &vm.frames[len(vm.frames)-1]
			e.CodeObject = f.codeIx
			e.PC = f.pc
		}
		result, verr = Value{}, e
	}()

	code := vm.mod.Code
	for {
		f := &vm.frames[len(vm.frames)-1]
		if f.pc < 0 || f.pc >= len(code) {
			vm.throw(vm.eb.malformed("pc 0x%04x outside code (%d bytes)", f.pc, len(code)))
		}
		op := bytecode.Opcode(code[f.pc])
		info, known := bytecode.Info(op)
		if !known {
			vm.throw(vm.eb.malformed("unknown opcode 0x%02x", byte(op)))
		}
		next := f.pc + 1 + info.OperandLen
		if next > len(code) {
			vm.throw(vm.eb.malformed("truncated %s at 0x%04x", info.Name, f.pc))
		}
		vm.tracer.instr(len(vm.frames)-1, f.codeIx, f.pc, op)
		vm.instrCount++
		if vm.observer != nil && vm.instrCount%progressInterval == 0 {
			vm.emit(RunEvent{Kind: RunProgress})
		}

		switch op {
		case bytecode.OpLoadConst:
			ix := bytecode.ReadU16(code, f.pc+1)
			vm.mustPush(f, vm.constValue(vm.mod.Constants[ix]))

		case bytecode.OpLoadLocal:
			ix := int(bytecode.ReadU16(code, f.pc+1))
			if ix >= len(f.locals) {
				vm.throw(vm.eb.undefinedLocal(ix, len(f.locals)))
			}
			vm.mustPush(f, vm.heap.Retain(f.locals[ix]))

		case bytecode.OpStoreLocal:
			ix := int(bytecode.ReadU16(code, f.pc+1))
			v := vm.mustPop(f, "store_local")
			if ix >= len(f.locals) {
				vm.heap.Release(v)
				vm.throw(vm.eb.undefinedLocal(ix, len(f.locals)))
			}
			old := f.locals[ix]
			f.locals[ix] = v
			vm.heap.Release(old)

		case bytecode.OpLoadGlobal:
			ix := int(bytecode.ReadU16(code, f.pc+1))
			if ix >= len(vm.globals) || !vm.globals[ix].set {
				vm.throw(vm.eb.undefinedGlobal(ix))
			}
			vm.mustPush(f, vm.heap.Retain(vm.globals[ix].val))

		case bytecode.OpStoreGlobal:
			ix := int(bytecode.ReadU16(code, f.pc+1))
			v := vm.mustPop(f, "store_global")
			for len(vm.globals) <= ix {
				vm.globals = append(vm.globals, globalSlot{})
			}
			if vm.globals[ix].set {
				vm.heap.Release(vm.globals[ix].val)
			}
			vm.globals[ix] = globalSlot{val: v, set: true}

		case bytecode.OpPop:
			vm.heap.Release(vm.mustPop(f, "pop"))

		case bytecode.OpDup:
			if len(f.operands) == 0 {
				vm.throw(vm.eb.underflow("dup"))
			}
			vm.mustPush(f, vm.heap.Retain(f.operands[len(f.operands)-1]))

		case bytecode.OpSwap:
			n := len(f.operands)
			if n < 2 {
				vm.throw(vm.eb.underflow("swap"))
			}
			f.operands[n-1], f.operands[n-2] = f.operands[n-2], f.operands[n-1]

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			b := vm.mustPop(f, op.String())
			a := vm.mustPop(f, op.String())
			res, err := vm.evalArith(op, a, b)
			vm.heap.Release(a)
			vm.heap.Release(b)
			if err != nil {
				vm.throw(err)
			}
			vm.mustPush(f, res)

		case bytecode.OpNeg:
			a := vm.mustPop(f, "neg")
			res, err := vm.evalNeg(a)
			vm.heap.Release(a)
			if err != nil {
				vm.throw(err)
			}
			vm.mustPush(f, res)

		case bytecode.OpEq, bytecode.OpNe:
			b := vm.mustPop(f, op.String())
			a := vm.mustPop(f, op.String())
			eq := vm.heap.ValuesEqual(a, b)
			vm.heap.Release(a)
			vm.heap.Release(b)
			if op == bytecode.OpNe {
				eq = !eq
			}
			vm.mustPush(f, MakeBool(eq))

		case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			b := vm.mustPop(f, op.String())
			a := vm.mustPop(f, op.String())
			res, err := vm.evalOrder(op, a, b)
			vm.heap.Release(a)
			vm.heap.Release(b)
			if err != nil {
				vm.throw(err)
			}
			vm.mustPush(f, res)

		case bytecode.OpAnd, bytecode.OpOr:
			b := vm.mustPop(f, op.String())
			a := vm.mustPop(f, op.String())
			ta, tb := vm.heap.Truthy(a), vm.heap.Truthy(b)
			vm.heap.Release(a)
			vm.heap.Release(b)
			if op == bytecode.OpAnd {
				vm.mustPush(f, MakeBool(ta && tb))
			} else {
				vm.mustPush(f, MakeBool(ta || tb))
			}

		case bytecode.OpNot:
			a := vm.mustPop(f, "not")
			t := vm.heap.Truthy(a)
			vm.heap.Release(a)
			vm.mustPush(f, MakeBool(!t))

		case bytecode.OpJump:
			f.pc = vm.jumpTarget(f, code)
			continue

		case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
			target := vm.jumpTarget(f, code)
			c := vm.mustPop(f, op.String())
			t := vm.heap.Truthy(c)
			vm.heap.Release(c)
			if t == (op == bytecode.OpJumpIfTrue) {
				f.pc = target
				continue
			}

		case bytecode.OpCall:
			ix := int(bytecode.ReadU16(code, f.pc+1))
			argc := int(code[f.pc+3])
			co := vm.mod.CodeObjects[ix]
			if argc != co.Params {
				vm.throw(vm.eb.make(PanicTypeMismatch,
					"call: code object %d expects %d arguments, got %d", ix, co.Params, argc))
			}
			if len(vm.frames) >= maxCallDepth {
				vm.throw(vm.eb.make(PanicStackOverflow, "call depth limit %d exceeded", maxCallDepth))
			}
			args := vm.popArgs(f, argc, "call")
			f.pc = next
			vm.frames = append(vm.frames, newFrame(ix, co.Entry, co.Locals, args))
			continue

		case bytecode.OpReturn:
			res := vm.mustPop(f, "return")
			vm.releaseFrame(f)
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				return res, nil
			}
			vm.mustPush(&vm.frames[len(vm.frames)-1], res)
			continue

		case bytecode.OpMakeList:
			n := int(bytecode.ReadU16(code, f.pc+1))
			vm.mustPush(f, vm.heap.AllocList(vm.popArgs(f, n, "make_list")))

		case bytecode.OpMakeTuple:
			n := int(bytecode.ReadU16(code, f.pc+1))
			vm.mustPush(f, vm.heap.AllocTuple(vm.popArgs(f, n, "make_tuple")))

		case bytecode.OpMakeSet:
			n := int(bytecode.ReadU16(code, f.pc+1))
			vm.mustPush(f, vm.heap.AllocSet(vm.popArgs(f, n, "make_set")))

		case bytecode.OpMakeDict:
			n := int(bytecode.ReadU16(code, f.pc+1))
			vm.mustPush(f, vm.makeDict(f, n))

		case bytecode.OpIndex:
			vm.execIndex(f)

		case bytecode.OpSetIndex:
			vm.execSetIndex(f)

		case bytecode.OpHostCall:
			ix := int(bytecode.ReadU16(code, f.pc+1))
			argc := int(code[f.pc+3])
			if ix >= len(vm.hosts) {
				vm.throw(vm.eb.make(PanicInvalidCodeRef,
					"host function %d out of range (%d registered)", ix, len(vm.hosts)))
			}
			args := vm.popArgs(f, argc, "host_call")
			res, err := vm.hosts[ix](vm.heap, args)
			for i := len(args) - 1; i >= 0; i-- {
				vm.heap.Release(args[i])
			}
			if err != nil {
				vm.heap.Release(res)
				vm.throw(vm.eb.hostFailed(ix, err))
			}
			vm.mustPush(f, res)
		}

		f.pc = next
	}
}

// jumpTarget decodes and checks the jump operand of the current instruction:
// inside the running code object and on an instruction boundary.
func (vm *VM) jumpTarget(f *frame, code []byte) int {
	target := int(bytecode.ReadU32(code, f.pc+1))
	start, end := vm.layout.Extent(f.codeIx)
	if target < start || target >= end || !vm.layout.IsBoundary(target) {
		vm.throw(vm.eb.invalidJump(target))
	}
	return target
}

// popArgs removes the top n operands, preserving push order in the result.
// Ownership transfers to the caller.
func (vm *VM) popArgs(f *frame, n int, op string) []Value {
	if len(f.operands) < n {
		vm.throw(vm.eb.underflow(op))
	}
	args := make([]Value, n)
	copy(args, f.operands[len(f.operands)-n:])
	f.operands = f.operands[:len(f.operands)-n]
	return args
}

// makeDict pops n key/value pairs, keys below values, first pair deepest.
// Later duplicates of a key win.
func (vm *VM) makeDict(f *frame, n int) Value {
	flat := vm.popArgs(f, 2*n, "make_dict")
	entries := make(map[string]Value, n)
	for i := 0; i < n; i++ {
		key, val := flat[2*i], flat[2*i+1]
		if key.Kind != VKString {
			for j := 2 * i; j < len(flat); j++ {
				vm.heap.Release(flat[j])
			}
			for _, v := range entries {
				vm.heap.Release(v)
			}
			vm.throw(vm.eb.typeMismatch("make_dict key", key.Kind))
		}
		ks := string(vm.heap.Get(key.H).Str)
		vm.heap.Release(key)
		if old, dup := entries[ks]; dup {
			vm.heap.Release(old)
		}
		entries[ks] = val
	}
	return vm.heap.AllocDict(entries)
}

func (vm *VM) execIndex(f *frame) {
	ix := vm.mustPop(f, "index")
	cont := vm.mustPop(f, "index")
	fail := func(e *VMError) {
		vm.heap.Release(ix)
		vm.heap.Release(cont)
		vm.throw(e)
	}
	switch cont.Kind {
	case VKList, VKTuple:
		if ix.Kind != VKInt {
			fail(vm.eb.typeMismatch("index", cont.Kind, ix.Kind))
		}
		elems := vm.heap.Get(cont.H).List
		if cont.Kind == VKTuple {
			elems = vm.heap.Get(cont.H).Tuple
		}
		i, err := safecast.Convert[int](ix.Int)
		if err != nil || i < 0 || i >= len(elems) {
			fail(vm.eb.outOfBounds(ix.Int, len(elems)))
		}
		v := vm.heap.Retain(elems[i])
		vm.heap.Release(cont)
		vm.mustPush(f, v)
	case VKDict:
		if ix.Kind != VKString {
			fail(vm.eb.typeMismatch("index", cont.Kind, ix.Kind))
		}
		key := string(vm.heap.Get(ix.H).Str)
		v, ok := vm.heap.Get(cont.H).Dict[key]
		if !ok {
			fail(vm.eb.missingKey(key))
		}
		vm.heap.Retain(v)
		vm.heap.Release(ix)
		vm.heap.Release(cont)
		vm.mustPush(f, v)
	default:
		fail(vm.eb.typeMismatch("index", cont.Kind))
	}
}

func (vm *VM) execSetIndex(f *frame) {
	v := vm.mustPop(f, "set_index")
	ix := vm.mustPop(f, "set_index")
	cont := vm.mustPop(f, "set_index")
	fail := func(e *VMError) {
		vm.heap.Release(v)
		vm.heap.Release(ix)
		vm.heap.Release(cont)
		vm.throw(e)
	}
	switch cont.Kind {
	case VKList:
		if ix.Kind != VKInt {
			fail(vm.eb.typeMismatch("set_index", cont.Kind, ix.Kind))
		}
		obj := vm.heap.Get(cont.H)
		i, err := safecast.Convert[int](ix.Int)
		if err != nil || i < 0 || i >= len(obj.List) {
			fail(vm.eb.outOfBounds(ix.Int, len(obj.List)))
		}
		old := obj.List[i]
		obj.List[i] = v
		vm.heap.Release(old)
		vm.heap.Release(cont)
	case VKDict:
		if ix.Kind != VKString {
			fail(vm.eb.typeMismatch("set_index", cont.Kind, ix.Kind))
		}
		key := string(vm.heap.Get(ix.H).Str)
		obj := vm.heap.Get(cont.H)
		if old, had := obj.Dict[key]; had {
			vm.heap.Release(old)
		}
		obj.Dict[key] = v
		vm.heap.Release(ix)
		vm.heap.Release(cont)
	case VKTuple:
		fail(vm.eb.make(PanicTypeMismatch, "set_index: tuples are immutable"))
	default:
		fail(vm.eb.typeMismatch("set_index", cont.Kind))
	}
}
