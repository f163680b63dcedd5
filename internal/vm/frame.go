package vm

// frame is one call activation: which code object runs, where in the code
// vector it is, its local slots and its private operand stack. Arguments
// occupy the first local slots; the rest start as Unit (the zero Value).
type frame struct {
	codeIx   int
	pc       int
	locals   []Value
	operands []Value
}

func newFrame(codeIx, entry, localCount int, args []Value) frame {
	locals := make([]Value, localCount)
	copy(locals, args)
	return frame{codeIx: codeIx, pc: entry, locals: locals}
}

// releaseFrame drops every reference the frame still holds: residual
// operands top-down, then locals in reverse slot order.
func (vm *VM) releaseFrame(f *frame) {
	for i := len(f.operands) - 1; i >= 0; i-- {
		vm.heap.Release(f.operands[i])
	}
	f.operands = nil
	for i := len(f.locals) - 1; i >= 0; i-- {
		vm.heap.Release(f.locals[i])
		f.locals[i] = Value{}
	}
}
