package bytecode

import (
	"fmt"

	"fortio.org/safecast"
)

// Builder emits instructions into a Module's code vector. Jumps are emitted
// with a placeholder target and patched once the destination offset is known.
type Builder struct {
	mod *Module
	err error
}

// NewBuilder wraps mod for emission. The builder appends; existing code stays.
func NewBuilder(mod *Module) *Builder {
	return &Builder{mod: mod}
}

// Err returns the first emission error, if any. Emit calls after an error are
// no-ops, so a straight-line emission sequence only needs one check at the end.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

// CurrentPosition returns the offset the next emitted instruction will occupy.
func (b *Builder) CurrentPosition() int { return len(b.mod.Code) }

// Emit appends a zero-operand instruction.
func (b *Builder) Emit(op Opcode) {
	if b.err != nil {
		return
	}
	info, ok := Info(op)
	if !ok {
		b.fail("emit: unknown opcode 0x%02x", byte(op))
		return
	}
	if info.OperandLen != 0 {
		b.fail("emit: %s takes %d operand bytes", info.Name, info.OperandLen)
		return
	}
	b.mod.Code = append(b.mod.Code, byte(op))
}

// EmitIndex appends an instruction with a single u16 operand.
func (b *Builder) EmitIndex(op Opcode, ix uint16) {
	if b.err != nil {
		return
	}
	info, ok := Info(op)
	if !ok || info.OperandLen != 2 {
		b.fail("emit: %s does not take a u16 operand", op)
		return
	}
	b.mod.Code = append(b.mod.Code, byte(op), byte(ix), byte(ix>>8))
}

// EmitCall appends a call to code object ix with argc arguments.
func (b *Builder) EmitCall(ix uint16, argc uint8) {
	if b.err != nil {
		return
	}
	b.mod.Code = append(b.mod.Code, byte(OpCall), byte(ix), byte(ix>>8), argc)
}

// EmitHostCall appends a call to host function ix with argc arguments.
func (b *Builder) EmitHostCall(ix uint16, argc uint8) {
	if b.err != nil {
		return
	}
	b.mod.Code = append(b.mod.Code, byte(OpHostCall), byte(ix), byte(ix>>8), argc)
}

// EmitJump appends op with a placeholder target and returns the instruction's
// offset for a later PatchJump. Backward jumps can pass the known target to
// EmitJumpTo instead.
func (b *Builder) EmitJump(op Opcode) int {
	pos := b.CurrentPosition()
	b.emitJumpOperand(op, 0xFFFFFFFF)
	return pos
}

// EmitJumpTo appends op jumping to the known absolute target.
func (b *Builder) EmitJumpTo(op Opcode, target int) {
	if b.err != nil {
		return
	}
	t, err := safecast.Convert[uint32](target)
	if err != nil {
		b.fail("jump target %d out of range", target)
		return
	}
	b.emitJumpOperand(op, t)
}

func (b *Builder) emitJumpOperand(op Opcode, target uint32) {
	if b.err != nil {
		return
	}
	info, ok := Info(op)
	if !ok || !info.Jump {
		b.fail("emit: %s is not a jump", op)
		return
	}
	b.mod.Code = append(b.mod.Code, byte(op),
		byte(target), byte(target>>8), byte(target>>16), byte(target>>24))
}

// PatchJump rewrites the target of the jump emitted at pos to point at
// target, typically CurrentPosition at the destination.
func (b *Builder) PatchJump(pos, target int) {
	if b.err != nil {
		return
	}
	if pos < 0 || pos+5 > len(b.mod.Code) {
		b.fail("patch: no jump at 0x%04x", pos)
		return
	}
	info, ok := Info(Opcode(b.mod.Code[pos]))
	if !ok || !info.Jump {
		b.fail("patch: instruction at 0x%04x is %s, not a jump", pos, Opcode(b.mod.Code[pos]))
		return
	}
	t, err := safecast.Convert[uint32](target)
	if err != nil {
		b.fail("patch: target %d out of range", target)
		return
	}
	b.mod.Code[pos+1] = byte(t)
	b.mod.Code[pos+2] = byte(t >> 8)
	b.mod.Code[pos+3] = byte(t >> 16)
	b.mod.Code[pos+4] = byte(t >> 24)
}
