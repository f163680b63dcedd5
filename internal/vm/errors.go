package vm

import "fmt"

// PanicCode is a stable numeric identifier for a fatal runtime error. Codes
// are grouped: 10xx execution errors, 11xx heap invariant violations.
type PanicCode int

const (
	PanicTypeMismatch      PanicCode = 1001
	PanicArithmetic        PanicCode = 1002
	PanicOutOfBounds       PanicCode = 1003
	PanicMissingKey        PanicCode = 1004
	PanicUndefinedGlobal   PanicCode = 1005
	PanicUndefinedLocal    PanicCode = 1006
	PanicStackUnderflow    PanicCode = 1007
	PanicStackOverflow     PanicCode = 1008
	PanicInvalidJump       PanicCode = 1009
	PanicInvalidCodeRef    PanicCode = 1010
	PanicHost              PanicCode = 1011
	PanicAllocFailed       PanicCode = 1012
	PanicMalformedBytecode PanicCode = 1013
	PanicInvalidHandle     PanicCode = 1101
	PanicUseAfterFree      PanicCode = 1102
	PanicRefCountUnderflow PanicCode = 1103
	PanicHeapCorruption    PanicCode = 1104
)

// VMError is the single fatal error type of the interpreter. Execution stops
// at the faulting instruction; PC and CodeObject locate it. CodeObject is -1
// when the fault happened outside any frame (heap misuse from the host, for
// example).
type VMError struct {
	Code       PanicCode
	Message    string
	PC         int
	CodeObject int
}

func (e *VMError) Error() string {
	if e.CodeObject < 0 {
		return fmt.Sprintf("panic VM%04d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("panic VM%04d: %s (code object %d @ 0x%04x)", e.Code, e.Message, e.CodeObject, e.PC)
}

// errorBuilder stamps errors with the VM's current position. The zero value
// produces frameless errors.
type errorBuilder struct {
	vm *VM
}

func (b errorBuilder) make(code PanicCode, format string, args ...any) *VMError {
	e := &VMError{Code: code, Message: fmt.Sprintf(format, args...), CodeObject: -1}
	if b.vm != nil && len(b.vm.frames) > 0 {
		f := &b.vm.frames[len(b.vm.frames)-1]
		e.PC = f.pc
		e.CodeObject = f.codeIx
	}
	return e
}

func (b errorBuilder) typeMismatch(op string, kinds ...ValueKind) *VMError {
	switch len(kinds) {
	case 1:
		return b.make(PanicTypeMismatch, "%s: unsupported operand %s", op, kinds[0])
	case 2:
		return b.make(PanicTypeMismatch, "%s: unsupported operands %s and %s", op, kinds[0], kinds[1])
	default:
		return b.make(PanicTypeMismatch, "%s: unsupported operands", op)
	}
}

func (b errorBuilder) arithmetic(msg string) *VMError {
	return b.make(PanicArithmetic, "%s", msg)
}

func (b errorBuilder) outOfBounds(ix int64, n int) *VMError {
	return b.make(PanicOutOfBounds, "index %d out of bounds for length %d", ix, n)
}

func (b errorBuilder) missingKey(key string) *VMError {
	return b.make(PanicMissingKey, "missing key %q", key)
}

func (b errorBuilder) undefinedGlobal(ix int) *VMError {
	return b.make(PanicUndefinedGlobal, "read of undefined global %d", ix)
}

func (b errorBuilder) undefinedLocal(ix, n int) *VMError {
	return b.make(PanicUndefinedLocal, "local slot %d out of range (%d slots)", ix, n)
}

func (b errorBuilder) underflow(op string) *VMError {
	return b.make(PanicStackUnderflow, "%s: operand stack underflow", op)
}

func (b errorBuilder) overflow(limit int) *VMError {
	return b.make(PanicStackOverflow, "operand stack limit %d exceeded", limit)
}

func (b errorBuilder) invalidJump(target int) *VMError {
	return b.make(PanicInvalidJump, "jump target 0x%04x is not an instruction boundary", target)
}

func (b errorBuilder) invalidCodeRef(ix, n int) *VMError {
	return b.make(PanicInvalidCodeRef, "code object %d out of range (%d defined)", ix, n)
}

func (b errorBuilder) hostFailed(ix int, err error) *VMError {
	return b.make(PanicHost, "host function %d: %v", ix, err)
}

func (b errorBuilder) malformed(format string, args ...any) *VMError {
	return b.make(PanicMalformedBytecode, format, args...)
}
