package vm

import (
	"testing"

	"vela/internal/bytecode"
)

// modBuilder assembles small test modules without drowning tests in error
// plumbing.
type modBuilder struct {
	t *testing.T
	m *bytecode.Module
	b *bytecode.Builder
}

func newModule(t *testing.T) *modBuilder {
	t.Helper()
	m := &bytecode.Module{}
	return &modBuilder{t: t, m: m, b: bytecode.NewBuilder(m)}
}

func (mb *modBuilder) constIx(c bytecode.Constant) uint16 {
	mb.t.Helper()
	ix, err := mb.m.AddConstant(c)
	if err != nil {
		mb.t.Fatal(err)
	}
	return ix
}

func (mb *modBuilder) loadInt(v int64) *modBuilder {
	mb.b.EmitIndex(bytecode.OpLoadConst, mb.constIx(bytecode.IntConst(v)))
	return mb
}

func (mb *modBuilder) loadFloat(v float64) *modBuilder {
	mb.b.EmitIndex(bytecode.OpLoadConst, mb.constIx(bytecode.FloatConst(v)))
	return mb
}

func (mb *modBuilder) loadBool(v bool) *modBuilder {
	mb.b.EmitIndex(bytecode.OpLoadConst, mb.constIx(bytecode.BoolConst(v)))
	return mb
}

func (mb *modBuilder) loadStr(s string) *modBuilder {
	mb.b.EmitIndex(bytecode.OpLoadConst, mb.constIx(bytecode.StringConst(s)))
	return mb
}

func (mb *modBuilder) op(ops ...bytecode.Opcode) *modBuilder {
	for _, o := range ops {
		mb.b.Emit(o)
	}
	return mb
}

func (mb *modBuilder) ix(o bytecode.Opcode, ix uint16) *modBuilder {
	mb.b.EmitIndex(o, ix)
	return mb
}

// done registers code object 0 starting at offset 0 and validates.
func (mb *modBuilder) done(locals int) *bytecode.Module {
	mb.t.Helper()
	if err := mb.b.Err(); err != nil {
		mb.t.Fatal(err)
	}
	if _, err := mb.m.AddCodeObject(bytecode.CodeObject{Locals: locals, Entry: 0}); err != nil {
		mb.t.Fatal(err)
	}
	if _, err := mb.m.Validate(); err != nil {
		mb.t.Fatal(err)
	}
	return mb.m
}

// raw returns the module without registering a code object, for tests that
// lay out several code objects themselves.
func (mb *modBuilder) raw() *bytecode.Module {
	mb.t.Helper()
	if err := mb.b.Err(); err != nil {
		mb.t.Fatal(err)
	}
	return mb.m
}

// runModule executes mod on a fresh VM and fails the test on a VM error.
// Callers own the returned value and machine.
func runModule(t *testing.T, mod *bytecode.Module) (*VM, Value) {
	t.Helper()
	machine := New()
	res, err := machine.Execute(mod)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return machine, res
}

// runExpectError executes mod and requires a VM error with the given code.
func runExpectError(t *testing.T, mod *bytecode.Module, code PanicCode) (*VM, *VMError) {
	t.Helper()
	machine := New()
	_, err := machine.Execute(mod)
	if err == nil {
		t.Fatal("Execute succeeded, expected an error")
	}
	if err.Code != code {
		t.Fatalf("error code = VM%04d (%v), want VM%04d", err.Code, err, code)
	}
	return machine, err
}

// wantInt asserts res is the given int.
func wantInt(t *testing.T, res Value, want int64) {
	t.Helper()
	got, ok := AsInt(res)
	if !ok {
		t.Fatalf("result is %s, want int", res.Kind)
	}
	if got != want {
		t.Fatalf("result = %d, want %d", got, want)
	}
}

// finish releases res, closes the machine and verifies nothing leaked.
func finish(t *testing.T, machine *VM, res Value) {
	t.Helper()
	machine.ReleaseValue(res)
	machine.Close()
	machine.Heap().ForceCollect()
	if err := machine.CheckLeaks(); err != nil {
		t.Fatalf("leak check: %v\n%s", err, machine.Heap().DumpObjects())
	}
}
