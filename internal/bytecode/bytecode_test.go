package bytecode

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestOpcodeTableShape(t *testing.T) {
	cases := []struct {
		op      Opcode
		name    string
		operand int
	}{
		{OpLoadConst, "load_const", 2},
		{OpStoreGlobal, "store_global", 2},
		{OpPop, "pop", 0},
		{OpAdd, "add", 0},
		{OpJump, "jump", 4},
		{OpJumpIfFalse, "jump_if_false", 4},
		{OpCall, "call", 3},
		{OpReturn, "return", 0},
		{OpMakeDict, "make_dict", 2},
		{OpHostCall, "host_call", 3},
	}
	for _, tc := range cases {
		info, ok := Info(tc.op)
		if !ok {
			t.Fatalf("opcode 0x%02x missing from table", byte(tc.op))
		}
		if info.Name != tc.name {
			t.Errorf("0x%02x name = %q, want %q", byte(tc.op), info.Name, tc.name)
		}
		if info.OperandLen != tc.operand {
			t.Errorf("%s operand len = %d, want %d", tc.name, info.OperandLen, tc.operand)
		}
	}
	if _, ok := Info(Opcode(0xEE)); ok {
		t.Error("0xEE should not be a known opcode")
	}
}

func TestAddConstantInterning(t *testing.T) {
	var m Module
	a, err := m.AddConstant(IntConst(42))
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.AddConstant(IntConst(42))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("identical int constants got slots %d and %d", a, b)
	}
	c, _ := m.AddConstant(StringConst("42"))
	if c == a {
		t.Error("string constant shares a slot with an int")
	}
	if len(m.Constants) != 2 {
		t.Errorf("pool has %d entries, want 2", len(m.Constants))
	}
}

func TestBuilderEmitAndPatch(t *testing.T) {
	var m Module
	ci, _ := m.AddConstant(BoolConst(true))
	b := NewBuilder(&m)

	b.EmitIndex(OpLoadConst, ci)
	jmp := b.EmitJump(OpJumpIfFalse)
	b.EmitIndex(OpLoadConst, ci)
	b.Emit(OpPop)
	target := b.CurrentPosition()
	b.PatchJump(jmp, target)
	b.EmitIndex(OpLoadConst, ci)
	b.Emit(OpReturn)
	if err := b.Err(); err != nil {
		t.Fatal(err)
	}

	if got := int(ReadU32(m.Code, jmp+1)); got != target {
		t.Errorf("patched target = 0x%04x, want 0x%04x", got, target)
	}

	if _, err := m.AddCodeObject(CodeObject{Locals: 0, Entry: 0}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBuilderRejectsMisuse(t *testing.T) {
	var m Module
	b := NewBuilder(&m)
	b.Emit(OpLoadConst) // operand instruction without operand
	if b.Err() == nil {
		t.Fatal("expected an emission error")
	}

	b2 := NewBuilder(&Module{})
	b2.EmitJump(OpAdd)
	if b2.Err() == nil {
		t.Fatal("expected an error for a non-jump opcode")
	}
}

func TestValidateCatchesBadModules(t *testing.T) {
	base := func() *Module {
		var m Module
		ci, _ := m.AddConstant(IntConst(1))
		b := NewBuilder(&m)
		b.EmitIndex(OpLoadConst, ci)
		b.Emit(OpReturn)
		m.AddCodeObject(CodeObject{Entry: 0})
		return &m
	}

	t.Run("ok", func(t *testing.T) {
		if _, err := base().Validate(); err != nil {
			t.Fatal(err)
		}
	})
	t.Run("no code objects", func(t *testing.T) {
		m := base()
		m.CodeObjects = nil
		if _, err := m.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("entry out of range", func(t *testing.T) {
		m := base()
		m.CodeObjects[0].Entry = 999
		if _, err := m.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("truncated instruction", func(t *testing.T) {
		m := base()
		m.Code = append(m.Code, byte(OpLoadConst), 0x00) // one operand byte missing
		if _, err := m.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("unknown opcode", func(t *testing.T) {
		m := base()
		m.Code = append(m.Code, 0xEE)
		if _, err := m.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("constant index out of range", func(t *testing.T) {
		m := base()
		m.Code[1] = 0x7F // load_const operand far past the pool
		if _, err := m.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("jump into operand bytes", func(t *testing.T) {
		m := base()
		b := NewBuilder(m)
		b.EmitJumpTo(OpJump, 1) // offset 1 is inside load_const's operand
		if _, err := m.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestLayoutExtents(t *testing.T) {
	var m Module
	ci, _ := m.AddConstant(IntConst(7))
	b := NewBuilder(&m)

	entryMain := b.CurrentPosition()
	b.EmitCall(1, 0)
	b.Emit(OpReturn)
	entryFn := b.CurrentPosition()
	b.EmitIndex(OpLoadConst, ci)
	b.Emit(OpReturn)
	if err := b.Err(); err != nil {
		t.Fatal(err)
	}
	m.AddCodeObject(CodeObject{Entry: entryMain})
	m.AddCodeObject(CodeObject{Entry: entryFn})

	lay, err := m.Validate()
	if err != nil {
		t.Fatal(err)
	}
	start, end := lay.Extent(0)
	if start != entryMain || end != entryFn {
		t.Errorf("code object 0 extent = [%d,%d), want [%d,%d)", start, end, entryMain, entryFn)
	}
	start, end = lay.Extent(1)
	if start != entryFn || end != len(m.Code) {
		t.Errorf("code object 1 extent = [%d,%d), want [%d,%d)", start, end, entryFn, len(m.Code))
	}
	if !lay.IsBoundary(entryFn) {
		t.Error("entry of code object 1 should be a boundary")
	}
	if lay.IsBoundary(entryMain + 1) {
		t.Error("call operand byte should not be a boundary")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	var m Module
	ci, _ := m.AddConstant(StringConst("hello"))
	cf, _ := m.AddConstant(FloatConst(2.5))
	b := NewBuilder(&m)
	b.EmitIndex(OpLoadConst, ci)
	b.Emit(OpPop)
	b.EmitIndex(OpLoadConst, cf)
	b.Emit(OpReturn)
	if err := b.Err(); err != nil {
		t.Fatal(err)
	}
	m.AddCodeObject(CodeObject{Locals: 2, Entry: 0})

	path := filepath.Join(t.TempDir(), "mod.vbc")
	if err := SaveModule(path, &m); err != nil {
		t.Fatalf("SaveModule: %v", err)
	}
	got, lay, err := LoadModule(path)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if lay == nil {
		t.Fatal("LoadModule returned no layout")
	}
	if len(got.Constants) != 2 || got.Constants[0].Kind != ConstString ||
		string(got.Constants[0].Str) != "hello" || got.Constants[1].Float != 2.5 {
		t.Errorf("constants did not round-trip: %+v", got.Constants)
	}
	if len(got.Code) != len(m.Code) {
		t.Errorf("code length %d, want %d", len(got.Code), len(m.Code))
	}
	if got.CodeObjects[0].Locals != 2 {
		t.Errorf("locals = %d, want 2", got.CodeObjects[0].Locals)
	}
}

func TestLoadRejectsBadHeader(t *testing.T) {
	_, _, err := decodeModule([]byte("nope"))
	if err == nil {
		t.Fatal("expected error for a short file")
	}
	_, _, err = decodeModule([]byte{'X', 'X', 'X', 'X', 1, 0, 0})
	if err == nil {
		t.Fatal("expected error for a bad magic")
	}
	_, _, err = decodeModule([]byte{'V', 'L', 'B', 'C', 9, 0, 0})
	if err == nil {
		t.Fatal("expected error for an unsupported version")
	}
}

func TestDisassembleListing(t *testing.T) {
	var m Module
	ci, _ := m.AddConstant(IntConst(5))
	b := NewBuilder(&m)
	b.EmitIndex(OpLoadConst, ci)
	b.EmitIndex(OpStoreLocal, 0)
	b.EmitIndex(OpLoadLocal, 0)
	b.Emit(OpReturn)
	if err := b.Err(); err != nil {
		t.Fatal(err)
	}
	m.AddCodeObject(CodeObject{Locals: 1, Entry: 0})

	listing, err := Disassemble(&m)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"constants:", "int 5", "load_const", "store_local", "return"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}
