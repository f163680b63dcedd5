package bytecode

import (
	"bytes"
	"fmt"
	"sort"
)

// ConstantKind tags an entry of the constant pool.
type ConstantKind uint8

const (
	ConstUnit ConstantKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
)

func (k ConstantKind) String() string {
	switch k {
	case ConstUnit:
		return "unit"
	case ConstBool:
		return "bool"
	case ConstInt:
		return "int"
	case ConstFloat:
		return "float"
	case ConstString:
		return "string"
	default:
		return fmt.Sprintf("const(%d)", uint8(k))
	}
}

// Constant is one immutable entry of a module's constant pool. Only the field
// matching Kind is meaningful.
type Constant struct {
	Kind  ConstantKind `msgpack:"k"`
	Bool  bool         `msgpack:"b,omitempty"`
	Int   int64        `msgpack:"i,omitempty"`
	Float float64      `msgpack:"f,omitempty"`
	Str   []byte       `msgpack:"s,omitempty"`
}

func UnitConst() Constant           { return Constant{Kind: ConstUnit} }
func BoolConst(b bool) Constant     { return Constant{Kind: ConstBool, Bool: b} }
func IntConst(i int64) Constant     { return Constant{Kind: ConstInt, Int: i} }
func FloatConst(f float64) Constant { return Constant{Kind: ConstFloat, Float: f} }
func StringConst(s string) Constant { return Constant{Kind: ConstString, Str: []byte(s)} }

func (c Constant) equal(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstUnit:
		return true
	case ConstBool:
		return c.Bool == o.Bool
	case ConstInt:
		return c.Int == o.Int
	case ConstFloat:
		// Bitwise identity would also merge -0.0 with 0.0 incorrectly;
		// plain == keeps NaN constants distinct, which forces a fresh
		// pool slot for every NaN literal. Acceptable.
		return c.Float == o.Float
	case ConstString:
		return bytes.Equal(c.Str, o.Str)
	default:
		return false
	}
}

// CodeObject describes one callable unit. Params arrive as the first Locals
// slots; the rest start as Unit. Entry is an absolute offset into Module.Code.
type CodeObject struct {
	Params int `msgpack:"p"`
	Locals int `msgpack:"l"`
	Entry  int `msgpack:"e"`
}

// Module is a complete executable unit: constant pool, code object table and
// one flat instruction vector shared by every code object. Code object 0 is
// the entry point.
type Module struct {
	Constants   []Constant   `msgpack:"constants"`
	CodeObjects []CodeObject `msgpack:"code_objects"`
	Code        []byte       `msgpack:"code"`
}

// AddConstant interns c into the pool and returns its index. Identical
// constants share a slot.
func (m *Module) AddConstant(c Constant) (uint16, error) {
	for i, have := range m.Constants {
		if have.equal(c) {
			return uint16(i), nil
		}
	}
	if len(m.Constants) > 0xFFFF {
		return 0, fmt.Errorf("constant pool overflow: %d entries", len(m.Constants))
	}
	m.Constants = append(m.Constants, c)
	return uint16(len(m.Constants) - 1), nil
}

// AddCodeObject appends co and returns its index.
func (m *Module) AddCodeObject(co CodeObject) (uint16, error) {
	if co.Params < 0 || co.Locals < 0 || co.Params > co.Locals {
		return 0, fmt.Errorf("code object: %d params exceed %d locals", co.Params, co.Locals)
	}
	if len(m.CodeObjects) > 0xFFFF {
		return 0, fmt.Errorf("code object table overflow: %d entries", len(m.CodeObjects))
	}
	m.CodeObjects = append(m.CodeObjects, co)
	return uint16(len(m.CodeObjects) - 1), nil
}

// Layout is the decoded static shape of a module's code vector: which offsets
// start an instruction, and the [start,end) extent owned by each code object.
// Extents are derived from entry offsets: a code object owns the bytes from
// its entry up to the next entry in offset order.
type Layout struct {
	boundary []bool
	extents  [][2]int
}

// IsBoundary reports whether off starts an instruction.
func (l *Layout) IsBoundary(off int) bool {
	return off >= 0 && off < len(l.boundary) && l.boundary[off]
}

// Extent returns the [start, end) code range of code object ix.
func (l *Layout) Extent(ix int) (int, int) {
	e := l.extents[ix]
	return e[0], e[1]
}

// Validate checks the module's static invariants and returns its Layout:
// a root code object exists, every entry offset is inside the code vector,
// no instruction is truncated, every opcode byte is known, and every operand
// index (constants, locals, code objects) is in range. Jump targets are
// checked against instruction boundaries here; the interpreter re-checks
// them at runtime before transferring control.
func (m *Module) Validate() (*Layout, error) {
	if len(m.CodeObjects) == 0 {
		return nil, fmt.Errorf("module has no code objects")
	}
	lay := &Layout{
		boundary: make([]bool, len(m.Code)),
		extents:  make([][2]int, len(m.CodeObjects)),
	}
	for i, co := range m.CodeObjects {
		if co.Entry < 0 || co.Entry >= len(m.Code) {
			return nil, fmt.Errorf("code object %d: entry 0x%04x outside code (%d bytes)", i, co.Entry, len(m.Code))
		}
		if co.Params < 0 || co.Locals < 0 || co.Params > co.Locals {
			return nil, fmt.Errorf("code object %d: %d params exceed %d locals", i, co.Params, co.Locals)
		}
	}

	// Entry offsets partition the code vector into per-object extents.
	entries := make([]int, len(m.CodeObjects))
	order := make([]int, len(m.CodeObjects))
	for i, co := range m.CodeObjects {
		entries[i] = co.Entry
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return entries[order[a]] < entries[order[b]] })
	for pos, ix := range order {
		end := len(m.Code)
		if pos+1 < len(order) {
			end = entries[order[pos+1]]
		}
		lay.extents[ix] = [2]int{entries[ix], end}
		if pos > 0 && entries[ix] == entries[order[pos-1]] {
			return nil, fmt.Errorf("code objects %d and %d share entry 0x%04x", order[pos-1], ix, entries[ix])
		}
	}

	// Single linear decode records boundaries and checks static operands.
	off := 0
	for off < len(m.Code) {
		lay.boundary[off] = true
		op := Opcode(m.Code[off])
		info, ok := Info(op)
		if !ok {
			return nil, fmt.Errorf("unknown opcode 0x%02x at 0x%04x", byte(op), off)
		}
		if off+1+info.OperandLen > len(m.Code) {
			return nil, fmt.Errorf("truncated %s at 0x%04x", info.Name, off)
		}
		switch op {
		case OpLoadConst:
			ix := int(ReadU16(m.Code, off+1))
			if ix >= len(m.Constants) {
				return nil, fmt.Errorf("load_const %d at 0x%04x: pool has %d entries", ix, off, len(m.Constants))
			}
		case OpCall:
			ix := int(ReadU16(m.Code, off+1))
			if ix >= len(m.CodeObjects) {
				return nil, fmt.Errorf("call %d at 0x%04x: table has %d code objects", ix, off, len(m.CodeObjects))
			}
		}
		off += 1 + info.OperandLen
	}

	// Jump targets must land on an instruction boundary.
	off = 0
	for off < len(m.Code) {
		op := Opcode(m.Code[off])
		info, _ := Info(op)
		if info.Jump {
			target := int(ReadU32(m.Code, off+1))
			if target >= len(m.Code) || !lay.boundary[target] {
				return nil, fmt.Errorf("%s at 0x%04x: target 0x%04x is not an instruction", info.Name, off, target)
			}
		}
		off += 1 + info.OperandLen
	}
	return lay, nil
}

// ReadU16 decodes a little-endian u16 operand at off. Bounds are the caller's
// problem.
func ReadU16(code []byte, off int) uint16 {
	return uint16(code[off]) | uint16(code[off+1])<<8
}

// ReadU32 decodes a little-endian u32 operand at off.
func ReadU32(code []byte, off int) uint32 {
	return uint32(code[off]) | uint32(code[off+1])<<8 | uint32(code[off+2])<<16 | uint32(code[off+3])<<24
}
