package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders a module as a human-readable listing: the constant
// pool, then each code object's instructions with offsets and decoded
// operands. Intended for the disasm command and for debugging tests.
func Disassemble(m *Module) (string, error) {
	lay, err := m.Validate()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("constants:\n")
	for i, c := range m.Constants {
		fmt.Fprintf(&sb, "  #%-4d %s\n", i, formatConstant(c))
	}
	for i, co := range m.CodeObjects {
		start, end := lay.Extent(i)
		fmt.Fprintf(&sb, "code object %d: params=%d locals=%d entry=0x%04x\n",
			i, co.Params, co.Locals, co.Entry)
		for off := start; off < end; {
			off = disasmInstr(&sb, m, off)
		}
	}
	return sb.String(), nil
}

func disasmInstr(sb *strings.Builder, m *Module, off int) int {
	op := Opcode(m.Code[off])
	info, _ := Info(op)
	fmt.Fprintf(sb, "  0x%04x  %-14s", off, info.Name)
	switch {
	case info.Jump:
		fmt.Fprintf(sb, " -> 0x%04x", ReadU32(m.Code, off+1))
	case op == OpCall:
		fmt.Fprintf(sb, " code=%d argc=%d", ReadU16(m.Code, off+1), m.Code[off+3])
	case op == OpHostCall:
		fmt.Fprintf(sb, " host=%d argc=%d", ReadU16(m.Code, off+1), m.Code[off+3])
	case op == OpLoadConst:
		ix := ReadU16(m.Code, off+1)
		fmt.Fprintf(sb, " #%d  ; %s", ix, formatConstant(m.Constants[ix]))
	case info.OperandLen == 2:
		fmt.Fprintf(sb, " %d", ReadU16(m.Code, off+1))
	}
	sb.WriteByte('\n')
	return off + 1 + info.OperandLen
}

func formatConstant(c Constant) string {
	switch c.Kind {
	case ConstUnit:
		return "unit"
	case ConstBool:
		return fmt.Sprintf("bool %v", c.Bool)
	case ConstInt:
		return fmt.Sprintf("int %d", c.Int)
	case ConstFloat:
		return fmt.Sprintf("float %g", c.Float)
	case ConstString:
		return fmt.Sprintf("string %q", c.Str)
	default:
		return fmt.Sprintf("const(%d)", uint8(c.Kind))
	}
}
