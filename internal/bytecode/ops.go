package bytecode

import "fmt"

// Opcode is a single instruction byte. Operands follow the opcode inline in
// the code vector, little-endian, with the widths listed in opcodeTable.
type Opcode byte

const (
	OpLoadConst   Opcode = 0x00 // u16 constant index
	OpLoadLocal   Opcode = 0x01 // u16 slot
	OpStoreLocal  Opcode = 0x02 // u16 slot
	OpLoadGlobal  Opcode = 0x03 // u16 slot
	OpStoreGlobal Opcode = 0x04 // u16 slot

	OpPop  Opcode = 0x07
	OpDup  Opcode = 0x08
	OpSwap Opcode = 0x09

	OpAdd Opcode = 0x10
	OpSub Opcode = 0x11
	OpMul Opcode = 0x12
	OpDiv Opcode = 0x13
	OpMod Opcode = 0x14
	OpNeg Opcode = 0x16

	OpEq Opcode = 0x20
	OpNe Opcode = 0x21
	OpLt Opcode = 0x22
	OpLe Opcode = 0x23
	OpGt Opcode = 0x24
	OpGe Opcode = 0x25

	OpAnd Opcode = 0x30
	OpOr  Opcode = 0x31
	OpNot Opcode = 0x32

	OpJump        Opcode = 0x40 // u32 absolute target
	OpJumpIfFalse Opcode = 0x41 // u32 absolute target
	OpJumpIfTrue  Opcode = 0x42 // u32 absolute target

	OpCall   Opcode = 0x50 // u16 code object index, u8 argc
	OpReturn Opcode = 0x51

	OpMakeList  Opcode = 0x60 // u16 element count
	OpMakeTuple Opcode = 0x61 // u16 element count
	OpMakeDict  Opcode = 0x62 // u16 pair count
	OpMakeSet   Opcode = 0x63 // u16 element count

	OpIndex    Opcode = 0x68
	OpSetIndex Opcode = 0x69

	OpHostCall Opcode = 0x70 // u16 host function index, u8 argc
)

// OpcodeInfo describes the static shape of an instruction.
type OpcodeInfo struct {
	Name       string
	OperandLen int  // bytes of inline operands after the opcode
	Jump       bool // operand is an absolute code offset
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpLoadConst:   {Name: "load_const", OperandLen: 2},
	OpLoadLocal:   {Name: "load_local", OperandLen: 2},
	OpStoreLocal:  {Name: "store_local", OperandLen: 2},
	OpLoadGlobal:  {Name: "load_global", OperandLen: 2},
	OpStoreGlobal: {Name: "store_global", OperandLen: 2},
	OpPop:         {Name: "pop"},
	OpDup:         {Name: "dup"},
	OpSwap:        {Name: "swap"},
	OpAdd:         {Name: "add"},
	OpSub:         {Name: "sub"},
	OpMul:         {Name: "mul"},
	OpDiv:         {Name: "div"},
	OpMod:         {Name: "mod"},
	OpNeg:         {Name: "neg"},
	OpEq:          {Name: "eq"},
	OpNe:          {Name: "ne"},
	OpLt:          {Name: "lt"},
	OpLe:          {Name: "le"},
	OpGt:          {Name: "gt"},
	OpGe:          {Name: "ge"},
	OpAnd:         {Name: "and"},
	OpOr:          {Name: "or"},
	OpNot:         {Name: "not"},
	OpJump:        {Name: "jump", OperandLen: 4, Jump: true},
	OpJumpIfFalse: {Name: "jump_if_false", OperandLen: 4, Jump: true},
	OpJumpIfTrue:  {Name: "jump_if_true", OperandLen: 4, Jump: true},
	OpCall:        {Name: "call", OperandLen: 3},
	OpReturn:      {Name: "return"},
	OpMakeList:    {Name: "make_list", OperandLen: 2},
	OpMakeTuple:   {Name: "make_tuple", OperandLen: 2},
	OpMakeDict:    {Name: "make_dict", OperandLen: 2},
	OpMakeSet:     {Name: "make_set", OperandLen: 2},
	OpIndex:       {Name: "index"},
	OpSetIndex:    {Name: "set_index"},
	OpHostCall:    {Name: "host_call", OperandLen: 3},
}

// Info returns the opcode's static description and whether the byte names a
// known instruction at all.
func Info(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("op(0x%02x)", byte(op))
}
