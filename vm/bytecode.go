package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a single bytecode instruction.
type Opcode uint8

// Placeholder is reserved by the compiler for a jump whose target is not
// known yet. It must be patched before the chunk reaches the VM.
const (
	OpPlaceholder Opcode = 0x00
)

// Push constants
const (
	OpNil      Opcode = 0x10 // push nil
	OpUnit     Opcode = 0x11 // push unit
	OpTrue     Opcode = 0x12 // push true
	OpFalse    Opcode = 0x13 // push false
	OpConstant Opcode = 0x14 // push constant (8-bit index)
)

// Stack and returns
const (
	OpPop    Opcode = 0x20 // discard top of stack
	OpReturn Opcode = 0x21 // return from frame (flag: has value)
	OpPrint  Opcode = 0x22 // pop and print
)

// Operators
const (
	OpBin   Opcode = 0x30 // binary operator (operand: BinaryOp)
	OpUnary Opcode = 0x31 // unary operator (operand: UnaryOp)
)

// Variables
const (
	OpGetGlobal Opcode = 0x40 // push global named by constant (8-bit index)
	OpSetGlobal Opcode = 0x41 // pop into global named by constant (8-bit index)
	OpGetLocal  Opcode = 0x42 // push frame-relative local (16-bit index)
	OpSetLocal  Opcode = 0x43 // pop into frame-relative local (16-bit index)
	OpGetUpval  Opcode = 0x44 // push captured variable (16-bit index)
	OpSetUpval  Opcode = 0x45 // pop into captured variable (16-bit index)
)

// Control flow
const (
	OpJump   Opcode = 0x50 // relative jump (signed 8-bit offset)
	OpJumpIf Opcode = 0x51 // pop, jump when truthiness matches flag (signed 8-bit offset)
)

// Tables and tuples
const (
	OpInitTable   Opcode = 0x60 // build table from stack (16-bit len, flag: has keys)
	OpGetField    Opcode = 0x61 // pop key, pop table, push value
	OpGetFieldImm Opcode = 0x62 // pop table, push value for constant key (8-bit index)
	OpSetField    Opcode = 0x63 // pop table, pop key, pop value
	OpSetFieldImm Opcode = 0x64 // pop table, pop value, store under constant key (8-bit index)
	OpTuple       Opcode = 0x65 // build tuple from stack (8-bit len)
)

// Functions
const (
	OpFuncDef Opcode = 0x70 // create closure from prototype (16-bit index)
	OpCall    Opcode = 0x71 // pop callee and call it (8-bit argc)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes how an instruction's operand fields are interpreted.
type OperandKind uint8

const (
	OperandNone     OperandKind = iota
	OperandConstant             // A is an index into the constant pool
	OperandSlot                 // A is a local or upvalue slot
	OperandOffset               // A holds a signed 8-bit offset
	OperandCount                // A is a length or argument count
	OperandProto                // A is a prototype index
	OperandBinary               // A is a BinaryOp
	OperandUnary                // A is a UnaryOp
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string
	Operand     OperandKind
	StackEffect int // net effect on stack (-99 = variable)
}

const variableEffect = -99

var opcodeTable = map[Opcode]OpcodeInfo{
	OpPlaceholder: {"PLACEHOLDER", OperandNone, 0},

	OpNil:      {"NIL", OperandNone, 1},
	OpUnit:     {"UNIT", OperandNone, 1},
	OpTrue:     {"TRUE", OperandNone, 1},
	OpFalse:    {"FALSE", OperandNone, 1},
	OpConstant: {"CONSTANT", OperandConstant, 1},

	OpPop:    {"POP", OperandNone, -1},
	OpReturn: {"RETURN", OperandNone, variableEffect},
	OpPrint:  {"PRINT", OperandNone, -1},

	OpBin:   {"BIN", OperandBinary, -1},
	OpUnary: {"UNARY", OperandUnary, 0},

	OpGetGlobal: {"GET_GLOBAL", OperandConstant, 1},
	OpSetGlobal: {"SET_GLOBAL", OperandConstant, -1},
	OpGetLocal:  {"GET_LOCAL", OperandSlot, 1},
	OpSetLocal:  {"SET_LOCAL", OperandSlot, -1},
	OpGetUpval:  {"GET_UPVAL", OperandSlot, 1},
	OpSetUpval:  {"SET_UPVAL", OperandSlot, -1},

	OpJump:   {"JUMP", OperandOffset, 0},
	OpJumpIf: {"JUMP_IF", OperandOffset, -1},

	OpInitTable:   {"INIT_TABLE", OperandCount, variableEffect},
	OpGetField:    {"GET_FIELD", OperandNone, -1},
	OpGetFieldImm: {"GET_FIELD_IMM", OperandConstant, 0},
	OpSetField:    {"SET_FIELD", OperandNone, -3},
	OpSetFieldImm: {"SET_FIELD_IMM", OperandConstant, -2},
	OpTuple:       {"TUPLE", OperandCount, variableEffect},

	OpFuncDef: {"FUNC_DEF", OperandProto, 1},
	OpCall:    {"CALL", OperandCount, variableEffect},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), Operand: OperandNone}
}

func (op Opcode) String() string {
	return op.Info().Name
}

// IsJump reports whether the opcode is a patchable jump.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIf
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// BinaryOp is the operator carried by a BIN instruction.
type BinaryOp uint8

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinGt
	BinLt
	BinGe
	BinLe
	BinEq
	BinNe
)

var binaryNames = [...]string{"+", "-", "*", "/", ">", "<", ">=", "<=", "==", "!="}

func (op BinaryOp) String() string {
	if int(op) < len(binaryNames) {
		return binaryNames[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", op)
}

// UnaryOp is the operator carried by a UNARY instruction.
type UnaryOp uint8

const (
	UnaryNegate UnaryOp = iota
	UnaryNot
)

func (op UnaryOp) String() string {
	switch op {
	case UnaryNegate:
		return "-"
	case UnaryNot:
		return "!"
	default:
		return fmt.Sprintf("UnaryOp(%d)", op)
	}
}

// ---------------------------------------------------------------------------
// Instruction encoding
// ---------------------------------------------------------------------------

// Instruction is one fixed-size slot of the instruction stream. A carries the
// index, length, operator, or offset operand; B carries the boolean operand
// (has value, when true, has keys). Instructions are comparable with ==.
type Instruction struct {
	Op Opcode
	A  uint16
	B  bool
}

// Simple returns an instruction that carries no operands.
func Simple(op Opcode) Instruction { return Instruction{Op: op} }

// Placeholder returns an unpatched jump slot.
func Placeholder() Instruction { return Instruction{Op: OpPlaceholder} }

func Constant(index uint8) Instruction { return Instruction{Op: OpConstant, A: uint16(index)} }

// Return pops the return value when hasValue is set, otherwise returns unit.
func Return(hasValue bool) Instruction { return Instruction{Op: OpReturn, B: hasValue} }

func Bin(op BinaryOp) Instruction       { return Instruction{Op: OpBin, A: uint16(op)} }
func Unary(op UnaryOp) Instruction      { return Instruction{Op: OpUnary, A: uint16(op)} }
func GetGlobal(index uint8) Instruction { return Instruction{Op: OpGetGlobal, A: uint16(index)} }
func SetGlobal(index uint8) Instruction { return Instruction{Op: OpSetGlobal, A: uint16(index)} }
func GetLocal(index uint16) Instruction { return Instruction{Op: OpGetLocal, A: index} }
func SetLocal(index uint16) Instruction { return Instruction{Op: OpSetLocal, A: index} }
func GetUpval(index uint16) Instruction { return Instruction{Op: OpGetUpval, A: index} }
func SetUpval(index uint16) Instruction { return Instruction{Op: OpSetUpval, A: index} }

// Jump is an unconditional relative jump; an offset of +1 is the next instruction.
func Jump(offset int8) Instruction {
	return Instruction{Op: OpJump, A: uint16(uint8(offset))}
}

// JumpIf pops a value and jumps when its truthiness equals whenTrue.
func JumpIf(whenTrue bool, offset int8) Instruction {
	return Instruction{Op: OpJumpIf, A: uint16(uint8(offset)), B: whenTrue}
}

func InitTable(length uint16, hasKeys bool) Instruction {
	return Instruction{Op: OpInitTable, A: length, B: hasKeys}
}

func GetFieldImm(index uint8) Instruction { return Instruction{Op: OpGetFieldImm, A: uint16(index)} }
func SetFieldImm(index uint8) Instruction { return Instruction{Op: OpSetFieldImm, A: uint16(index)} }
func Tuple(length uint8) Instruction      { return Instruction{Op: OpTuple, A: uint16(length)} }
func FuncDef(proto uint16) Instruction    { return Instruction{Op: OpFuncDef, A: proto} }
func Call(argc uint8) Instruction         { return Instruction{Op: OpCall, A: uint16(argc)} }

// Offset decodes the signed jump offset.
func (in Instruction) Offset() int8 { return int8(uint8(in.A)) }

// Index returns the operand as an index or count.
func (in Instruction) Index() int { return int(in.A) }

// BinaryOp decodes the operator of a BIN instruction.
func (in Instruction) BinaryOp() BinaryOp { return BinaryOp(in.A) }

// UnaryOp decodes the operator of a UNARY instruction.
func (in Instruction) UnaryOp() UnaryOp { return UnaryOp(in.A) }

func (in Instruction) String() string {
	info := in.Op.Info()
	switch in.Op {
	case OpReturn:
		if in.B {
			return "RETURN value"
		}
		return "RETURN"
	case OpJump:
		return fmt.Sprintf("%s %+d", info.Name, in.Offset())
	case OpJumpIf:
		return fmt.Sprintf("%s %t %+d", info.Name, in.B, in.Offset())
	case OpInitTable:
		if in.B {
			return fmt.Sprintf("%s %d keyed", info.Name, in.A)
		}
		return fmt.Sprintf("%s %d", info.Name, in.A)
	}
	switch info.Operand {
	case OperandNone:
		return info.Name
	case OperandBinary:
		return fmt.Sprintf("%s %s", info.Name, in.BinaryOp())
	case OperandUnary:
		return fmt.Sprintf("%s %s", info.Name, in.UnaryOp())
	default:
		return fmt.Sprintf("%s %d", info.Name, in.A)
	}
}
