package vm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction. The numeric values are
// the VLBC contract; names exist for diagnostics only.
type Opcode byte

// Control
const (
	OpHalt Opcode = 0x00 // stop execution
	OpNop  Opcode = 0x01 // no operation
)

// Stack
const (
	OpPushI    Opcode = 0x02 // push inline i64 (8 bytes)
	OpPushF    Opcode = 0x03 // push inline f64 (8 bytes, bit pattern)
	OpPushS    Opcode = 0x04 // push constant-pool string (32-bit index)
	OpPushNil  Opcode = 0x05 // push nil
	OpPushBool Opcode = 0x06 // push bool (1 byte, nonzero = true)
	OpPop      Opcode = 0x07 // discard top of stack
	OpDup      Opcode = 0x08 // duplicate top of stack
	OpSwap     Opcode = 0x09 // swap the two top slots
)

// Arithmetic
const (
	OpAdd Opcode = 0x0A
	OpSub Opcode = 0x0B
	OpMul Opcode = 0x0C
	OpDiv Opcode = 0x0D
	OpMod Opcode = 0x0E
	OpNeg Opcode = 0x0F
)

// Comparison
const (
	OpEq Opcode = 0x10
	OpNe Opcode = 0x11
	OpLt Opcode = 0x12
	OpLe Opcode = 0x13
	OpGt Opcode = 0x14
	OpGe Opcode = 0x15
)

// Logic (truthiness in, Bool out)
const (
	OpAnd Opcode = 0x16
	OpOr  Opcode = 0x17
	OpXor Opcode = 0x18
	OpNot Opcode = 0x19
)

// Branches. Offsets are signed 32-bit, relative to the byte after the
// offset.
const (
	OpJump Opcode = 0x1A // unconditional
	OpJz   Opcode = 0x1B // pop, jump if falsy
	OpJnz  Opcode = 0x1C // pop, jump if truthy
)

// Calls
const (
	OpCall  Opcode = 0x1D // reserved: VLBC-defined function call (32-bit index)
	OpCallN Opcode = 0x1E // call native (32-bit pool name index, 8-bit argc)
	OpRet   Opcode = 0x1F // return from the current activation
)

// Globals
const (
	OpGetGlobal Opcode = 0x20 // push global (32-bit pool name index)
	OpSetGlobal Opcode = 0x21 // pop into global (32-bit pool name index)
)

// Diagnostics
const (
	OpTrace     Opcode = 0x22 // emit an execution-state line when OP tracing is on
	OpPrint     Opcode = 0x23 // pop and print the display form to the trace sink
	OpDumpStack Opcode = 0x24 // emit the whole stack when STACK tracing is on
)

// Extended control and branches
const (
	OpBreak Opcode = 0x25 // trap to the step hook, otherwise a NOP
	OpJlt   Opcode = 0x26 // pop two, jump if a < b
	OpJle   Opcode = 0x27 // pop two, jump if a <= b
	OpJgt   Opcode = 0x28 // pop two, jump if a > b
	OpJge   Opcode = 0x29 // pop two, jump if a >= b
)

// Reserved: locals and tables. Recognized by the loader and disassembler;
// executing one is a BadOpcode error.
const (
	OpGetLocal Opcode = 0x2A // 32-bit slot index
	OpSetLocal Opcode = 0x2B // 32-bit slot index
	OpNewTable Opcode = 0x2C
	OpGetField Opcode = 0x2D
	OpSetField Opcode = 0x2E
	OpGetIndex Opcode = 0x2F
	OpSetIndex Opcode = 0x30
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// Operand classes drive loader verification and disassembly.
type operandClass uint8

const (
	operandNone   operandClass = iota
	operandI64                 // 8-byte immediate
	operandF64                 // 8-byte immediate (float bits)
	operandU8                  // 1-byte immediate
	operandStrIdx              // 4-byte constant-pool index
	operandBranch              // 4-byte signed relative offset
	operandCallN               // 4-byte pool index + 1-byte argc
	operandU32                 // 4-byte immediate (reserved opcodes)
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name     string
	Operand  operandClass
	Reserved bool // decodes but is not executable in the minimal core
}

// OperandBytes returns the number of operand bytes for the class.
func (c operandClass) OperandBytes() int {
	switch c {
	case operandI64, operandF64:
		return 8
	case operandU8:
		return 1
	case operandStrIdx, operandBranch, operandU32:
		return 4
	case operandCallN:
		return 5
	}
	return 0
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpHalt: {Name: "HALT"},
	OpNop:  {Name: "NOP"},

	OpPushI:    {Name: "PUSHI", Operand: operandI64},
	OpPushF:    {Name: "PUSHF", Operand: operandF64},
	OpPushS:    {Name: "PUSHS", Operand: operandStrIdx},
	OpPushNil:  {Name: "PUSHNIL"},
	OpPushBool: {Name: "PUSHBOOL", Operand: operandU8},
	OpPop:      {Name: "POP"},
	OpDup:      {Name: "DUP"},
	OpSwap:     {Name: "SWAP"},

	OpAdd: {Name: "ADD"},
	OpSub: {Name: "SUB"},
	OpMul: {Name: "MUL"},
	OpDiv: {Name: "DIV"},
	OpMod: {Name: "MOD"},
	OpNeg: {Name: "NEG"},

	OpEq: {Name: "EQ"},
	OpNe: {Name: "NE"},
	OpLt: {Name: "LT"},
	OpLe: {Name: "LE"},
	OpGt: {Name: "GT"},
	OpGe: {Name: "GE"},

	OpAnd: {Name: "AND"},
	OpOr:  {Name: "OR"},
	OpXor: {Name: "XOR"},
	OpNot: {Name: "NOT"},

	OpJump: {Name: "JUMP", Operand: operandBranch},
	OpJz:   {Name: "JZ", Operand: operandBranch},
	OpJnz:  {Name: "JNZ", Operand: operandBranch},

	OpCall:  {Name: "CALL", Operand: operandU32, Reserved: true},
	OpCallN: {Name: "CALLN", Operand: operandCallN},
	OpRet:   {Name: "RET"},

	OpGetGlobal: {Name: "GETGLOBAL", Operand: operandStrIdx},
	OpSetGlobal: {Name: "SETGLOBAL", Operand: operandStrIdx},

	OpTrace:     {Name: "TRACE"},
	OpPrint:     {Name: "PRINT"},
	OpDumpStack: {Name: "DUMPSTACK"},

	OpBreak: {Name: "BREAK"},
	OpJlt:   {Name: "JLT", Operand: operandBranch},
	OpJle:   {Name: "JLE", Operand: operandBranch},
	OpJgt:   {Name: "JGT", Operand: operandBranch},
	OpJge:   {Name: "JGE", Operand: operandBranch},

	OpGetLocal: {Name: "GETLOCAL", Operand: operandU32, Reserved: true},
	OpSetLocal: {Name: "SETLOCAL", Operand: operandU32, Reserved: true},
	OpNewTable: {Name: "NEWTABLE", Reserved: true},
	OpGetField: {Name: "GETFIELD", Reserved: true},
	OpSetField: {Name: "SETFIELD", Reserved: true},
	OpGetIndex: {Name: "GETINDEX", Reserved: true},
	OpSetIndex: {Name: "SETINDEX", Reserved: true},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

// Name returns the mnemonic for an opcode, or a hex form for unknown bytes.
func (op Opcode) Name() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN_%02X", byte(op))
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// OpcodeByName returns the opcode for a mnemonic.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := mnemonics[name]
	return op, ok
}

var mnemonics = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// ---------------------------------------------------------------------------
// Builder: helper for constructing code segments
// ---------------------------------------------------------------------------

// Builder constructs code segments with label-based branch patching.
type Builder struct {
	bytes []byte
}

// NewBuilder creates an empty code builder.
func NewBuilder() *Builder {
	return &Builder{bytes: make([]byte, 0, 64)}
}

// Bytes returns the constructed code segment.
func (b *Builder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *Builder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitI64 appends PUSHI-style instructions with an 8-byte immediate.
func (b *Builder) EmitI64(op Opcode, operand int64) {
	b.bytes = append(b.bytes, byte(op))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(operand))
	b.bytes = append(b.bytes, buf[:]...)
}

// EmitF64 appends an opcode with a float64 immediate (bit pattern).
func (b *Builder) EmitF64(op Opcode, operand float64) {
	b.bytes = append(b.bytes, byte(op))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(operand))
	b.bytes = append(b.bytes, buf[:]...)
}

// EmitU8 appends an opcode with a single byte operand.
func (b *Builder) EmitU8(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitU32 appends an opcode with a 32-bit operand (little-endian).
func (b *Builder) EmitU32(op Opcode, operand uint32) {
	b.bytes = append(b.bytes, byte(op))
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], operand)
	b.bytes = append(b.bytes, buf[:]...)
}

// EmitCallN appends a CALLN instruction.
func (b *Builder) EmitCallN(nameIdx uint32, argc uint8) {
	b.EmitU32(OpCallN, nameIdx)
	b.bytes = append(b.bytes, argc)
}

// ---------------------------------------------------------------------------
// Label management for branches
// ---------------------------------------------------------------------------

// Label represents a branch target, possibly a forward reference.
type Label struct {
	resolved bool
	position int
	refs     []int // operand positions waiting to be patched
}

// Resolved reports whether the label has been marked.
func (l *Label) Resolved() bool {
	return l.resolved
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position and patches every pending
// reference.
func (b *Builder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)
	for _, ref := range label.refs {
		offset := int32(label.position - (ref + 4))
		binary.LittleEndian.PutUint32(b.bytes[ref:], uint32(offset))
	}
	label.refs = nil
}

// EmitBranch emits a branch instruction targeting label. The offset is
// relative to the byte after the operand.
func (b *Builder) EmitBranch(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		offset := int32(label.position - (len(b.bytes) + 4))
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(offset))
		b.bytes = append(b.bytes, buf[:]...)
	} else {
		label.refs = append(label.refs, len(b.bytes))
		b.bytes = append(b.bytes, 0, 0, 0, 0)
	}
}

// EmitBranchOffset emits a branch with an explicit relative offset.
func (b *Builder) EmitBranchOffset(op Opcode, offset int32) {
	b.bytes = append(b.bytes, byte(op))
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(offset))
	b.bytes = append(b.bytes, buf[:]...)
}

// ---------------------------------------------------------------------------
// Code reader
// ---------------------------------------------------------------------------

// Reader walks a code segment for verification or disassembly.
type Reader struct {
	bytes []byte
	pos   int
}

// NewReader creates a reader over a code segment.
func NewReader(code []byte) *Reader {
	return &Reader{bytes: code}
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *Reader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads the next opcode byte.
func (r *Reader) ReadOpcode() (Opcode, bool) {
	if r.pos >= len(r.bytes) {
		return 0, false
	}
	op := Opcode(r.bytes[r.pos])
	r.pos++
	return op, true
}

// ReadU8 reads a single byte operand.
func (r *Reader) ReadU8() (byte, bool) {
	if r.pos >= len(r.bytes) {
		return 0, false
	}
	b := r.bytes[r.pos]
	r.pos++
	return b, true
}

// ReadU32 reads a 32-bit operand (little-endian).
func (r *Reader) ReadU32() (uint32, bool) {
	if r.pos+4 > len(r.bytes) {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return v, true
}

// ReadI32 reads a signed 32-bit operand (little-endian).
func (r *Reader) ReadI32() (int32, bool) {
	v, ok := r.ReadU32()
	return int32(v), ok
}

// ReadU64 reads a 64-bit operand (little-endian).
func (r *Reader) ReadU64() (uint64, bool) {
	if r.pos+8 > len(r.bytes) {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(r.bytes[r.pos:])
	r.pos += 8
	return v, true
}
