package vm

import (
	"encoding/binary"
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode table
// ---------------------------------------------------------------------------

func TestOpcodeNumbering(t *testing.T) {
	// The byte values are the wire contract; spot-check anchors.
	anchors := []struct {
		op   Opcode
		want byte
	}{
		{OpHalt, 0x00},
		{OpPushI, 0x02},
		{OpAdd, 0x0A},
		{OpEq, 0x10},
		{OpJump, 0x1A},
		{OpCallN, 0x1E},
		{OpGetGlobal, 0x20},
		{OpBreak, 0x25},
		{OpJge, 0x29},
		{OpSetIndex, 0x30},
	}
	for _, a := range anchors {
		if byte(a.op) != a.want {
			t.Errorf("%s = %#02x, want %#02x", a.op.Name(), byte(a.op), a.want)
		}
	}
}

func TestOpcodeNames(t *testing.T) {
	cases := map[Opcode]string{
		OpHalt:      "HALT",
		OpPushS:     "PUSHS",
		OpCallN:     "CALLN",
		OpGetGlobal: "GETGLOBAL",
		OpDumpStack: "DUMPSTACK",
	}
	for op, want := range cases {
		if got := op.Name(); got != want {
			t.Errorf("Name(%#02x) = %q, want %q", byte(op), got, want)
		}
	}
}

func TestOpcodeByName(t *testing.T) {
	op, ok := OpcodeByName("PUSHI")
	if !ok || op != OpPushI {
		t.Errorf("OpcodeByName(PUSHI) = %v, %v", op, ok)
	}
	if _, ok := OpcodeByName("NOSUCH"); ok {
		t.Error("OpcodeByName accepted an unknown mnemonic")
	}
}

func TestOperandBytes(t *testing.T) {
	cases := []struct {
		op   Opcode
		want int
	}{
		{OpHalt, 0},
		{OpPushI, 8},
		{OpPushF, 8},
		{OpPushBool, 1},
		{OpPushS, 4},
		{OpJump, 4},
		{OpCallN, 5}, // u32 name index + u8 argc
	}
	for _, c := range cases {
		info, ok := c.op.Info()
		if !ok {
			t.Fatalf("no info for %s", c.op.Name())
		}
		if got := info.Operand.OperandBytes(); got != c.want {
			t.Errorf("%s operand bytes = %d, want %d", c.op.Name(), got, c.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

func TestBuilderImmediates(t *testing.T) {
	b := NewBuilder()
	b.EmitI64(OpPushI, -5)
	b.EmitF64(OpPushF, 1.5)
	b.EmitU8(OpPushBool, 1)
	b.EmitU32(OpPushS, 3)
	code := b.Bytes()

	if Opcode(code[0]) != OpPushI {
		t.Fatalf("code[0] = %#02x, want PUSHI", code[0])
	}
	if got := int64(binary.LittleEndian.Uint64(code[1:])); got != -5 {
		t.Errorf("PUSHI immediate = %d, want -5", got)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(code[10:])); got != 1.5 {
		t.Errorf("PUSHF immediate = %g, want 1.5", got)
	}
	if code[19] != 1 {
		t.Errorf("PUSHBOOL immediate = %d, want 1", code[19])
	}
	if got := binary.LittleEndian.Uint32(code[21:]); got != 3 {
		t.Errorf("PUSHS immediate = %d, want 3", got)
	}
}

func TestBuilderCallN(t *testing.T) {
	b := NewBuilder()
	b.EmitCallN(9, 2)
	code := b.Bytes()
	if Opcode(code[0]) != OpCallN {
		t.Fatalf("code[0] = %#02x, want CALLN", code[0])
	}
	if got := binary.LittleEndian.Uint32(code[1:]); got != 9 {
		t.Errorf("name index = %d, want 9", got)
	}
	if code[5] != 2 {
		t.Errorf("argc = %d, want 2", code[5])
	}
}

// Branch offsets are relative to the byte after the 4-byte offset field.
func TestBuilderBackwardBranch(t *testing.T) {
	b := NewBuilder()
	loop := b.NewLabel()
	b.Mark(loop)
	b.Emit(OpNop)
	b.EmitBranch(OpJump, loop)
	code := b.Bytes()

	off := int32(binary.LittleEndian.Uint32(code[2:]))
	// Branch sits at 1, offset field ends at 6, target is 0.
	if off != -6 {
		t.Errorf("backward offset = %d, want -6", off)
	}
}

func TestBuilderForwardBranch(t *testing.T) {
	b := NewBuilder()
	end := b.NewLabel()
	b.EmitBranch(OpJz, end)
	b.Emit(OpNop)
	b.Mark(end)
	b.Emit(OpHalt)
	code := b.Bytes()

	off := int32(binary.LittleEndian.Uint32(code[1:]))
	// Offset field ends at 5, NOP at 5, target 6.
	if off != 1 {
		t.Errorf("forward offset = %d, want 1", off)
	}
	if !end.Resolved() {
		t.Error("marked label not resolved")
	}
}

func TestBuilderSharedForwardLabel(t *testing.T) {
	b := NewBuilder()
	end := b.NewLabel()
	b.EmitBranch(OpJz, end)
	b.EmitBranch(OpJnz, end)
	b.Mark(end)
	b.Emit(OpHalt)
	code := b.Bytes()

	if off := int32(binary.LittleEndian.Uint32(code[1:])); off != 5 {
		t.Errorf("first patch = %d, want 5", off)
	}
	if off := int32(binary.LittleEndian.Uint32(code[6:])); off != 0 {
		t.Errorf("second patch = %d, want 0", off)
	}
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

func TestReaderWalksInstructions(t *testing.T) {
	b := NewBuilder()
	b.EmitI64(OpPushI, 7)
	b.EmitU32(OpPushS, 0)
	b.Emit(OpHalt)

	r := NewReader(b.Bytes())

	op, ok := r.ReadOpcode()
	if !ok || op != OpPushI {
		t.Fatalf("first opcode = %v, %v", op, ok)
	}
	if v, ok := r.ReadU64(); !ok || int64(v) != 7 {
		t.Fatalf("PUSHI immediate = %d, %v", v, ok)
	}

	op, ok = r.ReadOpcode()
	if !ok || op != OpPushS {
		t.Fatalf("second opcode = %v, %v", op, ok)
	}
	if v, ok := r.ReadU32(); !ok || v != 0 {
		t.Fatalf("PUSHS immediate = %d, %v", v, ok)
	}

	op, ok = r.ReadOpcode()
	if !ok || op != OpHalt {
		t.Fatalf("third opcode = %v, %v", op, ok)
	}
	if r.HasMore() {
		t.Error("HasMore after final opcode")
	}
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{byte(OpPushI), 1, 2})
	if _, ok := r.ReadOpcode(); !ok {
		t.Fatal("opcode read failed")
	}
	if _, ok := r.ReadU64(); ok {
		t.Error("ReadU64 succeeded on 2 bytes")
	}
}

func TestReaderI32(t *testing.T) {
	b := NewBuilder()
	b.EmitBranchOffset(OpJump, -6)
	r := NewReader(b.Bytes())
	r.ReadOpcode()
	if v, ok := r.ReadI32(); !ok || v != -6 {
		t.Errorf("ReadI32 = %d, %v, want -6", v, ok)
	}
}
