package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vittelang/vittelight/vm"
)

func testModule(t *testing.T) *vm.Module {
	t.Helper()
	b := vm.NewBuilder()
	b.EmitU32(vm.OpPushS, 0)
	b.EmitU32(vm.OpPushS, 1)
	b.Emit(vm.OpAdd)
	b.Emit(vm.OpHalt)
	m, err := vm.NewModule([][]byte{[]byte("con"), []byte("cat\x00bin")}, b.Bytes())
	if err != nil {
		t.Fatalf("NewModule: %v", err)
	}
	return m
}

func TestChunkRoundTrip(t *testing.T) {
	m := testModule(t)
	payload, err := Marshal(FromModule(m))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	chunk, err := Unmarshal(payload)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got, err := chunk.Module()
	if err != nil {
		t.Fatalf("Module: %v", err)
	}
	if got.Hash() != m.Hash() {
		t.Error("round-tripped module hash differs")
	}
	if !bytes.Equal(got.Code, m.Code) {
		t.Error("round-tripped code differs")
	}
	if !bytes.Equal(got.ConstBytes(1), []byte("cat\x00bin")) {
		t.Errorf("binary constant = %q", got.ConstBytes(1))
	}
}

// Canonical encoding makes equal modules byte-identical on the wire.
func TestMarshalDeterministic(t *testing.T) {
	m := testModule(t)
	a, err := Marshal(FromModule(m))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(FromModule(m))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two encodings of the same module differ")
	}
}

func TestModuleRejectsTamperedCode(t *testing.T) {
	chunk := FromModule(testModule(t))
	chunk.Code = append([]byte(nil), chunk.Code...)
	chunk.Code[len(chunk.Code)-1] = byte(vm.OpNop) // HALT -> NOP
	if _, err := chunk.Module(); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("err = %v, want ErrHashMismatch", err)
	}
}

func TestModuleRejectsTamperedConstant(t *testing.T) {
	chunk := FromModule(testModule(t))
	chunk.Constants[0] = []byte("CON")
	if _, err := chunk.Module(); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("err = %v, want ErrHashMismatch", err)
	}
}

func TestModuleRejectsBadVersion(t *testing.T) {
	chunk := FromModule(testModule(t))
	chunk.Version = 9
	if _, err := chunk.Module(); err == nil {
		t.Error("unsupported chunk version accepted")
	}
}

// A chunk carrying invalid code fails module verification even when the
// hash is consistent with it.
func TestModuleRejectsBadCode(t *testing.T) {
	chunk := FromModule(testModule(t))
	chunk.Code = []byte{0xEE}
	if _, err := chunk.Module(); err == nil {
		t.Error("chunk with invalid code accepted")
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("not cbor at all")); err == nil {
		t.Error("garbage input accepted")
	}
}
