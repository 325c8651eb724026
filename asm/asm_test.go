package asm

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/vittelang/vittelight/vm"
)

// run assembles and executes src, returning the halted context.
func run(t *testing.T, src string) *vm.Context {
	t.Helper()
	m, err := AssembleString(src)
	if err != nil {
		t.Fatalf("AssembleString: %v", err)
	}
	ctx := vm.NewContext(vm.Config{TraceSink: io.Discard})
	ctx.Attach(m)
	if st := ctx.Run(0); st != vm.StatusOK {
		rec := ctx.LastError()
		t.Fatalf("Run = %s: %s", st, rec.Error())
	}
	return ctx
}

func TestAssembleArithmetic(t *testing.T) {
	ctx := run(t, `
		PUSHI 6
		PUSHI 7
		MUL
		HALT
	`)
	top, _ := ctx.StackAt(0)
	if top.Int() != 42 {
		t.Errorf("result = %d, want 42", top.Int())
	}
}

func TestAssembleStringConstants(t *testing.T) {
	m, err := AssembleString(`
		PUSHS "hello"
		PUSHS "world"
		PUSHS "hello"   ; same constant, same index
		HALT
	`)
	if err != nil {
		t.Fatalf("AssembleString: %v", err)
	}
	if m.ConstCount() != 2 {
		t.Errorf("ConstCount = %d, want 2 (duplicates interned)", m.ConstCount())
	}
	if string(m.ConstBytes(0)) != "hello" || string(m.ConstBytes(1)) != "world" {
		t.Errorf("constants = %q, %q", m.ConstBytes(0), m.ConstBytes(1))
	}
}

func TestAssembleEscapes(t *testing.T) {
	m, err := AssembleString(`
		PUSHS "tab\there"
		HALT
	`)
	if err != nil {
		t.Fatalf("AssembleString: %v", err)
	}
	if got := string(m.ConstBytes(0)); got != "tab\there" {
		t.Errorf("constant = %q, want %q", got, "tab\there")
	}
}

func TestAssembleLoop(t *testing.T) {
	// Count down from 5; the fused compare branch exits the loop.
	ctx := run(t, `
		PUSHI 5
		SETGLOBAL "i"
	loop:
		GETGLOBAL "i"
		PUSHI 0
		JLE done
		GETGLOBAL "i"
		PUSHI 1
		SUB
		SETGLOBAL "i"
		JUMP loop
	done:
		GETGLOBAL "i"
		HALT
	`)
	top, _ := ctx.StackAt(0)
	if top.Int() != 0 {
		t.Errorf("i = %d, want 0", top.Int())
	}
}

func TestAssembleForwardLabel(t *testing.T) {
	ctx := run(t, `
		PUSHBOOL true
		JNZ skip
		PUSHI 1
		HALT
		skip:
		PUSHI 2
		HALT
	`)
	top, _ := ctx.StackAt(0)
	if top.Int() != 2 {
		t.Errorf("result = %d, want 2", top.Int())
	}
}

func TestAssembleCallN(t *testing.T) {
	m, err := AssembleString(`
		PUSHS "hi"
		CALLN "print" 1
		HALT
	`)
	if err != nil {
		t.Fatalf("AssembleString: %v", err)
	}
	ctx := vm.NewContext(vm.Config{TraceSink: io.Discard})
	ctx.Attach(m)
	var got string
	ctx.RegisterNative("print", func(c *vm.Context, args []vm.Value, _ any) (vm.Value, vm.Status) {
		got = string(c.StrBytes(args[0]))
		return vm.Nil, vm.StatusOK
	}, nil)
	if st := ctx.Run(0); st != vm.StatusOK {
		t.Fatalf("Run = %s", st)
	}
	if got != "hi" {
		t.Errorf("native saw %q, want %q", got, "hi")
	}
}

func TestAssembleCommentsAndBlankLines(t *testing.T) {
	ctx := run(t, `
		; leading comment

		PUSHI 1  ; trailing comment
		PUSHS "semi;colon"  ; comment after quoted operand
		POP
		HALT
	`)
	top, _ := ctx.StackAt(0)
	if top.Int() != 1 {
		t.Errorf("result = %d, want 1", top.Int())
	}
}

func TestAssembleRawBranchOffset(t *testing.T) {
	// JUMP 1 skips the next single-byte instruction.
	ctx := run(t, `
		JUMP 1
		POP
		PUSHI 3
		HALT
	`)
	top, _ := ctx.StackAt(0)
	if top.Int() != 3 {
		t.Errorf("result = %d, want 3", top.Int())
	}
}

func TestAssembleRoundTripThroughDisassembler(t *testing.T) {
	m, err := AssembleString(`
		PUSHS "x"
		PUSHF 1.5
		HALT
	`)
	if err != nil {
		t.Fatal(err)
	}
	out := vm.Disassemble(m)
	for _, want := range []string{"PUSHS 0", "PUSHF 1.5", "HALT"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

// ---------------------------------------------------------------------------
// Rejections
// ---------------------------------------------------------------------------

func TestAssembleErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"unknown mnemonic", "FROB\nHALT", "unknown mnemonic"},
		{"bad integer", "PUSHI abc\nHALT", "bad integer"},
		{"bad bool", "PUSHBOOL maybe\nHALT", "bad bool"},
		{"missing operand", "PUSHI\nHALT", "takes one operand"},
		{"extra operand", "HALT 1", "takes no operands"},
		{"unterminated string", `PUSHS "oops`, "unterminated string"},
		{"duplicate label", "a:\na:\nHALT", "defined twice"},
		{"bad argc", `CALLN "f" many`, "bad argc"},
	}
	for _, c := range cases {
		_, err := AssembleString(c.src)
		if err == nil {
			t.Errorf("%s: accepted", c.name)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: err = %q, want mention of %q", c.name, err, c.want)
		}
	}
}

func TestAssembleParseErrorHasLine(t *testing.T) {
	_, err := AssembleString("NOP\nBOGUS\nHALT")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if pe.Line != 2 {
		t.Errorf("Line = %d, want 2", pe.Line)
	}
}

func TestAssembleUndefinedLabel(t *testing.T) {
	_, err := AssembleString("JUMP nowhere\nHALT")
	if err == nil || !strings.Contains(err.Error(), "undefined label") {
		t.Errorf("err = %v, want undefined label", err)
	}
}

func TestAssembleBadConstantIndex(t *testing.T) {
	// Raw index beyond the pool is caught by module verification.
	_, err := AssembleString("PUSHS 9\nHALT")
	if err == nil {
		t.Error("out-of-range constant index accepted")
	}
}

func TestAssembleIncremental(t *testing.T) {
	a := New()
	if err := a.Assemble("PUSHI 1"); err != nil {
		t.Fatal(err)
	}
	if err := a.Assemble("PUSHI 2\nADD\nHALT"); err != nil {
		t.Fatal(err)
	}
	m, err := a.Module()
	if err != nil {
		t.Fatal(err)
	}
	ctx := vm.NewContext(vm.Config{TraceSink: io.Discard})
	ctx.Attach(m)
	if st := ctx.Run(0); st != vm.StatusOK {
		t.Fatalf("Run = %s", st)
	}
	top, _ := ctx.StackAt(0)
	if top.Int() != 3 {
		t.Errorf("result = %d, want 3", top.Int())
	}
}
