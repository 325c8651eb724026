// Package asm implements the textual VLBC assembler. It turns mnemonic
// listings into Modules; the core VM never interprets text.
//
// Syntax, one instruction per line:
//
//	; comment to end of line
//	start:                  ; label definition
//	    PUSHS "hello"       ; quoted operands intern into the constant pool
//	    CALLN "print" 1
//	    JUMP start          ; branch operands may be labels or raw offsets
//	    HALT
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vittelang/vittelight/vm"
)

// ParseError reports a rejected line.
type ParseError struct {
	Line int
	Msg  string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("asm: line %d: %s", e.Line, e.Msg)
}

func parseErr(line int, format string, args ...any) error {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Assembler accumulates constants and code across Assemble calls.
type Assembler struct {
	consts  [][]byte
	builder *vm.Builder
	labels  map[string]*vm.Label
	interns map[string]uint32 // constant content -> pool index
}

// New creates an empty assembler.
func New() *Assembler {
	return &Assembler{
		builder: vm.NewBuilder(),
		labels:  make(map[string]*vm.Label),
		interns: make(map[string]uint32),
	}
}

// AssembleString assembles a full listing into a Module.
func AssembleString(src string) (*vm.Module, error) {
	a := New()
	if err := a.Assemble(src); err != nil {
		return nil, err
	}
	return a.Module()
}

// Assemble consumes a listing, appending to the current code segment.
func (a *Assembler) Assemble(src string) error {
	for i, raw := range strings.Split(src, "\n") {
		if err := a.line(i+1, raw); err != nil {
			return err
		}
	}
	return nil
}

// Module finalizes the program. Unresolved labels are an error.
func (a *Assembler) Module() (*vm.Module, error) {
	for name, label := range a.labels {
		if !label.Resolved() {
			return nil, fmt.Errorf("asm: undefined label %q", name)
		}
	}
	m, err := vm.NewModule(a.consts, a.builder.Bytes())
	if err != nil {
		return nil, fmt.Errorf("asm: %w", err)
	}
	return m, nil
}

// intern returns the constant-pool index for content, appending on miss.
func (a *Assembler) intern(content []byte) uint32 {
	if idx, ok := a.interns[string(content)]; ok {
		return idx
	}
	idx := uint32(len(a.consts))
	a.consts = append(a.consts, append([]byte(nil), content...))
	a.interns[string(content)] = idx
	return idx
}

func (a *Assembler) label(name string) *vm.Label {
	if l, ok := a.labels[name]; ok {
		return l
	}
	l := a.builder.NewLabel()
	a.labels[name] = l
	return l
}

func (a *Assembler) line(n int, raw string) error {
	if i := strings.IndexByte(raw, ';'); i >= 0 && !strings.Contains(raw[:i], `"`) {
		raw = raw[:i]
	} else if i >= 0 {
		// The comment may start after a quoted operand; strip only past
		// the closing quote.
		if j := strings.LastIndexByte(raw, '"'); j >= 0 {
			if k := strings.IndexByte(raw[j+1:], ';'); k >= 0 {
				raw = raw[:j+1+k]
			}
		}
	}
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil
	}

	if strings.HasSuffix(line, ":") {
		name := strings.TrimSpace(strings.TrimSuffix(line, ":"))
		if name == "" {
			return parseErr(n, "empty label")
		}
		label := a.label(name)
		if label.Resolved() {
			return parseErr(n, "label %q defined twice", name)
		}
		a.builder.Mark(label)
		return nil
	}

	tokens, err := tokenize(line)
	if err != nil {
		return parseErr(n, "%v", err)
	}
	mnemonic := strings.ToUpper(tokens[0])
	args := tokens[1:]

	op, ok := vm.OpcodeByName(mnemonic)
	if !ok {
		return parseErr(n, "unknown mnemonic %q", tokens[0])
	}

	switch op {
	case vm.OpPushI:
		v, err := needInt(n, args, mnemonic)
		if err != nil {
			return err
		}
		a.builder.EmitI64(op, v)

	case vm.OpPushF:
		if len(args) != 1 {
			return parseErr(n, "%s takes one operand", mnemonic)
		}
		f, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return parseErr(n, "%s: bad float %q", mnemonic, args[0])
		}
		a.builder.EmitF64(op, f)

	case vm.OpPushBool:
		if len(args) != 1 {
			return parseErr(n, "%s takes one operand", mnemonic)
		}
		switch strings.ToLower(args[0]) {
		case "true", "1":
			a.builder.EmitU8(op, 1)
		case "false", "0":
			a.builder.EmitU8(op, 0)
		default:
			return parseErr(n, "%s: bad bool %q", mnemonic, args[0])
		}

	case vm.OpPushS, vm.OpGetGlobal, vm.OpSetGlobal:
		idx, err := a.constOperand(n, args, mnemonic)
		if err != nil {
			return err
		}
		a.builder.EmitU32(op, idx)

	case vm.OpCallN:
		if len(args) != 2 {
			return parseErr(n, "CALLN takes a name and an argc")
		}
		idx, err := a.constOperand(n, args[:1], mnemonic)
		if err != nil {
			return err
		}
		argc, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return parseErr(n, "CALLN: bad argc %q", args[1])
		}
		a.builder.EmitCallN(idx, uint8(argc))

	case vm.OpJump, vm.OpJz, vm.OpJnz, vm.OpJlt, vm.OpJle, vm.OpJgt, vm.OpJge:
		if len(args) != 1 {
			return parseErr(n, "%s takes one operand", mnemonic)
		}
		if offset, err := strconv.ParseInt(args[0], 10, 32); err == nil {
			a.builder.EmitBranchOffset(op, int32(offset))
		} else {
			a.builder.EmitBranch(op, a.label(args[0]))
		}

	default:
		if len(args) != 0 {
			return parseErr(n, "%s takes no operands", mnemonic)
		}
		a.builder.Emit(op)
	}
	return nil
}

// constOperand resolves a quoted string (interned) or a raw pool index.
func (a *Assembler) constOperand(n int, args []string, mnemonic string) (uint32, error) {
	if len(args) != 1 {
		return 0, parseErr(n, "%s takes one string operand", mnemonic)
	}
	arg := args[0]
	if strings.HasPrefix(arg, `"`) {
		content, err := strconv.Unquote(arg)
		if err != nil {
			return 0, parseErr(n, "%s: bad string %s", mnemonic, arg)
		}
		return a.intern([]byte(content)), nil
	}
	idx, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, parseErr(n, "%s: bad constant index %q", mnemonic, arg)
	}
	return uint32(idx), nil
}

func needInt(n int, args []string, mnemonic string) (int64, error) {
	if len(args) != 1 {
		return 0, parseErr(n, "%s takes one operand", mnemonic)
	}
	v, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, parseErr(n, "%s: bad integer %q", mnemonic, args[0])
	}
	return v, nil
}

// tokenize splits a line on whitespace, keeping quoted strings whole.
func tokenize(line string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(line) {
		switch {
		case line[i] == ' ' || line[i] == '\t':
			i++
		case line[i] == '"':
			j := i + 1
			for j < len(line) {
				if line[j] == '\\' {
					j += 2
					continue
				}
				if line[j] == '"' {
					break
				}
				j++
			}
			if j >= len(line) {
				return nil, fmt.Errorf("unterminated string")
			}
			tokens = append(tokens, line[i:j+1])
			i = j + 1
		default:
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' {
				j++
			}
			tokens = append(tokens, line[i:j])
			i = j
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty line")
	}
	return tokens, nil
}
