package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at the reader's position
// and advances past it. Constant-pool operands are annotated with the
// quoted constant when m is non-nil.
func DisassembleInstruction(r *Reader, m *Module) string {
	pos := r.Position()
	op, ok := r.ReadOpcode()
	if !ok {
		return fmt.Sprintf("%04d  <end>", pos)
	}
	info, known := op.Info()
	if !known {
		return fmt.Sprintf("%04d  %s", pos, op.Name())
	}

	switch info.Operand {
	case operandNone:
		return fmt.Sprintf("%04d  %s", pos, info.Name)

	case operandI64:
		v, ok := r.ReadU64()
		if !ok {
			return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name)
		}
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, int64(v))

	case operandF64:
		v, ok := r.ReadU64()
		if !ok {
			return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name)
		}
		return fmt.Sprintf("%04d  %s %s", pos, info.Name,
			strconv.FormatFloat(math.Float64frombits(v), 'g', -1, 64))

	case operandU8:
		v, ok := r.ReadU8()
		if !ok {
			return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name)
		}
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)

	case operandU32:
		v, ok := r.ReadU32()
		if !ok {
			return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name)
		}
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)

	case operandStrIdx:
		idx, ok := r.ReadU32()
		if !ok {
			return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name)
		}
		return fmt.Sprintf("%04d  %s %d%s", pos, info.Name, idx, constAnnotation(m, idx))

	case operandBranch:
		offset, ok := r.ReadI32()
		if !ok {
			return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name)
		}
		return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, r.Position()+int(offset))

	case operandCallN:
		idx, ok := r.ReadU32()
		if !ok {
			return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name)
		}
		argc, ok := r.ReadU8()
		if !ok {
			return fmt.Sprintf("%04d  %s %d <truncated>", pos, info.Name, idx)
		}
		return fmt.Sprintf("%04d  %s %d %d%s", pos, info.Name, idx, argc, constAnnotation(m, idx))
	}

	return fmt.Sprintf("%04d  %s", pos, info.Name)
}

// constAnnotation returns a trailing comment quoting constant idx.
func constAnnotation(m *Module, idx uint32) string {
	if m == nil {
		return ""
	}
	b := m.ConstBytes(idx)
	if b == nil {
		return "  ; <bad index>"
	}
	return fmt.Sprintf("  ; %s", strconv.Quote(string(b)))
}

// Disassemble renders a complete listing of the module: a constant-pool
// summary followed by one line per instruction.
func Disassemble(m *Module) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; vlbc version %d, %d constants, %d code bytes\n",
		m.Version, m.ConstCount(), len(m.Code))
	for i := 0; i < m.ConstCount(); i++ {
		fmt.Fprintf(&sb, "; k%d: %s\n", i, strconv.Quote(string(m.ConstBytes(uint32(i)))))
	}

	r := NewReader(m.Code)
	for r.HasMore() {
		sb.WriteString(DisassembleInstruction(r, m))
		sb.WriteByte('\n')
	}
	return sb.String()
}
