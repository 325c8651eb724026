package vm

import (
	"errors"
	"fmt"
	"os"
)

// ---------------------------------------------------------------------------
// Load error taxonomy
// ---------------------------------------------------------------------------

var (
	ErrBadMagic           = errors.New("invalid magic number: expected VLBC")
	ErrUnsupportedVersion = errors.New("unsupported image version")
	ErrTruncated          = errors.New("truncated image")
	ErrBadIndex           = errors.New("constant index out of range")
	ErrBadBranch          = errors.New("branch target out of range")
	ErrBadOperand         = errors.New("bad operand")
)

// LoadError describes why an image was rejected. Unwrap yields one of the
// sentinel errors above, so callers can branch with errors.Is.
type LoadError struct {
	Kind   error
	Offset int // byte offset into the image, -1 when not applicable
	Detail string
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("vlbc: %v", e.Kind)
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("vlbc: %v at offset %d: %s", e.Kind, e.Offset, e.Detail)
	}
	return fmt.Sprintf("vlbc: %v: %s", e.Kind, e.Detail)
}

// Unwrap returns the sentinel error kind.
func (e *LoadError) Unwrap() error {
	return e.Kind
}

func loadErr(kind error, offset int, format string, args ...any) error {
	return &LoadError{Kind: kind, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}

// ---------------------------------------------------------------------------
// Loader / verifier
// ---------------------------------------------------------------------------

// imageReader walks a VLBC byte image.
type imageReader struct {
	data   []byte
	offset int
}

func (r *imageReader) remaining() int {
	return len(r.data) - r.offset
}

func (r *imageReader) readU8() (byte, error) {
	if r.offset >= len(r.data) {
		return 0, loadErr(ErrTruncated, r.offset, "expected 1 more byte")
	}
	b := r.data[r.offset]
	r.offset++
	return b, nil
}

func (r *imageReader) readU32() (uint32, error) {
	if r.offset+4 > len(r.data) {
		return 0, loadErr(ErrTruncated, r.offset, "expected 4 more bytes")
	}
	v := uint32(r.data[r.offset]) |
		uint32(r.data[r.offset+1])<<8 |
		uint32(r.data[r.offset+2])<<16 |
		uint32(r.data[r.offset+3])<<24
	r.offset += 4
	return v, nil
}

func (r *imageReader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.data) || r.offset+n < r.offset {
		return nil, loadErr(ErrTruncated, r.offset, "expected %d more bytes, have %d", n, r.remaining())
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

// LoadBytes parses and verifies a VLBC image, returning a ready-to-run
// Module. The image layout is:
//
//	magic:     "VLBC"          (4 bytes)
//	version:   u8              (currently 1)
//	kcount:    u32             little-endian
//	constants: {len:u32, bytes} x kcount
//	code_len:  u32
//	code:      u8 x code_len
//
// Every string-index, branch, and immediate operand in the code segment is
// validated here, so a verified Module cannot take the interpreter out of
// bounds. Trailing bytes after the code segment are rejected.
func LoadBytes(data []byte) (*Module, error) {
	r := &imageReader{data: data}

	magic, err := r.readBytes(4)
	if err != nil {
		return nil, err
	}
	if string(magic) != ImageMagic {
		return nil, loadErr(ErrBadMagic, 0, "got %q", magic)
	}

	version, err := r.readU8()
	if err != nil {
		return nil, err
	}
	if version != ImageVersion {
		return nil, loadErr(ErrUnsupportedVersion, 4, "version %d, expected %d", version, ImageVersion)
	}

	kcount, err := r.readU32()
	if err != nil {
		return nil, err
	}

	pool := NewPool()
	for i := uint32(0); i < kcount; i++ {
		length, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		b, err := r.readBytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		// Constants keep their image slot even when duplicated, so string
		// indices and the round-trip encoding stay intact. The intern index
		// keeps the first occurrence of each content.
		id := pool.Add(b)
		pool.Index(id)
	}

	codeLen, err := r.readU32()
	if err != nil {
		return nil, err
	}
	code, err := r.readBytes(int(codeLen))
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, loadErr(ErrBadOperand, r.offset, "%d trailing bytes after code segment", r.remaining())
	}

	if err := verifyCode(code, kcount); err != nil {
		return nil, err
	}

	return &Module{
		Consts:  pool,
		Code:    append([]byte(nil), code...),
		Version: version,
		kcount:  int(kcount),
	}, nil
}

// LoadFile reads path and loads it as a VLBC image.
func LoadFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vlbc: reading %s: %w", path, err)
	}
	return LoadBytes(data)
}

// verifyCode checks that every instruction decodes cleanly: known opcode,
// complete immediates, in-range constant indices, and branch targets inside
// [0, len(code)].
func verifyCode(code []byte, kcount uint32) error {
	r := NewReader(code)
	for r.HasMore() {
		at := r.Position()
		op, _ := r.ReadOpcode()
		info, ok := op.Info()
		if !ok {
			return loadErr(ErrBadOperand, at, "unknown opcode 0x%02X", byte(op))
		}

		switch info.Operand {
		case operandNone:

		case operandI64, operandF64:
			if _, ok := r.ReadU64(); !ok {
				return loadErr(ErrTruncated, at, "%s missing 8-byte immediate", info.Name)
			}

		case operandU8:
			if _, ok := r.ReadU8(); !ok {
				return loadErr(ErrTruncated, at, "%s missing immediate byte", info.Name)
			}

		case operandU32:
			if _, ok := r.ReadU32(); !ok {
				return loadErr(ErrTruncated, at, "%s missing 4-byte immediate", info.Name)
			}

		case operandStrIdx:
			idx, ok := r.ReadU32()
			if !ok {
				return loadErr(ErrTruncated, at, "%s missing constant index", info.Name)
			}
			if idx >= kcount {
				return loadErr(ErrBadIndex, at, "%s references constant %d of %d", info.Name, idx, kcount)
			}

		case operandBranch:
			offset, ok := r.ReadI32()
			if !ok {
				return loadErr(ErrTruncated, at, "%s missing branch offset", info.Name)
			}
			target := r.Position() + int(offset)
			if target < 0 || target > len(code) {
				return loadErr(ErrBadBranch, at, "%s target %d outside [0, %d]", info.Name, target, len(code))
			}

		case operandCallN:
			idx, ok := r.ReadU32()
			if !ok {
				return loadErr(ErrTruncated, at, "CALLN missing name index")
			}
			if idx >= kcount {
				return loadErr(ErrBadIndex, at, "CALLN references constant %d of %d", idx, kcount)
			}
			if _, ok := r.ReadU8(); !ok {
				return loadErr(ErrTruncated, at, "CALLN missing argc byte")
			}
		}
	}
	return nil
}
