package vm

import (
	"crypto/sha256"
	"encoding/binary"
)

// VLBC image constants.
const (
	ImageMagic   = "VLBC"
	ImageVersion = 1
)

// Module is an immutable bundle of constant pool and code segment produced
// by the loader. A Module attaches to exactly one Context; sharing code
// across contexts means loading the image again.
type Module struct {
	Consts  *Pool
	Code    []byte
	Version uint8

	kcount int // number of image constants; runtime pool growth sits above
}

// NewModule builds a Module from raw constants and a code segment,
// running the same verification as LoadBytes. The assembler and the wire
// codec build modules this way.
func NewModule(consts [][]byte, code []byte) (*Module, error) {
	pool := NewPool()
	for _, b := range consts {
		id := pool.Add(b)
		pool.Index(id)
	}
	if err := verifyCode(code, uint32(len(consts))); err != nil {
		return nil, err
	}
	return &Module{
		Consts:  pool,
		Code:    append([]byte(nil), code...),
		Version: ImageVersion,
		kcount:  len(consts),
	}, nil
}

// Constants returns copies of the image constants in pool order.
func (m *Module) Constants() [][]byte {
	out := make([][]byte, m.kcount)
	for i := 0; i < m.kcount; i++ {
		out[i] = append([]byte(nil), m.Consts.Get(StrID(i)).Bytes...)
	}
	return out
}

// ConstCount returns the number of constants declared by the image.
func (m *Module) ConstCount() int {
	return m.kcount
}

// ConstBytes returns the bytes of constant idx, or nil when out of range.
func (m *Module) ConstBytes(idx uint32) []byte {
	if int(idx) >= m.kcount {
		return nil
	}
	if s := m.Consts.Get(StrID(idx)); s != nil {
		return s.Bytes
	}
	return nil
}

// Encode serializes the module back to its canonical VLBC image. For a
// module produced by LoadBytes the result is byte-for-byte identical to
// the input image.
func (m *Module) Encode() []byte {
	size := 4 + 1 + 4 // magic, version, kcount
	for i := 0; i < m.kcount; i++ {
		size += 4 + len(m.Consts.Get(StrID(i)).Bytes)
	}
	size += 4 + len(m.Code)

	out := make([]byte, 0, size)
	out = append(out, ImageMagic...)
	out = append(out, m.Version)
	out = binary.LittleEndian.AppendUint32(out, uint32(m.kcount))
	for i := 0; i < m.kcount; i++ {
		b := m.Consts.Get(StrID(i)).Bytes
		out = binary.LittleEndian.AppendUint32(out, uint32(len(b)))
		out = append(out, b...)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(m.Code)))
	out = append(out, m.Code...)
	return out
}

// Hash returns the SHA-256 content hash of the canonical encoding. Modules
// with the same constants and code share a hash regardless of where they
// were loaded from.
func (m *Module) Hash() [32]byte {
	return sha256.Sum256(m.Encode())
}
