// Package wire implements the content-addressed exchange format for
// VitteLight modules. A loaded Module travels as a CBOR chunk carrying its
// constants, code, and SHA-256 content hash; the receiver rebuilds and
// re-verifies the module and checks that the hash matches.
package wire

import "github.com/vittelang/vittelight/vm"

// Chunk is the atomic unit of module exchange.
type Chunk struct {
	Hash      [32]byte `cbor:"1,keyasint"`
	Version   uint8    `cbor:"2,keyasint"`
	Constants [][]byte `cbor:"3,keyasint,omitempty"`
	Code      []byte   `cbor:"4,keyasint"`
}

// FromModule captures m as a chunk.
func FromModule(m *vm.Module) *Chunk {
	return &Chunk{
		Hash:      m.Hash(),
		Version:   m.Version,
		Constants: m.Constants(),
		Code:      append([]byte(nil), m.Code...),
	}
}
