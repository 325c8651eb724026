package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/vittelang/vittelight/vm"
)

// ErrHashMismatch indicates a chunk whose content does not hash to its
// declared hash.
var ErrHashMismatch = errors.New("chunk hash mismatch")

// cborEncMode uses canonical options so equal chunks encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Chunk to CBOR bytes.
func Marshal(c *Chunk) ([]byte, error) {
	return cborEncMode.Marshal(c)
}

// Unmarshal deserializes a Chunk from CBOR bytes.
func Unmarshal(data []byte) (*Chunk, error) {
	var c Chunk
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("wire: unmarshal chunk: %w", err)
	}
	return &c, nil
}

// Module rebuilds and verifies the module carried by the chunk. The code
// segment goes through the same verification as a loaded image, and the
// rebuilt module must hash to the declared content hash.
func (c *Chunk) Module() (*vm.Module, error) {
	if c.Version != vm.ImageVersion {
		return nil, fmt.Errorf("wire: unsupported chunk version %d", c.Version)
	}
	m, err := vm.NewModule(c.Constants, c.Code)
	if err != nil {
		return nil, fmt.Errorf("wire: rebuilding module: %w", err)
	}
	if m.Hash() != c.Hash {
		return nil, ErrHashMismatch
	}
	return m, nil
}
