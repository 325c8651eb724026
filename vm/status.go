package vm

import "fmt"

// ---------------------------------------------------------------------------
// Status codes and error records
// ---------------------------------------------------------------------------

// Status is the result of running bytecode or calling a native.
type Status uint8

const (
	StatusOK Status = iota
	StatusBadArg         // wrong kind or count of arguments to an API or native
	StatusType           // runtime type mismatch during an opcode
	StatusRuntime        // dynamic failure (division by zero, unknown native)
	StatusBadBytecode    // malformed image or out-of-range operand after load
	StatusBadOpcode      // unknown or reserved opcode byte
	StatusStackOverflow  // operand stack exceeded capacity
	StatusStackUnderflow // opcode needed more operands than present
	StatusOOM            // allocation failure
	StatusIO             // host I/O failure reported by a native
	StatusCancelled      // step budget exhausted without HALT
)

var statusNames = map[Status]string{
	StatusOK:             "ok",
	StatusBadArg:         "bad argument",
	StatusType:           "type error",
	StatusRuntime:        "runtime error",
	StatusBadBytecode:    "bad bytecode",
	StatusBadOpcode:      "bad opcode",
	StatusStackOverflow:  "stack overflow",
	StatusStackUnderflow: "stack underflow",
	StatusOOM:            "out of memory",
	StatusIO:             "i/o error",
	StatusCancelled:      "cancelled",
}

// String implements the Stringer interface.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// OK returns true for StatusOK.
func (s Status) OK() bool {
	return s == StatusOK
}

// ErrorRecord is a snapshot of the most recent execution failure. It is
// retained on the Context so tooling can inspect it without unwinding.
type ErrorRecord struct {
	Status Status
	Op     Opcode // opcode being executed when the failure occurred
	IP     int    // byte offset of that opcode
	Msg    string
}

// Error implements the error interface. The message includes the mnemonic
// of the current opcode and the byte IP, per the diagnostic contract. The
// receiver is a value so a record returned by LastError satisfies error
// directly.
func (e ErrorRecord) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s at ip=%d: %s", e.Op.Name(), e.IP, e.Status)
	}
	return fmt.Sprintf("%s at ip=%d: %s", e.Op.Name(), e.IP, e.Msg)
}
