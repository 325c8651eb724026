package vm

import (
	"fmt"
	"math"
	"strconv"
)

// Value represents a VitteLight value as a tagged sum over the primitive
// kinds. String payloads are StrID handles into the owning Context's pool;
// the pool is needed for any operation that touches string bytes. Ptr
// values carry an opaque host pointer that the VM never dereferences.
type Value struct {
	kind Kind
	bits uint64 // int64 bits, float64 bits, bool 0/1, or StrID
	ptr  any    // payload for KindPtr only
}

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindPtr
)

var kindNames = [...]string{"nil", "bool", "int", "float", "string", "ptr"}

// String implements the Stringer interface.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Nil is the nil value.
var Nil = Value{}

// CompareUndef is returned by Compare for operands with no defined order.
const CompareUndef = -2

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// FromBool creates a boolean Value.
func FromBool(b bool) Value {
	var bits uint64
	if b {
		bits = 1
	}
	return Value{kind: KindBool, bits: bits}
}

// FromInt creates a 64-bit integer Value.
func FromInt(n int64) Value {
	return Value{kind: KindInt, bits: uint64(n)}
}

// FromFloat creates a 64-bit float Value.
func FromFloat(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

// FromStr creates a string Value from a pool handle.
func FromStr(id StrID) Value {
	return Value{kind: KindStr, bits: uint64(id)}
}

// FromPtr creates an opaque pointer Value. The VM never inspects the
// payload; it exists for hosts to thread their own handles through natives.
func FromPtr(p any) Value {
	return Value{kind: KindPtr, ptr: p}
}

// ---------------------------------------------------------------------------
// Type checking and accessors
// ---------------------------------------------------------------------------

// Kind returns the variant tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// IsBool returns true if v is a boolean.
func (v Value) IsBool() bool { return v.kind == KindBool }

// IsInt returns true if v is an integer.
func (v Value) IsInt() bool { return v.kind == KindInt }

// IsFloat returns true if v is a float.
func (v Value) IsFloat() bool { return v.kind == KindFloat }

// IsNumber returns true if v is an integer or a float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// IsStr returns true if v is a string handle.
func (v Value) IsStr() bool { return v.kind == KindStr }

// IsPtr returns true if v is an opaque pointer.
func (v Value) IsPtr() bool { return v.kind == KindPtr }

// Bool returns v as a bool. Panics if v is not a boolean.
func (v Value) Bool() bool {
	if v.kind != KindBool {
		panic("Value.Bool: not a boolean")
	}
	return v.bits != 0
}

// Int returns v as an int64. Panics if v is not an integer.
func (v Value) Int() int64 {
	if v.kind != KindInt {
		panic("Value.Int: not an integer")
	}
	return int64(v.bits)
}

// Float returns v as a float64. Panics if v is not a float.
func (v Value) Float() float64 {
	if v.kind != KindFloat {
		panic("Value.Float: not a float")
	}
	return math.Float64frombits(v.bits)
}

// Str returns v's pool handle. Panics if v is not a string.
func (v Value) Str() StrID {
	if v.kind != KindStr {
		panic("Value.Str: not a string")
	}
	return StrID(v.bits)
}

// Ptr returns v's opaque payload. Panics if v is not a pointer.
func (v Value) Ptr() any {
	if v.kind != KindPtr {
		panic("Value.Ptr: not a pointer")
	}
	return v.ptr
}

// AsInt returns v as an int64 if it is numeric. Floats truncate toward
// zero.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return int64(v.bits), true
	case KindFloat:
		return int64(math.Float64frombits(v.bits)), true
	}
	return 0, false
}

// AsFloat returns v as a float64 if it is numeric.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(int64(v.bits)), true
	case KindFloat:
		return math.Float64frombits(v.bits), true
	}
	return 0, false
}

// IsTruthy returns true if v is considered truthy: nil and false are
// falsy, everything else (including 0 and the empty string) is truthy.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.bits != 0
	}
	return true
}

// ---------------------------------------------------------------------------
// Equality and ordering
// ---------------------------------------------------------------------------

// Equal reports whether a and b are equal. Float comparison is bit-exact
// IEEE equality (NaN is unequal to itself). Int and Float cross-compare by
// promotion to float64. Strings compare by byte equality through pool.
// Unlike non-numeric kinds are never equal.
func Equal(pool *Pool, a, b Value) bool {
	if a.kind == b.kind {
		switch a.kind {
		case KindNil:
			return true
		case KindBool, KindInt:
			return a.bits == b.bits
		case KindFloat:
			return a.Float() == b.Float()
		case KindStr:
			return pool.Equal(a.Str(), b.Str())
		case KindPtr:
			return a.ptr == b.ptr
		}
		return false
	}
	if a.IsNumber() && b.IsNumber() {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		return af == bf
	}
	return false
}

// Compare orders a and b, returning -1, 0, or 1. Numbers cross-promote to
// float64; strings order by lexicographic byte comparison. Any other
// combination, including an unordered float pair with a NaN operand,
// yields CompareUndef.
func Compare(pool *Pool, a, b Value) int {
	if a.IsNumber() && b.IsNumber() {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		if math.IsNaN(af) || math.IsNaN(bf) {
			return CompareUndef
		}
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if a.IsStr() && b.IsStr() {
		sa, sb := pool.Get(a.Str()), pool.Get(b.Str())
		if sa == nil || sb == nil {
			return CompareUndef
		}
		switch {
		case string(sa.Bytes) < string(sb.Bytes):
			return -1
		case string(sa.Bytes) > string(sb.Bytes):
			return 1
		default:
			return 0
		}
	}
	return CompareUndef
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// Format returns the display form of v: nil, true/false, decimal integers,
// %g floats, raw string bytes, and an address form for pointers.
func Format(pool *Pool, v Value) string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindStr:
		if s := pool.Get(v.Str()); s != nil {
			return string(s.Bytes)
		}
		return "<released string>"
	case KindPtr:
		return fmt.Sprintf("<ptr %p>", v.ptr)
	}
	return "<invalid>"
}

// AppendJSON appends the JSON rendering of v to dst. Pointers render as
// null; non-finite floats render as null as well, since JSON has no
// encoding for them.
func AppendJSON(dst []byte, pool *Pool, v Value) []byte {
	switch v.kind {
	case KindBool:
		return strconv.AppendBool(dst, v.Bool())
	case KindInt:
		return strconv.AppendInt(dst, v.Int(), 10)
	case KindFloat:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return append(dst, "null"...)
		}
		return strconv.AppendFloat(dst, f, 'g', -1, 64)
	case KindStr:
		if s := pool.Get(v.Str()); s != nil {
			return strconv.AppendQuote(dst, string(s.Bytes))
		}
		return append(dst, "null"...)
	}
	return append(dst, "null"...)
}
