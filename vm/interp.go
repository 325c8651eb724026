package vm

import (
	"encoding/binary"
	"io"
	"math"
	"math/bits"
)

// ---------------------------------------------------------------------------
// Interpreter: fetch-decode-execute loop
// ---------------------------------------------------------------------------

// Run executes the attached module until HALT, until the code segment is
// exhausted (implicit HALT), until maxSteps opcodes have executed, or
// until an error. maxSteps of zero means unlimited.
//
// StatusCancelled is a resumable condition: IP and stack are preserved and
// a subsequent Run continues where the budget ran out. Any other non-OK
// status leaves the Context in the error state with a LastError record.
func (c *Context) Run(maxSteps uint64) Status {
	if c.module == nil {
		return c.fail(StatusBadArg, "no module attached")
	}
	if c.state == StateError {
		return c.lastErr.Status
	}
	c.state = StateRunning
	c.lastErr = ErrorRecord{}

	var steps uint64
	for {
		if c.ip >= len(c.code) {
			// Implicit HALT at end of code.
			c.state = StateHalted
			return StatusOK
		}
		if maxSteps > 0 && steps >= maxSteps {
			c.state = StateIdle
			c.lastErr = ErrorRecord{Status: StatusCancelled, Op: Opcode(c.code[c.ip]), IP: c.ip,
				Msg: "step budget exhausted"}
			return StatusCancelled
		}
		steps++

		c.curIP = c.ip
		op := Opcode(c.code[c.ip])
		c.curOp = op
		c.ip++

		// Hook runs before trace by contract.
		if c.stepHook != nil {
			c.stepHook(c, op, c.stepData)
		}
		c.tracef(TraceOp, "ip=%04d %s", c.curIP, op.Name())

		if st := c.step(op); st != StatusOK {
			return st
		}
		c.traceStack()

		if c.state == StateHalted {
			return StatusOK
		}
	}
}

// step executes a single decoded opcode. The IP has already advanced past
// the opcode byte; operand decoding advances it further, so a handler that
// does nothing still makes forward progress.
func (c *Context) step(op Opcode) Status {
	switch op {
	// --- Control ---
	case OpHalt:
		c.state = StateHalted
		return StatusOK

	case OpNop:
		return StatusOK

	case OpBreak:
		// The step hook already fired for this opcode; BREAK exists so
		// images can force a hook observation point.
		return StatusOK

	// --- Stack ---
	case OpPushI:
		v := c.operandU64()
		return c.push(FromInt(int64(v)))

	case OpPushF:
		v := c.operandU64()
		return c.push(FromFloat(math.Float64frombits(v)))

	case OpPushS:
		idx := c.operandU32()
		return c.push(FromStr(StrID(idx)))

	case OpPushNil:
		return c.push(Nil)

	case OpPushBool:
		b := c.operandU8()
		return c.push(FromBool(b != 0))

	case OpPop:
		_, st := c.pop()
		return st

	case OpDup:
		v, st := c.top()
		if st != StatusOK {
			return st
		}
		return c.push(v)

	case OpSwap:
		if c.sp < 2 {
			return c.fail(StatusStackUnderflow, "SWAP needs 2 operands, stack has %d", c.sp)
		}
		c.stack[c.sp-1], c.stack[c.sp-2] = c.stack[c.sp-2], c.stack[c.sp-1]
		return StatusOK

	// --- Arithmetic ---
	case OpAdd, OpSub, OpMul:
		return c.arith(op)

	case OpDiv:
		return c.divide()

	case OpMod:
		return c.modulo()

	case OpNeg:
		return c.negate()

	// --- Comparison ---
	case OpEq, OpNe:
		a, b, st := c.pop2()
		if st != StatusOK {
			return st
		}
		eq := Equal(c.pool, a, b)
		if op == OpNe {
			eq = !eq
		}
		return c.push(FromBool(eq))

	case OpLt, OpLe, OpGt, OpGe:
		a, b, st := c.pop2()
		if st != StatusOK {
			return st
		}
		ok, st := c.ordered(op, a, b)
		if st != StatusOK {
			return st
		}
		return c.push(FromBool(ok))

	// --- Logic ---
	case OpAnd, OpOr, OpXor:
		a, b, st := c.pop2()
		if st != StatusOK {
			return st
		}
		at, bt := a.IsTruthy(), b.IsTruthy()
		var r bool
		switch op {
		case OpAnd:
			r = at && bt
		case OpOr:
			r = at || bt
		case OpXor:
			r = at != bt
		}
		return c.push(FromBool(r))

	case OpNot:
		v, st := c.pop()
		if st != StatusOK {
			return st
		}
		return c.push(FromBool(!v.IsTruthy()))

	// --- Branches ---
	case OpJump:
		offset := c.operandI32()
		c.ip += int(offset)
		return StatusOK

	case OpJz, OpJnz:
		offset := c.operandI32()
		v, st := c.pop()
		if st != StatusOK {
			return st
		}
		if v.IsTruthy() == (op == OpJnz) {
			c.ip += int(offset)
		}
		return StatusOK

	case OpJlt, OpJle, OpJgt, OpJge:
		offset := c.operandI32()
		a, b, st := c.pop2()
		if st != StatusOK {
			return st
		}
		var cmpOp Opcode
		switch op {
		case OpJlt:
			cmpOp = OpLt
		case OpJle:
			cmpOp = OpLe
		case OpJgt:
			cmpOp = OpGt
		case OpJge:
			cmpOp = OpGe
		}
		take, st := c.ordered(cmpOp, a, b)
		if st != StatusOK {
			return st
		}
		if take {
			c.ip += int(offset)
		}
		return StatusOK

	// --- Calls ---
	case OpCallN:
		nameIdx := c.operandU32()
		argc := c.operandU8()
		return c.callNative(StrID(nameIdx), int(argc))

	case OpRet:
		// No VLBC-level call frames in the minimal core: returning from
		// the top-level activation halts the context.
		c.state = StateHalted
		return StatusOK

	// --- Globals ---
	case OpGetGlobal:
		idx := c.operandU32()
		v, _ := c.globals.Get(StrID(idx))
		if c.traceMask.Has(TraceGlobal) {
			c.tracef(TraceGlobal, "get %s -> %s", string(c.pool.Get(StrID(idx)).Bytes), Format(c.pool, v))
		}
		return c.push(v)

	case OpSetGlobal:
		idx := c.operandU32()
		v, st := c.pop()
		if st != StatusOK {
			return st
		}
		c.globals.Put(StrID(idx), v)
		if c.gc != nil {
			c.gc.track(StrID(idx), false)
		}
		if c.traceMask.Has(TraceGlobal) {
			c.tracef(TraceGlobal, "set %s = %s", string(c.pool.Get(StrID(idx)).Bytes), Format(c.pool, v))
		}
		return StatusOK

	// --- Diagnostics ---
	case OpTrace:
		c.tracef(TraceOp, "trace ip=%04d sp=%d state=%s", c.curIP, c.sp, c.state)
		return StatusOK

	case OpPrint:
		// The operand is popped regardless of the mask; only emission is
		// gated, so the stack effect does not depend on trace settings.
		v, st := c.pop()
		if st != StatusOK {
			return st
		}
		if c.traceMask.Has(TraceOp) && c.traceSink != nil {
			if _, err := io.WriteString(c.traceSink, Format(c.pool, v)+"\n"); err != nil {
				return c.fail(StatusIO, "PRINT sink: %v", err)
			}
		}
		return StatusOK

	case OpDumpStack:
		c.traceStack()
		return StatusOK

	// --- Reserved ---
	case OpCall, OpGetLocal, OpSetLocal, OpNewTable,
		OpGetField, OpSetField, OpGetIndex, OpSetIndex:
		return c.fail(StatusBadOpcode, "reserved opcode %s", op.Name())
	}

	return c.fail(StatusBadOpcode, "unknown opcode 0x%02X", byte(op))
}

// ---------------------------------------------------------------------------
// Operand decoding
// ---------------------------------------------------------------------------

// The loader verified that every immediate is present, so operand reads
// cannot run off the code segment.

func (c *Context) operandU8() byte {
	b := c.code[c.ip]
	c.ip++
	return b
}

func (c *Context) operandU32() uint32 {
	v := binary.LittleEndian.Uint32(c.code[c.ip:])
	c.ip += 4
	return v
}

func (c *Context) operandI32() int32 {
	return int32(c.operandU32())
}

func (c *Context) operandU64() uint64 {
	v := binary.LittleEndian.Uint64(c.code[c.ip:])
	c.ip += 8
	return v
}

// ---------------------------------------------------------------------------
// Arithmetic helpers
// ---------------------------------------------------------------------------

// arith implements ADD, SUB, and MUL. Two Ints use checked arithmetic and
// promote to Float on overflow; mixed numeric operands promote to Float.
// ADD on two strings concatenates into a new heap string.
func (c *Context) arith(op Opcode) Status {
	a, b, st := c.pop2()
	if st != StatusOK {
		return st
	}

	if op == OpAdd && a.IsStr() && b.IsStr() {
		sa, sb := c.pool.Get(a.Str()), c.pool.Get(b.Str())
		if sa == nil || sb == nil {
			return c.fail(StatusBadBytecode, "ADD on released string")
		}
		cat := make([]byte, 0, len(sa.Bytes)+len(sb.Bytes))
		cat = append(cat, sa.Bytes...)
		cat = append(cat, sb.Bytes...)
		return c.push(c.NewString(cat))
	}

	if a.IsInt() && b.IsInt() {
		x, y := a.Int(), b.Int()
		if r, ok := checkedOp(op, x, y); ok {
			return c.push(FromInt(r))
		}
		// Overflow promotes both operands to float.
		return c.push(FromFloat(floatOp(op, float64(x), float64(y))))
	}

	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if !aok || !bok {
		return c.fail(StatusType, "%s on %s and %s", op.Name(), a.Kind(), b.Kind())
	}
	return c.push(FromFloat(floatOp(op, af, bf)))
}

func checkedOp(op Opcode, x, y int64) (int64, bool) {
	switch op {
	case OpAdd:
		r := x + y
		if (x > 0 && y > 0 && r < 0) || (x < 0 && y < 0 && r >= 0) {
			return 0, false
		}
		return r, true
	case OpSub:
		r := x - y
		if (x >= 0 && y < 0 && r < 0) || (x < 0 && y > 0 && r >= 0) {
			return 0, false
		}
		return r, true
	case OpMul:
		if x == 0 || y == 0 {
			return 0, true
		}
		hi, lo := bits.Mul64(mag64(x), mag64(y))
		limit := uint64(math.MaxInt64)
		if (x < 0) != (y < 0) {
			limit++ // MinInt64 is representable
		}
		if hi != 0 || lo > limit {
			return 0, false
		}
		return x * y, true
	}
	return 0, false
}

// mag64 returns |x| as an unsigned magnitude; correct for MinInt64.
func mag64(x int64) uint64 {
	if x < 0 {
		return uint64(-uint64(x))
	}
	return uint64(x)
}

func floatOp(op Opcode, x, y float64) float64 {
	switch op {
	case OpAdd:
		return x + y
	case OpSub:
		return x - y
	case OpMul:
		return x * y
	}
	return math.NaN()
}

// divide implements DIV: always a float result; division by zero is a
// runtime error.
func (c *Context) divide() Status {
	a, b, st := c.pop2()
	if st != StatusOK {
		return st
	}
	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if !aok || !bok {
		return c.fail(StatusType, "DIV on %s and %s", a.Kind(), b.Kind())
	}
	if bf == 0 {
		return c.fail(StatusRuntime, "division by zero")
	}
	return c.push(FromFloat(af / bf))
}

// modulo implements MOD: integer-only; modulo by zero is a runtime error.
func (c *Context) modulo() Status {
	a, b, st := c.pop2()
	if st != StatusOK {
		return st
	}
	if !a.IsInt() || !b.IsInt() {
		return c.fail(StatusType, "MOD on %s and %s", a.Kind(), b.Kind())
	}
	if b.Int() == 0 {
		return c.fail(StatusRuntime, "modulo by zero")
	}
	return c.push(FromInt(a.Int() % b.Int()))
}

// negate implements NEG with the same overflow promotion as SUB.
func (c *Context) negate() Status {
	v, st := c.pop()
	if st != StatusOK {
		return st
	}
	switch {
	case v.IsInt():
		n := v.Int()
		if n == math.MinInt64 {
			return c.push(FromFloat(-float64(n)))
		}
		return c.push(FromInt(-n))
	case v.IsFloat():
		return c.push(FromFloat(-v.Float()))
	}
	return c.fail(StatusType, "NEG on %s", v.Kind())
}

// ordered evaluates LT/LE/GT/GE over a and b. Strings order by byte
// comparison; a string against a non-string is a type error, as is any
// pair Compare cannot order.
func (c *Context) ordered(op Opcode, a, b Value) (bool, Status) {
	cmp := Compare(c.pool, a, b)
	if cmp == CompareUndef {
		return false, c.fail(StatusType, "%s on %s and %s", op.Name(), a.Kind(), b.Kind())
	}
	switch op {
	case OpLt:
		return cmp < 0, StatusOK
	case OpLe:
		return cmp <= 0, StatusOK
	case OpGt:
		return cmp > 0, StatusOK
	case OpGe:
		return cmp >= 0, StatusOK
	}
	return false, c.fail(StatusBadOpcode, "ordered called with %s", op.Name())
}
