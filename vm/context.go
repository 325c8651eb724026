package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Execution context
// ---------------------------------------------------------------------------

// DefaultStackSize is the operand stack capacity when Config leaves it
// unset.
const DefaultStackSize = 1024

// State tracks where a Context is in its lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateHalted
	StateError
)

var stateNames = [...]string{"idle", "running", "halted", "error"}

// String implements the Stringer interface.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Config controls Context construction.
type Config struct {
	// StackSize is the operand stack capacity in slots. Zero means
	// DefaultStackSize. The stack does not grow; exceeding it is a
	// StackOverflow error.
	StackSize int

	// TraceSink receives trace output and PRINT results. Defaults to
	// os.Stderr.
	TraceSink io.Writer
}

// Context is a single-threaded execution instance: module, operand stack,
// globals, natives, trace state, and the optional GC. A Context must not
// be shared across goroutines; run independent Contexts for parallelism.
type Context struct {
	// ID identifies the context in diagnostics and store provenance.
	ID string

	module *Module
	pool   *Pool
	code   []byte

	ip    int
	stack []Value
	sp    int

	globals *Table[Value]
	natives *Table[Native]

	traceMask TraceMask
	traceSink io.Writer
	stepHook  StepHook
	stepData  any

	state   State
	lastErr ErrorRecord
	curOp   Opcode // opcode being executed, for error records
	curIP   int    // byte offset of curOp

	gc *GC
}

// NewContext creates an idle Context with no module attached.
func NewContext(cfg Config) *Context {
	stackSize := cfg.StackSize
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	sink := cfg.TraceSink
	if sink == nil {
		sink = os.Stderr
	}

	pool := NewPool()
	return &Context{
		ID:        uuid.NewString(),
		pool:      pool,
		stack:     make([]Value, stackSize),
		globals:   NewTable[Value](pool),
		natives:   NewTable[Native](pool),
		traceSink: sink,
	}
}

// Attach binds a Module to the Context and resets execution state. The
// Context adopts the Module's pool, so one Module attaches to one Context.
func (c *Context) Attach(m *Module) {
	c.module = m
	c.pool = m.Consts
	c.code = m.Code
	c.globals = NewTable[Value](c.pool)
	c.natives = NewTable[Native](c.pool)
	c.ip = 0
	c.sp = 0
	c.state = StateIdle
	c.lastErr = ErrorRecord{}
	if c.gc != nil {
		c.gc.rebind()
	}
}

// Module returns the attached module, or nil.
func (c *Context) Module() *Module {
	return c.module
}

// Pool returns the Context's string pool.
func (c *Context) Pool() *Pool {
	return c.pool
}

// State returns the lifecycle state.
func (c *Context) State() State {
	return c.state
}

// IP returns the current instruction pointer (byte offset into the code
// segment).
func (c *Context) IP() int {
	return c.ip
}

// StackDepth returns the number of values on the operand stack.
func (c *Context) StackDepth() int {
	return c.sp
}

// StackAt returns the stack slot at depth i (0 is the bottom).
func (c *Context) StackAt(i int) (Value, bool) {
	if i < 0 || i >= c.sp {
		return Nil, false
	}
	return c.stack[i], true
}

// LastError returns a snapshot of the most recent failure record.
func (c *Context) LastError() ErrorRecord {
	return c.lastErr
}

// SetTrace replaces the trace mask.
func (c *Context) SetTrace(mask TraceMask) {
	c.traceMask = mask
}

// TraceMask returns the current trace mask.
func (c *Context) TraceMask() TraceMask {
	return c.traceMask
}

// SetTraceSink redirects trace output.
func (c *Context) SetTraceSink(w io.Writer) {
	c.traceSink = w
}

// SetStepHook installs a hook invoked before every opcode. When both the
// hook and OP tracing are enabled, the hook runs first. Passing nil
// removes the hook.
func (c *Context) SetStepHook(fn StepHook, userdata any) {
	c.stepHook = fn
	c.stepData = userdata
}

// SetGlobal binds name to v in the globals table. The key is interned and,
// when a GC is attached, tracked as a non-owned root.
func (c *Context) SetGlobal(name string, v Value) {
	id := c.pool.InternString(name)
	c.globals.Put(id, v)
	if c.gc != nil {
		c.gc.track(id, false)
	}
}

// GetGlobal returns the value bound to name.
func (c *Context) GetGlobal(name string) (Value, bool) {
	id := c.pool.InternString(name)
	return c.globals.Get(id)
}

// NewString copies b into the pool as a transient heap string and returns
// its Value. When a GC is attached the string is registered, with
// ownership following the GC's ownership mode, and a collection may be
// triggered.
func (c *Context) NewString(b []byte) Value {
	id := c.pool.Add(b)
	if c.gc != nil {
		c.gc.registerAlloc(id)
	}
	return FromStr(id)
}

// StrBytes returns the bytes behind a string Value, or nil when v is not a
// string or its slot was released.
func (c *Context) StrBytes(v Value) []byte {
	if !v.IsStr() {
		return nil
	}
	if s := c.pool.Get(v.Str()); s != nil {
		return s.Bytes
	}
	return nil
}

// ---------------------------------------------------------------------------
// Internal stack and error helpers
// ---------------------------------------------------------------------------

// Fail records an error with the current opcode and IP. Natives use it to
// attach a specific message before returning a non-OK status.
func (c *Context) Fail(st Status, msg string) Status {
	return c.fail(st, "%s", msg)
}

// fail records the error and flips the Context into the error state.
// Opcode handlers report every failure through here; nothing panics.
func (c *Context) fail(st Status, format string, args ...any) Status {
	c.lastErr = ErrorRecord{
		Status: st,
		Op:     c.curOp,
		IP:     c.curIP,
		Msg:    fmt.Sprintf(format, args...),
	}
	c.state = StateError
	return st
}

func (c *Context) push(v Value) Status {
	if c.sp >= len(c.stack) {
		return c.fail(StatusStackOverflow, "stack capacity %d exceeded", len(c.stack))
	}
	c.stack[c.sp] = v
	c.sp++
	return StatusOK
}

func (c *Context) pop() (Value, Status) {
	if c.sp <= 0 {
		return Nil, c.fail(StatusStackUnderflow, "pop on empty stack")
	}
	c.sp--
	return c.stack[c.sp], StatusOK
}

func (c *Context) pop2() (Value, Value, Status) {
	if c.sp < 2 {
		return Nil, Nil, c.fail(StatusStackUnderflow, "need 2 operands, stack has %d", c.sp)
	}
	c.sp -= 2
	return c.stack[c.sp], c.stack[c.sp+1], StatusOK
}

func (c *Context) top() (Value, Status) {
	if c.sp <= 0 {
		return Nil, c.fail(StatusStackUnderflow, "top on empty stack")
	}
	return c.stack[c.sp-1], StatusOK
}
