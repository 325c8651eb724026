package vm

// ---------------------------------------------------------------------------
// Native dispatch
// ---------------------------------------------------------------------------

// NativeFn is a host function callable from bytecode via CALLN. Arguments
// arrive in source order (args[len(args)-1] was top of stack); the window
// is borrowed and must not be retained past the call. The returned value
// is pushed on success; a non-OK status aborts execution with that status.
//
// Natives run synchronously on the executing goroutine and must not call
// Run on the same Context.
type NativeFn func(ctx *Context, args []Value, userdata any) (Value, Status)

// Native is an entry in the Context's native registry.
type Native struct {
	Name     string
	Fn       NativeFn
	Userdata any
}

// RegisterNative binds name to fn in the Context's native registry,
// replacing any previous binding. The name is interned into the Context's
// pool; if a GC is attached, the key is tracked as a non-owned root.
func (c *Context) RegisterNative(name string, fn NativeFn, userdata any) {
	id := c.pool.InternString(name)
	c.natives.Put(id, Native{Name: name, Fn: fn, Userdata: userdata})
	if c.gc != nil {
		c.gc.track(id, false)
	}
}

// callNative resolves and invokes the native behind the pool string nameID
// with the argc values below the stack pointer. It pushes the result and
// reports the resulting status. The argument window is passed as a
// sub-slice of the stack; the slots are reused after the call returns.
func (c *Context) callNative(nameID StrID, argc int) Status {
	native, ok := c.natives.Get(nameID)
	if !ok {
		return c.fail(StatusRuntime, "unknown native %q", string(c.pool.Get(nameID).Bytes))
	}
	if c.sp < argc {
		return c.fail(StatusStackUnderflow, "CALLN %s needs %d arguments, stack has %d", native.Name, argc, c.sp)
	}

	args := c.stack[c.sp-argc : c.sp]
	c.tracef(TraceCall, "call %s/%d", native.Name, argc)

	ret, st := native.Fn(c, args, native.Userdata)
	if st != StatusOK {
		if c.lastErr.Status == StatusOK {
			// The native did not set a record itself.
			c.fail(st, "native %s: %s", native.Name, st)
		}
		return st
	}

	c.sp -= argc
	if st := c.push(ret); st != StatusOK {
		return st
	}
	if c.traceMask.Has(TraceCall) {
		c.tracef(TraceCall, "ret  %s -> %s", native.Name, Format(c.pool, ret))
	}
	return StatusOK
}
