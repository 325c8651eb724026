package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Tracing
// ---------------------------------------------------------------------------

// TraceMask selects which diagnostic streams the interpreter emits to the
// trace sink.
type TraceMask uint32

const (
	TraceOp     TraceMask = 1 << iota // one line per executed opcode
	TraceStack                        // stack snapshot after each opcode
	TraceGlobal                       // global reads and writes
	TraceCall                         // native call entry and result

	TraceAll = TraceOp | TraceStack | TraceGlobal | TraceCall
)

// Has returns true if mask enables bit.
func (m TraceMask) Has(bit TraceMask) bool {
	return m&bit != 0
}

// String renders the mask in the comma-separated form ParseTraceMask
// accepts.
func (m TraceMask) String() string {
	if m == 0 {
		return "none"
	}
	if m == TraceAll {
		return "all"
	}
	var parts []string
	if m.Has(TraceOp) {
		parts = append(parts, "op")
	}
	if m.Has(TraceStack) {
		parts = append(parts, "stack")
	}
	if m.Has(TraceGlobal) {
		parts = append(parts, "global")
	}
	if m.Has(TraceCall) {
		parts = append(parts, "call")
	}
	return strings.Join(parts, ",")
}

// ParseTraceMask parses a comma-separated list of trace stream names:
// "op", "stack", "global", "call", or "all". The empty string and "none"
// parse to the zero mask.
func ParseTraceMask(s string) (TraceMask, error) {
	var mask TraceMask
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(part)) {
		case "", "none":
		case "op":
			mask |= TraceOp
		case "stack":
			mask |= TraceStack
		case "global":
			mask |= TraceGlobal
		case "call":
			mask |= TraceCall
		case "all":
			mask |= TraceAll
		default:
			return 0, fmt.Errorf("unknown trace stream %q", strings.TrimSpace(part))
		}
	}
	return mask, nil
}

// StepHook is invoked before each opcode executes. Hooks run synchronously
// on the executing goroutine and must not call Run on the same Context;
// reentrancy is forbidden and its behavior undefined.
type StepHook func(ctx *Context, op Opcode, userdata any)

// tracef writes one formatted line to the trace sink when the given stream
// is enabled.
func (c *Context) tracef(bit TraceMask, format string, args ...any) {
	if c.traceMask.Has(bit) && c.traceSink != nil {
		fmt.Fprintf(c.traceSink, format+"\n", args...)
	}
}

// traceStack emits the whole operand stack, bottom first.
func (c *Context) traceStack() {
	if !c.traceMask.Has(TraceStack) || c.traceSink == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString("stack [")
	for i := 0; i < c.sp; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(Format(c.pool, c.stack[i]))
	}
	sb.WriteString("]")
	fmt.Fprintln(c.traceSink, sb.String())
}
