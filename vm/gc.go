package vm

// ---------------------------------------------------------------------------
// Mark-sweep collector for heap strings
// ---------------------------------------------------------------------------

// DefaultGCThreshold is the live-byte trigger when AttachGC is called with
// zero: 1 MiB.
const DefaultGCThreshold = 1 << 20

// strOverhead approximates the per-string bookkeeping cost counted on top
// of the payload bytes.
const strOverhead = 16

// GCStats is a snapshot of collector state.
type GCStats struct {
	Tracked int    // registered nodes, owned and non-owned
	Bytes   uint64 // sum of approx sizes over owned nodes
	Frees   uint64 // owned strings released since attach
}

type gcNode struct {
	marked bool
	owned  bool
	size   uint64
}

// GC is a precise, stop-the-world mark-sweep collector for heap strings
// created during execution. State is embedded per Context; the collector
// never touches another Context and never frees a non-owned node. Owned
// nodes may be released at sweep when no root reaches them.
type GC struct {
	ctx        *Context
	nodes      map[StrID]*gcNode
	bytes      uint64 // owned bytes currently tracked
	threshold  uint64
	frees      uint64
	ownStrings bool
}

// AttachGC associates a collector with the Context. triggerBytes of zero
// selects DefaultGCThreshold. Attaching twice replaces the previous
// collector state.
func (c *Context) AttachGC(triggerBytes uint64) *GC {
	if triggerBytes == 0 {
		triggerBytes = DefaultGCThreshold
	}
	c.gc = &GC{
		ctx:       c,
		nodes:     make(map[StrID]*gcNode),
		threshold: triggerBytes,
	}
	return c.gc
}

// GC returns the attached collector, or nil.
func (c *Context) GC() *GC {
	return c.gc
}

// rebind resets node state after a new module pool is adopted.
func (gc *GC) rebind() {
	gc.nodes = make(map[StrID]*gcNode)
	gc.bytes = 0
}

// SetOwnership controls the default ownership of future registrations.
// When true, strings registered by allocation may be freed at sweep.
func (gc *GC) SetOwnership(own bool) {
	gc.ownStrings = own
}

// Register records id in the node set with the current ownership mode.
// Registrations are deduplicated; a node registered both non-owned and
// owned resolves to owned.
func (gc *GC) Register(id StrID) {
	gc.track(id, gc.ownStrings)
}

// track adds or upgrades a node. Ownership is sticky: once owned, always
// owned.
func (gc *GC) track(id StrID, owned bool) {
	s := gc.ctx.pool.Get(id)
	if s == nil {
		return
	}
	if n, ok := gc.nodes[id]; ok {
		if owned && !n.owned {
			n.owned = true
			gc.bytes += n.size
		}
		return
	}
	n := &gcNode{owned: owned, size: uint64(len(s.Bytes)) + strOverhead}
	gc.nodes[id] = n
	if owned {
		gc.bytes += n.size
	}
}

// registerAlloc is the interpreter-side registration path: track the new
// string, then collect if the owned-byte count crossed the threshold. The
// new string is not reachable from any root yet, so the triggered cycle
// pins it; the caller pushes it right after. The threshold doubles after
// a triggered collection, with a 1 MiB floor.
func (gc *GC) registerAlloc(id StrID) {
	gc.track(id, gc.ownStrings)
	if gc.bytes > gc.threshold {
		gc.collect(id, true)
		gc.threshold *= 2
		if gc.threshold < DefaultGCThreshold {
			gc.threshold = DefaultGCThreshold
		}
	}
}

// Preindex bulk-registers every string currently reachable from the pool
// constants, the globals (keys and values), the native registry keys, and
// the stack, all as non-owned nodes.
func (gc *GC) Preindex() {
	c := gc.ctx
	if c.module != nil {
		for i := 0; i < c.module.kcount; i++ {
			gc.track(StrID(i), false)
		}
	}
	c.globals.Range(func(key StrID, val Value) bool {
		gc.track(key, false)
		if val.IsStr() {
			gc.track(val.Str(), false)
		}
		return true
	})
	c.natives.Range(func(key StrID, _ Native) bool {
		gc.track(key, false)
		return true
	})
	for i := 0; i < c.sp; i++ {
		if c.stack[i].IsStr() {
			gc.track(c.stack[i].Str(), false)
		}
	}
}

// Collect runs a full mark phase from the roots, then sweeps. Roots are
// the operand stack, global keys and values, the module's constant pool,
// and native registry keys. Owned unmarked nodes are released from the
// pool and their size leaves the live-byte counter; non-owned nodes are
// only tracked and survive regardless. Collect cannot fail.
func (gc *GC) Collect() {
	gc.collect(0, false)
}

// collect is the mark-sweep cycle. When pin is set, pinned is treated as
// an extra root for this cycle only.
func (gc *GC) collect(pinned StrID, pin bool) {
	c := gc.ctx

	for _, n := range gc.nodes {
		n.marked = false
	}

	mark := func(id StrID) {
		if n, ok := gc.nodes[id]; ok {
			n.marked = true
		}
	}

	if pin {
		mark(pinned)
	}
	for i := 0; i < c.sp; i++ {
		if c.stack[i].IsStr() {
			mark(c.stack[i].Str())
		}
	}
	c.globals.Range(func(key StrID, val Value) bool {
		mark(key)
		if val.IsStr() {
			mark(val.Str())
		}
		return true
	})
	c.natives.Range(func(key StrID, _ Native) bool {
		mark(key)
		return true
	})
	if c.module != nil {
		for i := 0; i < c.module.kcount; i++ {
			mark(StrID(i))
		}
	}

	for id, n := range gc.nodes {
		if n.marked || !n.owned {
			continue
		}
		c.pool.Release(id)
		gc.bytes -= n.size
		gc.frees++
		delete(gc.nodes, id)
	}
}

// Stats returns a snapshot of collector counters.
func (gc *GC) Stats() GCStats {
	return GCStats{Tracked: len(gc.nodes), Bytes: gc.bytes, Frees: gc.frees}
}
