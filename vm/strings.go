package vm

// ---------------------------------------------------------------------------
// Interned strings and the string pool
// ---------------------------------------------------------------------------

// StrID is a handle into a Pool. Values carry StrIDs rather than byte
// slices; two handles from the same pool that compare equal refer to the
// same bytes.
type StrID uint32

// Str is an immutable, binary-safe byte string with a precomputed hash.
// Payloads may contain NUL bytes; the length is always explicit.
type Str struct {
	Bytes []byte
	Hash  uint32
}

// FNV-1a constants.
const (
	fnvOffset uint32 = 2166136261
	fnvPrime  uint32 = 16777619
)

// HashBytes computes the 32-bit FNV-1a hash of b. A result of zero is
// remapped to 1 so that zero can serve as the empty-slot marker in tables.
func HashBytes(b []byte) uint32 {
	h := fnvOffset
	for _, c := range b {
		h ^= uint32(c)
		h *= fnvPrime
	}
	if h == 0 {
		h = 1
	}
	return h
}

// poolSlot states for the intern index.
const (
	poolSlotEmpty uint32 = 0xFFFFFFFF
)

// Pool owns a set of strings and hands out stable StrIDs. Constants are
// appended by the loader; runtime strings are interned (literals) or added
// as transient heap strings (concatenations, native results).
type Pool struct {
	strs []*Str
	free []StrID // released slots available for reuse

	// Open-addressed intern index: maps content to the first StrID that
	// carries it. Transient strings are not indexed.
	slots []StrID
	live  int
}

// NewPool creates an empty string pool.
func NewPool() *Pool {
	slots := make([]StrID, 16)
	for i := range slots {
		slots[i] = StrID(poolSlotEmpty)
	}
	return &Pool{slots: slots}
}

// Len returns the number of slots in the pool, including released ones.
func (p *Pool) Len() int {
	return len(p.strs)
}

// Get returns the string for id, or nil if the slot was released.
func (p *Pool) Get(id StrID) *Str {
	if int(id) >= len(p.strs) {
		return nil
	}
	return p.strs[id]
}

// append places s in the next free slot and returns its id.
func (p *Pool) append(s *Str) StrID {
	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		p.strs[id] = s
		return id
	}
	p.strs = append(p.strs, s)
	return StrID(len(p.strs) - 1)
}

// Add appends a copy of b to the pool without indexing it for interning.
// Used for loader constants (which must keep their image order even when
// duplicated) and for transient heap strings.
func (p *Pool) Add(b []byte) StrID {
	s := &Str{Bytes: append([]byte(nil), b...), Hash: HashBytes(b)}
	return p.append(s)
}

// Index registers id in the intern index if no equal content is present.
// The first registration for a given content wins.
func (p *Pool) Index(id StrID) {
	s := p.strs[id]
	if s == nil {
		return
	}
	if _, ok := p.lookup(s.Hash, s.Bytes); ok {
		return
	}
	p.insert(id, s.Hash)
}

// Intern returns the id of a pool string byte-equal to b, appending and
// indexing a new one on miss.
func (p *Pool) Intern(b []byte) StrID {
	h := HashBytes(b)
	if id, ok := p.lookup(h, b); ok {
		return id
	}
	id := p.Add(b)
	p.insert(id, h)
	return id
}

// InternString is Intern for Go strings.
func (p *Pool) InternString(s string) StrID {
	return p.Intern([]byte(s))
}

// Release drops the bytes for id and recycles the slot. The caller (the
// GC sweep) guarantees no live reference remains. Indexed strings are
// removed from the intern index first.
func (p *Pool) Release(id StrID) {
	s := p.strs[id]
	if s == nil {
		return
	}
	p.remove(id, s.Hash)
	p.strs[id] = nil
	p.free = append(p.free, id)
}

// Equal reports whether the strings behind a and b are byte-equal.
// Identical handles short-circuit without touching the bytes.
func (p *Pool) Equal(a, b StrID) bool {
	if a == b {
		return true
	}
	sa, sb := p.Get(a), p.Get(b)
	if sa == nil || sb == nil {
		return false
	}
	if sa.Hash != sb.Hash || len(sa.Bytes) != len(sb.Bytes) {
		return false
	}
	return string(sa.Bytes) == string(sb.Bytes)
}

// ---------------------------------------------------------------------------
// Intern index internals (open addressing, linear probing)
// ---------------------------------------------------------------------------

func (p *Pool) lookup(h uint32, b []byte) (StrID, bool) {
	mask := uint32(len(p.slots) - 1)
	i := h & mask
	for n := 0; n < len(p.slots); n++ {
		id := p.slots[i]
		if id == StrID(poolSlotEmpty) {
			return 0, false
		}
		s := p.strs[id]
		if s != nil && s.Hash == h && string(s.Bytes) == string(b) {
			return id, true
		}
		i = (i + 1) & mask
	}
	return 0, false
}

func (p *Pool) insert(id StrID, h uint32) {
	if (p.live+1)*4 >= len(p.slots)*3 {
		p.grow()
	}
	mask := uint32(len(p.slots) - 1)
	i := h & mask
	for p.slots[i] != StrID(poolSlotEmpty) {
		i = (i + 1) & mask
	}
	p.slots[i] = id
	p.live++
}

func (p *Pool) remove(id StrID, h uint32) {
	mask := uint32(len(p.slots) - 1)
	i := h & mask
	for n := 0; n < len(p.slots); n++ {
		cur := p.slots[i]
		if cur == StrID(poolSlotEmpty) {
			return
		}
		if cur == id {
			// Rebuild the cluster rather than keeping tombstones; the
			// index population is small and removals only happen at sweep.
			p.slots[i] = StrID(poolSlotEmpty)
			p.live--
			j := (i + 1) & mask
			for p.slots[j] != StrID(poolSlotEmpty) {
				moved := p.slots[j]
				p.slots[j] = StrID(poolSlotEmpty)
				p.live--
				p.insert(moved, p.strs[moved].Hash)
				j = (j + 1) & mask
			}
			return
		}
		i = (i + 1) & mask
	}
}

func (p *Pool) grow() {
	old := p.slots
	p.slots = make([]StrID, len(old)*2)
	for i := range p.slots {
		p.slots[i] = StrID(poolSlotEmpty)
	}
	p.live = 0
	for _, id := range old {
		if id != StrID(poolSlotEmpty) {
			p.insert(id, p.strs[id].Hash)
		}
	}
}
