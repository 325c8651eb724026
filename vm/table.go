package vm

// ---------------------------------------------------------------------------
// Table: open-addressed map keyed by pool strings
// ---------------------------------------------------------------------------

// Slot states. Deleted slots leave a tombstone so probe chains stay intact
// until the next rehash.
type slotState uint8

const (
	slotEmpty slotState = iota
	slotLive
	slotTombstone
)

type tableSlot[V any] struct {
	state slotState
	key   StrID
	val   V
}

// Table is an open-addressed hash map with linear probing and tombstone
// deletion, keyed by StrID handles into a Pool. The capacity is always a
// power of two; a rehash is triggered when live entries plus tombstones
// reach three quarters of capacity. It backs the globals and natives
// registries of a Context.
type Table[V any] struct {
	pool  *Pool
	slots []tableSlot[V]
	live  int
	used  int // live + tombstones
}

// NewTable creates an empty table whose keys resolve through pool.
func NewTable[V any](pool *Pool) *Table[V] {
	return &Table[V]{
		pool:  pool,
		slots: make([]tableSlot[V], 16),
	}
}

// Len returns the number of live entries.
func (t *Table[V]) Len() int {
	return t.live
}

// keyHash returns the precomputed hash for a key.
func (t *Table[V]) keyHash(key StrID) uint32 {
	if s := t.pool.Get(key); s != nil {
		return s.Hash
	}
	return 1
}

// keyEqual compares two keys, short-circuiting on handle identity.
func (t *Table[V]) keyEqual(a, b StrID) bool {
	return t.pool.Equal(a, b)
}

// Put inserts or overwrites the entry for key. It reports whether an
// existing entry was overwritten.
func (t *Table[V]) Put(key StrID, val V) bool {
	if t.used*4 >= len(t.slots)*3 {
		t.rehash()
	}
	mask := uint32(len(t.slots) - 1)
	i := t.keyHash(key) & mask
	firstTomb := -1
	for {
		s := &t.slots[i]
		switch s.state {
		case slotEmpty:
			if firstTomb >= 0 {
				s = &t.slots[firstTomb]
			} else {
				t.used++
			}
			s.state = slotLive
			s.key = key
			s.val = val
			t.live++
			return false
		case slotTombstone:
			if firstTomb < 0 {
				firstTomb = int(i)
			}
		case slotLive:
			if t.keyEqual(s.key, key) {
				s.val = val
				return true
			}
		}
		i = (i + 1) & mask
	}
}

// Get returns the value for key, probing until a match, an empty slot, or
// a full loop.
func (t *Table[V]) Get(key StrID) (V, bool) {
	var zero V
	mask := uint32(len(t.slots) - 1)
	i := t.keyHash(key) & mask
	for n := 0; n < len(t.slots); n++ {
		s := &t.slots[i]
		switch s.state {
		case slotEmpty:
			return zero, false
		case slotLive:
			if t.keyEqual(s.key, key) {
				return s.val, true
			}
		}
		i = (i + 1) & mask
	}
	return zero, false
}

// Del removes the entry for key, leaving a tombstone. It reports whether
// an entry was removed.
func (t *Table[V]) Del(key StrID) bool {
	mask := uint32(len(t.slots) - 1)
	i := t.keyHash(key) & mask
	for n := 0; n < len(t.slots); n++ {
		s := &t.slots[i]
		switch s.state {
		case slotEmpty:
			return false
		case slotLive:
			if t.keyEqual(s.key, key) {
				var zero V
				s.state = slotTombstone
				s.val = zero
				t.live--
				return true
			}
		}
		i = (i + 1) & mask
	}
	return false
}

// Range calls fn for every live entry, in unspecified order. Iteration
// stops early if fn returns false.
func (t *Table[V]) Range(fn func(key StrID, val V) bool) {
	for i := range t.slots {
		if t.slots[i].state == slotLive {
			if !fn(t.slots[i].key, t.slots[i].val) {
				return
			}
		}
	}
}

// rehash rebuilds the slot array, dropping tombstones. Capacity doubles
// only when live entries alone would keep the table past the load factor.
func (t *Table[V]) rehash() {
	newCap := len(t.slots)
	if t.live*4 >= len(t.slots)*3 {
		newCap = len(t.slots) * 2
	}
	old := t.slots
	t.slots = make([]tableSlot[V], newCap)
	t.live = 0
	t.used = 0
	mask := uint32(newCap - 1)
	for i := range old {
		if old[i].state != slotLive {
			continue
		}
		j := t.keyHash(old[i].key) & mask
		for t.slots[j].state == slotLive {
			j = (j + 1) & mask
		}
		t.slots[j] = tableSlot[V]{state: slotLive, key: old[i].key, val: old[i].val}
		t.live++
		t.used++
	}
}
