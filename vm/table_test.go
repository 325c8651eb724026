package vm

import (
	"fmt"
	"testing"
)

func TestTablePutGet(t *testing.T) {
	p := NewPool()
	tbl := NewTable[Value](p)

	k := p.InternString("answer")
	if overwrote := tbl.Put(k, FromInt(42)); overwrote {
		t.Error("first Put reported overwrite")
	}
	v, ok := tbl.Get(k)
	if !ok {
		t.Fatal("Get missed a present key")
	}
	if v.Int() != 42 {
		t.Errorf("Get = %d, want 42", v.Int())
	}
}

func TestTableOverwrite(t *testing.T) {
	p := NewPool()
	tbl := NewTable[Value](p)
	k := p.InternString("k")

	tbl.Put(k, FromInt(1))
	if overwrote := tbl.Put(k, FromInt(2)); !overwrote {
		t.Error("second Put did not report overwrite")
	}
	if v, _ := tbl.Get(k); v.Int() != 2 {
		t.Errorf("value = %d, want 2", v.Int())
	}
	if tbl.Len() != 1 {
		t.Errorf("Len = %d, want 1", tbl.Len())
	}
}

func TestTableMissingKey(t *testing.T) {
	p := NewPool()
	tbl := NewTable[Value](p)
	if _, ok := tbl.Get(p.InternString("absent")); ok {
		t.Error("Get found an absent key")
	}
}

// Distinct handles with equal bytes resolve to the same entry.
func TestTableKeyByContent(t *testing.T) {
	p := NewPool()
	tbl := NewTable[Value](p)

	a := p.Add([]byte("same"))
	b := p.Add([]byte("same"))
	tbl.Put(a, FromInt(1))
	if v, ok := tbl.Get(b); !ok || v.Int() != 1 {
		t.Error("byte-equal key handle missed the entry")
	}
	if overwrote := tbl.Put(b, FromInt(2)); !overwrote {
		t.Error("byte-equal key created a second entry")
	}
}

func TestTableDelete(t *testing.T) {
	p := NewPool()
	tbl := NewTable[Value](p)
	k := p.InternString("gone")

	tbl.Put(k, FromInt(1))
	if !tbl.Del(k) {
		t.Error("Del missed a present key")
	}
	if tbl.Del(k) {
		t.Error("Del reported success twice")
	}
	if _, ok := tbl.Get(k); ok {
		t.Error("deleted key still present")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d, want 0", tbl.Len())
	}
}

// Deleting and reinserting must reuse tombstoned slots without breaking
// probe chains for keys that hashed into the same cluster.
func TestTableTombstoneReuse(t *testing.T) {
	p := NewPool()
	tbl := NewTable[Value](p)

	var keys []StrID
	for i := 0; i < 64; i++ {
		k := p.InternString(fmt.Sprintf("key-%d", i))
		keys = append(keys, k)
		tbl.Put(k, FromInt(int64(i)))
	}
	for i := 0; i < 32; i++ {
		tbl.Del(keys[i])
	}
	for i := 32; i < 64; i++ {
		v, ok := tbl.Get(keys[i])
		if !ok || v.Int() != int64(i) {
			t.Fatalf("key-%d lost after deletions", i)
		}
	}
	for i := 0; i < 32; i++ {
		tbl.Put(keys[i], FromInt(int64(-i)))
	}
	if tbl.Len() != 64 {
		t.Errorf("Len = %d, want 64", tbl.Len())
	}
}

func TestTableGrowth(t *testing.T) {
	p := NewPool()
	tbl := NewTable[Value](p)

	const n = 1000
	for i := 0; i < n; i++ {
		tbl.Put(p.InternString(fmt.Sprintf("g%d", i)), FromInt(int64(i)))
	}
	if tbl.Len() != n {
		t.Fatalf("Len = %d, want %d", tbl.Len(), n)
	}
	for i := 0; i < n; i++ {
		v, ok := tbl.Get(p.InternString(fmt.Sprintf("g%d", i)))
		if !ok || v.Int() != int64(i) {
			t.Fatalf("g%d lost after growth", i)
		}
	}
}

func TestTableRange(t *testing.T) {
	p := NewPool()
	tbl := NewTable[Value](p)
	want := map[string]int64{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		tbl.Put(p.InternString(k), FromInt(v))
	}

	got := map[string]int64{}
	tbl.Range(func(key StrID, val Value) bool {
		got[string(p.Get(key).Bytes)] = val.Int()
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("Range visited %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Range[%s] = %d, want %d", k, got[k], v)
		}
	}
}

func TestTableRangeEarlyStop(t *testing.T) {
	p := NewPool()
	tbl := NewTable[Value](p)
	for i := 0; i < 10; i++ {
		tbl.Put(p.InternString(fmt.Sprintf("s%d", i)), FromInt(int64(i)))
	}
	visits := 0
	tbl.Range(func(StrID, Value) bool {
		visits++
		return false
	})
	if visits != 1 {
		t.Errorf("Range visited %d entries after stop, want 1", visits)
	}
}

func TestTableGenericValue(t *testing.T) {
	p := NewPool()
	tbl := NewTable[string](p)
	k := p.InternString("name")
	tbl.Put(k, "vitte")
	if v, ok := tbl.Get(k); !ok || v != "vitte" {
		t.Errorf("Get = %q, %v", v, ok)
	}
}
