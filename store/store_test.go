package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vittelang/vittelight/vm"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "modules.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testModule(t *testing.T, konst string) *vm.Module {
	t.Helper()
	b := vm.NewBuilder()
	b.EmitU32(vm.OpPushS, 0)
	b.Emit(vm.OpHalt)
	m, err := vm.NewModule([][]byte{[]byte(konst)}, b.Bytes())
	if err != nil {
		t.Fatalf("NewModule: %v", err)
	}
	return m
}

func TestPutGet(t *testing.T) {
	s := testStore(t)
	m := testModule(t, "cached")

	hash, err := s.Put(m, "ctx-1")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(hash))
	}

	got, err := s.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Hash() != m.Hash() {
		t.Error("retrieved module hash differs")
	}
	if !bytes.Equal(got.Encode(), m.Encode()) {
		t.Error("retrieved module does not round-trip")
	}
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)
	if _, err := s.Get("deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// Re-putting the same module is idempotent: same hash, one row.
func TestPutIdempotent(t *testing.T) {
	s := testStore(t)
	m := testModule(t, "same")

	h1, err := s.Put(m, "a")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.Put(m, "b")
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %s / %s", h1, h2)
	}
	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("List = %d entries, want 1", len(entries))
	}
}

func TestList(t *testing.T) {
	s := testStore(t)
	h1, err := s.Put(testModule(t, "one"), "ctx")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.Put(testModule(t, "two"), "ctx")
	if err != nil {
		t.Fatal(err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List = %d entries, want 2", len(entries))
	}
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.Hash] = true
		if e.Size == 0 {
			t.Errorf("entry %s has zero size", e.Hash)
		}
		if e.ContextID != "ctx" {
			t.Errorf("entry %s context = %q, want ctx", e.Hash, e.ContextID)
		}
	}
	if !seen[h1] || !seen[h2] {
		t.Errorf("List missing entries: %v", seen)
	}
}

func TestDel(t *testing.T) {
	s := testStore(t)
	hash, err := s.Put(testModule(t, "doomed"), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Del(hash); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := s.Get(hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Del = %v, want ErrNotFound", err)
	}
	if err := s.Del(hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Del = %v, want ErrNotFound", err)
	}
}

func TestReopenPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "modules.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	m := testModule(t, "durable")
	hash, err := s.Put(m, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.Get(hash)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Hash() != m.Hash() {
		t.Error("module changed across reopen")
	}
}

func TestDefaultPathEnvOverride(t *testing.T) {
	t.Setenv("VITTE_CACHE_DB", "/tmp/override.db")
	p, err := DefaultPath()
	if err != nil {
		t.Fatal(err)
	}
	if p != "/tmp/override.db" {
		t.Errorf("DefaultPath = %q, want env override", p)
	}
}
