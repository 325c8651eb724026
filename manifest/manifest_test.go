package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

const sample = `
[project]
name = "demo"
version = "0.1.0"
entry = "build/main.vlbc"

[run]
trace = "op,call"
max-steps = 5000
stack-size = 256
plugins = ["str", "math"]

[cache]
path = ".vitte/cache.db"
`

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "vitte.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, sample)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Project.Name != "demo" {
		t.Errorf("Name = %q, want demo", m.Project.Name)
	}
	if m.Run.Trace != "op,call" {
		t.Errorf("Trace = %q", m.Run.Trace)
	}
	if m.Run.MaxSteps != 5000 || m.Run.StackSize != 256 {
		t.Errorf("Run = %+v", m.Run)
	}
	if len(m.Run.Plugins) != 2 || m.Run.Plugins[0] != "str" {
		t.Errorf("Plugins = %v", m.Run.Plugins)
	}
	if m.Dir == "" || !filepath.IsAbs(m.Dir) {
		t.Errorf("Dir = %q, want absolute", m.Dir)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load succeeded without a vitte.toml")
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project\nname = ")
	if _, err := Load(dir); err == nil {
		t.Error("malformed TOML accepted")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, sample)
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad = nil, want manifest from ancestor")
	}
	if m.Project.Name != "demo" {
		t.Errorf("Name = %q, want demo", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m != nil {
		t.Errorf("FindAndLoad = %+v, want nil", m)
	}
}

func TestPaths(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, sample)
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "build", "main.vlbc"); got != want {
		t.Errorf("EntryPath = %q, want %q", got, want)
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, ".vitte", "cache.db"); got != want {
		t.Errorf("CachePath = %q, want %q", got, want)
	}
}

func TestPathsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project]\nname = \"bare\"\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.EntryPath() != "" {
		t.Errorf("EntryPath = %q, want empty", m.EntryPath())
	}
	if m.CachePath() != "" {
		t.Errorf("CachePath = %q, want empty", m.CachePath())
	}
}
