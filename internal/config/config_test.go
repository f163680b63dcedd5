package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[vm]
gc_threshold = 128
stack_limit = 1024

[run]
trace = true
ui = "off"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VM.GCThreshold != 128 || cfg.VM.StackLimit != 1024 {
		t.Errorf("vm config = %+v", cfg.VM)
	}
	if !cfg.Run.Trace || cfg.Run.UI != "off" {
		t.Errorf("run config = %+v", cfg.Run)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name, content string
	}{
		{"zero threshold", "[vm]\ngc_threshold = 0\n"},
		{"negative stack", "[vm]\nstack_limit = -1\n"},
		{"bad ui", "[run]\nui = \"fancy\"\n"},
		{"not toml", "== nope =="},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tc.content)
			if _, err := Load(path); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[vm]\ngc_threshold = 64\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	path, ok, err := Find(nested)
	if err != nil || !ok {
		t.Fatalf("Find: %v, %v", ok, err)
	}
	if filepath.Dir(path) != root {
		t.Errorf("found %s, want it in %s", path, root)
	}
}

func TestDiscoverMissingIsNotAnError(t *testing.T) {
	cfg, path, err := Discover(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if cfg != (Config{}) {
		t.Errorf("cfg = %+v, want zero", cfg)
	}
}
