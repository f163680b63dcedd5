package version

import "testing"

func TestVersionDefault(t *testing.T) {
	if Version == "" {
		t.Fatal("Version should have a default value")
	}
}

func TestVersionOverride(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "1.2.3"
	if Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", Version)
	}
}
