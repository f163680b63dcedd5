package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the project configuration file discovered by walking up from
// the working directory.
const FileName = "vela.toml"

// Config is the decoded vela.toml. Zero values mean "use the default";
// command-line flags override whatever is set here.
type Config struct {
	VM  VMConfig  `toml:"vm"`
	Run RunConfig `toml:"run"`
}

type VMConfig struct {
	// GCThreshold is the suspect-buffer size that triggers a collection.
	GCThreshold int `toml:"gc_threshold"`
	// StackLimit caps each frame's operand stack.
	StackLimit int `toml:"stack_limit"`
}

type RunConfig struct {
	Trace bool `toml:"trace"`
	// UI selects the live run view: auto, on or off.
	UI string `toml:"ui"`
}

// Find walks up from startDir looking for vela.toml. ok is false when no
// file exists anywhere up the tree.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes and validates the file at path.
func Load(path string) (Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if meta.IsDefined("vm", "gc_threshold") && cfg.VM.GCThreshold < 1 {
		return Config{}, fmt.Errorf("%s: [vm].gc_threshold must be positive", path)
	}
	if meta.IsDefined("vm", "stack_limit") && cfg.VM.StackLimit < 1 {
		return Config{}, fmt.Errorf("%s: [vm].stack_limit must be positive", path)
	}
	switch cfg.Run.UI {
	case "", "auto", "on", "off":
	default:
		return Config{}, fmt.Errorf("%s: [run].ui must be auto, on or off", path)
	}
	return cfg, nil
}

// Discover finds and loads the nearest vela.toml. When none exists it
// returns the zero Config and an empty path.
func Discover(startDir string) (Config, string, error) {
	path, ok, err := Find(startDir)
	if err != nil || !ok {
		return Config{}, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return Config{}, path, err
	}
	return cfg, path, nil
}
