package bytecode

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// .vbc container: 4-byte magic, little-endian u16 format version, then a
// msgpack-encoded Module.
var fileMagic = [4]byte{'V', 'L', 'B', 'C'}

const fileVersion uint16 = 1

// SaveModule writes m to path atomically: the bytes land in a temp file in
// the same directory first and replace path with a rename.
func SaveModule(path string, m *Module) error {
	payload, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode module: %w", err)
	}
	var buf bytes.Buffer
	buf.Write(fileMagic[:])
	buf.WriteByte(byte(fileVersion))
	buf.WriteByte(byte(fileVersion >> 8))
	buf.Write(payload)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".vbc-*")
	if err != nil {
		return fmt.Errorf("create temp module file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// LoadModule reads and validates a .vbc file. The returned Layout is the one
// Validate produced, so callers can hand both to the interpreter.
func LoadModule(path string) (*Module, *Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	m, lay, err := decodeModule(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, lay, nil
}

func decodeModule(raw []byte) (*Module, *Layout, error) {
	if len(raw) < 6 {
		return nil, nil, fmt.Errorf("not a module file: %d bytes", len(raw))
	}
	if !bytes.Equal(raw[:4], fileMagic[:]) {
		return nil, nil, fmt.Errorf("bad magic %q", raw[:4])
	}
	version := uint16(raw[4]) | uint16(raw[5])<<8
	if version != fileVersion {
		return nil, nil, fmt.Errorf("unsupported format version %d (want %d)", version, fileVersion)
	}
	var m Module
	if err := msgpack.Unmarshal(raw[6:], &m); err != nil {
		return nil, nil, fmt.Errorf("decode module: %w", err)
	}
	lay, err := m.Validate()
	if err != nil {
		return nil, nil, err
	}
	return &m, lay, nil
}
