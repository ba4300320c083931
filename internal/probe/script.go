package probe

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

//go:embed activation.rb
var activationScript []byte

// ScriptName is the filename the probe script is materialized under.
const ScriptName = "activation.rb"

// EnsureScript writes the embedded probe script into dir and returns its
// path. An existing copy is rewritten only when its BLAKE3 hash differs from
// the embedded one, so upgrades of the binary refresh the script on disk.
func EnsureScript(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create script directory: %w", err)
	}

	path := filepath.Join(dir, ScriptName)
	want := blake3.Sum256(activationScript)

	if data, err := os.ReadFile(path); err == nil {
		if blake3.Sum256(data) == want {
			return path, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read existing probe script: %w", err)
	}

	if err := os.WriteFile(path, activationScript, 0o644); err != nil {
		return "", fmt.Errorf("write probe script: %w", err)
	}
	return path, nil
}

// scriptMatches reports whether the on-disk script equals the embedded copy.
// Kept separate for tests.
func scriptMatches(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Equal(data, activationScript)
}
