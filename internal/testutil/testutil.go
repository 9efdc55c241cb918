// Package testutil holds helpers shared by resolvr's package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/allaspectsdev/resolvr/internal/config"
)

// NewTestConfig returns the default config with logging turned down.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Log.Level = "error"
	return cfg
}

// WriteFile writes content to a file in the given directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

// WriteConfig writes content as resolvr.toml in a fresh temp dir and returns
// its path.
func WriteConfig(t *testing.T, content string) string {
	t.Helper()
	return WriteFile(t, t.TempDir(), config.DefaultConfigFilename, content)
}

// LoadConfig writes content as a config file and loads it.
func LoadConfig(t *testing.T, content string) (*config.Config, string) {
	t.Helper()
	path := WriteConfig(t, content)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg, path
}
