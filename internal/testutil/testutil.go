// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/allaspectsdev/promptstudio/internal/config"
	"github.com/allaspectsdev/promptstudio/internal/session"
	"github.com/allaspectsdev/promptstudio/internal/store"
)

// NewTestStore opens a SQLite store in a temp dir. It is closed when the
// test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// NewTestService returns a session service over a fresh test store.
func NewTestService(t *testing.T) (*session.Service, *store.Store) {
	t.Helper()
	st := NewTestStore(t)
	return session.NewService(store.NewSessionAdapter(st)), st
}

// NewTestConfig returns a minimal valid config for testing.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.DataDir = t.TempDir()
	cfg.Enrichment.RetryBaseDelayMs = 1
	cfg.Enrichment.RetryMaxDelayMs = 5
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
