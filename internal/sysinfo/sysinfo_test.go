package sysinfo

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"testing"
)

func TestCollect(t *testing.T) {
	s := Collect(context.Background())

	if s.OS != runtime.GOOS {
		t.Errorf("OS: got %q, want %q", s.OS, runtime.GOOS)
	}
	if s.Arch != runtime.GOARCH {
		t.Errorf("Arch: got %q, want %q", s.Arch, runtime.GOARCH)
	}
	if s.GoVersion == "" || s.Client == "" {
		t.Errorf("GoVersion/Client: got %q/%q", s.GoVersion, s.Client)
	}
}

func TestSnapshotJSON(t *testing.T) {
	s := &Snapshot{OS: "linux", Arch: "amd64", GoVersion: "go1.25", Client: "promptstudio dev", MemoryTotal: 1024}
	s.fail("disk", errors.New("permission denied"))

	raw, err := s.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["os"] != "linux" {
		t.Errorf("os: got %v", m["os"])
	}
	if m["memory_total"] != float64(1024) {
		t.Errorf("memory_total: got %v", m["memory_total"])
	}
	if _, ok := m["hostname"]; ok {
		t.Error("empty hostname should be omitted")
	}
	errs, ok := m["errors"].([]interface{})
	if !ok || len(errs) != 1 || errs[0] != "disk: permission denied" {
		t.Errorf("errors: got %v", m["errors"])
	}
}
