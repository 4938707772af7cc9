package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const pidFilename = "promptstudio.pid"

// PIDFile guards a data directory against a second daemon.
type PIDFile struct {
	path string
}

// NewPIDFile returns the PID file of dataDir.
func NewPIDFile(dataDir string) *PIDFile {
	return &PIDFile{path: filepath.Join(dataDir, pidFilename)}
}

// Path returns the file location.
func (p *PIDFile) Path() string { return p.path }

// Acquire records the current process. It fails if another live process
// holds the file and replaces a stale one.
func (p *PIDFile) Acquire() error {
	if pid, err := p.Read(); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("promptstudio is already running (PID %d, %s)", pid, p.path)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("creating data directory for PID file: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing PID file %s: %w", p.path, err)
	}
	return nil
}

// Read returns the recorded PID.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file %s: %w", p.path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing PID from %s: %w", p.path, err)
	}
	return pid, nil
}

// Release removes the file. A missing file is not an error.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file %s: %w", p.path, err)
	}
	return nil
}

// Running returns the recorded PID and whether that process is alive.
func (p *PIDFile) Running() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

// processAlive sends signal 0, which checks existence without delivering
// anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
