// Package daemon tracks the background API server through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrRunning is returned by Acquire when another live process holds the file.
var ErrRunning = errors.New("server already running")

// ErrNotRunning is returned by Stop when no live process holds the file.
var ErrNotRunning = errors.New("server not running")

// PIDFile records the PID of the running server.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Running returns the recorded PID and whether that process is alive.
func (p *PIDFile) Running() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, alive(pid)
}

// Acquire records the current process. A stale file left by a dead process
// is overwritten.
func (p *PIDFile) Acquire() error {
	if pid, ok := p.Running(); ok && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d)", ErrRunning, pid)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID directory: %w", err)
	}
	return os.WriteFile(p.Path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// Release removes the file if it still names the current process.
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return os.Remove(p.Path)
}

// Stop asks the recorded process to exit and waits up to timeout before
// killing it. The file is removed once the process is gone.
func (p *PIDFile) Stop(timeout time.Duration) (int, error) {
	pid, ok := p.Running()
	if !ok {
		_ = os.Remove(p.Path)
		return pid, ErrNotRunning
	}
	if err := terminate(pid); err != nil {
		return pid, fmt.Errorf("signal process %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			_ = os.Remove(p.Path)
			return pid, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := kill(pid); err != nil {
		return pid, fmt.Errorf("kill process %d: %w", pid, err)
	}
	_ = os.Remove(p.Path)
	return pid, nil
}
