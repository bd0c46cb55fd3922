//go:build !windows

package process

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// IsProcessAlive checks if a process with the given PID is still running.
// It uses a signal-sending method that is cross-platform for Unix-like systems (macOS, Linux).
// A missing or invalid pid is reported as not alive; it never returns an error.
func IsProcessAlive(pid int) bool {
	// PID 0 or less is invalid.
	if pid <= 0 {
		return false
	}

	// Find the process. This doesn't fail on Unix if the process doesn't exist.
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks for existence without delivering anything.
	// EPERM means the process exists but belongs to another user.
	err = process.Signal(syscall.Signal(0))
	if err != nil && !os.IsPermission(err) {
		return false
	}

	// A zombie still answers signal 0 but can no longer serve anything.
	return !isZombie(pid)
}

// Terminate sends SIGTERM to the process group led by pid (or the process alone when
// it is not a group leader), then SIGKILL if it is still alive after grace.
func Terminate(pid int, grace time.Duration) error {
	if !IsProcessAlive(pid) {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
			return fmt.Errorf("failed to signal process %d: %w", pid, err)
		}
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !IsProcessAlive(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	return nil
}
