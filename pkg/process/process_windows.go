//go:build windows

package process

import (
	"os"
	"time"
)

// IsProcessAlive reports whether pid names a running process. Windows has no
// signal 0; opening the process is the existence check.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

// Terminate kills pid. Windows cannot deliver a graceful stop to a console-less
// browser, so grace is only used to wait for the exit.
func Terminate(pid int, grace time.Duration) error {
	if !IsProcessAlive(pid) {
		return nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil {
		return err
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) && IsProcessAlive(pid) {
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}
