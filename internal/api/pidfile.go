package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grovetools/remit/pkg/process"
)

// AcquirePidFile records the current PID in path. It fails when the PID
// already recorded there belongs to a live process.
func AcquirePidFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}

	if running, pid, err := ServerRunning(path); err == nil && running && pid != os.Getpid() {
		return fmt.Errorf("server already running with PID %d", pid)
	}
	// Anything else is stale or unreadable and gets overwritten.
	_ = os.Remove(path)

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// ReleasePidFile removes the PID file.
func ReleasePidFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ReadPidFile returns the PID recorded in path.
func ReadPidFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

// ServerRunning reports whether the server recorded in path is alive.
func ServerRunning(path string) (bool, int, error) {
	pid, err := ReadPidFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return process.IsProcessAlive(pid), pid, nil
}
