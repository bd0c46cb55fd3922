// Package paths provides XDG-compliant path resolution for remit.
//
// Resolution order:
// 1. REMIT_HOME (portable root) → $REMIT_HOME/{config,state,cache,run}
// 2. XDG env vars → $XDG_*_HOME/remit
// 3. Platform defaults → ~/.config/remit, ~/.local/state/remit, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "remit"

// home resolves one base directory following REMIT_HOME, then the XDG variable, then the fallback under $HOME.
func home(sub, xdgVar string, fallback ...string) string {
	if remitHome := os.Getenv("REMIT_HOME"); remitHome != "" {
		return filepath.Join(remitHome, sub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append([]string{homeDir}, append(fallback, appName)...)...)
	}
	return ""
}

// ConfigDir returns the remit configuration directory.
// Used for the global remit.yml and extra bank tables.
func ConfigDir() string {
	return home("config", "XDG_CONFIG_HOME", ".config")
}

// StateDir returns the remit state directory.
// Used for session records, logs and screenshots.
func StateDir() string {
	return home("state", "XDG_STATE_HOME", ".local", "state")
}

// CacheDir returns the remit cache directory.
// Used for throwaway browser profiles.
func CacheDir() string {
	return home("cache", "XDG_CACHE_HOME", ".cache")
}

// RuntimeDir returns the remit runtime directory for the API server pidfile.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if remitHome := os.Getenv("REMIT_HOME"); remitHome != "" {
		return filepath.Join(remitHome, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SessionsDir returns the directory holding one JSON record per session.
func SessionsDir() string {
	return filepath.Join(StateDir(), "sessions")
}

// LogsDir returns the directory for component log files.
func LogsDir() string {
	return filepath.Join(StateDir(), "logs")
}

// ScreenshotsDir returns the directory for failure screenshots.
func ScreenshotsDir() string {
	return filepath.Join(StateDir(), "screenshots")
}

// ProfilesDir returns the parent directory of per-launch browser profiles.
func ProfilesDir() string {
	return filepath.Join(CacheDir(), "profiles")
}

// PidFilePath returns the path to the API server PID file.
func PidFilePath() string {
	return filepath.Join(RuntimeDir(), "remit-serve.pid")
}

// EnsureDirs creates all remit directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		StateDir(),
		CacheDir(),
		RuntimeDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}
