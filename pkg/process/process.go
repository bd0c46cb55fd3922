package process

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// procRoot is the procfs mount. Tests point it at a fixture tree.
var procRoot = "/proc"

// isZombie reads the state letter from /proc/<pid>/stat. Off Linux it reports false.
func isZombie(pid int) bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// The command name is parenthesised and may contain spaces.
	idx := bytes.LastIndexByte(data, ')')
	if idx < 0 || idx+2 >= len(data) {
		return false
	}
	return data[idx+2] == 'Z'
}

// CmdlineArgs returns the launch arguments of a running process.
func CmdlineArgs(pid int) ([]string, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	data, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return nil, fmt.Errorf("read cmdline for pid %d: %w", pid, err)
	}
	data = bytes.TrimRight(data, "\x00")
	if len(data) == 0 {
		return nil, nil
	}
	return strings.Split(string(data), "\x00"), nil
}

// FlagValue returns the value of a --name=value or --name value argument.
func FlagValue(args []string, name string) (string, bool) {
	prefix := "--" + name
	for i, arg := range args {
		if v, ok := strings.CutPrefix(arg, prefix+"="); ok {
			return v, true
		}
		if arg == prefix && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}
