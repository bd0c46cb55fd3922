// Package testutil holds helpers shared by remit's package tests.
package testutil

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

// RunIsolated runs the tests of a package with REMIT_HOME pointing at a fresh
// temporary directory and the log file sink turned off. It returns the exit
// code for os.Exit.
func RunIsolated(m *testing.M, prefix string) int {
	home, err := os.MkdirTemp("", prefix)
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(home)

	os.Setenv("REMIT_HOME", home)
	os.Setenv("REMIT_LOG_FILE", "off")
	return m.Run()
}

// ExitedPID returns the pid of a child process that has already exited and
// been reaped, for records whose control target must look dead.
func ExitedPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("sleep", "0")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}
