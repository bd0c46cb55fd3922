//go:build !windows

package process

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsProcessAliveAfterExit(t *testing.T) {
	cmd := exec.Command("sleep", "0")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())

	assert.False(t, IsProcessAlive(pid))
}

func TestZombieDetection(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("procfs only")
	}
	root := t.TempDir()
	old := procRoot
	procRoot = root
	t.Cleanup(func() { procRoot = old })

	write := func(pid, stat string) {
		dir := filepath.Join(root, pid)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0644))
	}
	write("100", "100 (chrome (renderer)) Z 1 100 100 0")
	write("101", "101 (chrome) S 1 101 101 0")

	assert.True(t, isZombie(100))
	assert.False(t, isZombie(101))
	assert.False(t, isZombie(102))
}

func TestTerminate(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	require.NoError(t, Terminate(pid, 2*time.Second))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("process was not terminated")
	}
	assert.False(t, IsProcessAlive(pid))
}

func TestTerminateKillsProcessGroup(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 30 & echo $!; wait")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	done := make(chan struct{})

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	child, err := strconv.Atoi(strings.TrimSpace(line))
	require.NoError(t, err)
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	require.NoError(t, Terminate(cmd.Process.Pid, 2*time.Second))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("group leader was not terminated")
	}
	// The orphaned child is reaped by init; give it a moment.
	assert.Eventually(t, func() bool { return !IsProcessAlive(child) }, 2*time.Second, 20*time.Millisecond)
}
