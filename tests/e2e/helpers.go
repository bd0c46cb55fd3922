package main

import (
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/grovetools/tend/pkg/harness"
)

// findRemitBinary finds the remit binary under test.
// It relies on the Makefile setting the PATH to include the local ./bin directory.
func findRemitBinary() (string, error) {
	path, err := exec.LookPath("remit")
	if err != nil {
		return "", fmt.Errorf("could not find 'remit' binary in PATH. Ensure 'make test-e2e' is used")
	}
	return path, nil
}

// remitJSON runs remit with --json in dir and decodes its stdout into out.
func remitJSON(ctx *harness.Context, dir string, out interface{}, args ...string) error {
	args = append(args, "--json")
	cmd := ctx.Command("remit", args...)
	if dir != "" {
		cmd = cmd.Dir(dir)
	}
	result := cmd.Run()
	ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
	if result.Error != nil {
		return fmt.Errorf("remit %v failed: %w\nStderr:\n%s", args, result.Error, result.Stderr)
	}
	if err := json.Unmarshal([]byte(result.Stdout), out); err != nil {
		return fmt.Errorf("failed to parse output of remit %v: %w\nOutput:\n%s", args, err, result.Stdout)
	}
	return nil
}

// sessionsDir asks remit where it keeps session records in the sandbox.
func sessionsDir(ctx *harness.Context) (string, error) {
	var p struct {
		SessionsDir string `json:"sessions_dir"`
	}
	if err := remitJSON(ctx, "", &p, "paths"); err != nil {
		return "", err
	}
	return p.SessionsDir, nil
}
