package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/grovetools/tend/pkg/assert"
	"github.com/grovetools/tend/pkg/harness"
)

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}

func waitHealthy(base string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s did not become healthy within %s", base, timeout)
}

func postTransfer(base, body string) (int, map[string]interface{}, error) {
	resp, err := http.Post(base+"/api/transfer", "application/json", strings.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, out, nil
}

// ServeDemoScenario runs the HTTP API in demo mode and drives a simulated
// transfer through its OTP step.
func ServeDemoScenario() *harness.Scenario {
	var (
		server *exec.Cmd
		cancel context.CancelFunc
	)
	return &harness.Scenario{
		Name:        "remit-serve-demo",
		Description: "The demo API asks for a code, then completes the transfer once the code is posted.",
		Tags:        []string{"remit", "serve"},
		Steps: []harness.Step{
			harness.NewStep("Start the server", func(ctx *harness.Context) error {
				remitBinary, err := findRemitBinary()
				if err != nil {
					return err
				}
				addr, err := freeAddr()
				if err != nil {
					return err
				}

				var processCtx context.Context
				processCtx, cancel = context.WithCancel(context.Background())
				server = exec.CommandContext(processCtx, remitBinary, "serve", "--mode", "demo", "--addr", addr)
				server.Dir = ctx.NewDir("serve")
				server.Env = append(os.Environ(), "REMIT_HOME="+ctx.NewDir("remit-home"), "REMIT_LOG_FILE=off")
				if err := server.Start(); err != nil {
					return fmt.Errorf("failed to start server: %w", err)
				}
				ctx.Set("base", "http://"+addr)
				return waitHealthy("http://"+addr, 10*time.Second)
			}),
			harness.NewStep("Info endpoints", func(ctx *harness.Context) error {
				resp, err := http.Get(ctx.GetString("base") + "/api/receiver-iban")
				if err != nil {
					return err
				}
				defer resp.Body.Close()
				var iban map[string]string
				if err := json.NewDecoder(resp.Body).Decode(&iban); err != nil {
					return err
				}
				return assert.Equal("AO06000600000100037131174", iban["iban"], "receiver IBAN")
			}),
			harness.NewStep("Incomplete request is rejected", func(ctx *harness.Context) error {
				status, out, err := postTransfer(ctx.GetString("base"), `{"bankId":"bfa","username":"alice"}`)
				if err != nil {
					return err
				}
				if err := assert.Equal(http.StatusBadRequest, status, "status"); err != nil {
					return err
				}
				return assert.Equal("Dados de transferência incompletos", out["message"], "message")
			}),
			harness.NewStep("Transfer asks for a code, then completes", func(ctx *harness.Context) error {
				base := ctx.GetString("base")
				body := `{"bankId":"bfa","username":"alice","password":"pw","receiverIban":"AO06000600000100037131174","amount":250000`
				status, out, err := postTransfer(base, body+`}`)
				if err != nil {
					return err
				}
				if err := assert.Equal(http.StatusOK, status, "status"); err != nil {
					return err
				}
				if err := assert.Equal(true, out["requiresOtp"], "requiresOtp"); err != nil {
					return err
				}
				sessionID, _ := out["sessionId"].(string)
				if !strings.HasPrefix(sessionID, "DEMO_") {
					return fmt.Errorf("unexpected demo session id %q", sessionID)
				}

				status, out, err = postTransfer(base, body+fmt.Sprintf(`,"otpCode":"123456","sessionId":%q}`, sessionID))
				if err != nil {
					return err
				}
				if err := assert.Equal(http.StatusOK, status, "status"); err != nil {
					return err
				}
				return assert.Equal(true, out["success"], "success")
			}),
			harness.NewStep("Stop the server", func(ctx *harness.Context) error {
				if server == nil || server.Process == nil {
					return nil
				}
				defer cancel()
				if err := server.Process.Signal(os.Interrupt); err != nil {
					return err
				}
				done := make(chan error, 1)
				go func() { done <- server.Wait() }()
				select {
				case err := <-done:
					return err
				case <-time.After(10 * time.Second):
					return fmt.Errorf("server did not stop after SIGINT")
				}
			}),
		},
	}
}
