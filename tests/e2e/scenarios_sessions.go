package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/grovetools/tend/pkg/assert"
	"github.com/grovetools/tend/pkg/fs"
	"github.com/grovetools/tend/pkg/harness"
)

func recordJSON(id, status string, pid int) string {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return fmt.Sprintf(`{
  "session_id": %q,
  "status": %q,
  "bank_config": {"id": "bfa", "name": "Banco BFA"},
  "transfer_data": {"username": "alice", "password": "s3cret", "receiverIban": "AO06000600000100037131174", "amount": 250000},
  "control_target_pid": %d,
  "control_session_token": "TARGET-1",
  "current_location": "https://bank.example/otp",
  "otp_detected": true,
  "created_at": %q,
  "updated_at": %q
}`, id, status, pid, now, now)
}

// exitedPID returns the pid of a process that has already exited.
func exitedPID() (int, error) {
	c := exec.Command("sleep", "0")
	if err := c.Run(); err != nil {
		return 0, err
	}
	return c.Process.Pid, nil
}

func writeRecords(ctx *harness.Context) error {
	dir, err := sessionsDir(ctx)
	if err != nil {
		return err
	}
	if err := fs.CreateDir(dir); err != nil {
		return err
	}
	dead, err := exitedPID()
	if err != nil {
		return err
	}
	records := map[string]string{
		"SES1700000000AAAA0001": recordJSON("SES1700000000AAAA0001", "waiting_otp", os.Getpid()),
		"SES1700000000BBBB0002": recordJSON("SES1700000000BBBB0002", "completed", 0),
		"SES1800000000CCCC0003": recordJSON("SES1800000000CCCC0003", "waiting_otp", dead),
	}
	for id, body := range records {
		if err := fs.WriteString(filepath.Join(dir, id+".json"), body); err != nil {
			return err
		}
	}
	ctx.Set("sessionsDir", dir)
	return nil
}

// SessionsListScenario lists and shows records written by another process.
func SessionsListScenario() *harness.Scenario {
	return &harness.Scenario{
		Name:        "remit-sessions-list",
		Description: "Session records on disk are listed, filtered and shown without credentials.",
		Tags:        []string{"remit", "sessions"},
		Steps: []harness.Step{
			harness.NewStep("Write session records", writeRecords),
			harness.NewStep("List all sessions", func(ctx *harness.Context) error {
				var recs []map[string]interface{}
				if err := remitJSON(ctx, "", &recs, "sessions", "list"); err != nil {
					return err
				}
				return assert.Equal(3, len(recs), "all records listed")
			}),
			harness.NewStep("Filter by pattern", func(ctx *harness.Context) error {
				var recs []map[string]interface{}
				if err := remitJSON(ctx, "", &recs, "sessions", "list", "--match", "SES17*", "--match", "!*BBBB*"); err != nil {
					return err
				}
				if err := assert.Equal(1, len(recs), "one record matches"); err != nil {
					return err
				}
				return assert.Equal("SES1700000000AAAA0001", recs[0]["session_id"], "matching record")
			}),
			harness.NewStep("Show redacts the password", func(ctx *harness.Context) error {
				cmd := ctx.Command("remit", "sessions", "show", "SES1700000000AAAA0001")
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if result.Error != nil {
					return result.Error
				}
				if strings.Contains(result.Stdout, "s3cret") {
					return fmt.Errorf("password leaked in 'sessions show' output")
				}
				return assert.Contains(result.Stdout, "[REDACTED]", "password should be redacted")
			}),
		},
	}
}

// SessionsPruneScenario removes finished and orphaned records.
func SessionsPruneScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "remit-sessions-prune",
		Tags: []string{"remit", "sessions"},
		Steps: []harness.Step{
			harness.NewStep("Write session records", writeRecords),
			harness.NewStep("Prune", func(ctx *harness.Context) error {
				var report struct {
					Terminal []string `json:"terminal"`
					Orphaned []string `json:"orphaned"`
				}
				if err := remitJSON(ctx, "", &report, "sessions", "prune"); err != nil {
					return err
				}
				if err := assert.Equal([]string{"SES1700000000BBBB0002"}, report.Terminal, "finished records"); err != nil {
					return err
				}
				return assert.Equal([]string{"SES1800000000CCCC0003"}, report.Orphaned, "orphaned records")
			}),
			harness.NewStep("Only the live record is left", func(ctx *harness.Context) error {
				entries, err := os.ReadDir(ctx.GetString("sessionsDir"))
				if err != nil {
					return err
				}
				var names []string
				for _, e := range entries {
					names = append(names, e.Name())
				}
				return assert.Equal([]string{"SES1700000000AAAA0001.json"}, names, "remaining records")
			}),
		},
	}
}
