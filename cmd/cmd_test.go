package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/pkg/paths"
	"github.com/grovetools/remit/pkg/sessions"
	"github.com/grovetools/remit/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.RunIsolated(m, "remit-cmd-test"))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func testStore(t *testing.T) *sessions.Store {
	t.Helper()
	require.NoError(t, os.RemoveAll(paths.SessionsDir()))
	store, err := sessions.NewStore(paths.SessionsDir())
	require.NoError(t, err)
	return store
}

func TestFeeCommand(t *testing.T) {
	tests := []struct {
		amount string
		fee    float64
	}{
		{"1000", 500},
		{"250000", 1250},
		{"2000000", 5000},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			out, err := run(t, "fee", tt.amount, "--json")
			require.NoError(t, err)
			var got feeOutput
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, tt.fee, got.Fee)
			assert.Equal(t, got.Amount+tt.fee, got.Total)
		})
	}

	_, err := run(t, "fee", "abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidRequest))
}

func TestBanksCommands(t *testing.T) {
	out, err := run(t, "banks", "--json")
	require.NoError(t, err)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	ids := make([]string, 0, len(list))
	for _, b := range list {
		ids = append(ids, b["id"].(string))
	}
	assert.Subset(t, ids, []string{"banco-atlantico", "bfa", "bic", "bai"})

	out, err = run(t, "banks", "show", "bfa")
	require.NoError(t, err)
	var bank map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &bank))
	assert.Equal(t, "Banco BFA", bank["name"])
	assert.Contains(t, bank, "selectors")

	_, err = run(t, "banks", "show", "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeBankNotFound))
}

func TestSessionsListAndShow(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Put(&sessions.Record{
		SessionID:        "SES1700000000AAAA0001",
		Status:           sessions.StatusWaitingOTP,
		BankConfig:       map[string]interface{}{"id": "bfa", "name": "Banco BFA"},
		TransferData:     map[string]interface{}{"username": "alice", "password": "s3cret"},
		ControlTargetPID: os.Getpid(),
	}))
	require.NoError(t, store.Put(&sessions.Record{
		SessionID: "SES1800000000BBBB0002",
		Status:    sessions.StatusCompleted,
	}))

	out, err := run(t, "sessions", "list", "--json")
	require.NoError(t, err)
	var recs []*sessions.Record
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "[REDACTED]", recs[0].TransferData["password"])

	out, err = run(t, "sessions", "list", "--json", "--match", "SES17*")
	require.NoError(t, err)
	recs = nil
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "SES1700000000AAAA0001", recs[0].SessionID)

	out, err = run(t, "sessions", "show", "SES1700000000AAAA0001")
	require.NoError(t, err)
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, `"status": "waiting_otp"`)

	_, err = run(t, "sessions", "show", "SES_MISSING")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))
}

func TestSessionsPrune(t *testing.T) {
	store := testStore(t)
	require.NoError(t, os.MkdirAll(paths.ProfilesDir(), 0700))
	profile, err := os.MkdirTemp(paths.ProfilesDir(), "profile-*")
	require.NoError(t, err)
	require.NoError(t, store.Put(&sessions.Record{
		SessionID: "SES_DONE",
		Status:    sessions.StatusCompleted,
	}))
	require.NoError(t, store.Put(&sessions.Record{
		SessionID:        "SES_ORPHAN",
		Status:           sessions.StatusWaitingOTP,
		ControlTargetPID: testutil.ExitedPID(t),
		ProfileDir:       profile,
	}))
	require.NoError(t, store.Put(&sessions.Record{
		SessionID:        "SES_LIVE",
		Status:           sessions.StatusWaitingOTP,
		ControlTargetPID: os.Getpid(),
	}))

	out, err := run(t, "sessions", "prune", "--json")
	require.NoError(t, err)
	var got pruneOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Empty(t, got.Expired)
	assert.Equal(t, []string{"SES_DONE"}, got.Terminal)
	assert.Equal(t, []string{"SES_ORPHAN"}, got.Orphaned)
	assert.NoDirExists(t, profile, "the orphan's browser profile is removed")

	ids, err := store.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"SES_LIVE"}, ids)
}

func TestPathsCommand(t *testing.T) {
	out, err := run(t, "paths")
	require.NoError(t, err)
	var got PathsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, paths.SessionsDir(), got.SessionsDir)
	assert.Equal(t, paths.PidFilePath(), got.PidFile)
	assert.Contains(t, got.StateDir, os.Getenv("REMIT_HOME"))
}

func TestConfigSchemaCommand(t *testing.T) {
	out, err := run(t, "config", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"server"`)

	out, err = run(t, "config", "schema", "--banks")
	require.NoError(t, err)
	assert.Contains(t, out, `"selectors"`)
}

func TestServeStatusWhenStopped(t *testing.T) {
	out, err := run(t, "serve", "status")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "Stopped")
}

func TestTransferRequiresFlags(t *testing.T) {
	_, err := run(t, "transfer", "--bank", "bfa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
