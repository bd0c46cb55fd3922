package transfer

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/pkg/sessions"
	"github.com/grovetools/remit/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.RunIsolated(m, "remit-transfer-test"))
}

type harness struct {
	store       *sessions.Store
	driver      *fakeDriver
	engine      *Engine
	screenshots string
}

func newHarness(t *testing.T, s bankScript) *harness {
	t.Helper()
	store, err := sessions.NewStore(t.TempDir())
	require.NoError(t, err)
	h := &harness{store: store, driver: newFakeDriver(s), screenshots: t.TempDir()}
	h.engine = h.newEngine(t, h.driver)
	return h
}

// newEngine builds another engine over the same store, the way a second
// process would see it.
func (h *harness) newEngine(t *testing.T, d *fakeDriver) *Engine {
	t.Helper()
	e := NewEngine(h.store, d, testConfig(h.screenshots))
	e.terminate = func(int, time.Duration) error { return nil }
	e.removeProfile = func(string) error { return nil }
	t.Cleanup(e.Shutdown)
	return e
}

func (h *harness) record(t *testing.T, id string) *sessions.Record {
	t.Helper()
	rec, err := h.store.Get(id)
	require.NoError(t, err)
	return rec
}

func TestRunWithoutOTP(t *testing.T) {
	h := newHarness(t, bankScript{})

	res, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)

	require.True(t, res.Success, res.Message)
	assert.Regexp(t, `^TXN\d+[0-9A-F]{8}$`, res.TransactionID)
	assert.Equal(t, MessageSuccess, res.Message)
	require.NotNil(t, res.Details)
	assert.Equal(t, 1250.0, res.Details.Fee)
	assert.Equal(t, "Test Bank", res.Details.BankName)
	assert.Empty(t, res.SessionID)

	ids, err := h.store.ListIDs()
	require.NoError(t, err)
	assert.Empty(t, ids, "no session is written when no OTP is needed")
	assert.True(t, h.driver.wasReleased(1001))
}

func TestRunFillsForm(t *testing.T) {
	h := newHarness(t, bankScript{})

	res, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	page := h.driver.lastPage(t)
	assert.Equal(t, "https://bank.test/login", page.location)
	assert.Equal(t, "alice", page.value("#user"))
	assert.Equal(t, "s3cret", page.value("#pass"))
	assert.Equal(t, "AO06000600000100037131174", page.value("#iban"))
	assert.Equal(t, "250000", page.value("#amount"))
	assert.Equal(t, "Renda", page.value("#desc"))
	assert.NotEmpty(t, page.value("#beneficiary"))
	assert.True(t, page.clicked("#confirm"))
	assert.False(t, page.clicked("#validate"))
}

func TestRunSuspendsOnOTP(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})

	res, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)

	require.True(t, res.Pending())
	assert.False(t, res.Success)
	assert.Regexp(t, `^SES\d+[0-9A-F]{8}$`, res.SessionID)
	assert.Equal(t, "https://bank.test/transfer/otp", res.CurrentLocation)
	assert.Equal(t, MessageOTPSent, res.OTPMessage)
	assert.Equal(t, []string{res.SessionID}, h.engine.Pending())

	rec := h.record(t, res.SessionID)
	assert.Equal(t, sessions.StatusWaitingOTP, rec.Status)
	assert.Equal(t, 1001, rec.ControlTargetPID)
	assert.Equal(t, "TARGET-1001", rec.ControlSessionToken)
	assert.NotZero(t, rec.DebugPort)
	assert.Equal(t, "/profiles/profile-1001", rec.ProfileDir)
	assert.Equal(t, "https://bank.test/transfer/otp", rec.CurrentLocation)
	assert.True(t, rec.OTPDetected)
	assert.Equal(t, "testbank", rec.BankConfig["id"])
	assert.Equal(t, "alice", rec.TransferData["username"])
	assert.NotContains(t, rec.TransferData, "otpCode")
	assert.False(t, h.driver.wasReleased(1001), "control target stays alive while waiting")
}

func TestRunWithCodeSubmitsImmediately(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})
	req := testRequest()
	req.OTPCode = "123456"

	res, err := h.engine.Run(context.Background(), req)
	require.NoError(t, err)

	require.True(t, res.Success, res.Message)
	ids, err := h.store.ListIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.True(t, h.driver.wasReleased(1001))
}

func TestSubmitCodeFromAnotherProcess(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})
	pending, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.True(t, pending.Pending())
	page := h.driver.page(1001)
	require.NotNil(t, page)

	other := h.driver.share()
	second := h.newEngine(t, other)
	res, err := second.SubmitCode(context.Background(), pending.SessionID, "654321")
	require.NoError(t, err)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "654321", page.value("#otp"))
	assert.True(t, page.clicked("#validate"))
	launches, reattaches := other.counts()
	assert.Equal(t, 0, launches)
	assert.Equal(t, 1, reattaches)

	rec := h.record(t, pending.SessionID)
	assert.Equal(t, sessions.StatusCompleted, rec.Status)
	assert.Equal(t, res.TransactionID, rec.TransactionID)

	// The first process stops waiting and lets go of its connection
	// without terminating the browser the second one finished with.
	assert.Eventually(t, func() bool { return h.driver.wasDetached(1001) }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return len(h.engine.Pending()) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.driver.wasReleased(1001))
	assert.True(t, other.wasReleased(1001))
}

func TestSubmitCodeRedoesWhenControlTargetIsGone(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})
	pending, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)
	// The first process goes away; the record stays.
	h.engine.Shutdown()
	assert.Equal(t, sessions.StatusWaitingOTP, h.record(t, pending.SessionID).Status)

	other := h.driver.share()
	other.reattachF = func(rec *sessions.Record) error {
		return errors.ControlTargetDead(rec.ControlTargetPID)
	}
	second := h.newEngine(t, other)
	var terminated []int
	var removed []string
	second.terminate = func(pid int, _ time.Duration) error {
		terminated = append(terminated, pid)
		return nil
	}
	second.removeProfile = func(dir string) error {
		removed = append(removed, dir)
		return nil
	}
	res, err := second.SubmitCode(context.Background(), pending.SessionID, "111222")
	require.NoError(t, err)

	require.True(t, res.Success, res.Message)
	launches, _ := other.counts()
	assert.Equal(t, 1, launches, "the flow is redone on a fresh control target")

	rec := h.record(t, pending.SessionID)
	assert.Equal(t, sessions.StatusCompleted, rec.Status)
	assert.Equal(t, 5001, rec.ControlTargetPID)
	assert.Equal(t, "TARGET-5001", rec.ControlSessionToken)
	assert.Equal(t, "/profiles/profile-5001", rec.ProfileDir)
	assert.True(t, other.wasReleased(5001))
	assert.Empty(t, terminated, "a dead pid is never signalled")
	assert.Equal(t, []string{"/profiles/profile-1001"}, removed)
}

func TestSubmitCodeRedoTerminatesUnusableTarget(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})
	pending, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)
	h.engine.Shutdown()

	other := h.driver.share()
	other.reattachF = func(rec *sessions.Record) error {
		return errors.ReattachFailed(rec.ControlTargetPID, fmt.Errorf("no debug endpoint"))
	}
	second := h.newEngine(t, other)
	var terminated []int
	second.terminate = func(pid int, _ time.Duration) error {
		terminated = append(terminated, pid)
		return nil
	}
	res, err := second.SubmitCode(context.Background(), pending.SessionID, "111222")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, []int{1001}, terminated)
}

func TestSubmitCodeReleasesHeldControlOnCorruptRecord(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})
	pending, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)
	_, err = h.store.Update(pending.SessionID, func(r *sessions.Record) {
		r.TransferData["amount"] = "not a number"
	})
	require.NoError(t, err)

	res, err := h.engine.SubmitCode(context.Background(), pending.SessionID, "123456")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, h.driver.wasReleased(1001), "the control held for the session is released")
	assert.Equal(t, sessions.StatusFailed, h.record(t, pending.SessionID).Status)
}

func TestSubmitCodeInProcessAndAwait(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})
	pending, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)

	type awaited struct {
		res *Result
		err error
	}
	done := make(chan awaited, 1)
	go func() {
		res, err := h.engine.Await(context.Background(), pending.SessionID)
		done <- awaited{res, err}
	}()

	res, err := h.engine.SubmitCode(context.Background(), pending.SessionID, "999000")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	_, reattaches := h.driver.counts()
	assert.Equal(t, 0, reattaches, "the held control is used directly")

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.True(t, got.res.Success)
		assert.Equal(t, res.TransactionID, got.res.TransactionID)
		assert.Equal(t, pending.SessionID, got.res.SessionID)
	case <-time.After(3 * time.Second):
		t.Fatal("Await did not return")
	}
	assert.True(t, h.driver.wasReleased(1001))
}

func TestAwaitExpires(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})
	cfg := testConfig(h.screenshots)
	cfg.OTP.Wait = 150 * time.Millisecond
	h.engine = NewEngine(h.store, h.driver, cfg)
	t.Cleanup(h.engine.Shutdown)

	pending, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)

	res, err := h.engine.Await(context.Background(), pending.SessionID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrCodeOTPTimeout, res.ErrorCode)

	_, err = h.store.Get(pending.SessionID)
	assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))
	assert.Eventually(t, func() bool { return h.driver.wasReleased(1001) }, time.Second, 10*time.Millisecond)
}

func TestAwaitReturnsOnContextCancel(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})
	pending, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = h.engine.Await(ctx, pending.SessionID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// Only the caller gave up; the session still waits.
	assert.Equal(t, sessions.StatusWaitingOTP, h.record(t, pending.SessionID).Status)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name     string
		script   bankScript
		mutate   func(*Request)
		wantCode errors.ErrorCode
		wantMsg  string
	}{
		{
			name:     "bank rejects the transfer",
			script:   bankScript{resultClass: "alert alert-danger", resultText: "SALDO INSUFICIENTE"},
			wantCode: errors.ErrCodeVerificationFailed,
			wantMsg:  "Saldo insuficiente",
		},
		{
			name:     "indicator without a known class",
			script:   bankScript{resultClass: "alert alert-info"},
			wantCode: errors.ErrCodeVerificationFailed,
			wantMsg:  "no clear success/danger class found",
		},
		{
			name:     "no indicator",
			script:   bankScript{noResult: true},
			wantCode: errors.ErrCodeVerificationFailed,
			wantMsg:  "result message not found",
		},
		{
			name:   "login button missing",
			script: bankScript{},
			mutate: func(r *Request) {
				r.Bank.Selectors.LoginButton = "#missing"
			},
			wantCode: errors.ErrCodeElementNotFound,
			wantMsg:  "#missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.script)
			req := testRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			res, err := h.engine.Run(context.Background(), req)
			require.NoError(t, err)

			assert.False(t, res.Success)
			assert.Equal(t, tt.wantCode, res.ErrorCode)
			assert.Contains(t, res.Message, tt.wantMsg)
			require.NotEmpty(t, res.Screenshot)
			assert.FileExists(t, res.Screenshot)
			assert.True(t, h.driver.wasReleased(1001))
		})
	}
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	h := newHarness(t, bankScript{})
	req := testRequest()
	req.Password = ""

	_, err := h.engine.Run(context.Background(), req)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidRequest))
	launches, _ := h.driver.counts()
	assert.Equal(t, 0, launches)
}

func TestSubmitCodeRejections(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})
	require.NoError(t, h.store.Put(&sessions.Record{
		SessionID:        "SES1700000000BUSY0001",
		Status:           sessions.StatusProcessingOTP,
		ControlTargetPID: 77,
	}))

	tests := []struct {
		name     string
		id       string
		wantCode errors.ErrorCode
	}{
		{"unknown session", "SES1700000000NOPE0001", errors.ErrCodeSessionNotFound},
		{"already processing", "SES1700000000BUSY0001", errors.ErrCodeAlreadyProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.engine.SubmitCode(context.Background(), tt.id, "123456")
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantCode, res.ErrorCode)
		})
	}

	_, err := h.engine.SubmitCode(context.Background(), "SES1700000000BUSY0001", "")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidRequest))
}

func TestCancelDeletesSession(t *testing.T) {
	h := newHarness(t, bankScript{otp: true})
	pending, err := h.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)

	require.NoError(t, h.engine.Cancel(pending.SessionID))

	_, err = h.store.Get(pending.SessionID)
	assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))
	assert.Eventually(t, func() bool { return h.driver.wasReleased(1001) }, time.Second, 10*time.Millisecond)
}

func TestExpireStale(t *testing.T) {
	h := newHarness(t, bankScript{})
	var terminated []int
	var removed []string
	h.engine.terminate = func(pid int, _ time.Duration) error {
		terminated = append(terminated, pid)
		return nil
	}
	h.engine.removeProfile = func(dir string) error {
		removed = append(removed, dir)
		return nil
	}
	require.NoError(t, h.store.Put(&sessions.Record{
		SessionID:        "SES1700000000OLD00001",
		Status:           sessions.StatusWaitingOTP,
		ControlTargetPID: 31,
		ProfileDir:       "/profiles/profile-31",
		CreatedAt:        time.Now().Add(-time.Hour),
		UpdatedAt:        time.Now().Add(-time.Hour),
	}))
	require.NoError(t, h.store.Put(&sessions.Record{
		SessionID:        "SES1700000000NEW00001",
		Status:           sessions.StatusWaitingOTP,
		ControlTargetPID: 32,
	}))

	expired, err := h.engine.ExpireStale()
	require.NoError(t, err)

	assert.Equal(t, []string{"SES1700000000OLD00001"}, expired)
	assert.Equal(t, []int{31}, terminated)
	assert.Equal(t, []string{"/profiles/profile-31"}, removed)
	ids, err := h.store.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"SES1700000000NEW00001"}, ids)
}
