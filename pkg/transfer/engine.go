// Package transfer runs the bank transfer state machine and the two
// invocations around it: starting a transfer, and submitting the code for a
// transfer suspended on an OTP, possibly from another process.
package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/browser"
	"github.com/grovetools/remit/pkg/otp"
	"github.com/grovetools/remit/pkg/paths"
	"github.com/grovetools/remit/pkg/process"
	"github.com/grovetools/remit/pkg/sessions"
	"github.com/sirupsen/logrus"
)

const cleanupTimeout = 10 * time.Second

// Store is the session persistence the engine needs.
type Store interface {
	Put(rec *sessions.Record) error
	Get(sessionID string) (*sessions.Record, error)
	Update(sessionID string, fn func(*sessions.Record)) (bool, error)
	Delete(sessionID string) error
	List() ([]*sessions.Record, error)
}

// Engine performs transfers. The session store is the only state shared
// with other processes; controls held in memory are just the live
// connections of sessions this process handed off.
type Engine struct {
	store         Store
	driver        Driver
	coord         *otp.Coordinator
	timeouts      config.TimeoutsConfig
	otpWait       time.Duration
	otpPoll       time.Duration
	screenshotDir string

	now           func() time.Time
	terminate     func(pid int, grace time.Duration) error
	removeProfile func(dir string) error
	logger        *logrus.Entry

	mu   sync.Mutex
	held map[string]*Control
}

// NewEngine creates an engine. cfg must have its defaults applied.
func NewEngine(store Store, driver Driver, cfg *config.Config) *Engine {
	e := &Engine{
		store:     store,
		driver:    driver,
		timeouts:  cfg.Timeouts,
		otpWait:   cfg.OTP.Wait,
		otpPoll:   cfg.OTP.PollInterval,
		now:           time.Now,
		terminate:     process.Terminate,
		removeProfile: browser.RemoveProfile,
		logger:        logging.NewLogger("transfer"),
		held:          make(map[string]*Control),
	}
	if !cfg.Screenshots.Disabled {
		e.screenshotDir = cfg.Screenshots.Dir
		if e.screenshotDir == "" {
			e.screenshotDir = paths.ScreenshotsDir()
		}
	}
	e.coord = otp.New(store, cfg.OTP, e.onWaitDone)
	return e
}

// Shutdown stops every OTP wait of this process. Sessions are left in the
// store and their control targets keep running.
func (e *Engine) Shutdown() {
	e.coord.Shutdown()
}

// Pending lists the sessions this process is waiting on.
func (e *Engine) Pending() []string {
	return e.coord.Pending()
}

// Run performs a transfer from the login page. When the bank asks for an
// OTP and the request carries none, the control target is kept alive, a
// session record is written and a pending result is returned; the wait for
// the code continues in the background until it is delivered or expires.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e.logger.WithFields(logrus.Fields{
		"bank":         req.Bank.ID,
		"amount":       req.Amount,
		"receiverIban": req.ReceiverIBAN,
		"username":     secret(req.Username),
		"password":     secret(req.Password),
		"otp_code":     secret(req.OTPCode),
	}).Info("Starting transfer")

	ctl, err := e.driver.Launch(ctx)
	if err != nil {
		return e.abort(nil, nil, err), nil
	}

	f := newFlow(ctl.Page, req, e.timeouts, StateInit, e.logger)
	otpRequired, err := runSteps(ctx, f)
	if err != nil {
		return e.abort(f, ctl, err), nil
	}

	if otpRequired {
		if req.OTPCode == "" {
			return e.handOff(ctx, f, ctl)
		}
		e.logger.Info("Continuing with provided OTP code")
		if err := f.submitOTP(ctx, req.OTPCode); err != nil {
			return e.abort(f, ctl, err), nil
		}
	}

	if err := f.verify(ctx); err != nil {
		return e.abort(f, ctl, err), nil
	}
	e.releaseControl(ctl)

	now := e.now()
	res := Succeeded(NewTransactionID(now), req.Amount, req.ReceiverIBAN, now)
	res.Details.BankName = req.Bank.Name
	e.logger.WithField("transaction_id", res.TransactionID).Info("Transfer completed")
	return res, nil
}

func runSteps(ctx context.Context, f *flow) (bool, error) {
	if err := f.login(ctx); err != nil {
		return false, err
	}
	if err := f.openTransfers(ctx); err != nil {
		return false, err
	}
	if err := f.fillForm(ctx); err != nil {
		return false, err
	}
	return f.confirm(ctx)
}

func (e *Engine) handOff(ctx context.Context, f *flow, ctl *Control) (*Result, error) {
	now := e.now()
	sessionID := NewSessionID(now)

	location, err := ctl.Page.Location(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Could not read current location")
	}

	rec := &sessions.Record{
		SessionID:           sessionID,
		Status:              sessions.StatusWaitingOTP,
		BankConfig:          f.bank.ToMap(),
		TransferData:        f.req.transferData(),
		ControlTargetPID:    ctl.PID,
		ControlSessionToken: ctl.Token,
		DebugPort:           ctl.Port,
		ProfileDir:          ctl.ProfileDir,
		CurrentLocation:     location,
		OTPDetected:         true,
	}
	if err := e.store.Put(rec); err != nil {
		return e.abort(f, ctl, fmt.Errorf("persist session: %w", err)), nil
	}

	e.mu.Lock()
	e.held[sessionID] = ctl
	e.mu.Unlock()
	e.coord.Begin(context.WithoutCancel(ctx), sessionID)

	e.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"pid":        ctl.PID,
		"port":       ctl.Port,
		"location":   location,
	}).Info("OTP required, session kept alive")
	return PendingOTP(sessionID, location, now), nil
}

// SubmitCode resumes a suspended transfer with its OTP. The control target
// is taken from this process when it is the one waiting, reattached when it
// is still alive, and otherwise recreated by redoing the flow from the login
// page. The record ends completed with a transaction id, or failed.
func (e *Engine) SubmitCode(ctx context.Context, sessionID, code string) (*Result, error) {
	if code == "" {
		return nil, errors.InvalidRequest("verification code is required")
	}
	log := e.logger.WithField("session_id", sessionID)

	local, err := e.coord.Deliver(sessionID, code)
	if err != nil {
		if errors.Is(err, errors.ErrCodeSessionNotFound) || errors.Is(err, errors.ErrCodeAlreadyProcessing) {
			log.WithError(err).Warn("Code submission rejected")
			return Failed(err, e.now()), nil
		}
		return nil, err
	}

	rec, err := e.store.Get(sessionID)
	if err != nil {
		return Failed(err, e.now()), nil
	}
	var ctl *Control
	if local {
		ctl = e.take(sessionID)
	}
	req, err := requestFromRecord(rec)
	if err != nil {
		return e.complete(rec, Request{}, nil, ctl, err), nil
	}

	var f *flow
	if ctl != nil {
		log.Info("Submitting code on the control target held by this process")
		f = newFlow(ctl.Page, req, e.timeouts, StateOTPRequired, e.logger)
	} else {
		ctl, err = e.driver.Reattach(ctx, rec)
		switch {
		case err == nil:
			f = newFlow(ctl.Page, req, e.timeouts, StateOTPRequired, e.logger)
		case errors.Is(err, errors.ErrCodeControlTargetDead), errors.Is(err, errors.ErrCodeReattachFailed):
			log.WithError(err).Warn("Cannot resume control target, redoing the transfer from login")
			// A target that is alive but unusable would otherwise be orphaned.
			e.releaseRecorded(rec, errors.Is(err, errors.ErrCodeReattachFailed))
			ctl, f, err = e.redo(ctx, rec, req)
			if err != nil {
				return e.complete(rec, req, f, ctl, err), nil
			}
		default:
			return e.complete(rec, req, nil, nil, err), nil
		}
	}

	if f.state == StateOTPRequired {
		err = f.submitOTP(ctx, code)
	}
	if err == nil {
		err = f.verify(ctx)
	}
	return e.complete(rec, req, f, ctl, err), nil
}

// redo launches a fresh control target and drives it up to the OTP step.
func (e *Engine) redo(ctx context.Context, rec *sessions.Record, req Request) (*Control, *flow, error) {
	ctl, err := e.driver.Launch(ctx)
	if err != nil {
		return nil, nil, err
	}
	f := newFlow(ctl.Page, req, e.timeouts, StateInit, e.logger)
	otpRequired, err := runSteps(ctx, f)
	if err != nil {
		return ctl, f, err
	}
	if !otpRequired {
		e.logger.WithField("session_id", rec.SessionID).Warn("No OTP asked on redo, verifying directly")
	}

	location, _ := ctl.Page.Location(ctx)
	if _, err := e.store.Update(rec.SessionID, func(r *sessions.Record) {
		r.ControlTargetPID = ctl.PID
		r.ControlSessionToken = ctl.Token
		r.DebugPort = ctl.Port
		r.ProfileDir = ctl.ProfileDir
		r.CurrentLocation = location
	}); err != nil {
		e.logger.WithError(err).Warn("Failed to record new control target")
	}
	return ctl, f, nil
}

// complete records the terminal status and releases the control target.
func (e *Engine) complete(rec *sessions.Record, req Request, f *flow, ctl *Control, err error) *Result {
	log := e.logger.WithField("session_id", rec.SessionID)
	if err != nil {
		res := e.abort(f, ctl, err)
		if _, uerr := e.store.Update(rec.SessionID, func(r *sessions.Record) {
			r.Status = sessions.StatusFailed
			r.Message = res.Message
		}); uerr != nil {
			log.WithError(uerr).Warn("Failed to mark session failed")
		}
		return res
	}

	now := e.now()
	txID := NewTransactionID(now)
	if _, uerr := e.store.Update(rec.SessionID, func(r *sessions.Record) {
		r.Status = sessions.StatusCompleted
		r.TransactionID = txID
	}); uerr != nil {
		log.WithError(uerr).Warn("Failed to mark session completed")
	}
	e.releaseControl(ctl)

	log.WithField("transaction_id", txID).Info("Transfer completed after OTP")
	res := Succeeded(txID, req.Amount, req.ReceiverIBAN, now)
	res.Details.BankName = req.Bank.Name
	return res
}

// abort moves the flow to FAILED, captures a screenshot and releases the
// control target.
func (e *Engine) abort(f *flow, ctl *Control, err error) *Result {
	if f != nil {
		f.fail()
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	shot := e.screenshot(ctx, ctl)
	ctl.release(ctx)

	entry := e.logger.WithError(err)
	if f != nil {
		entry = entry.WithField("bank", f.bank.ID)
	}
	entry.Error("Transfer failed")

	res := Failed(err, e.now())
	res.Screenshot = shot
	return res
}

func (e *Engine) screenshot(ctx context.Context, ctl *Control) string {
	if e.screenshotDir == "" || ctl == nil || ctl.Page == nil {
		return ""
	}
	data, err := ctl.Page.Screenshot(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to take screenshot")
		return ""
	}
	if err := os.MkdirAll(e.screenshotDir, 0700); err != nil {
		e.logger.WithError(err).Warn("Failed to create screenshots directory")
		return ""
	}
	path := filepath.Join(e.screenshotDir, fmt.Sprintf("error_screenshot_%d.png", e.now().Unix()))
	if err := os.WriteFile(path, data, 0600); err != nil {
		e.logger.WithError(err).Warn("Failed to write screenshot")
		return ""
	}
	e.logger.WithField("path", path).Info("Screenshot saved")
	return path
}

// releaseControl terminates a control target on a context of its own, so a
// cancelled request still cleans up.
func (e *Engine) releaseControl(ctl *Control) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	ctl.release(ctx)
}

func (e *Engine) take(sessionID string) *Control {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctl := e.held[sessionID]
	delete(e.held, sessionID)
	return ctl
}

// onWaitDone releases what this process holds for a session once its OTP
// wait ends.
func (e *Engine) onWaitDone(ctx context.Context, sessionID string, out otp.Outcome) {
	switch {
	case out.State == otp.StateDelivered && out.Code != "":
		// SubmitCode in this process owns the control now.
	case out.State == otp.StateDelivered, out.State == otp.StateCancelled && out.Record != nil:
		e.take(sessionID).detach()
	default:
		if ctl := e.take(sessionID); ctl != nil {
			ctl.release(ctx)
		} else if out.Record != nil {
			e.releaseRecorded(out.Record, true)
		}
		e.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"state":      out.State,
		}).Warn("OTP wait ended without a code, control target released")
	}
}

// releaseRecorded cleans up the control target a record names when no
// process holds it: the browser is terminated when terminate is set, and its
// throwaway profile is removed.
func (e *Engine) releaseRecorded(rec *sessions.Record, terminate bool) {
	if terminate && rec.ControlTargetPID > 0 {
		_ = e.terminate(rec.ControlTargetPID, 5*time.Second)
	}
	if rec.ProfileDir == "" {
		return
	}
	if err := e.removeProfile(rec.ProfileDir); err != nil {
		e.logger.WithError(err).WithField("session_id", rec.SessionID).Warn("Failed to remove browser profile")
	}
}

func secret(v string) string {
	if v == "" {
		return "[MISSING]"
	}
	return "[PROVIDED]"
}
