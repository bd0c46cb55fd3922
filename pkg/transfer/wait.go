package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/pkg/sessions"
)

// Await blocks until the OTP wait of a session handed off by this process
// ends. When the code is delivered (here or by another process) it follows
// the record until the submitting call finishes and returns that outcome.
func (e *Engine) Await(ctx context.Context, sessionID string) (*Result, error) {
	out, err := e.coord.AwaitCode(ctx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return Failed(err, e.now()), nil
	}
	if out.Code == "" {
		e.logger.WithField("session_id", sessionID).Info("Code delivered to another process, following the session")
	}
	return e.follow(ctx, sessionID)
}

// follow polls a record until it is terminal, for at most the OTP wait.
func (e *Engine) follow(ctx context.Context, sessionID string) (*Result, error) {
	interval := e.otpPoll
	if interval <= 0 {
		interval = time.Second
	}
	deadline := e.now().Add(e.otpWait)
	for {
		rec, err := e.store.Get(sessionID)
		if err != nil {
			return Failed(err, e.now()), nil
		}
		if rec.Status.Terminal() {
			return ResultFromRecord(rec), nil
		}
		if !e.now().Before(deadline) {
			return Failed(fmt.Errorf("session %s is still %s", sessionID, rec.Status), e.now()), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// ResultFromRecord describes a session record as a Result.
func ResultFromRecord(rec *sessions.Record) *Result {
	switch rec.Status {
	case sessions.StatusCompleted:
		req, _ := requestFromRecord(rec)
		res := Succeeded(rec.TransactionID, req.Amount, req.ReceiverIBAN, rec.UpdatedAt)
		res.SessionID = rec.SessionID
		res.Details.BankName = req.Bank.Name
		return res
	case sessions.StatusFailed:
		msg := rec.Message
		if msg == "" {
			msg = MessageFailed
		}
		return &Result{SessionID: rec.SessionID, Message: msg, Timestamp: rec.UpdatedAt}
	case sessions.StatusWaitingOTP:
		return PendingOTP(rec.SessionID, rec.CurrentLocation, rec.UpdatedAt)
	default:
		return &Result{
			SessionID: rec.SessionID,
			Message:   fmt.Sprintf("session is %s", rec.Status),
			Timestamp: rec.UpdatedAt,
		}
	}
}

// Cancel abandons a suspended session: the record is deleted and its control
// target terminated.
func (e *Engine) Cancel(sessionID string) error {
	rec, err := e.store.Get(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	_, held := e.held[sessionID]
	e.mu.Unlock()

	if err := e.coord.Cancel(sessionID); err != nil {
		return err
	}
	// A local wait releases its own control; anything else is terminated here.
	if !held && !rec.Status.Terminal() {
		e.releaseRecorded(rec, true)
	}
	e.logger.WithField("session_id", sessionID).Info("Session cancelled")
	return nil
}

// ExpireStale deletes waiting sessions whose OTP wait has run out without a
// process watching them, and terminates their control targets.
func (e *Engine) ExpireStale() ([]string, error) {
	recs, err := e.store.List()
	if err != nil {
		return nil, err
	}
	now := e.now()
	var expired []string
	for _, rec := range recs {
		if rec.Status != sessions.StatusWaitingOTP || now.Sub(rec.UpdatedAt) < e.otpWait {
			continue
		}
		if err := e.store.Delete(rec.SessionID); err != nil {
			return expired, err
		}
		e.releaseRecorded(rec, true)
		e.logger.WithField("session_id", rec.SessionID).Info(errors.OTPTimeout(rec.SessionID, e.otpWait).Message)
		expired = append(expired, rec.SessionID)
	}
	return expired, nil
}
