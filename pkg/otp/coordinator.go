// Package otp bridges the step that finds an OTP requirement and the call that
// later supplies the code. Delivery from another process is observed through
// the session store; delivery inside the same process also fills an
// in-memory slot so the waiting flow can submit the code itself.
package otp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/sessions"
	"github.com/sirupsen/logrus"
)

// State is the position of a single wait.
type State string

const (
	StateWaiting   State = "WAITING"
	StateDelivered State = "DELIVERED"
	StateExpired   State = "EXPIRED"
	StateCancelled State = "CANCELLED"
)

// Store is the part of the session store the coordinator needs.
type Store interface {
	Get(sessionID string) (*sessions.Record, error)
	Update(sessionID string, fn func(*sessions.Record)) (bool, error)
	Delete(sessionID string) error
}

// ReleaseFunc is called once when a wait leaves WAITING, before Done is closed.
type ReleaseFunc func(ctx context.Context, sessionID string, out Outcome)

// Outcome is the final result of a wait.
type Outcome struct {
	State State
	// Code is set only when the code was delivered inside this process.
	Code string
	// Record is the last record observed, nil once it is gone.
	Record *sessions.Record
}

// Wait is one monitored session.
type Wait struct {
	SessionID string
	StartedAt time.Time

	mu      sync.Mutex
	state   State
	code    string
	outcome Outcome

	done   chan struct{}
	cancel context.CancelFunc
}

// Done is closed when the wait leaves WAITING.
func (w *Wait) Done() <-chan struct{} {
	return w.done
}

// State returns the current state.
func (w *Wait) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Outcome returns the final outcome. It is only meaningful after Done.
func (w *Wait) Outcome() Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outcome
}

// Coordinator owns one monitor goroutine per pending session.
type Coordinator struct {
	store    Store
	timeout  time.Duration
	interval time.Duration
	release  ReleaseFunc
	now      func() time.Time
	logger   *logrus.Entry

	mu    sync.Mutex
	waits map[string]*Wait
	wg    sync.WaitGroup
}

// New creates a coordinator. release may be nil.
func New(store Store, cfg config.OTPConfig, release ReleaseFunc) *Coordinator {
	timeout := cfg.Wait
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	if interval > timeout {
		interval = timeout
	}
	return &Coordinator{
		store:    store,
		timeout:  timeout,
		interval: interval,
		release:  release,
		now:      time.Now,
		logger:   logging.NewLogger("otp"),
		waits:    make(map[string]*Wait),
	}
}

// Timeout is the overall wait budget.
func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// Begin starts monitoring a session in the background. Calling it again for
// a session that is already monitored returns the existing wait.
func (c *Coordinator) Begin(ctx context.Context, sessionID string) *Wait {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.waits[sessionID]; ok {
		return w
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &Wait{
		SessionID: sessionID,
		StartedAt: c.now(),
		state:     StateWaiting,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	c.waits[sessionID] = w
	c.wg.Add(1)
	go c.monitor(wctx, w)

	c.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"timeout":    c.timeout,
	}).Info("Waiting for OTP code")
	return w
}

// AwaitCode blocks until the session's wait finishes. An expired wait returns
// an OTPTimeout error and a session that disappeared returns SessionNotFound.
func (c *Coordinator) AwaitCode(ctx context.Context, sessionID string) (Outcome, error) {
	w := c.Begin(ctx, sessionID)
	select {
	case <-w.Done():
	case <-ctx.Done():
		// The wait belongs to the process, not to this caller.
		return Outcome{State: StateWaiting}, ctx.Err()
	}
	out := w.Outcome()
	switch out.State {
	case StateExpired:
		return out, errors.OTPTimeout(sessionID, c.timeout)
	case StateCancelled:
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if out.Record == nil {
			return out, errors.SessionNotFound(sessionID)
		}
		return out, fmt.Errorf("otp wait for %s cancelled", sessionID)
	}
	return out, nil
}

// Deliver records that a code arrived for sessionID by moving the record from
// waiting_otp to processing_otp. If this process is monitoring the session the
// code is handed to the waiting flow and local is true; otherwise the caller
// must resume the flow itself.
func (c *Coordinator) Deliver(sessionID, code string) (local bool, err error) {
	if code == "" {
		return false, errors.InvalidRequest("verification code is empty")
	}

	c.mu.Lock()
	w := c.waits[sessionID]
	c.mu.Unlock()

	if w != nil {
		w.mu.Lock()
		defer w.mu.Unlock()
	}

	rec, err := c.store.Get(sessionID)
	if err != nil {
		return false, err
	}
	if rec.Status != sessions.StatusWaitingOTP {
		return false, errors.AlreadyProcessing(sessionID, string(rec.Status))
	}
	found, err := c.store.Update(sessionID, func(r *sessions.Record) {
		r.Status = sessions.StatusProcessingOTP
	})
	if err != nil {
		return false, err
	}
	if !found {
		return false, errors.SessionNotFound(sessionID)
	}

	if w != nil && w.state == StateWaiting {
		w.code = code
		return true, nil
	}
	return false, nil
}

// Cancel stops monitoring a session and deletes its record.
func (c *Coordinator) Cancel(sessionID string) error {
	if err := c.store.Delete(sessionID); err != nil {
		return err
	}
	c.mu.Lock()
	w := c.waits[sessionID]
	c.mu.Unlock()
	if w != nil {
		w.cancel()
	}
	return nil
}

// Pending returns the ids still in WAITING, sorted.
func (c *Coordinator) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.waits))
	for id, w := range c.waits {
		if w.State() == StateWaiting {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Shutdown cancels every wait and blocks until their monitors have exited.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	for _, w := range c.waits {
		w.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) monitor(ctx context.Context, w *Wait) {
	defer c.wg.Done()
	defer w.cancel()

	deadline := w.StartedAt.Add(c.timeout)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var last *sessions.Record
	for {
		select {
		case <-ctx.Done():
			c.finish(w, Outcome{State: StateCancelled, Record: c.current(w.SessionID)})
			return
		case <-ticker.C:
		}

		if out, ok := c.check(w, deadline, &last); ok {
			c.finish(w, out)
			return
		}
	}
}

// check runs one poll. It holds the wait lock so that an in-process Deliver
// is seen as a code, never as a bare status change.
func (c *Coordinator) check(w *Wait, deadline time.Time, last **sessions.Record) (Outcome, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.code != "" {
		return Outcome{State: StateDelivered, Code: w.code, Record: c.current(w.SessionID)}, true
	}

	rec, err := c.store.Get(w.SessionID)
	switch {
	case errors.Is(err, errors.ErrCodeSessionNotFound):
		return Outcome{State: StateCancelled}, true
	case err != nil:
		c.logger.WithError(err).WithField("session_id", w.SessionID).Warn("Failed to read session while waiting for OTP")
	case rec.Status != sessions.StatusWaitingOTP:
		return Outcome{State: StateDelivered, Record: rec}, true
	default:
		*last = rec
	}

	if !c.now().Before(deadline) {
		if err := c.store.Delete(w.SessionID); err != nil {
			c.logger.WithError(err).WithField("session_id", w.SessionID).Warn("Failed to delete expired session")
		}
		return Outcome{State: StateExpired, Record: *last}, true
	}
	return Outcome{}, false
}

func (c *Coordinator) current(sessionID string) *sessions.Record {
	rec, err := c.store.Get(sessionID)
	if err != nil {
		return nil
	}
	return rec
}

func (c *Coordinator) finish(w *Wait, out Outcome) {
	w.mu.Lock()
	w.state = out.State
	w.outcome = out
	w.mu.Unlock()

	c.mu.Lock()
	delete(c.waits, w.SessionID)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"session_id": w.SessionID,
		"state":      out.State,
		"waited":     c.now().Sub(w.StartedAt).Round(time.Millisecond),
	}).Info("OTP wait finished")

	if c.release != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c.release(ctx, w.SessionID, out)
		cancel()
	}
	close(w.done)
}
