package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/grovetools/remit/errors"
)

// Demo simulates transfers without a browser: the first call asks for a
// code, and a call carrying a code succeeds.
type Demo struct {
	Delay time.Duration
	now   func() time.Time
}

// NewDemo creates a demo service that pauses for delay on every call.
func NewDemo(delay time.Duration) *Demo {
	return &Demo{Delay: delay, now: time.Now}
}

func (d *Demo) pause(ctx context.Context) error {
	if d.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.Delay):
		return nil
	}
}

// Run returns a pending DEMO_ session when no code is given, otherwise success.
func (d *Demo) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := d.pause(ctx); err != nil {
		return nil, err
	}
	now := d.now()
	if req.OTPCode == "" {
		res := PendingOTP(fmt.Sprintf("DEMO_%d", now.UnixMilli()), req.Bank.LoginURL, now)
		res.OTPMessage = fmt.Sprintf("Código de verificação enviado para o seu telemóvel registado no %s", req.Bank.Name)
		return res, nil
	}
	if err := d.pause(ctx); err != nil {
		return nil, err
	}
	res := Succeeded(NewTransactionID(now), req.Amount, req.ReceiverIBAN, now)
	res.Details.BankName = req.Bank.Name
	res.Message = MessageSuccess + " (DEMO)"
	return res, nil
}

// SubmitCode accepts any code for a demo session. Amount and receiver are
// not known to the demo, so the details carry only the minimum fee.
func (d *Demo) SubmitCode(ctx context.Context, sessionID, code string) (*Result, error) {
	if code == "" {
		return nil, errors.InvalidRequest("verification code is required")
	}
	if err := d.pause(ctx); err != nil {
		return nil, err
	}
	now := d.now()
	res := Succeeded(NewTransactionID(now), 0, "", now)
	res.SessionID = sessionID
	res.Message = MessageSuccess + " (DEMO)"
	return res, nil
}
