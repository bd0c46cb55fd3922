package transfer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grovetools/remit/errors"
)

// Fee bounds, in the account currency.
const (
	FeeRate    = 0.005
	MinimumFee = 500.0
	MaximumFee = 5000.0
)

// User-facing messages.
const (
	MessageSuccess     = "Transferência realizada com sucesso"
	MessageOTPRequired = "Verificação OTP necessária"
	MessageOTPSent     = "Código de verificação necessário. Verifique o seu telemóvel."
	MessageFailed      = "Erro na transferência"
)

// Fee computes the transfer fee: 0.5% of the amount, clamped to [500, 5000].
func Fee(amount float64) float64 {
	return math.Min(math.Max(amount*FeeRate, MinimumFee), MaximumFee)
}

// NewTransactionID returns an id of the form TXN<unix seconds><8 uppercase hex>.
func NewTransactionID(now time.Time) string {
	return newID("TXN", now)
}

// NewSessionID returns an id of the form SES<unix seconds><8 uppercase hex>.
func NewSessionID(now time.Time) string {
	return newID("SES", now)
}

func newID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%d%s", prefix, now.Unix(), strings.ToUpper(uuid.NewString()[:8]))
}

// Details describes a completed transfer.
type Details struct {
	Amount       float64 `json:"amount"`
	ReceiverIBAN string  `json:"receiverIban"`
	Fee          float64 `json:"fee"`
	BankName     string  `json:"bankName,omitempty"`
}

// Result is the outcome of a run or a code submission. Exactly one of three
// shapes is produced: success with a transaction id, pending on an OTP with a
// session id, or failure with a message.
type Result struct {
	Success       bool     `json:"success"`
	TransactionID string   `json:"transactionId,omitempty"`
	Details       *Details `json:"details,omitempty"`

	RequiresOTP     bool   `json:"requiresOtp,omitempty"`
	SessionID       string `json:"sessionId,omitempty"`
	CurrentLocation string `json:"currentUrl,omitempty"`
	OTPMessage      string `json:"otpMessage,omitempty"`

	Message   string           `json:"message"`
	ErrorCode errors.ErrorCode `json:"errorCode,omitempty"`
	// Screenshot is the diagnostic capture taken on failure, if any.
	Screenshot string    `json:"screenshot,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Pending reports whether the result is waiting on an OTP.
func (r *Result) Pending() bool {
	return r != nil && !r.Success && r.RequiresOTP
}

// Succeeded builds a success result.
func Succeeded(transactionID string, amount float64, receiverIBAN string, now time.Time) *Result {
	return &Result{
		Success:       true,
		TransactionID: transactionID,
		Details: &Details{
			Amount:       amount,
			ReceiverIBAN: receiverIBAN,
			Fee:          Fee(amount),
		},
		Message:   MessageSuccess,
		Timestamp: now,
	}
}

// PendingOTP builds the result handed back when the flow suspends on an OTP.
func PendingOTP(sessionID, location string, now time.Time) *Result {
	return &Result{
		RequiresOTP:     true,
		SessionID:       sessionID,
		CurrentLocation: location,
		OTPMessage:      MessageOTPSent,
		Message:         MessageOTPRequired,
		Timestamp:       now,
	}
}

// Failed builds a failure result from err. The error code, if any, is kept.
func Failed(err error, now time.Time) *Result {
	msg := MessageFailed
	if err != nil {
		msg = err.Error()
	}
	return &Result{
		Message:   msg,
		ErrorCode: errors.GetCode(err),
		Timestamp: now,
	}
}
