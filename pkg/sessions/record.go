package sessions

import (
	"fmt"
	"time"
)

// Status is the lifecycle position of a session record.
type Status string

const (
	StatusWaitingOTP    Status = "waiting_otp"
	StatusProcessingOTP Status = "processing_otp"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusWaitingOTP:
		return 0
	case StatusProcessingOTP:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Terminal reports whether the record can no longer change and may be deleted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvanceTo reports whether next is a forward move from s.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	return next.rank() > s.rank()
}

// Record is the unit of cross-process handoff for a transfer paused on an OTP.
type Record struct {
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`

	// BankConfig and TransferData are opaque to the store; the transfer
	// engine needs them to resume or redo the flow.
	BankConfig   map[string]interface{} `json:"bank_config"`
	TransferData map[string]interface{} `json:"transfer_data"`

	TransactionID string `json:"transaction_id,omitempty"`

	ControlTargetPID    int    `json:"control_target_pid"`
	ControlSessionToken string `json:"control_session_token"`
	DebugPort           int    `json:"debug_port,omitempty"`
	ProfileDir          string `json:"profile_dir,omitempty"`
	CurrentLocation     string `json:"current_location"`
	OTPDetected         bool   `json:"otp_detected"`

	// Message holds the failure reason once the record is failed.
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep enough copy for read-modify-write: the top-level maps are copied.
func (r *Record) Clone() *Record {
	c := *r
	c.BankConfig = cloneMap(r.BankConfig)
	c.TransferData = cloneMap(r.TransferData)
	return &c
}

// Redacted returns a copy with credentials removed from TransferData, for display.
func (r *Record) Redacted() *Record {
	c := r.Clone()
	for _, key := range []string{"password", "otpCode"} {
		if _, ok := c.TransferData[key]; ok {
			c.TransferData[key] = "[REDACTED]"
		}
	}
	return c
}

func (r *Record) validate() error {
	if !validID(r.SessionID) {
		return fmt.Errorf("invalid session id %q", r.SessionID)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	return nil
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// validID restricts ids to characters that are safe as a single file name.
func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
