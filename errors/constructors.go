package errors

import (
	"fmt"
	"time"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *RemitError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *RemitError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// BankNotFound creates an unknown bank error
func BankNotFound(id string) *RemitError {
	return New(ErrCodeBankNotFound, fmt.Sprintf("bank '%s' is not supported", id)).
		WithDetail("bank", id)
}

// SessionNotFound creates a session not found error
func SessionNotFound(sessionID string) *RemitError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found or expired", sessionID)).
		WithDetail("session_id", sessionID)
}

// SessionCorrupt creates a corrupt session error. Callers treat it like SessionNotFound.
func SessionCorrupt(sessionID string, err error) *RemitError {
	return Wrap(err, ErrCodeSessionCorrupt, fmt.Sprintf("session '%s' is unreadable", sessionID)).
		WithDetail("session_id", sessionID)
}

// AlreadyProcessing is returned when a code is submitted for a session that left waiting_otp.
func AlreadyProcessing(sessionID, status string) *RemitError {
	return New(ErrCodeAlreadyProcessing, fmt.Sprintf("session '%s' is already %s", sessionID, status)).
		WithDetail("session_id", sessionID).
		WithDetail("status", status)
}

// ControlTargetDead creates an error for a control target whose process has exited
func ControlTargetDead(pid int) *RemitError {
	return New(ErrCodeControlTargetDead, fmt.Sprintf("control target process %d is not running", pid)).
		WithDetail("pid", pid)
}

// ReattachFailed creates an endpoint discovery or attach failure
func ReattachFailed(pid int, err error) *RemitError {
	return Wrap(err, ErrCodeReattachFailed, fmt.Sprintf("could not reattach to control target %d", pid)).
		WithDetail("pid", pid)
}

// BrowserLaunchFailed creates a control target launch failure
func BrowserLaunchFailed(binary string, err error) *RemitError {
	return Wrap(err, ErrCodeBrowserLaunchFailed, fmt.Sprintf("failed to launch browser: %s", binary)).
		WithDetail("binary", binary)
}

// ElementNotFound creates an element wait timeout error
func ElementNotFound(selector string, timeout time.Duration) *RemitError {
	return New(ErrCodeElementNotFound,
		fmt.Sprintf("element '%s' did not appear within %s", selector, timeout)).
		WithDetail("selector", selector).
		WithDetail("timeout", timeout.String())
}

// OTPTimeout creates an OTP wait expiry error
func OTPTimeout(sessionID string, timeout time.Duration) *RemitError {
	return New(ErrCodeOTPTimeout,
		fmt.Sprintf("no verification code received for session '%s' within %s", sessionID, timeout)).
		WithDetail("session_id", sessionID).
		WithDetail("timeout", timeout.String())
}

// VerificationFailed creates a negative or missing result indicator error
func VerificationFailed(diagnostic string) *RemitError {
	return New(ErrCodeVerificationFailed, diagnostic)
}

// InvalidRequest creates a request validation error
func InvalidRequest(reason string) *RemitError {
	return New(ErrCodeInvalidRequest, reason)
}
