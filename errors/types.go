package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
	ErrCodeBankNotFound   ErrorCode = "BANK_NOT_FOUND"

	// Session errors
	ErrCodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionCorrupt    ErrorCode = "SESSION_CORRUPT"
	ErrCodeAlreadyProcessing ErrorCode = "ALREADY_PROCESSING"

	// Control target errors
	ErrCodeControlTargetDead   ErrorCode = "CONTROL_TARGET_DEAD"
	ErrCodeReattachFailed      ErrorCode = "REATTACH_FAILED"
	ErrCodeBrowserLaunchFailed ErrorCode = "BROWSER_LAUNCH_FAILED"

	// Transfer flow errors
	ErrCodeElementNotFound    ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeOTPTimeout         ErrorCode = "OTP_TIMEOUT"
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"

	// General errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// RemitError represents a structured error with context
type RemitError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *RemitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *RemitError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *RemitError) WithDetail(key string, value interface{}) *RemitError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *RemitError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new RemitError
func New(code ErrorCode, message string) *RemitError {
	return &RemitError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a RemitError
func Wrap(err error, code ErrorCode, message string) *RemitError {
	return &RemitError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is reports whether any error in err's chain is a RemitError with the given code.
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// GetCode extracts the outermost error code from an error chain
func GetCode(err error) ErrorCode {
	if remitErr, ok := AsRemitError(err); ok {
		return remitErr.Code
	}
	return ""
}

// AsRemitError returns the outermost RemitError in err's chain.
func AsRemitError(err error) (*RemitError, bool) {
	for err != nil {
		if remitErr, ok := err.(*RemitError); ok {
			return remitErr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}
