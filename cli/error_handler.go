package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/remit/errors"
)

// ErrorHandler prints user-facing hints for remit error codes.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates an error handler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints err with a hint for its code and returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	remitErr, _ := errors.AsRemitError(err)
	detail := func(key string) interface{} {
		if remitErr == nil {
			return ""
		}
		return remitErr.Details[key]
	}

	fmt.Fprintf(h.Out, "❌ Error: %v\n", err)

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "Create a remit.yml or pass one with --config.\n")
	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(h.Out, "Check remit.yml against 'remit config schema'.\n")
	case errors.ErrCodeBankNotFound:
		fmt.Fprintf(h.Out, "Run 'remit banks' to see the supported banks.\n")
	case errors.ErrCodeSessionNotFound:
		fmt.Fprintf(h.Out, "The session expired or was never created. Run 'remit sessions list' to see pending sessions.\n")
	case errors.ErrCodeAlreadyProcessing:
		fmt.Fprintf(h.Out, "A code was already submitted for this session. Follow it with 'remit sessions show %v'.\n", detail("session_id"))
	case errors.ErrCodeBrowserLaunchFailed:
		fmt.Fprintf(h.Out, "Install Chrome or Chromium, or set browser.binary in remit.yml.\n")
	case errors.ErrCodeControlTargetDead, errors.ErrCodeReattachFailed:
		fmt.Fprintf(h.Out, "The browser holding the session is gone; submitting the code again redoes the transfer.\n")
	case errors.ErrCodeOTPTimeout:
		fmt.Fprintf(h.Out, "Start the transfer again and enter the code within %v.\n", detail("timeout"))
	case errors.ErrCodeElementNotFound:
		fmt.Fprintf(h.Out, "The bank page did not show '%v'. The site may have changed; check the screenshot and the bank table.\n", detail("selector"))
	}

	if h.Verbose && remitErr != nil {
		fmt.Fprintf(h.Out, "\nError details:\n%s\n", remitErr.ToJSON())
	}
	return err
}
