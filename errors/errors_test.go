package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestRemitError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeSessionNotFound, "session not found")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeReattachFailed, "attach failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeReattachFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeSessionNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("session_id", "SES1").WithDetail("pid", 42)
	if detailed.Details["session_id"] != "SES1" {
		t.Error("WithDetail should add details")
	}
}

func TestIsThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("resume: %w", SessionNotFound("SES1"))
	if !Is(err, ErrCodeSessionNotFound) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
	if GetCode(err) != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, GetCode(err))
	}
	if GetCode(fmt.Errorf("plain")) != "" {
		t.Error("plain errors carry no code")
	}
	if Is(nil, "") {
		t.Error("nil error never matches")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := ControlTargetDead(4242)
	if err.Code != ErrCodeControlTargetDead {
		t.Errorf("expected code %s, got %s", ErrCodeControlTargetDead, err.Code)
	}
	if err.Details["pid"] != 4242 {
		t.Error("ControlTargetDead should include pid detail")
	}

	err = ElementNotFound("#amount", 160*time.Second)
	if err.Code != ErrCodeElementNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeElementNotFound, err.Code)
	}
	if err.Details["selector"] != "#amount" {
		t.Error("ElementNotFound should include selector detail")
	}

	corrupt := SessionCorrupt("SES1", fmt.Errorf("unexpected end of JSON input"))
	if corrupt.Unwrap() == nil {
		t.Error("SessionCorrupt should keep the parse error as cause")
	}
}
