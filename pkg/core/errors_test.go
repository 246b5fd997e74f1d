package core

import (
	"errors"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := NewConfigurationErrorWithParam("relay URL is required", "relay_url")
	if got := err.Error(); got != "configuration_error: relay URL is required" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := NewTransportError("dial", errors.New("connection refused"))
	if got := wrapped.Error(); got != "transport_error: dial: connection refused (code: dial)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewTransportError("send", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
}

func TestIsType(t *testing.T) {
	if !IsType(NewQuotaExceededError("limit"), ErrQuotaExceeded) {
		t.Error("IsType should match the error's type")
	}
	if IsType(NewQuotaExceededError("limit"), ErrTransport) {
		t.Error("IsType matched the wrong type")
	}
	if IsType(errors.New("plain"), ErrTransport) {
		t.Error("IsType matched a non-core error")
	}
}
