package core

import (
	"fmt"
)

// Error is the shared error shape for the realtime core.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrConfiguration means required credentials or settings are absent.
	// Raised before any network or device resource is acquired.
	ErrConfiguration ErrorType = "configuration_error"
	// ErrTransport means the duplex stream failed to open, send, or receive.
	ErrTransport ErrorType = "transport_error"
	// ErrDevice means a capture or playback device is unavailable or denied.
	ErrDevice ErrorType = "device_error"
	// ErrQuotaExceeded means the usage collaborator denied the session.
	ErrQuotaExceeded ErrorType = "quota_exceeded_error"
	// ErrDecode means an inbound payload could not be decoded.
	ErrDecode ErrorType = "decode_error"
)

// NewConfigurationError creates a configuration error.
func NewConfigurationError(message string) *Error {
	return &Error{Type: ErrConfiguration, Message: message}
}

// NewConfigurationErrorWithParam creates a configuration error naming the
// missing parameter.
func NewConfigurationErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrConfiguration, Message: message, Param: param}
}

// NewTransportError wraps a stream open/send/receive failure.
func NewTransportError(op string, underlying error) *Error {
	return &Error{
		Type:    ErrTransport,
		Message: fmt.Sprintf("%s: %v", op, underlying),
		Code:    op,
		Cause:   underlying,
	}
}

// NewDeviceError wraps a device acquisition failure.
func NewDeviceError(device string, underlying error) *Error {
	return &Error{
		Type:    ErrDevice,
		Message: fmt.Sprintf("%s: %v", device, underlying),
		Code:    device,
		Cause:   underlying,
	}
}

// NewQuotaExceededError creates a quota denial error.
func NewQuotaExceededError(message string) *Error {
	return &Error{Type: ErrQuotaExceeded, Message: message}
}

// NewDecodeError wraps a malformed payload failure.
func NewDecodeError(message string, underlying error) *Error {
	return &Error{Type: ErrDecode, Message: message, Cause: underlying}
}

// IsType reports whether err is a core Error of the given type.
func IsType(err error, t ErrorType) bool {
	e, ok := err.(*Error)
	return ok && e.Type == t
}
